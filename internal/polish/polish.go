// Package polish normalizes scraped and rewritten text before it is stored.
// Every function here is pure.
package polish

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultTitleMax is the rune cap applied to extracted titles.
const DefaultTitleMax = 200

var (
	inlineSpaceRe = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
	blockTagRe    = regexp.MustCompile(`(?i)</?(p|div|br|li|ul|ol|h[1-6])\s*/?>`)
)

// Polisher cleans article text. It is safe for concurrent use.
type Polisher struct {
	strict   *bluemonday.Policy
	titleMax int
}

// New creates a Polisher with the default title cap.
func New() *Polisher {
	return &Polisher{
		strict:   bluemonday.StrictPolicy(),
		titleMax: DefaultTitleMax,
	}
}

// Polish runs the body pipeline: emoji removal, Markdown to HTML and whitespace
// collapse. Markup is preserved.
func (p *Polisher) Polish(s string) string {
	s = StripEmoji(s)
	s = MarkdownToHTML(s)
	return CollapseWhitespace(s)
}

// Plain reduces s to a single line of text with no markup. Used for titles and
// summaries, never for article bodies.
func (p *Polisher) Plain(s string) string {
	s = StripEmoji(s)
	s = stripMarkdown(s)
	s = blockTagRe.ReplaceAllString(s, " ")
	s = p.strict.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// SplitTitleBody splits a generative response. The first non-blank line becomes
// the plain-text title, capped in length; the remainder is the body with its
// markup untouched.
func (p *Polisher) SplitTitleBody(text string) (title, body string) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		title = Truncate(p.Plain(line), p.titleMax)
		body = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		return title, body
	}
	return "", ""
}

// Summarize returns the first limit runes of the plain text, followed by "..."
// when the text was cut.
func (p *Polisher) Summarize(s string, limit int) string {
	plain := p.Plain(s)
	if utf8.RuneCountInString(plain) <= limit {
		return plain
	}
	return strings.TrimSpace(Truncate(plain, limit)) + "..."
}

// CollapseWhitespace squeezes runs of spaces inside lines, trims every line and
// allows at most one blank line in a row.
func CollapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpaceRe.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
