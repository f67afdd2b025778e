package polish

import (
	"regexp"
	"strings"
)

var (
	boldStarRe  = regexp.MustCompile(`\*\*([^*\n]+?)\*\*`)
	boldUnderRe = regexp.MustCompile(`__([^_\n]+?)__`)
	emStarRe    = regexp.MustCompile(`\*([^*\s][^*\n]*?)\*`)
	emUnderRe   = regexp.MustCompile(`(^|[^\w])_([^_\s][^_\n]*?)_([^\w]|$)`)
	headingRe   = regexp.MustCompile(`^(#{1,3})\s+(.+?)\s*#*$`)
	bulletRe    = regexp.MustCompile(`^\s*(?:[-*+•])\s+(.+)$`)
	numberedRe  = regexp.MustCompile(`^\s*\d+[.)]\s+(.+)$`)
)

// convertInline turns bold and emphasis markers into <strong> and <em>.
func convertInline(line string) string {
	line = boldStarRe.ReplaceAllString(line, "<strong>$1</strong>")
	line = boldUnderRe.ReplaceAllString(line, "<strong>$1</strong>")
	line = emStarRe.ReplaceAllString(line, "<em>$1</em>")
	line = emUnderRe.ReplaceAllString(line, "$1<em>$2</em>$3")
	return line
}

// MarkdownToHTML converts the small Markdown subset produced by generative
// rewrites into minimal HTML: headings up to level three, bold, emphasis and
// bullet or numbered lists. Consecutive list lines are grouped into one block.
// Everything else passes through unchanged.
func MarkdownToHTML(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))

	var listTag string
	closeList := func() {
		if listTag != "" {
			out = append(out, "</"+listTag+">")
			listTag = ""
		}
	}
	openList := func(tag string) {
		if listTag == tag {
			return
		}
		closeList()
		out = append(out, "<"+tag+">")
		listTag = tag
	}

	pendingBlank := false
	for _, line := range lines {
		isItem := bulletRe.MatchString(line) || numberedRe.MatchString(line)
		if pendingBlank {
			pendingBlank = false
			if !isItem {
				closeList()
				out = append(out, "")
			}
		}

		if m := headingRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			closeList()
			level := string(rune('0' + len(m[1])))
			out = append(out, "<h"+level+">"+convertInline(m[2])+"</h"+level+">")
			continue
		}
		if m := bulletRe.FindStringSubmatch(line); m != nil && !strings.HasPrefix(strings.TrimSpace(line), "**") {
			openList("ul")
			out = append(out, "<li>"+convertInline(m[1])+"</li>")
			continue
		}
		if m := numberedRe.FindStringSubmatch(line); m != nil {
			openList("ol")
			out = append(out, "<li>"+convertInline(m[1])+"</li>")
			continue
		}
		// A blank line between items does not break the list.
		if strings.TrimSpace(line) == "" && listTag != "" {
			pendingBlank = true
			continue
		}
		closeList()
		out = append(out, convertInline(line))
	}
	closeList()

	return strings.Join(out, "\n")
}

// stripMarkdown removes Markdown markers without producing HTML.
func stripMarkdown(s string) string {
	s = boldStarRe.ReplaceAllString(s, "$1")
	s = boldUnderRe.ReplaceAllString(s, "$1")
	s = emStarRe.ReplaceAllString(s, "$1")
	s = emUnderRe.ReplaceAllString(s, "$1$2$3")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if m := headingRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			lines[i] = m[2]
			continue
		}
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			lines[i] = m[1]
		}
	}
	return strings.Join(lines, "\n")
}
