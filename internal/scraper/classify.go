package scraper

import (
	"net/url"
	"regexp"
	"strings"
)

// Content types of mailbox messages. Each is rewritten with its own prompt.
const (
	ContentSocial = "social"
	ContentPress  = "press"
)

// defaultSocialKeywords mark a forwarded post. Plain profile links are left
// out: press releases carry them in their footer.
var defaultSocialKeywords = []string{
	"pic.twitter.com",
	"/status/",
	"instagram.com/p/",
	"instagram.com/reel/",
	"facebook.com/photo",
	"facebook.com/story",
	"retweet",
}

var socialHosts = []string{
	"twitter.com", "x.com", "t.co", "facebook.com", "fb.me",
	"instagram.com", "youtube.com", "youtu.be", "linkedin.com",
}

var (
	linkRe    = regexp.MustCompile(`(?:https?://|\bpic\.twitter\.com/)[^\s<>"'()\[\]]+`)
	mentionRe = regexp.MustCompile(`(^|[\s(\[>"'])[#@]([\p{L}\p{N}_]+)`)
)

// classifier sorts messages into social posts and press releases.
type classifier struct {
	social *keywordSet
}

func newClassifier(keywords []string) *classifier {
	if len(keywords) == 0 {
		keywords = defaultSocialKeywords
	}
	return &classifier{social: newKeywordSet(keywords)}
}

// Classify returns ContentSocial when subject or body carry a social marker,
// else ContentPress.
func (c *classifier) Classify(subject, body string) string {
	if c.social.Any(subject + "\n" + body) {
		return ContentSocial
	}
	return ContentPress
}

// plainMentions turns #hashtags and @mentions into plain words. E-mail
// addresses are left alone because their @ follows a word character.
func plainMentions(s string) string {
	return mentionRe.ReplaceAllString(s, "$1$2")
}

// findLinks lists the distinct links in text in order of appearance.
// pic.twitter.com references are given an https scheme.
func findLinks(text string) []string {
	var links []string
	seen := make(map[string]bool)
	for _, m := range linkRe.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;:!?")
		if strings.HasPrefix(m, "pic.twitter.com/") {
			m = "https://" + m
		}
		if !seen[m] {
			seen[m] = true
			links = append(links, m)
		}
	}
	return links
}

// isSocialLink reports whether rawURL points at a social network.
func isSocialLink(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range socialHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// socialMedia picks the image and source link of a social post: the
// pic.twitter.com reference and the status URL.
func socialMedia(links []string) (image, source string) {
	for _, l := range links {
		switch {
		case image == "" && strings.Contains(l, "pic.twitter.com/"):
			image = l
		case source == "" && strings.Contains(l, "/status/"):
			source = l
		}
	}
	if source == "" {
		for _, l := range links {
			if isSocialLink(l) && !strings.Contains(l, "pic.twitter.com/") {
				source = l
				break
			}
		}
	}
	return image, source
}

// pressSource picks the source link of a press release: the first link that
// is neither a social network nor an image.
func pressSource(links []string) string {
	for _, l := range links {
		if !isSocialLink(l) && !looksLikeImage(l) {
			return l
		}
	}
	return ""
}
