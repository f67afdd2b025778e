package parser

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/NewsHound/internal/types"
)

// rejectedImageWords are substrings of image sources that never carry article images.
var rejectedImageWords = []string{"logo", "icon", "avatar", "social", "placeholder"}

// ImageRules controls article image selection.
type ImageRules struct {
	// Selectors are tried in order before the default <img> lookup.
	Selectors []string
	MinWidth  int
	MinHeight int
}

// FindImage returns the first acceptable image inside s as an absolute URL, or
// "" when none qualifies. Custom selectors may point at the <img> itself or at a
// wrapper containing it.
func FindImage(s *goquery.Selection, base *url.URL, rules ImageRules) string {
	selectors := append(append([]string{}, rules.Selectors...), "img")

	for _, sel := range selectors {
		var found string
		Select(s, sel).EachWithBreak(func(_ int, match *goquery.Selection) bool {
			imgs := match
			if goquery.NodeName(match) != "img" {
				imgs = match.Find("img")
			}
			imgs.EachWithBreak(func(_ int, img *goquery.Selection) bool {
				if !AcceptImage(img, rules) {
					return true
				}
				if abs := types.ResolveURL(base, ImageSource(img)); abs != "" {
					found = types.EscapePathSpaces(abs)
					return false
				}
				return true
			})
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// ImageSource returns the lazy-loading source when present, else src. Inline
// data: URIs count as absent.
func ImageSource(img *goquery.Selection) string {
	for _, attr := range []string{"data-src", "data-lazy-src", "src"} {
		v := strings.TrimSpace(img.AttrOr(attr, ""))
		if v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

// AcceptImage applies the size and name filters to one <img>.
func AcceptImage(img *goquery.Selection, rules ImageRules) bool {
	src := ImageSource(img)
	if src == "" {
		return false
	}
	if IsDecorativeImage(src) {
		return false
	}
	w, h := dimension(img.AttrOr("width", "")), dimension(img.AttrOr("height", ""))
	if w > 0 && h > 0 && (w < rules.MinWidth || h < rules.MinHeight) {
		return false
	}
	return true
}

// IsDecorativeImage reports whether an image URL looks like a logo, icon or similar.
func IsDecorativeImage(src string) bool {
	lower := strings.ToLower(src)
	for _, w := range rejectedImageWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// dimension parses a width/height attribute such as "300" or "300px".
func dimension(v string) int {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
