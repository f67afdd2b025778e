package scraper

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// keywordSet matches a fixed dictionary against text, case-insensitively, in
// one pass.
type keywordSet struct {
	words   []string
	matcher *ahocorasick.Matcher
}

func newKeywordSet(words []string) *keywordSet {
	ks := &keywordSet{}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			ks.words = append(ks.words, w)
		}
	}
	if len(ks.words) > 0 {
		ks.matcher = ahocorasick.NewStringMatcher(ks.words)
	}
	return ks
}

// Empty reports whether the set has no keywords. An empty set matches nothing.
func (ks *keywordSet) Empty() bool {
	return ks == nil || ks.matcher == nil
}

// Any reports whether text contains at least one keyword.
func (ks *keywordSet) Any(text string) bool {
	if ks.Empty() {
		return false
	}
	return len(ks.matcher.MatchThreadSafe([]byte(strings.ToLower(text)))) > 0
}

// Found returns the distinct keywords present in text.
func (ks *keywordSet) Found(text string) []string {
	if ks.Empty() {
		return nil
	}
	hits := ks.matcher.MatchThreadSafe([]byte(strings.ToLower(text)))
	found := make([]string, 0, len(hits))
	for _, i := range hits {
		found = append(found, ks.words[i])
	}
	return found
}

// allows applies the optional-filter convention: no keywords means everything passes.
func (ks *keywordSet) allows(text string) bool {
	return ks.Empty() || ks.Any(text)
}
