package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// noiseSelector lists page chrome removed before looking for article text.
const noiseSelector = "script, style, noscript, nav, header, footer, aside, .menu, iframe, form"

// minContentLength is the text length a content container must exceed to be accepted.
const minContentLength = 100

// MainContent extracts the article text of a full page: page chrome is removed,
// then the first content selector whose text exceeds minContentLength wins. The
// whole <body> is the fallback. The document is modified in place.
func MainContent(doc *goquery.Document, contentSelectors []string) string {
	doc.Find(noiseSelector).Remove()

	for _, sel := range contentSelectors {
		if sel == "" {
			continue
		}
		container := Select(doc.Selection, sel).First()
		if len(CleanText(container)) > minContentLength {
			return BlockText(container)
		}
	}
	return BlockText(doc.Find("body"))
}

// BlockText returns the text of s with one paragraph per block element. When s
// has no block children its collapsed text is returned.
func BlockText(s *goquery.Selection) string {
	var paras []string
	s.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote").Each(func(_ int, b *goquery.Selection) {
		// Nested blocks are reached through their own match.
		if b.Find("p, li, blockquote").Length() > 0 {
			return
		}
		if text := CleanText(b); text != "" {
			paras = append(paras, text)
		}
	})
	if len(paras) == 0 {
		return CleanText(s)
	}
	return strings.Join(paras, "\n\n")
}
