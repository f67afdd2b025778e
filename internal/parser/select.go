// Package parser holds the DOM helpers shared by the scrapers: selector
// evaluation (CSS or XPath), main-content extraction, image picking and page
// metadata.
package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// XPathPrefix marks a selector as an XPath expression instead of CSS.
const XPathPrefix = "xpath:"

// Select evaluates selector against s. Selectors starting with "xpath:" are
// run through htmlquery on every node of s; anything else is a goquery CSS
// selector. An invalid XPath yields an empty selection.
func Select(s *goquery.Selection, selector string) *goquery.Selection {
	expr, isXPath := strings.CutPrefix(selector, XPathPrefix)
	if !isXPath {
		return s.Find(selector)
	}

	var matched []*html.Node
	for _, root := range s.Nodes {
		nodes, err := htmlquery.QueryAll(root, strings.TrimSpace(expr))
		if err != nil {
			return s.FindNodes()
		}
		matched = append(matched, nodes...)
	}
	return s.FindNodes(matched...)
}

// FirstMatch tries selectors in order and returns the first non-empty
// selection together with the selector that produced it.
func FirstMatch(s *goquery.Selection, selectors []string) (*goquery.Selection, string) {
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		if found := Select(s, sel); found.Length() > 0 {
			return found, sel
		}
	}
	return s.FindNodes(), ""
}

// CleanText returns the selection's text with whitespace collapsed.
func CleanText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// FirstText returns the cleaned text of the first selector with non-empty text.
func FirstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if text := CleanText(Select(s, sel).First()); text != "" {
			return text
		}
	}
	return ""
}
