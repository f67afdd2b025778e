package parser

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta holds the OpenGraph and standard meta tags of a page.
type PageMeta struct {
	Title       string
	Description string
	Image       string
	Published   time.Time
}

// ExtractMeta reads og:*, article:published_time and the description meta tag.
func ExtractMeta(doc *goquery.Document) PageMeta {
	var m PageMeta

	doc.Find(`meta[property], meta[name]`).Each(func(_ int, sel *goquery.Selection) {
		key := sel.AttrOr("property", sel.AttrOr("name", ""))
		content := strings.TrimSpace(sel.AttrOr("content", ""))
		if content == "" {
			return
		}
		switch strings.ToLower(key) {
		case "og:title":
			m.Title = content
		case "og:description":
			m.Description = content
		case "description":
			if m.Description == "" {
				m.Description = content
			}
		case "og:image", "og:image:url":
			if m.Image == "" {
				m.Image = content
			}
		case "article:published_time":
			if t, err := time.Parse(time.RFC3339, content); err == nil {
				m.Published = t
			}
		}
	})

	if m.Title == "" {
		m.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return m
}
