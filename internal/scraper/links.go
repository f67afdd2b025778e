package scraper

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/IshaanNene/NewsHound/internal/fetcher"
	"github.com/IshaanNene/NewsHound/internal/parser"
)

const (
	maxLinkSummaries  = 3
	linkSummaryLength = 600
)

// summarizeLinks fetches at most three non-social links and returns a short
// readable excerpt of each, formatted for appending to an item body.
// Unreachable pages use up an attempt and are skipped.
func (b *base) summarizeLinks(ctx context.Context, links []string) string {
	var (
		parts    []string
		attempts int
	)
	for _, link := range links {
		if attempts == maxLinkSummaries || ctx.Err() != nil {
			break
		}
		if isSocialLink(link) || parser.IsDecorativeImage(link) || looksLikeImage(link) {
			continue
		}
		attempts++
		summary := b.linkSummary(ctx, link)
		if summary == "" {
			continue
		}
		parts = append(parts, "Fonte collegata ("+link+"):\n"+summary)
	}
	return strings.Join(parts, "\n\n")
}

func (b *base) linkSummary(ctx context.Context, link string) string {
	resp, err := fetcher.Get(ctx, b.fetcher, b.src.Name, link)
	if err != nil {
		b.logger.Debug("linked page fetch failed", "url", link, "error", err)
		return ""
	}
	pageURL, err := url.Parse(resp.FinalURL)
	if err != nil || pageURL.Host == "" {
		pageURL, _ = url.Parse(link)
	}

	article, err := readability.FromReader(bytes.NewReader(resp.Body), pageURL)
	if err != nil {
		b.logger.Debug("linked page not readable", "url", link, "error", err)
		return ""
	}
	text := strings.Join(strings.Fields(article.TextContent), " ")
	if text == "" {
		return ""
	}
	if title := strings.TrimSpace(article.Title); title != "" && !strings.HasPrefix(text, title) {
		text = title + ". " + text
	}
	if r := []rune(text); len(r) > linkSummaryLength {
		text = string(r[:linkSummaryLength]) + "..."
	}
	return text
}

func looksLikeImage(link string) bool {
	l := strings.ToLower(link)
	if i := strings.IndexAny(l, "?#"); i >= 0 {
		l = l[:i]
	}
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp"} {
		if strings.HasSuffix(l, ext) {
			return true
		}
	}
	return false
}
