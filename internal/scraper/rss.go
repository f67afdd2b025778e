package scraper

import (
	"context"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/IshaanNene/NewsHound/internal/fetcher"
	"github.com/IshaanNene/NewsHound/internal/parser"
	"github.com/IshaanNene/NewsHound/internal/types"
)

// discoverRSS reads the source feed and fetches every entry's page. The keyword
// filter runs on title, description and full page text together, so an entry
// whose keyword only appears in the body is still accepted.
func (s *HTMLScraper) discoverRSS(ctx context.Context) []*types.Item {
	resp, err := fetcher.Get(ctx, s.fetcher, s.src.Name, s.opts.RSSURL)
	if err != nil {
		s.logger.Warn("rss discovery failed", "url", s.opts.RSSURL, "error", err)
		return nil
	}

	feed, err := gofeed.NewParser().ParseString(string(resp.Body))
	if err != nil {
		s.logger.Warn("rss parse failed", "url", s.opts.RSSURL, "error", &types.ParseError{URL: s.opts.RSSURL, Err: err})
		return nil
	}
	s.logger.Debug("rss feed read", "url", s.opts.RSSURL, "entries", len(feed.Items))

	feedURL, _ := url.Parse(s.opts.RSSURL)

	var items []*types.Item
	for _, entry := range feed.Items {
		if ctx.Err() != nil {
			break
		}
		if it := s.rssItem(ctx, entry, feedURL); it != nil {
			items = append(items, it)
		}
	}
	return items
}

func (s *HTMLScraper) rssItem(ctx context.Context, entry *gofeed.Item, feedURL *url.URL) *types.Item {
	link := strings.TrimSpace(entry.Link)
	if link == "" {
		link = strings.TrimSpace(entry.GUID)
	}
	articleURL := types.ResolveURL(feedURL, link)
	title := strings.TrimSpace(entry.Title)
	if articleURL == "" || title == "" {
		return nil
	}
	if !s.urlKeywords.allows(articleURL) {
		return nil
	}

	description := htmlToText(entry.Description)

	var full, image string
	doc, pageURL, err := s.getDocument(ctx, s.page, articleURL)
	if err != nil {
		s.logger.Debug("rss entry page fetch failed", "url", articleURL, "error", err)
	} else {
		meta := parser.ExtractMeta(doc)
		// MainContent strips page chrome, so the image search below skips headers.
		if text := parser.MainContent(doc, s.opts.ContentSelectors); len(text) > 100 {
			full = text
		}
		image = parser.FindImage(doc.Selection, pageURL, s.images)
		if image == "" && meta.Image != "" && !parser.IsDecorativeImage(meta.Image) {
			image = types.EscapePathSpaces(types.ResolveURL(pageURL, meta.Image))
		}
		if published := meta.Published; !published.IsZero() && entry.PublishedParsed == nil {
			entry.PublishedParsed = &published
		}
	}

	if !s.keywords.allows(title + " " + description + " " + full) {
		s.logger.Debug("rss entry filtered out", "title", truncate(title, 50))
		return nil
	}

	item := types.NewItem(articleURL)
	item.Title = truncate(title, maxTitleLength)
	item.Preview = description
	if item.Preview == "" {
		item.Preview = title
	}
	item.Content = full
	item.ImageURL = image
	item.Source = s.src.Name
	if entry.PublishedParsed != nil {
		item.PublishedAt = *entry.PublishedParsed
	}
	item.SetMeta(types.MetaOrigin, "rss")
	return item
}
