package scraper

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/fetcher"
	"github.com/IshaanNene/NewsHound/internal/parser"
	"github.com/IshaanNene/NewsHound/internal/types"
)

const (
	maxItemsPerPage   = 50
	maxFallbackItems  = 20
	minFallbackText   = 50
	minPreviewLength  = 30
	maxPreviewLength  = 500
	maxTitleLength    = 200
	genericContainers = "div, article, section"
)

var titleSelectors = []string{"h1", "h2", "h3", "h4", ".title", ".headline"}

// HTMLScraper reads a news listing page, optionally preceded by RSS discovery.
type HTMLScraper struct {
	base
	opts        *config.HTMLOptions
	page        fetcher.Fetcher
	keywords    *keywordSet
	urlKeywords *keywordSet
	images      parser.ImageRules
}

// NewHTMLScraper creates an HTML scraper. Pages are rendered with deps.Browser
// when the source asks for it.
func NewHTMLScraper(src *config.SourceConfig, deps Deps) (*HTMLScraper, error) {
	opts := src.HTML
	if opts == nil {
		opts = &config.HTMLOptions{}
	}

	s := &HTMLScraper{
		base:        newBase(src, deps.Fetcher, deps.Logger, "html"),
		opts:        opts,
		page:        deps.Fetcher,
		keywords:    newKeywordSet(opts.FilterKeywords),
		urlKeywords: newKeywordSet(opts.URLFilterKeywords),
		images: parser.ImageRules{
			Selectors: opts.ImageSelectors,
			MinWidth:  opts.MinImageWidth,
			MinHeight: opts.MinImageHeight,
		},
	}
	if opts.Render == "browser" {
		if deps.Browser == nil {
			s.logger.Warn("browser rendering requested but no browser fetcher available, using http")
		} else {
			s.page = deps.Browser
		}
	}
	return s, nil
}

// Scrape runs RSS discovery (unless disabled) and the direct page scrape, then
// merges both by URL.
func (s *HTMLScraper) Scrape(ctx context.Context) []*types.Item {
	var items []*types.Item

	if !s.opts.DisableRSS && s.opts.RSSURL != "" {
		items = append(items, s.discoverRSS(ctx)...)
	}

	for _, pageURL := range s.pageURLs() {
		if ctx.Err() != nil {
			break
		}
		items = append(items, s.scrapePage(ctx, pageURL)...)
	}

	unique := mergeByURL(items)
	s.logger.Info("html scrape complete", "found", len(items), "unique", len(unique))
	return unique
}

// FetchFullContent downloads the article page and extracts its main text.
func (s *HTMLScraper) FetchFullContent(ctx context.Context, rawURL string) (string, bool) {
	return s.pageContent(ctx, s.page, rawURL, s.opts.ContentSelectors)
}

// pageURLs lists the listing pages. Feed URLs in additional_urls are skipped;
// they belong to RSS discovery.
func (s *HTMLScraper) pageURLs() []string {
	urls := []string{s.opts.NewsURL}
	for _, u := range s.opts.AdditionalURLs {
		if strings.HasSuffix(u, "/feed/") || strings.HasSuffix(u, ".rss") {
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

func (s *HTMLScraper) scrapePage(ctx context.Context, pageURL string) []*types.Item {
	doc, baseURL, err := s.getDocument(ctx, s.page, pageURL)
	if err != nil {
		s.logger.Error("page scrape failed", "url", pageURL, "error", err)
		return nil
	}

	elements := s.selectElements(doc, pageURL)

	var items []*types.Item
	elements.Each(func(_ int, el *goquery.Selection) {
		if ctx.Err() != nil {
			return
		}
		if it := s.extractItem(ctx, el, baseURL); it != nil {
			items = append(items, it)
		}
	})

	s.logger.Debug("page scraped", "url", pageURL, "elements", elements.Length(), "items", len(items))
	return items
}

// selectElements applies the configured selectors (first non-empty wins) and
// falls back to the generic container heuristic.
func (s *HTMLScraper) selectElements(doc *goquery.Document, pageURL string) *goquery.Selection {
	found, used := parser.FirstMatch(doc.Selection, s.opts.Selectors)
	if used != "" {
		s.logger.Debug("selector matched", "url", pageURL, "selector", used, "count", found.Length())
		return found.Slice(0, min(found.Length(), maxItemsPerPage))
	}

	s.logger.Debug("no selector matched, using generic fallback", "url", pageURL)
	return genericFallback(doc)
}

// genericFallback picks containers holding at least one link and enough text.
// Only the innermost qualifying containers are kept, so page wrappers do not
// swallow the actual cards.
func genericFallback(doc *goquery.Document) *goquery.Selection {
	qualifies := func(_ int, el *goquery.Selection) bool {
		return el.Find("a[href]").Length() > 0 && len(parser.CleanText(el)) >= minFallbackText
	}

	candidates := doc.Find(genericContainers).FilterFunction(qualifies)
	innermost := candidates.FilterFunction(func(_ int, el *goquery.Selection) bool {
		return el.Find(genericContainers).FilterFunction(qualifies).Length() == 0
	})

	return innermost.Slice(0, min(innermost.Length(), maxFallbackItems))
}

// extractItem turns one listing element into an item, or nil when it carries no
// usable link or text.
func (s *HTMLScraper) extractItem(ctx context.Context, el *goquery.Selection, baseURL *url.URL) *types.Item {
	link := el
	if goquery.NodeName(el) != "a" {
		link = el.Find("a[href]").First()
	}
	href, ok := link.Attr("href")
	if !ok {
		return nil
	}
	articleURL := types.ResolveURL(baseURL, href)
	if articleURL == "" || strings.HasPrefix(strings.TrimSpace(href), "#") {
		return nil
	}
	if !s.urlKeywords.allows(articleURL) {
		return nil
	}

	title := parser.CleanText(link)
	if title == "" {
		title = strings.TrimSpace(link.AttrOr("title", ""))
	}
	if title == "" {
		title = parser.FirstText(el, titleSelectors...)
	}
	if title == "" {
		title = s.src.Name + " Notizie"
	}
	title = truncate(title, maxTitleLength)

	preview := truncate(parser.CleanText(el), maxPreviewLength)
	if goquery.NodeName(el) == "a" && len(preview) < minPreviewLength {
		preview = "Notizia da " + s.src.Name + ": " + title + ". Clicca per leggere il contenuto completo."
	}
	if len(preview) < minPreviewLength {
		return nil
	}

	item := types.NewItem(articleURL)
	item.Title = title
	item.Preview = preview
	item.Source = s.src.Name
	item.ImageURL = parser.FindImage(el, baseURL, s.images)
	item.SetMeta(types.MetaOrigin, "page")

	if !s.keywords.Empty() {
		full, _ := s.FetchFullContent(ctx, articleURL)
		if !s.keywords.Any(title + " " + preview + " " + full) {
			return nil
		}
		item.Content = full
	}
	return item
}
