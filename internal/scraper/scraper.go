// Package scraper pulls candidate items from the five supported source kinds.
//
// Scrape never returns an error: transport and parse failures are logged at the
// scraper boundary and degrade to a partial or empty result. Retry cadence
// belongs to the monitor loop, so no scraper retries within a call.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/fetcher"
	"github.com/IshaanNene/NewsHound/internal/media"
	"github.com/IshaanNene/NewsHound/internal/parser"
	"github.com/IshaanNene/NewsHound/internal/types"
)

// Scraper extracts candidate items from one source.
type Scraper interface {
	// Scrape returns the current candidate items. It never fails; errors are
	// logged and produce fewer items.
	Scrape(ctx context.Context) []*types.Item

	// FetchFullContent returns the full text behind an item URL. ok is false
	// when nothing usable could be retrieved.
	FetchFullContent(ctx context.Context, rawURL string) (content string, ok bool)
}

// Acknowledger is implemented by scrapers whose upstream tracks consumption,
// such as a mailbox. Ack is called once the items were handled for good.
type Acknowledger interface {
	Ack(ctx context.Context, items []*types.Item) error
}

// Deferrer is implemented by scrapers that can postpone an item whose content
// is not ready yet. A deferred item must not be marked as seen.
type Deferrer interface {
	Deferred(rawURL string) bool
}

// Deps are the shared collaborators handed to every scraper.
type Deps struct {
	// Fetcher serves all plain HTTP traffic.
	Fetcher fetcher.Fetcher

	// Browser renders pages for HTML sources with render: browser. Optional.
	Browser fetcher.Fetcher

	// Media stores CDN images for GraphQL sources. Optional.
	Media *media.Downloader

	// Transcript configures YouTube transcript fetching.
	Transcript config.TranscriptConfig

	Logger *slog.Logger
}

// New maps the source kind to its scraper.
func New(src *config.SourceConfig, deps Deps) (Scraper, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("scraper %q: %w: fetcher", src.Name, types.ErrNotConfigured)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	switch src.Kind {
	case config.KindHTML:
		return NewHTMLScraper(src, deps)
	case config.KindWordPress:
		return NewWordPressScraper(src, src.WordPress, deps)
	case config.KindGraphQL:
		return NewGraphQLScraper(src, deps)
	case config.KindYouTube:
		return NewYouTubeScraper(src, deps)
	case config.KindEmail:
		return NewEmailScraper(src, deps)
	default:
		return nil, fmt.Errorf("scraper %q: unsupported kind %q", src.Name, src.Kind)
	}
}

// base carries what every scraper needs.
type base struct {
	src     *config.SourceConfig
	fetcher fetcher.Fetcher
	logger  *slog.Logger
}

func newBase(src *config.SourceConfig, f fetcher.Fetcher, logger *slog.Logger, kind string) base {
	return base{
		src:     src,
		fetcher: f,
		logger:  logger.With("component", kind+"_scraper", "source", src.Name),
	}
}

// getDocument fetches rawURL with f and parses it.
func (b *base) getDocument(ctx context.Context, f fetcher.Fetcher, rawURL string) (*goquery.Document, *url.URL, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, nil, err
	}
	req.Source = b.src.Name
	if f.Type() == "browser" && b.src.HTML != nil {
		for _, sel := range b.src.HTML.Selectors {
			if !strings.HasPrefix(sel, parser.XPathPrefix) {
				req.WaitFor = sel
				break
			}
		}
	}

	resp, err := fetcher.Do(ctx, f, req)
	if err != nil {
		return nil, nil, err
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, nil, err
	}

	final, err := url.Parse(resp.FinalURL)
	if err != nil || final.Host == "" {
		final = req.URL
	}
	return doc, final, nil
}

// getJSON fetches rawURL and decodes the JSON body into v.
func (b *base) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return err
	}
	req.Source = b.src.Name
	req.Headers.Set("Accept", "application/json")

	resp, err := fetcher.Do(ctx, b.fetcher, req)
	if err != nil {
		return err
	}
	return resp.DecodeJSON(v)
}

// pageContent fetches an article page and extracts its main text.
func (b *base) pageContent(ctx context.Context, f fetcher.Fetcher, rawURL string, contentSelectors []string) (string, bool) {
	doc, _, err := b.getDocument(ctx, f, rawURL)
	if err != nil {
		b.logger.Warn("full content fetch failed", "url", rawURL, "error", err)
		return "", false
	}
	content := parser.MainContent(doc, contentSelectors)
	if len(content) <= 100 {
		return "", false
	}
	return content, true
}

// htmlToText strips markup from an HTML fragment.
func htmlToText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.TrimSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return parser.BlockText(doc.Find("body"))
}

// truncate caps s at n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// mergeByURL removes items sharing a canonical URL. When one copy carries an
// image and the kept one does not, the image-bearing copy replaces it. Order
// of first appearance is preserved.
func mergeByURL(items []*types.Item) []*types.Item {
	index := make(map[string]int, len(items))
	out := make([]*types.Item, 0, len(items))

	for _, it := range items {
		key := types.CanonicalizeURL(it.URL)
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, it)
			continue
		}
		if !out[i].HasImage() && it.HasImage() {
			out[i] = it
		}
	}
	return out
}
