package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/fetcher"
	"github.com/IshaanNene/NewsHound/internal/parser"
	"github.com/IshaanNene/NewsHound/internal/types"
)

// WordPressScraper reads posts from the WordPress REST API, or from a
// site-specific JSON endpoint when custom_endpoint is set.
type WordPressScraper struct {
	base
	opts *config.WordPressOptions
}

// wpPost is the subset of a /wp/v2/posts entry we use.
type wpPost struct {
	ID            int        `json:"id"`
	Link          string     `json:"link"`
	Date          string     `json:"date"`
	Title         wpRendered `json:"title"`
	Excerpt       wpRendered `json:"excerpt"`
	Content       wpRendered `json:"content"`
	FeaturedMedia int        `json:"featured_media"`
}

type wpRendered struct {
	Rendered string `json:"rendered"`
}

type wpMedia struct {
	SourceURL string `json:"source_url"`
}

// customEntry is one record of the alternate endpoint shape.
type customEntry struct {
	Titolo      string `json:"titolo"`
	Link        string `json:"link"`
	Descrizione string `json:"descrizione"`
	ImmagineURL any    `json:"immagineUrl"` // string, or false when absent
	Data        string `json:"data"`
	NomeEntita  string `json:"nomeEntita"`
}

type customEnvelope struct {
	Risultati []customEntry `json:"risultati"`
}

// NewWordPressScraper creates a scraper for src using opts. GraphQL sources
// pass their fallback options here.
func NewWordPressScraper(src *config.SourceConfig, opts *config.WordPressOptions, deps Deps) (*WordPressScraper, error) {
	if opts == nil || opts.APIURL == "" {
		return nil, fmt.Errorf("wordpress scraper %q: %w: api_url", src.Name, types.ErrNotConfigured)
	}
	return &WordPressScraper{
		base: newBase(src, deps.Fetcher, deps.Logger, "wordpress"),
		opts: opts,
	}, nil
}

// Scrape lists the latest posts.
func (s *WordPressScraper) Scrape(ctx context.Context) []*types.Item {
	var items []*types.Item
	if s.opts.CustomEndpoint {
		items = s.scrapeCustom(ctx)
	} else {
		items = s.scrapePosts(ctx)
	}
	s.logger.Info("wordpress scrape complete", "items", len(items))
	return items
}

// FetchFullContent reads the article page. Standard posts already carry their
// content, so this is only reached for custom-endpoint entries.
func (s *WordPressScraper) FetchFullContent(ctx context.Context, rawURL string) (string, bool) {
	return s.pageContent(ctx, s.fetcher, rawURL, config.DefaultContentSelectors)
}

func (s *WordPressScraper) scrapePosts(ctx context.Context) []*types.Item {
	listURL, err := withQuery(s.opts.APIURL, "per_page", strconv.Itoa(s.opts.PerPage))
	if err != nil {
		s.logger.Error("invalid api url", "url", s.opts.APIURL, "error", err)
		return nil
	}

	var posts []wpPost
	if err := s.getJSON(ctx, listURL, &posts); err != nil {
		s.logger.Error("wordpress api request failed", "url", listURL, "error", err)
		return nil
	}

	items := make([]*types.Item, 0, len(posts))
	for _, p := range posts {
		if it := s.postItem(ctx, p); it != nil {
			items = append(items, it)
		}
	}
	return items
}

func (s *WordPressScraper) postItem(ctx context.Context, p wpPost) *types.Item {
	if p.Link == "" {
		return nil
	}

	title := truncate(htmlToText(p.Title.Rendered), maxTitleLength)
	if title == "" {
		title = fmt.Sprintf("%s #%d", s.src.Name, p.ID)
	}

	content := htmlToText(p.Content.Rendered)
	preview := htmlToText(p.Excerpt.Rendered)
	if preview == "" {
		preview = content
	}
	preview = truncate(preview, maxPreviewLength)
	if len(preview) < minPreviewLength {
		return nil
	}

	item := types.NewItem(p.Link)
	item.Title = title
	item.Preview = preview
	item.Content = content
	item.Source = s.src.Name
	if t, err := time.Parse("2006-01-02T15:04:05", p.Date); err == nil {
		item.PublishedAt = t
	}

	if p.FeaturedMedia > 0 {
		item.ImageURL = s.featuredImage(ctx, p.FeaturedMedia)
	}
	if item.ImageURL == "" {
		item.ImageURL = s.contentImage(p.Content.Rendered)
	}
	return item
}

// featuredImage resolves a media id through the media endpoint.
func (s *WordPressScraper) featuredImage(ctx context.Context, id int) string {
	var m wpMedia
	if err := s.getJSON(ctx, s.mediaURL(id), &m); err != nil {
		s.logger.Debug("featured media lookup failed", "id", id, "error", err)
		return ""
	}
	return types.EscapePathSpaces(m.SourceURL)
}

// mediaURL derives the media endpoint from the posts endpoint.
func (s *WordPressScraper) mediaURL(id int) string {
	api := s.opts.APIURL
	if i := strings.Index(api, "?"); i >= 0 {
		api = api[:i]
	}
	if i := strings.LastIndex(api, "/posts"); i >= 0 {
		return api[:i] + "/media/" + strconv.Itoa(id)
	}
	return strings.TrimRight(s.src.BaseURL, "/") + "/wp-json/wp/v2/media/" + strconv.Itoa(id)
}

// contentImage scans the post HTML for the first non-decorative upload.
func (s *WordPressScraper) contentImage(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	baseURL, _ := url.Parse(s.src.BaseURL)

	var found string
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := parser.ImageSource(img)
		if src == "" || !strings.Contains(src, "uploads") || parser.IsDecorativeImage(src) {
			return true
		}
		found = types.EscapePathSpaces(types.ResolveURL(baseURL, src))
		return found == ""
	})
	return found
}

func (s *WordPressScraper) scrapeCustom(ctx context.Context) []*types.Item {
	req, err := types.NewRequest(s.opts.APIURL)
	if err != nil {
		s.logger.Error("invalid custom endpoint", "url", s.opts.APIURL, "error", err)
		return nil
	}
	req.Source = s.src.Name
	req.Headers.Set("Accept", "application/json")

	resp, err := fetcher.Do(ctx, s.fetcher, req)
	if err != nil {
		s.logger.Error("custom endpoint request failed", "url", s.opts.APIURL, "error", err)
		return nil
	}

	// Either {"risultati": [...]} or a bare list.
	var entries []customEntry
	var env customEnvelope
	if err := resp.DecodeJSON(&env); err == nil && env.Risultati != nil {
		entries = env.Risultati
	} else if err := resp.DecodeJSON(&entries); err != nil {
		s.logger.Error("unrecognized custom endpoint response", "url", s.opts.APIURL, "error", err)
		return nil
	}

	exclude := newKeywordSet(s.opts.ExcludeTitles)
	var items []*types.Item
	for _, e := range entries {
		if it := s.customItem(e, exclude); it != nil {
			items = append(items, it)
		}
	}
	return items
}

func (s *WordPressScraper) customItem(e customEntry, exclude *keywordSet) *types.Item {
	title := strings.TrimSpace(e.Titolo)
	link := strings.TrimSpace(e.Link)
	if title == "" || title == "Senza titolo" || link == "" {
		return nil
	}
	if exclude.Any(title) {
		return nil
	}
	if !s.yearAllowed(e.Data) {
		return nil
	}

	description := htmlToText(e.Descrizione)
	if len(description) < s.opts.MinContentLength && len(title) < 10 {
		return nil
	}

	preview := description
	if len(preview) < 20 {
		if e.NomeEntita == "page" {
			preview = "Pagina informativa di " + s.src.Name + ": " + title
		} else {
			preview = "Contenuto da " + s.src.Name + ": " + title
		}
	}

	item := types.NewItem(types.ResolveURL(parseOrNil(s.src.BaseURL), link))
	if item.URL == "" {
		return nil
	}
	item.Title = truncate(title, maxTitleLength)
	item.Preview = truncate(preview, maxPreviewLength)
	item.Source = s.src.Name
	if img, ok := e.ImmagineURL.(string); ok && img != "" && img != "False" {
		item.ImageURL = types.EscapePathSpaces(img)
	}
	if e.NomeEntita != "" {
		item.SetMeta("entity_type", e.NomeEntita)
	}
	return item
}

// yearAllowed applies the year allow-list to the entry's date string. Entries
// without a date pass.
func (s *WordPressScraper) yearAllowed(date string) bool {
	if date == "" || len(s.opts.AllowedYears) == 0 {
		return true
	}
	for _, y := range s.opts.AllowedYears {
		if strings.Contains(date, strconv.Itoa(y)) {
			return true
		}
	}
	return false
}

// withQuery sets key=value on rawURL's query string.
func withQuery(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseOrNil(rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return u
}
