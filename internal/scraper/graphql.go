package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/fetcher"
	"github.com/IshaanNene/NewsHound/internal/media"
	"github.com/IshaanNene/NewsHound/internal/types"
)

// defaultNewsQuery is sent when the source configures no query of its own.
const defaultNewsQuery = `query getNotizie($pageNumber: Int! = 1, $pageSize: Int! = 12) {
  notizieQuery {
    notizie {
      listaPaginata(
        paginazione: {pageNumber: $pageNumber, pageSize: $pageSize}
        ordinamento: {rilevanza: DESC, data: DESC, _orderBy: ["rilevanza", "data"]}
      ) {
        totalCount
        data {
          uniqueId
          data
          slug
          inEvidenza
          immagineUrl
          traduzioni { titolo descrizioneBreve testoCompleto codiceLingua }
          tipologie { uniqueId traduzioni { nome } }
        }
      }
    }
  }
}`

var slugCleanRe = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)

// GraphQLScraper queries a GraphQL endpoint for news or events. On a transport
// error, a GraphQL error or an empty result it serves the WordPress fallback
// instead, so callers never see which path answered.
type GraphQLScraper struct {
	base
	opts     *config.GraphQLOptions
	fallback *WordPressScraper
	media    *media.Downloader
}

type gqlRequest struct {
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables"`
	Query         string         `json:"query"`
}

type gqlResponse struct {
	Data   *gqlData        `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type gqlData struct {
	NotizieQuery *struct {
		Notizie struct {
			ListaPaginata struct {
				TotalCount int          `json:"totalCount"`
				Data       []gqlNotizia `json:"data"`
			} `json:"listaPaginata"`
		} `json:"notizie"`
	} `json:"notizieQuery"`
	EventiQuery *struct {
		Eventi struct {
			Lista []gqlEvento `json:"lista"`
		} `json:"eventi"`
	} `json:"eventiQuery"`
}

type gqlTraduzione struct {
	Titolo            string `json:"titolo"`
	DescrizioneBreve  string `json:"descrizioneBreve"`
	DescrizioneEstesa string `json:"descrizioneEstesa"`
	TestoCompleto     string `json:"testoCompleto"`
	CodiceLingua      string `json:"codiceLingua"`
	Nome              string `json:"nome"`
}

type gqlNotizia struct {
	UniqueID    string          `json:"uniqueId"`
	Data        string          `json:"data"`
	Slug        string          `json:"slug"`
	InEvidenza  bool            `json:"inEvidenza"`
	ImmagineURL string          `json:"immagineUrl"`
	Traduzioni  []gqlTraduzione `json:"traduzioni"`
	Tipologie   []struct {
		Traduzioni []gqlTraduzione `json:"traduzioni"`
	} `json:"tipologie"`
}

type gqlEvento struct {
	UniqueID      string          `json:"uniqueId"`
	ImmagineURL   string          `json:"immagineUrl"`
	DataOraInizio string          `json:"dataOraInizio"`
	DataOraFine   string          `json:"dataOraFine"`
	Costo         string          `json:"costo"`
	Traduzioni    []gqlTraduzione `json:"traduzioni"`
	Luoghi        []struct {
		Nome string `json:"nome"`
	} `json:"luoghi"`
}

// NewGraphQLScraper creates a GraphQL scraper with its optional WordPress fallback.
func NewGraphQLScraper(src *config.SourceConfig, deps Deps) (*GraphQLScraper, error) {
	if src.GraphQL == nil || src.GraphQL.Endpoint == "" {
		return nil, fmt.Errorf("graphql scraper %q: %w: endpoint", src.Name, types.ErrNotConfigured)
	}

	s := &GraphQLScraper{
		base:  newBase(src, deps.Fetcher, deps.Logger, "graphql"),
		opts:  src.GraphQL,
		media: deps.Media,
	}

	if src.GraphQL.FallsBackToWordPress() && src.GraphQL.WordPress != nil {
		wp, err := NewWordPressScraper(src, src.GraphQL.WordPress, deps)
		if err != nil {
			return nil, fmt.Errorf("graphql scraper %q: fallback: %w", src.Name, err)
		}
		s.fallback = wp
	}
	return s, nil
}

// Scrape queries GraphQL and falls back to WordPress when that yields nothing.
func (s *GraphQLScraper) Scrape(ctx context.Context) []*types.Item {
	items, err := s.query(ctx)
	if err != nil {
		s.logger.Error("graphql query failed", "endpoint", s.opts.Endpoint, "error", err)
	}
	if len(items) > 0 {
		s.logger.Info("graphql scrape complete", "items", len(items))
		return items
	}

	if s.fallback == nil {
		return nil
	}
	s.logger.Warn("graphql returned no items, using wordpress fallback")
	items = s.fallback.Scrape(ctx)
	for _, it := range items {
		it.SetMeta(types.MetaOrigin, "wordpress_fallback")
	}
	return items
}

// FetchFullContent reads the article page. GraphQL items already carry their
// text; this serves fallback items and entries without testoCompleto.
func (s *GraphQLScraper) FetchFullContent(ctx context.Context, rawURL string) (string, bool) {
	return s.pageContent(ctx, s.fetcher, rawURL, config.DefaultContentSelectors)
}

func (s *GraphQLScraper) query(ctx context.Context) ([]*types.Item, error) {
	payload := gqlRequest{
		OperationName: "getNotizie",
		Variables:     map[string]any{"pageNumber": 1, "pageSize": 12},
		Query:         defaultNewsQuery,
	}
	if s.opts.Query != "" {
		payload = gqlRequest{
			OperationName: s.opts.OperationName,
			Variables:     s.opts.Variables,
			Query:         s.opts.Query,
		}
		if payload.OperationName == "" {
			payload.OperationName = "CustomQuery"
		}
		if payload.Variables == nil {
			payload.Variables = map[string]any{}
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := types.NewJSONRequest(s.opts.Endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Source = s.src.Name
	req.Headers.Set("Content-Language", s.opts.Locale)
	for k, v := range s.opts.Headers {
		req.Headers.Set(k, v)
	}

	resp, err := fetcher.Do(ctx, s.fetcher, req)
	if err != nil {
		return nil, err
	}

	var result gqlResponse
	if err := resp.DecodeJSON(&result); err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 && string(result.Errors) != "null" {
		return nil, &types.ParseError{URL: s.opts.Endpoint, Err: fmt.Errorf("graphql errors: %s", truncate(string(result.Errors), 300))}
	}
	if result.Data == nil {
		return nil, &types.ParseError{URL: s.opts.Endpoint, Err: types.ErrEmptyResponse}
	}

	var items []*types.Item
	if q := result.Data.NotizieQuery; q != nil {
		list := q.Notizie.ListaPaginata
		s.logger.Debug("graphql news received", "count", len(list.Data), "total", list.TotalCount)
		for _, n := range list.Data {
			if it := s.newsItem(ctx, n); it != nil {
				items = append(items, it)
			}
		}
	}
	if q := result.Data.EventiQuery; q != nil {
		s.logger.Debug("graphql events received", "count", len(q.Eventi.Lista))
		for _, e := range q.Eventi.Lista {
			if it := s.eventItem(ctx, e); it != nil {
				items = append(items, it)
			}
		}
	}
	return items, nil
}

// pickTranslation returns the record for the configured locale, else the first one.
func (s *GraphQLScraper) pickTranslation(ts []gqlTraduzione) (gqlTraduzione, bool) {
	if len(ts) == 0 {
		return gqlTraduzione{}, false
	}
	for _, t := range ts {
		if strings.EqualFold(t.CodiceLingua, s.opts.Locale) {
			return t, true
		}
	}
	return ts[0], true
}

func (s *GraphQLScraper) newsItem(ctx context.Context, n gqlNotizia) *types.Item {
	tr, ok := s.pickTranslation(n.Traduzioni)
	if !ok {
		return nil
	}
	title := strings.TrimSpace(tr.Titolo)
	if title == "" {
		return nil
	}

	slug := strings.Trim(n.Slug, "/")
	if slug == "" {
		slug = slugFromTitle(title)
	}
	articleURL := strings.TrimRight(s.src.BaseURL, "/") + "/novita/notizie/" + slug + "/"

	content := htmlToText(tr.TestoCompleto)
	preview := strings.TrimSpace(tr.DescrizioneBreve)
	if preview == "" {
		preview = truncate(content, 300)
	}
	if len(preview) < minPreviewLength {
		preview = "Notizia da " + s.src.Name + ": " + title
	}

	item := types.NewItem(articleURL)
	item.Title = truncate(title, maxTitleLength)
	item.Preview = truncate(preview, maxPreviewLength)
	item.Content = content
	item.Source = s.src.Name
	item.ImageURL = s.localImage(ctx, n.ImmagineURL)
	item.PublishedAt = parseLooseTime(n.Data)
	item.SetMeta("source_id", n.UniqueID)
	for _, tp := range n.Tipologie {
		if len(tp.Traduzioni) > 0 && tp.Traduzioni[0].Nome != "" {
			item.SetMeta("upstream_category", tp.Traduzioni[0].Nome)
			break
		}
	}
	if n.InEvidenza {
		item.SetMeta("featured", "true")
	}
	return item
}

func (s *GraphQLScraper) eventItem(ctx context.Context, e gqlEvento) *types.Item {
	tr, ok := s.pickTranslation(e.Traduzioni)
	if !ok {
		return nil
	}
	title := strings.TrimSpace(tr.Titolo)
	if title == "" || e.UniqueID == "" {
		return nil
	}

	short := strings.TrimSpace(tr.DescrizioneBreve)
	long := htmlToText(tr.DescrizioneEstesa)

	var parts []string
	for _, p := range []string{short, long} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if e.DataOraInizio != "" {
		parts = append(parts, "Data inizio: "+e.DataOraInizio)
	}
	if e.DataOraFine != "" {
		parts = append(parts, "Data fine: "+e.DataOraFine)
	}
	if e.Costo != "" {
		parts = append(parts, "Costo: "+e.Costo)
	}
	var places []string
	for _, l := range e.Luoghi {
		if l.Nome != "" {
			places = append(places, l.Nome)
		}
	}
	if len(places) > 0 {
		parts = append(parts, "Luogo: "+strings.Join(places, ", "))
	}

	preview := short
	if preview == "" {
		preview = truncate(long, maxPreviewLength)
	}

	item := types.NewItem(strings.TrimRight(s.src.BaseURL, "/") + "/vivere-il-comune/eventi/" + e.UniqueID)
	item.Title = truncate(title, maxTitleLength)
	item.Preview = preview
	item.Content = strings.Join(parts, "\n\n")
	item.Source = s.src.Name
	item.ImageURL = s.localImage(ctx, e.ImmagineURL)
	item.SetMeta(types.MetaEventID, e.UniqueID)
	if e.DataOraInizio != "" {
		item.SetMeta("event_start", e.DataOraInizio)
	}
	if e.DataOraFine != "" {
		item.SetMeta("event_end", e.DataOraFine)
	}
	return item
}

// localImage downloads CDN-hosted images and returns their local reference.
// Other images are returned unchanged; a failed download drops the image.
func (s *GraphQLScraper) localImage(ctx context.Context, imageURL string) string {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return ""
	}
	if s.media == nil || !media.IsCDNImage(imageURL, s.opts.CDNHosts) {
		return types.EscapePathSpaces(imageURL)
	}
	res, err := s.media.Download(ctx, imageURL)
	if err != nil {
		s.logger.Warn("image download failed", "url", imageURL, "error", err)
		return ""
	}
	return res.PublicURL
}

// slugFromTitle builds a URL slug when the API omits one.
func slugFromTitle(title string) string {
	s := slugCleanRe.ReplaceAllString(strings.ToLower(title), "")
	return strings.Join(strings.Fields(s), "-")
}

// parseLooseTime accepts the date layouts seen in upstream APIs.
func parseLooseTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
