package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/types"
)

func htmlSource(baseURL string, opts *config.HTMLOptions) *config.SourceConfig {
	return &config.SourceConfig{Name: "Comune Test", BaseURL: baseURL, Kind: config.KindHTML, HTML: opts}
}

const listingPage = `<html><body>
<div class="news-item">
  <a href="/notizie/a">Nuovo parcheggio in centro</a>
  <p>Il parcheggio di piazza Martiri riapre da lunedì con nuovi stalli.</p>
</div>
<div class="news-item">
  <img src="/img/parcheggio.jpg" width="300" height="200">
  <a href="/notizie/a">Nuovo parcheggio in centro</a>
  <p>Il parcheggio di piazza Martiri riapre da lunedì con nuovi stalli.</p>
</div>
<div class="news-item">
  <img src="/img/logo.png" width="40" height="40">
  <img src="/img/scuola.jpg" width="300" height="200">
  <a href="/notizie/b">Scuole, al via le iscrizioni</a>
  <p>Le iscrizioni ai nidi comunali sono aperte fino alla fine del mese.</p>
</div>
</body></html>`

func TestHTMLScrapeMergesDuplicatesPreferringImage(t *testing.T) {
	srv := serve(t, map[string]http.HandlerFunc{"/news": writeHTML(listingPage)})
	s, err := NewHTMLScraper(htmlSource(srv.URL, &config.HTMLOptions{
		NewsURL:        srv.URL + "/news",
		DisableRSS:     true,
		Selectors:      []string{".does-not-exist", ".news-item"},
		MinImageWidth:  80,
		MinImageHeight: 60,
	}), testDeps(t))
	require.NoError(t, err)

	items := s.Scrape(context.Background())
	require.Len(t, items, 2)

	assert.Equal(t, srv.URL+"/notizie/a", items[0].URL)
	assert.Equal(t, srv.URL+"/img/parcheggio.jpg", items[0].ImageURL)
	assert.Equal(t, "Nuovo parcheggio in centro", items[0].Title)
	assert.Equal(t, "Comune Test", items[0].Source)

	assert.Equal(t, srv.URL+"/notizie/b", items[1].URL)
	assert.Equal(t, srv.URL+"/img/scuola.jpg", items[1].ImageURL, "logo must be skipped")
}

func TestHTMLScrapeGenericFallback(t *testing.T) {
	page := `<html><body><div class="wrapper"><div class="card">
	  <a href="/eventi/festa">Festa del patrono</a>
	  <span>Sabato la festa del patrono con concerti e mercatini in piazza.</span>
	</div></div></body></html>`
	srv := serve(t, map[string]http.HandlerFunc{"/": writeHTML(page)})

	s, err := NewHTMLScraper(htmlSource(srv.URL, &config.HTMLOptions{
		NewsURL:    srv.URL + "/",
		DisableRSS: true,
		Selectors:  []string{".news-item", "xpath://div[@class='nothing']"},
	}), testDeps(t))
	require.NoError(t, err)

	items := s.Scrape(context.Background())
	require.Len(t, items, 1)
	assert.Equal(t, srv.URL+"/eventi/festa", items[0].URL)
	assert.Equal(t, "Festa del patrono", items[0].Title)
	assert.Contains(t, items[0].Preview, "concerti e mercatini")
}

func TestHTMLScrapeDropsShortPreviewsAndFilteredURLs(t *testing.T) {
	page := `<html><body>
	<div class="news-item"><a href="/notizie/corta">Corta</a></div>
	<div class="news-item"><a href="/eventi/x">Evento lungo abbastanza</a> con una descrizione molto dettagliata.</div>
	<div class="news-item"><a href="/notizie/ok">Notizia valida</a> con una descrizione molto dettagliata.</div>
	</body></html>`
	srv := serve(t, map[string]http.HandlerFunc{"/news": writeHTML(page)})

	s, err := NewHTMLScraper(htmlSource(srv.URL, &config.HTMLOptions{
		NewsURL:           srv.URL + "/news",
		DisableRSS:        true,
		Selectors:         []string{".news-item"},
		URLFilterKeywords: []string{"/notizie/"},
	}), testDeps(t))
	require.NoError(t, err)

	items := s.Scrape(context.Background())
	require.Len(t, items, 1)
	assert.Equal(t, srv.URL+"/notizie/ok", items[0].URL)
}

func TestHTMLScrapeAnchorSelectorGetsArtificialPreview(t *testing.T) {
	page := `<html><body><a class="link" href="/n/1">Lavori in via Roma</a></body></html>`
	srv := serve(t, map[string]http.HandlerFunc{"/news": writeHTML(page)})

	s, err := NewHTMLScraper(htmlSource(srv.URL, &config.HTMLOptions{
		NewsURL: srv.URL + "/news", DisableRSS: true, Selectors: []string{"a.link"},
	}), testDeps(t))
	require.NoError(t, err)

	items := s.Scrape(context.Background())
	require.Len(t, items, 1)
	assert.True(t, strings.HasPrefix(items[0].Preview, "Notizia da Comune Test: Lavori in via Roma"))
}

func TestHTMLScrapeKeywordFilterReadsFullContent(t *testing.T) {
	long := strings.Repeat("La giunta ha approvato il bilancio di previsione. ", 4)
	srv := serve(t, map[string]http.HandlerFunc{
		"/news": writeHTML(`<html><body>
		<div class="news-item"><a href="/n/1">Approvato il bilancio</a> Seduta di ieri sera, tutti i dettagli.</div>
		<div class="news-item"><a href="/n/2">Mercato del sabato</a> Seduta di ieri sera, tutti i dettagli.</div>
		</body></html>`),
		"/n/1": writeHTML(`<html><body><article><p>` + long + ` A Carpi.</p></article></body></html>`),
		"/n/2": writeHTML(`<html><body><article><p>` + strings.Repeat("Bancarelle in piazza. ", 10) + `</p></article></body></html>`),
	})

	s, err := NewHTMLScraper(htmlSource(srv.URL, &config.HTMLOptions{
		NewsURL:          srv.URL + "/news",
		DisableRSS:       true,
		Selectors:        []string{".news-item"},
		ContentSelectors: []string{"article"},
		FilterKeywords:   []string{"carpi"},
	}), testDeps(t))
	require.NoError(t, err)

	items := s.Scrape(context.Background())
	require.Len(t, items, 1)
	assert.Equal(t, srv.URL+"/n/1", items[0].URL)
	assert.Contains(t, items[0].Content, "A Carpi.")
}

func TestHTMLScrapeRSSFiltersOnFullContent(t *testing.T) {
	feed := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Comune</title>
<item><title>Consiglio comunale</title><link>%[1]s/post/1</link><description>Ordine del giorno</description><pubDate>Mon, 06 Oct 2025 10:00:00 +0200</pubDate></item>
<item><title>Sagra</title><link>%[1]s/post/2</link><description>Programma della sagra</description></item>
</channel></rss>`, "http://"+r.Host)
	}
	body := strings.Repeat("Si è svolta la seduta con numerosi interventi. ", 4)
	srv := serve(t, map[string]http.HandlerFunc{
		"/feed/":  feed,
		"/news":   writeHTML(`<html><body><p>nessuna notizia</p></body></html>`),
		"/post/1": writeHTML(`<html><head><meta property="og:image" content="/uploads/consiglio.jpg"></head><body><article><p>` + body + ` Il sindaco di Carpi ha risposto.</p></article></body></html>`),
		"/post/2": writeHTML(`<html><body><article><p>` + strings.Repeat("Stand gastronomici e musica. ", 6) + `</p></article></body></html>`),
	})

	s, err := NewHTMLScraper(htmlSource(srv.URL, &config.HTMLOptions{
		NewsURL:          srv.URL + "/news",
		RSSURL:           srv.URL + "/feed/",
		Selectors:        []string{".news-item"},
		ContentSelectors: []string{"article"},
		FilterKeywords:   []string{"Carpi"},
	}), testDeps(t))
	require.NoError(t, err)

	items := s.Scrape(context.Background())
	require.Len(t, items, 1)
	it := items[0]
	assert.Equal(t, srv.URL+"/post/1", it.URL)
	assert.Equal(t, "Consiglio comunale", it.Title)
	assert.Equal(t, "Ordine del giorno", it.Preview)
	assert.Contains(t, it.Content, "sindaco di Carpi")
	assert.Equal(t, srv.URL+"/uploads/consiglio.jpg", it.ImageURL)
	assert.False(t, it.PublishedAt.IsZero())
	assert.Equal(t, "rss", it.GetMeta(types.MetaOrigin))
}

func TestHTMLFetchFullContent(t *testing.T) {
	text := strings.Repeat("Testo dell'articolo completo. ", 8)
	srv := serve(t, map[string]http.HandlerFunc{
		"/full":  writeHTML(`<html><body><nav>menu menu menu</nav><div class="post-content"><p>` + text + `</p></div></body></html>`),
		"/short": writeHTML(`<html><body><p>poco</p></body></html>`),
	})
	s, err := NewHTMLScraper(htmlSource(srv.URL, &config.HTMLOptions{
		NewsURL: srv.URL, ContentSelectors: config.DefaultContentSelectors,
	}), testDeps(t))
	require.NoError(t, err)

	content, ok := s.FetchFullContent(context.Background(), srv.URL+"/full")
	require.True(t, ok)
	assert.NotContains(t, content, "menu")
	assert.Contains(t, content, "Testo dell'articolo completo.")

	_, ok = s.FetchFullContent(context.Background(), srv.URL+"/short")
	assert.False(t, ok)

	_, ok = s.FetchFullContent(context.Background(), srv.URL+"/missing")
	assert.False(t, ok)
}
