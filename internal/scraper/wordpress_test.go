package scraper

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/NewsHound/internal/config"
)

func wordpressServer(t *testing.T, wantPerPage string) string {
	t.Helper()
	srv := serve(t, map[string]http.HandlerFunc{
		"/wp-json/wp/v2/posts": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("per_page") != wantPerPage {
				http.Error(w, "bad per_page", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `[
  {"id": 1, "link": "%[1]s/2025/10/consiglio/", "date": "2025-10-06T09:30:00",
   "title": {"rendered": "Consiglio &#8211; seduta di ottobre"},
   "excerpt": {"rendered": "<p>Il consiglio comunale si riunisce giovedì alle 18.</p>"},
   "content": {"rendered": "<p>Testo completo della seduta.</p>"},
   "featured_media": 7},
  {"id": 2, "link": "%[1]s/2025/10/biblioteca/", "date": "2025-10-05T12:00:00",
   "title": {"rendered": "Biblioteca"},
   "excerpt": {"rendered": ""},
   "content": {"rendered": "<p>Nuovi orari estivi della biblioteca civica Loria.</p><img src=\"/wp-content/themes/x/logo.png\"><img src=\"%[1]s/wp-content/uploads/2025/10/sala lettura.jpg\">"},
   "featured_media": 0},
  {"id": 3, "link": "%[1]s/2025/10/breve/", "date": "2025-10-04T12:00:00",
   "title": {"rendered": "Breve"}, "excerpt": {"rendered": "Troppo corto"}, "content": {"rendered": ""}}
]`, "http://"+r.Host)
		},
		"/wp-json/wp/v2/media/7": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"source_url": "http://%s/wp-content/uploads/2025/10/aula.jpg"}`, r.Host)
		},
	})
	return srv.URL
}

func TestWordPressScrapePosts(t *testing.T) {
	base := wordpressServer(t, "5")
	src := &config.SourceConfig{Name: "Comune WP", BaseURL: base, Kind: config.KindWordPress,
		WordPress: &config.WordPressOptions{APIURL: base + "/wp-json/wp/v2/posts", PerPage: 5}}

	s, err := NewWordPressScraper(src, src.WordPress, testDeps(t))
	require.NoError(t, err)

	items := s.Scrape(context.Background())
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, base+"/2025/10/consiglio/", first.URL)
	assert.Equal(t, "Consiglio – seduta di ottobre", first.Title)
	assert.Equal(t, "Il consiglio comunale si riunisce giovedì alle 18.", first.Preview)
	assert.Equal(t, "Testo completo della seduta.", first.Content)
	assert.Equal(t, base+"/wp-content/uploads/2025/10/aula.jpg", first.ImageURL)
	assert.Equal(t, 2025, first.PublishedAt.Year())

	second := items[1]
	assert.Equal(t, base+"/wp-content/uploads/2025/10/sala%20lettura.jpg", second.ImageURL)
	assert.Contains(t, second.Preview, "Nuovi orari estivi")
}

func TestWordPressMediaURL(t *testing.T) {
	s := &WordPressScraper{
		base: base{src: &config.SourceConfig{BaseURL: "https://www.comune.it"}},
		opts: &config.WordPressOptions{APIURL: "https://www.comune.it/wp-json/wp/v2/posts?categories=3"},
	}
	assert.Equal(t, "https://www.comune.it/wp-json/wp/v2/media/12", s.mediaURL(12))

	s.opts.APIURL = "https://www.comune.it/api/news"
	assert.Equal(t, "https://www.comune.it/wp-json/wp/v2/media/12", s.mediaURL(12))
}

func TestWordPressCustomEndpoint(t *testing.T) {
	body := `{"risultati": [
  {"titolo": "Avviso pubblico contributi affitto", "link": "/avvisi/affitto", "descrizione": "Domande entro il 30 novembre per il contributo affitti.", "immagineUrl": "https://cdn.comune.it/img/casa.jpg", "data": "2025-10-01", "nomeEntita": "news"},
  {"titolo": "Amministrazione trasparente", "link": "/trasparenza", "descrizione": "Sezione di legge con documenti e atti.", "immagineUrl": false, "data": "2025-09-01", "nomeEntita": "page"},
  {"titolo": "Bando vecchio di due anni fa", "link": "/bandi/vecchio", "descrizione": "Un bando del passato ormai scaduto.", "immagineUrl": false, "data": "2019-03-01"},
  {"titolo": "Senza titolo", "link": "/x", "descrizione": "Qualcosa di abbastanza lungo da passare."},
  {"titolo": "Breve", "link": "/breve", "descrizione": "corta", "data": "2025-01-01"},
  {"titolo": "Orari dello sportello anagrafe", "link": "/pagine/anagrafe", "descrizione": "", "immagineUrl": false, "data": "2025-02-01", "nomeEntita": "page"}
]}`
	srv := serve(t, map[string]http.HandlerFunc{"/api/search": writeJSON(body)})

	src := &config.SourceConfig{Name: "Comune", BaseURL: srv.URL, Kind: config.KindWordPress,
		WordPress: &config.WordPressOptions{
			APIURL:         srv.URL + "/api/search",
			CustomEndpoint: true,
			ExcludeTitles:  []string{"amministrazione trasparente"},
		}}
	src.ApplyDefaults(0)

	s, err := NewWordPressScraper(src, src.WordPress, testDeps(t))
	require.NoError(t, err)

	items := s.Scrape(context.Background())
	require.Len(t, items, 2)

	assert.Equal(t, srv.URL+"/avvisi/affitto", items[0].URL)
	assert.Equal(t, "https://cdn.comune.it/img/casa.jpg", items[0].ImageURL)
	assert.Equal(t, "news", items[0].GetMeta("entity_type"))

	assert.Equal(t, srv.URL+"/pagine/anagrafe", items[1].URL)
	assert.Empty(t, items[1].ImageURL)
	assert.Equal(t, "Pagina informativa di Comune: Orari dello sportello anagrafe", items[1].Preview)
}

func TestWordPressCustomEndpointBareList(t *testing.T) {
	body := `[{"titolo": "Raccolta differenziata, nuovo calendario", "link": "https://www.comune.it/rifiuti", "descrizione": "Il nuovo calendario della raccolta porta a porta.", "immagineUrl": false, "data": "2024-12-01"}]`
	srv := serve(t, map[string]http.HandlerFunc{"/api": writeJSON(body)})

	src := &config.SourceConfig{Name: "Comune", BaseURL: srv.URL, Kind: config.KindWordPress,
		WordPress: &config.WordPressOptions{APIURL: srv.URL + "/api", CustomEndpoint: true}}
	src.ApplyDefaults(0)

	s, err := NewWordPressScraper(src, src.WordPress, testDeps(t))
	require.NoError(t, err)

	items := s.Scrape(context.Background())
	require.Len(t, items, 1)
	assert.Equal(t, "https://www.comune.it/rifiuti", items[0].URL)
}

func TestWordPressScrapeServerErrorYieldsNothing(t *testing.T) {
	srv := serve(t, map[string]http.HandlerFunc{
		"/wp-json/wp/v2/posts": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	})
	src := &config.SourceConfig{Name: "WP", BaseURL: srv.URL, Kind: config.KindWordPress,
		WordPress: &config.WordPressOptions{APIURL: srv.URL + "/wp-json/wp/v2/posts", PerPage: 10}}
	s, err := NewWordPressScraper(src, src.WordPress, testDeps(t))
	require.NoError(t, err)

	assert.Empty(t, s.Scrape(context.Background()))
}
