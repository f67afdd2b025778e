package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/media"
	"github.com/IshaanNene/NewsHound/internal/types"
)

const wpFallbackPosts = `[{"id": 9, "link": "https://www.comune.it/wp/fallback/", "date": "2025-10-01T08:00:00",
  "title": {"rendered": "Notizia dal sito"}, "excerpt": {"rendered": "Questa notizia arriva dal fallback WordPress."},
  "content": {"rendered": ""}, "featured_media": 0}]`

func graphqlSource(srvURL string) *config.SourceConfig {
	return &config.SourceConfig{
		Name:    "Comune GQL",
		BaseURL: "https://www.comune.it",
		Kind:    config.KindGraphQL,
		GraphQL: &config.GraphQLOptions{
			Endpoint: srvURL + "/graphql",
			Headers:  map[string]string{"X-API-Key": "comune-it", "X-Ref-Host": "www.comune.it"},
			Locale:   "it",
			WordPress: &config.WordPressOptions{
				APIURL:  srvURL + "/wp-json/wp/v2/posts",
				PerPage: 10,
			},
		},
	}
}

func TestGraphQLFallsBackToWordPress(t *testing.T) {
	tests := []struct {
		name    string
		graphql http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "internal", http.StatusInternalServerError)
		}},
		{"empty list", writeJSON(`{"data": {"notizieQuery": {"notizie": {"listaPaginata": {"totalCount": 0, "data": []}}}}}`)},
		{"graphql errors", writeJSON(`{"errors": [{"message": "unauthorized"}], "data": null}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, map[string]http.HandlerFunc{
				"/graphql":             tt.graphql,
				"/wp-json/wp/v2/posts": writeJSON(wpFallbackPosts),
			})
			s, err := NewGraphQLScraper(graphqlSource(srv.URL), testDeps(t))
			require.NoError(t, err)

			items := s.Scrape(context.Background())
			require.Len(t, items, 1)
			assert.Equal(t, "https://www.comune.it/wp/fallback/", items[0].URL)
			assert.Equal(t, "wordpress_fallback", items[0].GetMeta(types.MetaOrigin))
		})
	}
}

func TestGraphQLWithoutFallbackReturnsEmpty(t *testing.T) {
	srv := serve(t, map[string]http.HandlerFunc{
		"/graphql": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "internal", http.StatusInternalServerError)
		},
	})
	src := graphqlSource(srv.URL)
	disabled := false
	src.GraphQL.FallbackToWordPress = &disabled

	s, err := NewGraphQLScraper(src, testDeps(t))
	require.NoError(t, err)
	assert.Empty(t, s.Scrape(context.Background()))
}

func TestGraphQLNewsItems(t *testing.T) {
	body := `{"data": {"notizieQuery": {"notizie": {"listaPaginata": {"totalCount": 2, "data": [
  {"uniqueId": "n1", "data": "2025-10-06T10:00:00", "slug": "nuova-ciclabile", "immagineUrl": "https://img.other.it/ciclabile.jpg",
   "traduzioni": [
     {"titolo": "New cycle path", "descrizioneBreve": "English text", "testoCompleto": "<p>English</p>", "codiceLingua": "en"},
     {"titolo": "Nuova ciclabile", "descrizioneBreve": "Inaugurata la nuova pista ciclabile lungo il canale.", "testoCompleto": "<p>La pista è lunga tre chilometri.</p><p>Collega il centro alla stazione.</p>", "codiceLingua": "it"}
   ],
   "tipologie": [{"traduzioni": [{"nome": "Comunicati"}]}]},
  {"uniqueId": "n2", "data": "2025-10-05", "slug": "", "immagineUrl": "",
   "traduzioni": [{"titolo": "Chiusura Uffici!", "descrizioneBreve": "", "testoCompleto": "", "codiceLingua": "en"}]}
]}}}}}`

	srv := serve(t, map[string]http.HandlerFunc{
		"/graphql": func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				OperationName string `json:"operationName"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if r.Header.Get("X-API-Key") != "comune-it" || req.OperationName != "getNotizie" || r.Method != http.MethodPost {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			writeJSON(body)(w, r)
		},
	})

	s, err := NewGraphQLScraper(graphqlSource(srv.URL), testDeps(t))
	require.NoError(t, err)

	items := s.Scrape(context.Background())
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "https://www.comune.it/novita/notizie/nuova-ciclabile/", first.URL)
	assert.Equal(t, "Nuova ciclabile", first.Title)
	assert.Equal(t, "Inaugurata la nuova pista ciclabile lungo il canale.", first.Preview)
	assert.Equal(t, "La pista è lunga tre chilometri.\n\nCollega il centro alla stazione.", first.Content)
	assert.Equal(t, "https://img.other.it/ciclabile.jpg", first.ImageURL)
	assert.Equal(t, "Comunicati", first.GetMeta("upstream_category"))
	assert.Equal(t, 6, first.PublishedAt.Day())

	second := items[1]
	assert.Equal(t, "https://www.comune.it/novita/notizie/chiusura-uffici/", second.URL)
	assert.Equal(t, "Notizia da Comune GQL: Chiusura Uffici!", second.Preview)
}

func TestGraphQLEventItems(t *testing.T) {
	body := `{"data": {"eventiQuery": {"eventi": {"lista": [
  {"uniqueId": "ev-42", "immagineUrl": "", "dataOraInizio": "2025-12-08T16:00:00", "dataOraFine": "2025-12-08T19:00:00", "costo": "Gratuito",
   "traduzioni": [{"titolo": "Accensione dell'albero", "descrizioneBreve": "Festa in piazza.", "descrizioneEstesa": "<p>Musica e cioccolata calda.</p>", "codiceLingua": "it"}],
   "luoghi": [{"nome": "Piazza Martiri"}, {"nome": "Teatro Comunale"}]}
]}}}}`
	srv := serve(t, map[string]http.HandlerFunc{"/graphql": writeJSON(body)})

	src := graphqlSource(srv.URL)
	src.GraphQL.Query = "query getEventi { eventiQuery { eventi { lista { uniqueId } } } }"
	src.GraphQL.OperationName = "getEventi"

	s, err := NewGraphQLScraper(src, testDeps(t))
	require.NoError(t, err)

	items := s.Scrape(context.Background())
	require.Len(t, items, 1)
	ev := items[0]
	assert.Equal(t, "https://www.comune.it/vivere-il-comune/eventi/ev-42", ev.URL)
	assert.Equal(t, "ev-42", ev.GetMeta(types.MetaEventID))
	assert.Equal(t, "Festa in piazza.\n\nMusica e cioccolata calda.\n\nData inizio: 2025-12-08T16:00:00\n\n"+
		"Data fine: 2025-12-08T19:00:00\n\nCosto: Gratuito\n\nLuogo: Piazza Martiri, Teatro Comunale", ev.Content)
}

func TestGraphQLDownloadsCDNImages(t *testing.T) {
	srv := serve(t, map[string]http.HandlerFunc{
		"/cdn/foto.png": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		},
		"/graphql": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"data": {"notizieQuery": {"notizie": {"listaPaginata": {"data": [
  {"uniqueId": "a", "slug": "a", "immagineUrl": "http://%[1]s/cdn/foto.png", "traduzioni": [{"titolo": "Uno", "descrizioneBreve": "Prima notizia con immagine dal CDN del comune.", "codiceLingua": "it"}]},
  {"uniqueId": "b", "slug": "b", "immagineUrl": "http://%[1]s/cdn/foto.png", "traduzioni": [{"titolo": "Due", "descrizioneBreve": "Seconda notizia con la stessa immagine dal CDN.", "codiceLingua": "it"}]}
]}}}}}`, r.Host)
		},
	})

	deps := testDeps(t)
	dl, err := media.NewDownloader(config.MediaConfig{Dir: t.TempDir(), URLPrefix: "/media/", MaxSizeMB: 1}, deps.Fetcher, testLogger)
	require.NoError(t, err)
	deps.Media = dl

	src := graphqlSource(srv.URL)
	src.GraphQL.CDNHosts = []string{"127.0.0.1"}

	s, err := NewGraphQLScraper(src, deps)
	require.NoError(t, err)

	items := s.Scrape(context.Background())
	require.Len(t, items, 2)
	assert.Contains(t, items[0].ImageURL, "/media/")
	assert.Equal(t, items[0].ImageURL, items[1].ImageURL, "same bytes must reuse the stored file")
}

func TestSlugFromTitle(t *testing.T) {
	assert.Equal(t, "nuova-ciclabile-in-città", slugFromTitle("Nuova ciclabile, in città!"))
}
