package fetcher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	cfg := config.DefaultConfig().Fetcher
	f, err := NewHTTPFetcher(&cfg, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestFetchDecodesBrotli(t *testing.T) {
	var compressed bytes.Buffer
	w := brotli.NewWriter(&compressed)
	_, _ = w.Write([]byte("<html><body><p>Notizia del giorno</p></body></html>"))
	require.NoError(t, w.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "br")
		w.Header().Set("Content-Encoding", "br")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(compressed.Bytes())
	}))
	defer srv.Close()

	resp, err := Get(context.Background(), newTestFetcher(t), "Comune", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "text/html", resp.ContentType)

	doc, err := resp.Document()
	require.NoError(t, err)
	assert.Equal(t, "Notizia del giorno", doc.Find("p").Text())
}

func TestFetchClassifiesStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/busy":
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	f := newTestFetcher(t)
	ctx := context.Background()

	var fe *types.FetchError
	_, err := Get(ctx, f, "Comune", srv.URL+"/busy")
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Retryable)
	assert.Equal(t, 30*time.Second, fe.RetryAfter)

	_, err = Get(ctx, f, "Comune", srv.URL+"/down")
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.True(t, fe.Retryable)

	_, err = Get(ctx, f, "Comune", srv.URL+"/missing")
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.False(t, fe.Retryable)
}

func TestFetchSendsRequestHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "segreto", r.Header.Get("X-API-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	req, err := types.NewJSONRequest(srv.URL, []byte(`{"query":"{ notizie { id } }"}`))
	require.NoError(t, err)
	req.Headers.Set("X-API-Key", "segreto")

	resp, err := Do(context.Background(), newTestFetcher(t), req)
	require.NoError(t, err)
	var out struct{ OK bool }
	require.NoError(t, resp.DecodeJSON(&out))
	assert.True(t, out.OK)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, defaultRetryWait, parseRetryAfter(""))
	assert.Equal(t, defaultRetryWait, parseRetryAfter("domani"))
	assert.Equal(t, 10*time.Second, parseRetryAfter("10"))
	assert.Equal(t, maxRetryAfter, parseRetryAfter("3600"))
	assert.Equal(t, time.Second, parseRetryAfter("0"))
}

func TestRejectsNonHTTPScheme(t *testing.T) {
	_, err := Get(context.Background(), newTestFetcher(t), "Comune", "ftp://example.it/file")
	assert.ErrorIs(t, err, types.ErrInvalidURL)
}
