package scraper

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/fetcher"
	"github.com/IshaanNene/NewsHound/internal/types"
)

var liveMarkers = []string{"live", "diretta", "streaming", "in corso"}

// transcriptClient fetches video captions. Calls are throttled twice: a
// limiter shared by all calls of the client, and a fixed pause before each call.
type transcriptClient struct {
	fetcher   fetcher.Fetcher
	endpoint  string
	oembedURL string
	delay     time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
}

type timedText struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

type oembedInfo struct {
	Title string `json:"title"`
}

func newTranscriptClient(cfg config.TranscriptConfig, delay time.Duration, f fetcher.Fetcher, logger *slog.Logger) *transcriptClient {
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &transcriptClient{
		fetcher:   f,
		endpoint:  cfg.Endpoint,
		oembedURL: cfg.OEmbedURL,
		delay:     delay,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// Fetch returns the transcript of videoID in lang as one line of text.
// ErrTranscriptUnavailable means the video has no captions (yet).
func (c *transcriptClient) Fetch(ctx context.Context, videoID, lang string) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("transcript endpoint: %w", types.ErrNotConfigured)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if c.delay > 0 {
		c.logger.Debug("waiting before transcript request", "video_id", videoID, "delay", c.delay)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.delay):
		}
	}

	q := url.Values{}
	q.Set("lang", lang)
	q.Set("v", videoID)
	resp, err := fetcher.Get(ctx, c.fetcher, "", c.endpoint+"?"+q.Encode())
	if err != nil {
		var fe *types.FetchError
		if errors.As(err, &fe) && fe.StatusCode == 404 {
			return "", types.ErrTranscriptUnavailable
		}
		return "", err
	}

	var tt timedText
	if err := xml.Unmarshal(resp.Body, &tt); err != nil || len(tt.Texts) == 0 {
		return "", types.ErrTranscriptUnavailable
	}

	parts := make([]string, 0, len(tt.Texts))
	for _, t := range tt.Texts {
		if s := strings.TrimSpace(html.UnescapeString(t.Value)); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", types.ErrTranscriptUnavailable
	}
	return strings.Join(parts, " "), nil
}

// IsLive guesses from the oEmbed title whether videoID is a stream in
// progress. When the check itself fails the video is assumed live, so it gets
// retried instead of dropped.
func (c *transcriptClient) IsLive(ctx context.Context, videoID string) bool {
	if c.oembedURL == "" {
		return false
	}
	q := url.Values{}
	q.Set("url", "https://www.youtube.com/watch?v="+videoID)
	q.Set("format", "json")

	resp, err := fetcher.Get(ctx, c.fetcher, "", c.oembedURL+"?"+q.Encode())
	if err != nil {
		var fe *types.FetchError
		if errors.As(err, &fe) && fe.StatusCode > 0 {
			return false
		}
		c.logger.Debug("oembed check failed, assuming live", "video_id", videoID, "error", err)
		return true
	}
	var info oembedInfo
	if err := resp.DecodeJSON(&info); err != nil {
		return true
	}

	title := strings.ToLower(info.Title)
	for _, m := range liveMarkers {
		if strings.Contains(title, m) {
			return true
		}
	}
	return false
}
