package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/types"
)

const watchURLPrefix = "https://www.youtube.com/watch?v="

// YouTubeScraper lists the videos of a playlist. The transcript is the full
// content; a video whose transcript is missing because it is still streaming
// is deferred until LiveRetryDelay has passed.
type YouTubeScraper struct {
	base
	opts        *config.YouTubeOptions
	transcripts *transcriptClient

	mu       sync.Mutex
	deferred map[string]time.Time // video id -> earliest retry
	now      func() time.Time
}

type playlistResponse struct {
	Items []struct {
		Snippet struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			PublishedAt string `json:"publishedAt"`
			Thumbnails  map[string]struct {
				URL string `json:"url"`
			} `json:"thumbnails"`
			ResourceID struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

// NewYouTubeScraper creates a YouTube scraper.
func NewYouTubeScraper(src *config.SourceConfig, deps Deps) (*YouTubeScraper, error) {
	opts := src.YouTube
	if opts == nil || (!opts.HasAPI() && len(opts.FallbackVideoIDs) == 0) {
		return nil, fmt.Errorf("youtube scraper %q: %w: api_key+playlist_id or fallback_video_ids", src.Name, types.ErrNotConfigured)
	}

	s := &YouTubeScraper{
		base:     newBase(src, deps.Fetcher, deps.Logger, "youtube"),
		opts:     opts,
		deferred: make(map[string]time.Time),
		now:      time.Now,
	}
	s.transcripts = newTranscriptClient(deps.Transcript, opts.TranscriptDelay, deps.Fetcher, s.logger)
	if !opts.HasAPI() {
		s.logger.Warn("youtube api not configured, using fallback video ids", "count", len(opts.FallbackVideoIDs))
	}
	return s, nil
}

// Scrape lists videos, leaving out those still waiting for a live retry.
func (s *YouTubeScraper) Scrape(ctx context.Context) []*types.Item {
	var items []*types.Item
	if s.opts.HasAPI() {
		items = s.fromAPI(ctx)
	} else {
		items = s.fromFallbackIDs()
	}

	ready := items[:0]
	for _, it := range items {
		if s.waiting(it.GetMeta(types.MetaVideoID)) {
			continue
		}
		ready = append(ready, it)
	}
	s.logger.Info("youtube scrape complete", "items", len(ready), "deferred", len(items)-len(ready))
	return ready
}

// FetchFullContent returns the transcript of the video behind rawURL.
func (s *YouTubeScraper) FetchFullContent(ctx context.Context, rawURL string) (string, bool) {
	videoID := VideoID(rawURL)
	if videoID == "" {
		return "", false
	}

	text, err := s.transcripts.Fetch(ctx, videoID, s.opts.Language)
	if err == nil {
		s.clearDeferral(videoID)
		s.logger.Info("transcript fetched", "video_id", videoID, "chars", len(text))
		return text, true
	}

	if errors.Is(err, types.ErrTranscriptUnavailable) && s.transcripts.IsLive(ctx, videoID) {
		s.deferVideo(videoID)
		s.logger.Info("video is live, transcript deferred", "video_id", videoID, "retry_in", s.opts.LiveRetryDelay)
		return "", false
	}

	s.logger.Error("transcript fetch failed", "video_id", videoID, "error", err)
	return "", false
}

// Deferred reports whether the video behind rawURL is waiting for a live retry.
func (s *YouTubeScraper) Deferred(rawURL string) bool {
	return s.waiting(VideoID(rawURL))
}

func (s *YouTubeScraper) fromAPI(ctx context.Context) []*types.Item {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("playlistId", s.opts.PlaylistID)
	q.Set("key", s.opts.APIKey)
	q.Set("maxResults", strconv.Itoa(s.opts.MaxResults))
	q.Set("order", "date")

	var resp playlistResponse
	if err := s.getJSON(ctx, s.opts.APIURL+"?"+q.Encode(), &resp); err != nil {
		// The key is part of the URL; log the endpoint only.
		s.logger.Error("youtube api request failed", "endpoint", s.opts.APIURL, "error", redactKey(err, s.opts.APIKey))
		return nil
	}

	items := make([]*types.Item, 0, len(resp.Items))
	for _, entry := range resp.Items {
		sn := entry.Snippet
		id := sn.ResourceID.VideoID
		if id == "" {
			s.logger.Warn("playlist entry without video id", "title", truncate(sn.Title, 50))
			continue
		}
		item := types.NewItem(watchURLPrefix + id)
		item.Title = truncate(sn.Title, maxTitleLength)
		item.Preview = truncate(sn.Description, maxPreviewLength)
		item.ImageURL = sn.Thumbnails["medium"].URL
		item.Source = s.src.Name
		item.PublishedAt = parseLooseTime(sn.PublishedAt)
		item.SetMeta(types.MetaVideoID, id)
		items = append(items, item)
	}
	return items
}

func (s *YouTubeScraper) fromFallbackIDs() []*types.Item {
	items := make([]*types.Item, 0, len(s.opts.FallbackVideoIDs))
	for _, id := range s.opts.FallbackVideoIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		item := types.NewItem(watchURLPrefix + id)
		item.Title = s.src.Name + " - Video " + id
		item.Preview = "Trascrizione del video pubblicato da " + s.src.Name
		item.ImageURL = "https://img.youtube.com/vi/" + id + "/mqdefault.jpg"
		item.Source = s.src.Name
		item.SetMeta(types.MetaVideoID, id)
		items = append(items, item)
	}
	return items
}

func (s *YouTubeScraper) deferVideo(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferred[id] = s.now().Add(s.opts.LiveRetryDelay)
}

func (s *YouTubeScraper) clearDeferral(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deferred, id)
}

// waiting reports whether id is deferred and its retry time has not come.
// Expired deferrals are dropped so the video is tried again.
func (s *YouTubeScraper) waiting(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	retryAt, ok := s.deferred[id]
	if !ok {
		return false
	}
	if !s.now().Before(retryAt) {
		delete(s.deferred, id)
		return false
	}
	return true
}

// VideoID extracts the video id from a watch or short URL.
func VideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	if strings.HasSuffix(u.Hostname(), "youtu.be") {
		return strings.Trim(u.Path, "/")
	}
	return ""
}

func redactKey(err error, key string) string {
	if key == "" {
		return err.Error()
	}
	return strings.ReplaceAll(err.Error(), key, "***")
}
