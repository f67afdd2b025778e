package types

import (
	"encoding/json"
	"time"
)

// Metadata keys carried by items of specific source kinds.
const (
	MetaEventID     = "event_id"
	MetaVideoID     = "video_id"
	MetaSender      = "sender"
	MetaSubject     = "subject"
	MetaContentType = "content_type"
	MetaMessageUID  = "message_uid"
	MetaOrigin      = "origin" // which scraper path produced the item
)

// Item is a candidate content record pulled from a source.
type Item struct {
	// Title is the raw headline as found at the source.
	Title string

	// URL is the canonical source URL and the dedup key.
	URL string

	// Preview is a short description or excerpt.
	Preview string

	// Content is the full body. Empty until fetched when the source only lists previews.
	Content string

	// ImageURL is the article image, if any.
	ImageURL string

	// PublishedAt is the upstream publish time. Zero when unknown.
	PublishedAt time.Time

	// Source is the name of the source that produced this item.
	Source string

	// Meta stores kind-specific metadata (event id, video id, sender).
	Meta map[string]string

	// Timestamp is when this item was scraped.
	Timestamp time.Time
}

// NewItem creates a new Item for the given URL.
func NewItem(sourceURL string) *Item {
	return &Item{
		URL:       sourceURL,
		Meta:      make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetMeta sets a metadata value.
func (i *Item) SetMeta(key, value string) {
	if i.Meta == nil {
		i.Meta = make(map[string]string)
	}
	i.Meta[key] = value
}

// GetMeta retrieves a metadata value.
func (i *Item) GetMeta(key string) string {
	return i.Meta[key]
}

// HasImage returns true if the item carries an image URL.
func (i *Item) HasImage() bool {
	return i.ImageURL != ""
}

// Text returns the best text available: full content when fetched, else the preview.
func (i *Item) Text() string {
	if i.Content != "" {
		return i.Content
	}
	return i.Preview
}

// ToJSON serializes the item to JSON bytes.
func (i *Item) ToJSON() ([]byte, error) {
	return json.Marshal(struct {
		Title       string            `json:"title"`
		URL         string            `json:"url"`
		Preview     string            `json:"preview,omitempty"`
		Content     string            `json:"content,omitempty"`
		ImageURL    string            `json:"image_url,omitempty"`
		PublishedAt *time.Time        `json:"published_at,omitempty"`
		Source      string            `json:"source,omitempty"`
		Meta        map[string]string `json:"meta,omitempty"`
		Timestamp   time.Time         `json:"timestamp"`
	}{
		Title:       i.Title,
		URL:         i.URL,
		Preview:     i.Preview,
		Content:     i.Content,
		ImageURL:    i.ImageURL,
		PublishedAt: optionalTime(i.PublishedAt),
		Source:      i.Source,
		Meta:        i.Meta,
		Timestamp:   i.Timestamp,
	})
}

// Clone creates a deep copy of the item.
func (i *Item) Clone() *Item {
	clone := *i
	clone.Meta = make(map[string]string, len(i.Meta))
	for k, v := range i.Meta {
		clone.Meta[k] = v
	}
	return &clone
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
