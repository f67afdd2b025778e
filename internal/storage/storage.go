// Package storage holds the persistence boundaries of the engine: the article
// store monitors write to and the source store the operator edits.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/polish"
)

// SummaryLength is the rune length of derived article summaries.
const SummaryLength = 200

// ArticleStore is the persistence boundary. The engine only ever checks for
// existence and creates; it never updates or deletes.
type ArticleStore interface {
	// ExistsBySourceURL reports whether an article with this source URL exists.
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)

	// Create persists a new article and returns its id. A second article with
	// the same source URL yields types.ErrDuplicate.
	Create(ctx context.Context, a *Article) (string, error)

	// Close releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// Article is a finished item as stored.
type Article struct {
	ID          string    `db:"id"           json:"id"           bson:"_id"`
	Title       string    `db:"title"        json:"title"        bson:"title"`
	Body        string    `db:"body"         json:"body"         bson:"body"`
	Summary     string    `db:"summary"      json:"summary"      bson:"summary"`
	Slug        string    `db:"slug"         json:"slug"         bson:"slug"`
	Category    string    `db:"category"     json:"category"     bson:"category"`
	SourceURL   string    `db:"source_url"   json:"source_url"   bson:"source_url"`
	ImageURL    string    `db:"image_url"    json:"image_url"    bson:"image_url,omitempty"`
	Approved    bool      `db:"approved"     json:"approved"     bson:"approved"`
	PublishedAt time.Time `db:"published_at" json:"published_at" bson:"published_at"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"   bson:"created_at"`
}

var (
	slugStripRe = regexp.MustCompile(`[^\p{L}\p{N}\s-]+`)
	slugDashRe  = regexp.MustCompile(`[\s-]+`)
)

// NewArticle builds an article and derives its summary and slug.
func NewArticle(p *polish.Polisher, title, body, category, sourceURL, imageURL string, approved bool) *Article {
	now := time.Now()
	return &Article{
		Title:       title,
		Body:        body,
		Summary:     p.Summarize(body, SummaryLength),
		Slug:        Slugify(title),
		Category:    category,
		SourceURL:   sourceURL,
		ImageURL:    imageURL,
		Approved:    approved,
		PublishedAt: now,
		CreatedAt:   now,
	}
}

// Slugify derives a URL slug from a title.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugStripRe.ReplaceAllString(s, "")
	s = slugDashRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return polish.Truncate(s, 80)
}

// NewArticleStore opens the backend selected by cfg.Type.
func NewArticleStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (ArticleStore, error) {
	switch cfg.Type {
	case "", "sqlite":
		return NewSQLiteArticleStore(cfg.DSN, logger)
	case "mongodb":
		return NewMongoArticleStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
