package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/IshaanNene/NewsHound/internal/types"
)

const articleSchema = `
CREATE TABLE IF NOT EXISTS articles (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	body         TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	slug         TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	source_url   TEXT NOT NULL UNIQUE,
	image_url    TEXT NOT NULL DEFAULT '',
	approved     BOOLEAN NOT NULL DEFAULT 0,
	published_at DATETIME NOT NULL,
	created_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_articles_category ON articles (category);
`

// SQLiteArticleStore keeps articles in a SQLite database.
type SQLiteArticleStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewSQLiteArticleStore opens (and migrates) the database at dsn.
func NewSQLiteArticleStore(dsn string, logger *slog.Logger) (*SQLiteArticleStore, error) {
	db, err := openSQLite(dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(articleSchema); err != nil {
		db.Close()
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("init schema: %w", err)}
	}
	return &SQLiteArticleStore{
		db:     db,
		logger: logger.With("component", "sqlite_articles"),
	}, nil
}

func openSQLite(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("open: %w", err)}
	}
	// One writer at a time; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)
	// Article and source stores may share one file.
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("set busy timeout: %w", err)}
	}
	return db, nil
}

func (s *SQLiteArticleStore) Name() string { return "sqlite" }

func (s *SQLiteArticleStore) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM articles WHERE source_url = ?)`, sourceURL)
	if err != nil {
		return false, &types.StorageError{Backend: "sqlite", Err: err}
	}
	return exists, nil
}

func (s *SQLiteArticleStore) Create(ctx context.Context, a *Article) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO articles (id, title, body, summary, slug, category, source_url, image_url, approved, published_at, created_at)
		VALUES (:id, :title, :body, :summary, :slug, :category, :source_url, :image_url, :approved, :published_at, :created_at)`, a)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return "", types.ErrDuplicate
		}
		return "", &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("insert article: %w", err)}
	}
	s.logger.Debug("article created", "id", a.ID, "source_url", a.SourceURL)
	return a.ID, nil
}

// Get loads an article by id.
func (s *SQLiteArticleStore) Get(ctx context.Context, id string) (*Article, error) {
	var a Article
	if err := s.db.GetContext(ctx, &a, `SELECT * FROM articles WHERE id = ?`, id); err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Err: err}
	}
	return &a, nil
}

// Count returns the number of stored articles.
func (s *SQLiteArticleStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM articles`); err != nil {
		return 0, &types.StorageError{Backend: "sqlite", Err: err}
	}
	return n, nil
}

func (s *SQLiteArticleStore) Close() error {
	return s.db.Close()
}
