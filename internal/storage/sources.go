package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/types"
)

// ErrSourceNotFound is returned for unknown source names.
var ErrSourceNotFound = errors.New("source not found")

// SourceStore is the configuration boundary: the operator-edited list of
// sources plus the last-run timestamp the engine maintains.
type SourceStore interface {
	// ActiveSources returns the sources marked active, ordered by name.
	ActiveSources(ctx context.Context) ([]config.SourceConfig, error)

	// List returns every source, ordered by name.
	List(ctx context.Context) ([]config.SourceConfig, error)

	// Get returns one source by name.
	Get(ctx context.Context, name string) (*config.SourceConfig, error)

	// Upsert inserts a source. An existing one is replaced only when update is
	// set; created reports whether a new row was written.
	Upsert(ctx context.Context, src config.SourceConfig, update bool) (created bool, err error)

	// SetActive toggles a source.
	SetActive(ctx context.Context, name string, active bool) error

	// TouchLastRun records a successful start.
	TouchLastRun(ctx context.Context, name string, at time.Time) error

	Close() error
}

const sourceSchema = `
CREATE TABLE IF NOT EXISTS sources (
	key        TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT 1,
	config     TEXT NOT NULL,
	last_run   DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

type sourceRow struct {
	Key       string       `db:"key"`
	Name      string       `db:"name"`
	Kind      string       `db:"kind"`
	Active    bool         `db:"active"`
	Config    string       `db:"config"`
	LastRun   sql.NullTime `db:"last_run"`
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}

// SQLiteSourceStore keeps source definitions as JSON documents in SQLite.
type SQLiteSourceStore struct {
	db              *sqlx.DB
	defaultInterval time.Duration
	logger          *slog.Logger
}

// NewSQLiteSourceStore opens (and migrates) the source database. Loaded
// sources get defaults applied with defaultInterval.
func NewSQLiteSourceStore(dsn string, defaultInterval time.Duration, logger *slog.Logger) (*SQLiteSourceStore, error) {
	db, err := openSQLite(dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sourceSchema); err != nil {
		db.Close()
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("init source schema: %w", err)}
	}
	return &SQLiteSourceStore{
		db:              db,
		defaultInterval: defaultInterval,
		logger:          logger.With("component", "source_store"),
	}, nil
}

func (s *SQLiteSourceStore) ActiveSources(ctx context.Context) ([]config.SourceConfig, error) {
	return s.query(ctx, `SELECT * FROM sources WHERE active = 1 ORDER BY name`)
}

func (s *SQLiteSourceStore) List(ctx context.Context) ([]config.SourceConfig, error) {
	return s.query(ctx, `SELECT * FROM sources ORDER BY name`)
}

func (s *SQLiteSourceStore) query(ctx context.Context, q string, args ...any) ([]config.SourceConfig, error) {
	var rows []sourceRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Err: err}
	}

	out := make([]config.SourceConfig, 0, len(rows))
	for _, row := range rows {
		src, err := s.decode(row)
		if err != nil {
			s.logger.Error("skipping unreadable source", "name", row.Name, "error", err)
			continue
		}
		out = append(out, *src)
	}
	return out, nil
}

func (s *SQLiteSourceStore) Get(ctx context.Context, name string) (*config.SourceConfig, error) {
	var row sourceRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM sources WHERE key = ?`, config.SourceKey(name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	if err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Err: err}
	}
	return s.decode(row)
}

func (s *SQLiteSourceStore) decode(row sourceRow) (*config.SourceConfig, error) {
	var src config.SourceConfig
	if err := json.Unmarshal([]byte(row.Config), &src); err != nil {
		return nil, fmt.Errorf("decode source config: %w", err)
	}
	src.Active = row.Active
	if row.LastRun.Valid {
		src.LastRun = row.LastRun.Time
	}
	src.ApplyDefaults(s.defaultInterval)
	src.ExpandSecrets()
	return &src, nil
}

func (s *SQLiteSourceStore) Upsert(ctx context.Context, src config.SourceConfig, update bool) (bool, error) {
	if err := src.Validate(); err != nil {
		return false, err
	}
	data, err := json.Marshal(src)
	if err != nil {
		return false, fmt.Errorf("encode source config: %w", err)
	}

	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (key, name, kind, active, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO NOTHING`,
		src.Key(), src.Name, string(src.Kind), src.Active, string(data), now, now)
	if err != nil {
		return false, &types.StorageError{Backend: "sqlite", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 1 {
		s.logger.Info("source created", "name", src.Name, "kind", src.Kind)
		return true, nil
	}
	if !update {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE sources SET name = ?, kind = ?, active = ?, config = ?, updated_at = ? WHERE key = ?`,
		src.Name, string(src.Kind), src.Active, string(data), now, src.Key())
	if err != nil {
		return false, &types.StorageError{Backend: "sqlite", Err: err}
	}
	s.logger.Info("source updated", "name", src.Name)
	return false, nil
}

func (s *SQLiteSourceStore) SetActive(ctx context.Context, name string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sources SET active = ?, updated_at = ? WHERE key = ?`,
		active, time.Now(), config.SourceKey(name))
	return requireRow(res, err, name)
}

func (s *SQLiteSourceStore) TouchLastRun(ctx context.Context, name string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sources SET last_run = ? WHERE key = ?`, at, config.SourceKey(name))
	return requireRow(res, err, name)
}

func requireRow(res sql.Result, err error, name string) error {
	if err != nil {
		return &types.StorageError{Backend: "sqlite", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	return nil
}

func (s *SQLiteSourceStore) Close() error {
	return s.db.Close()
}
