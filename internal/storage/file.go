package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/IshaanNene/NewsHound/internal/types"
)

// JSONLStore writes articles as newline-delimited JSON instead of persisting
// them. Existence checks are answered from an optional backing store plus the
// URLs written so far, so a dry run behaves like the real thing.
type JSONLStore struct {
	enc     *json.Encoder
	backing ArticleStore
	mu      sync.Mutex
	written map[string]bool
	count   int
	logger  *slog.Logger
}

// NewJSONLStore creates a store writing to w. backing may be nil.
func NewJSONLStore(w io.Writer, backing ArticleStore, logger *slog.Logger) *JSONLStore {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLStore{
		enc:     enc,
		backing: backing,
		written: make(map[string]bool),
		logger:  logger.With("component", "jsonl_articles"),
	}
}

func (s *JSONLStore) Name() string { return "jsonl" }

func (s *JSONLStore) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	s.mu.Lock()
	seen := s.written[sourceURL]
	s.mu.Unlock()
	if seen || s.backing == nil {
		return seen, nil
	}
	return s.backing.ExistsBySourceURL(ctx, sourceURL)
}

func (s *JSONLStore) Create(_ context.Context, a *Article) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.written[a.SourceURL] {
		return "", types.ErrDuplicate
	}
	s.count++
	if a.ID == "" {
		a.ID = "dry-" + strconv.Itoa(s.count)
	}
	if err := s.enc.Encode(a); err != nil {
		return "", fmt.Errorf("encode JSONL: %w", err)
	}
	s.written[a.SourceURL] = true
	return a.ID, nil
}

// Count returns how many articles were written.
func (s *JSONLStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close does not close the backing store; its owner does.
func (s *JSONLStore) Close() error {
	s.logger.Info("JSONL written", "articles", s.Count())
	return nil
}
