// Package pipeline turns a new candidate item into an article draft: full
// content, optional rewrite, polish and a final completeness check.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/IshaanNene/NewsHound/internal/types"
)

// Draft is an item on its way to the article store. Title and Body are empty
// until the rewrite or polish stage fills them.
type Draft struct {
	Item      *types.Item
	Title     string
	Body      string
	Rewritten bool
}

// NewDraft wraps an item.
func NewDraft(item *types.Item) *Draft {
	return &Draft{Item: item}
}

// Middleware processes a draft and returns the (possibly modified) draft.
// Return nil to drop the draft from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a draft. Return nil to drop it.
	Process(ctx context.Context, d *Draft) (*Draft, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the draft through all middleware in order.
func (p *Pipeline) Process(ctx context.Context, d *Draft) (*Draft, error) {
	current := d

	for _, mw := range p.middlewares {
		result, err := mw.Process(ctx, current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage: mw.Name(),
				URL:   d.Item.URL,
				Err:   err,
			}
		}
		if result == nil {
			p.logger.Debug("draft dropped", "stage", mw.Name(), "url", d.Item.URL)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}
