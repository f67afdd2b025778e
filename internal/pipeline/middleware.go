package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IshaanNene/NewsHound/internal/polish"
	"github.com/IshaanNene/NewsHound/internal/types"
)

// DefaultPrompt is the system prompt used when a source sets none.
const DefaultPrompt = "Sei un giornalista esperto. Rielabora questa notizia per il giornale locale."

// ContentSource fetches the full text behind an item URL.
type ContentSource interface {
	FetchFullContent(ctx context.Context, rawURL string) (string, bool)
}

// Deferrer reports items whose content is expected later.
type Deferrer interface {
	Deferred(rawURL string) bool
}

// Rewriter is the generative rewrite boundary.
type Rewriter interface {
	Rewrite(ctx context.Context, systemPrompt, userContent string) (string, error)
}

// --- Full content ---

// FullContentMiddleware fetches the full text of items that only carry a
// preview. When the fetch fails the preview stands in, unless the source
// deferred the item, in which case the draft fails with types.ErrLiveStream.
type FullContentMiddleware struct {
	Source   ContentSource
	Deferrer Deferrer // optional
}

func (m *FullContentMiddleware) Name() string { return "full_content" }

func (m *FullContentMiddleware) Process(ctx context.Context, d *Draft) (*Draft, error) {
	if d.Item.Content != "" {
		return d, nil
	}
	if content, ok := m.Source.FetchFullContent(ctx, d.Item.URL); ok {
		d.Item.Content = content
		return d, nil
	}
	if m.Deferrer != nil && m.Deferrer.Deferred(d.Item.URL) {
		return nil, types.ErrLiveStream
	}
	return d, nil
}

// --- Rewrite ---

// RewriteMiddleware sends the draft through the rewrite boundary. A failed
// rewrite leaves the draft untouched so the original is stored instead.
type RewriteMiddleware struct {
	rewriter  Rewriter
	prompt    func(*types.Item) string
	polisher  *polish.Polisher
	onFailure func(error)
	logger    *slog.Logger
}

// NewRewriteMiddleware creates a rewrite stage. prompt picks the system prompt
// per item; an empty result falls back to DefaultPrompt. onFailure may be nil.
func NewRewriteMiddleware(r Rewriter, prompt func(*types.Item) string, p *polish.Polisher, onFailure func(error), logger *slog.Logger) *RewriteMiddleware {
	return &RewriteMiddleware{
		rewriter:  r,
		prompt:    prompt,
		polisher:  p,
		onFailure: onFailure,
		logger:    logger.With("component", "rewrite"),
	}
}

func (m *RewriteMiddleware) Name() string { return "rewrite" }

func (m *RewriteMiddleware) Process(ctx context.Context, d *Draft) (*Draft, error) {
	system := ""
	if m.prompt != nil {
		system = m.prompt(d.Item)
	}
	if strings.TrimSpace(system) == "" {
		system = DefaultPrompt
	}

	text, err := m.rewriter.Rewrite(ctx, system, UserContent(d.Item))
	if err == nil && strings.TrimSpace(text) == "" {
		err = types.ErrEmptyResponse
	}
	if err != nil {
		m.logger.Warn("rewrite failed, keeping original", "url", d.Item.URL, "error", err)
		if m.onFailure != nil {
			m.onFailure(err)
		}
		return d, nil
	}

	title, body := m.polisher.SplitTitleBody(text)
	if title == "" {
		title = m.polisher.Plain(d.Item.Title)
	}
	if body == "" {
		body = text
	}
	d.Title, d.Body, d.Rewritten = title, body, true
	return d, nil
}

// UserContent formats an item as the user message of a rewrite request.
func UserContent(item *types.Item) string {
	return fmt.Sprintf("Fonte: %s\nTitolo originale: %s\n\nContenuto da rielaborare:\n%s\n\n"+
		"Rielabora questa notizia creando un articolo coinvolgente.",
		item.URL, item.Title, item.Text())
}

// --- Polish ---

// PolishMiddleware normalizes title and body. Drafts that were not rewritten
// take them from the item.
type PolishMiddleware struct {
	Polisher *polish.Polisher
}

func (m *PolishMiddleware) Name() string { return "polish" }

func (m *PolishMiddleware) Process(_ context.Context, d *Draft) (*Draft, error) {
	if !d.Rewritten {
		d.Title = d.Item.Title
		d.Body = d.Item.Text()
	}
	d.Title = polish.Truncate(m.Polisher.Plain(d.Title), polish.DefaultTitleMax)
	d.Body = m.Polisher.Polish(d.Body)
	return d, nil
}

// --- Required fields ---

// RequiredFieldsMiddleware drops drafts without a title or body.
type RequiredFieldsMiddleware struct{}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(_ context.Context, d *Draft) (*Draft, error) {
	if strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Body) == "" {
		return nil, nil
	}
	return d, nil
}
