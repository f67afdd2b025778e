package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/IshaanNene/NewsHound/internal/polish"
	"github.com/IshaanNene/NewsHound/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeSource struct {
	content  map[string]string
	deferred map[string]bool
	calls    int
}

func (f *fakeSource) FetchFullContent(_ context.Context, rawURL string) (string, bool) {
	f.calls++
	c, ok := f.content[rawURL]
	return c, ok
}

func (f *fakeSource) Deferred(rawURL string) bool { return f.deferred[rawURL] }

type fakeRewriter struct {
	text   string
	err    error
	system string
	user   string
}

func (f *fakeRewriter) Rewrite(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.text, f.err
}

func newItem(url, title, preview string) *types.Item {
	it := types.NewItem(url)
	it.Title = title
	it.Preview = preview
	return it
}

func TestPipelineWithoutRewrite(t *testing.T) {
	src := &fakeSource{content: map[string]string{"https://c.it/n/1": "**Lavori** in corso   in via Roma."}}

	p := New(testLogger)
	p.Use(&FullContentMiddleware{Source: src})
	p.Use(&PolishMiddleware{Polisher: polish.New()})
	p.Use(&RequiredFieldsMiddleware{})
	if p.Len() != 3 {
		t.Fatalf("expected 3 middlewares, got %d", p.Len())
	}

	d, err := p.Process(context.Background(), NewDraft(newItem("https://c.it/n/1", "<b>Lavori</b> 🚧", "anteprima")))
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if d.Title != "Lavori" {
		t.Errorf("expected plain title, got %q", d.Title)
	}
	if d.Body != "<strong>Lavori</strong> in corso in via Roma." {
		t.Errorf("unexpected body %q", d.Body)
	}
}

func TestFullContentFallsBackToPreview(t *testing.T) {
	src := &fakeSource{}
	m := &FullContentMiddleware{Source: src}

	d, err := m.Process(context.Background(), NewDraft(newItem("https://c.it/x", "T", "Solo anteprima")))
	if err != nil || d == nil {
		t.Fatalf("expected draft, got %v, %v", d, err)
	}
	if d.Item.Text() != "Solo anteprima" {
		t.Errorf("expected preview as text, got %q", d.Item.Text())
	}

	withContent := newItem("https://c.it/y", "T", "p")
	withContent.Content = "già presente"
	if _, err := m.Process(context.Background(), NewDraft(withContent)); err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Errorf("items with content must not be fetched again, got %d calls", src.calls)
	}
}

func TestFullContentDeferred(t *testing.T) {
	src := &fakeSource{deferred: map[string]bool{"https://yt/watch?v=1": true}}
	p := New(testLogger)
	p.Use(&FullContentMiddleware{Source: src, Deferrer: src})

	_, err := p.Process(context.Background(), NewDraft(newItem("https://yt/watch?v=1", "Diretta", "")))
	if !errors.Is(err, types.ErrLiveStream) {
		t.Fatalf("expected ErrLiveStream, got %v", err)
	}
	var pe *types.PipelineError
	if !errors.As(err, &pe) || pe.Stage != "full_content" {
		t.Errorf("expected pipeline error from full_content, got %v", err)
	}
}

func TestRewriteSplitsTitleAndBody(t *testing.T) {
	rw := &fakeRewriter{text: "# Title Line\nBody **text**"}
	p := New(testLogger)
	p.Use(NewRewriteMiddleware(rw, func(*types.Item) string { return "prompt social" }, polish.New(), nil, testLogger))
	p.Use(&PolishMiddleware{Polisher: polish.New()})

	item := newItem("https://c.it/n/2", "Originale", "")
	item.Content = "Testo originale"
	d, err := p.Process(context.Background(), NewDraft(item))
	if err != nil {
		t.Fatal(err)
	}
	if !d.Rewritten || d.Title != "Title Line" {
		t.Errorf("expected rewritten title, got %q (rewritten=%v)", d.Title, d.Rewritten)
	}
	if d.Body != "Body <strong>text</strong>" {
		t.Errorf("unexpected body %q", d.Body)
	}
	if rw.system != "prompt social" {
		t.Errorf("expected item prompt, got %q", rw.system)
	}
	want := "Fonte: https://c.it/n/2\nTitolo originale: Originale\n\nContenuto da rielaborare:\nTesto originale"
	if !strings.HasPrefix(rw.user, want) {
		t.Errorf("unexpected user content %q", rw.user)
	}
}

func TestRewriteFailureKeepsOriginal(t *testing.T) {
	rw := &fakeRewriter{err: errors.New("overloaded")}
	failures := 0
	m := NewRewriteMiddleware(rw, nil, polish.New(), func(error) { failures++ }, testLogger)

	item := newItem("https://c.it/n/3", "Originale", "Anteprima")
	d, err := m.Process(context.Background(), NewDraft(item))
	if err != nil || d == nil {
		t.Fatalf("rewrite failure must degrade, got %v, %v", d, err)
	}
	if d.Rewritten {
		t.Error("draft must not be marked rewritten")
	}
	if failures != 1 {
		t.Errorf("expected one failure callback, got %d", failures)
	}
	if rw.system != DefaultPrompt {
		t.Errorf("expected default prompt, got %q", rw.system)
	}

	rw.err, rw.text = nil, "   "
	d, _ = m.Process(context.Background(), NewDraft(item))
	if d.Rewritten || failures != 2 {
		t.Error("empty response counts as a failure")
	}
}

func TestRewriteTitleOnlyResponse(t *testing.T) {
	rw := &fakeRewriter{text: "Solo titolo"}
	m := NewRewriteMiddleware(rw, nil, polish.New(), nil, testLogger)

	d, _ := m.Process(context.Background(), NewDraft(newItem("https://c.it/n/4", "Orig", "p")))
	if d.Title != "Solo titolo" || d.Body != "Solo titolo" {
		t.Errorf("body falls back to the whole response, got %q / %q", d.Title, d.Body)
	}
}

func TestRequiredFieldsMiddleware(t *testing.T) {
	m := &RequiredFieldsMiddleware{}

	d, _ := m.Process(context.Background(), &Draft{Item: types.NewItem("u"), Title: "T", Body: "B"})
	if d == nil {
		t.Error("complete draft should pass")
	}
	d, _ = m.Process(context.Background(), &Draft{Item: types.NewItem("u"), Title: "T", Body: "  "})
	if d != nil {
		t.Error("draft without body should be dropped")
	}
}

func BenchmarkPipeline(b *testing.B) {
	p := New(testLogger)
	p.Use(&PolishMiddleware{Polisher: polish.New()})
	p.Use(&RequiredFieldsMiddleware{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		item := newItem("https://example.com", "  Hello <b>World</b>  ", "")
		item.Content = "## Titolo\n- uno\n- due\n\n**fine**"
		p.Process(context.Background(), NewDraft(item))
	}
}
