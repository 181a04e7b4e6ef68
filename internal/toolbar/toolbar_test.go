package toolbar_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/renderinc/report-highlights/internal/anchor"
	"github.com/renderinc/report-highlights/internal/highlight"
	"github.com/renderinc/report-highlights/internal/render"
	"github.com/renderinc/report-highlights/internal/storage"
	"github.com/renderinc/report-highlights/internal/toolbar"
)

const page = "https://reports.example.org/2024/annual"

type clip struct{ text string }

func (c *clip) WriteText(s string) error {
	c.text = s
	return nil
}

type harness struct {
	t       *testing.T
	db      *storage.DB
	svc     *highlight.Service
	root    *html.Node
	ctrl    *toolbar.Controller
	events  chan toolbar.Event
	changes chan toolbar.View
}

func start(t *testing.T, src string, cfg toolbar.Config, seed ...highlight.Record) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	session, err := storage.NewSessionStore("")
	require.NoError(t, err)
	for _, rec := range seed {
		_, err := db.Add(ctx, rec)
		require.NoError(t, err)
	}

	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	root := anchor.Container(doc, "article")

	h := &harness{
		t:       t,
		db:      db,
		svc:     highlight.NewService(db, highlight.WithSession(session)),
		root:    root,
		events:  make(chan toolbar.Event),
		changes: make(chan toolbar.View, 256),
	}

	cfg.URL = page
	cfg.OnChange = func(v toolbar.View) {
		select {
		case h.changes <- v:
		default:
		}
	}
	h.ctrl = toolbar.New(h.svc, render.New(root), cfg)

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx, h.events) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
		db.Close()
	})

	h.sync()
	return h
}

func (h *harness) do(kind toolbar.ActionKind, color highlight.Color) error {
	done := make(chan error, 1)
	h.events <- toolbar.Action{Kind: kind, Color: color, Done: done}
	return <-done
}

// sync returns once every event sent before it has been handled. It sends an
// action the controller does not know, which leaves the state untouched.
func (h *harness) sync() {
	require.ErrorIs(h.t, h.do("noop", ""), toolbar.ErrUnknownAction)
}

func (h *harness) waitFor(match func(toolbar.View) bool) toolbar.View {
	h.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case v := <-h.changes:
			if match(v) {
				return v
			}
		case <-timeout:
			h.t.Fatalf("no matching view, last: %+v", h.ctrl.View())
			return toolbar.View{}
		}
	}
}

func (h *harness) text(selector string) *html.Node {
	h.t.Helper()
	sel := goquery.NewDocumentFromNode(h.root).Find(selector)
	require.Equal(h.t, 1, sel.Length(), selector)
	return sel.Nodes[0].FirstChild
}

func (h *harness) spans() *goquery.Selection {
	return goquery.NewDocumentFromNode(h.root).Find("span." + render.ClassName)
}

func selecting(v toolbar.View) bool { return v.State == toolbar.Selecting }

func textRange(n *html.Node, start, end int) anchor.Range {
	return anchor.Range{Start: anchor.Point{Node: n, Offset: start}, End: anchor.Point{Node: n, Offset: end}}
}

func TestHighlightSelection(t *testing.T) {
	t.Parallel()

	h := start(t, `<article><p id="text">Hello world from IFRC</p></article>`, toolbar.Config{Debounce: 5 * time.Millisecond})

	h.events <- toolbar.MouseUp{Range: textRange(h.text("p#text"), 0, 5)}
	v := h.waitFor(selecting)
	assert.Equal(t, "Hello", v.Text)
	assert.Equal(t, anchor.Selection{StartAbs: 0, EndAbs: 5, Quote: "Hello"}, v.Selection)
	assert.Contains(t, v.Links.WhatsApp, "Hello")

	require.NoError(t, h.do(toolbar.ActionHighlight, highlight.Yellow))
	assert.Equal(t, toolbar.Idle, h.ctrl.View().State)
	assert.Equal(t, 1, h.ctrl.View().Rendered)

	recs, err := h.svc.List(context.Background(), page)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Hello", recs[0].Quote)
	assert.Equal(t, highlight.Yellow, recs[0].Color)
	assert.Equal(t, 0, recs[0].StartAbs)
	assert.Equal(t, 5, recs[0].EndAbs)

	require.Equal(t, 1, h.spans().Length())
	assert.Equal(t, "Hello", h.spans().Text())
}

func TestWhitespaceSelectionIsIgnored(t *testing.T) {
	t.Parallel()

	h := start(t, `<article><p>Hello world</p></article>`, toolbar.Config{Debounce: 5 * time.Millisecond})

	h.events <- toolbar.MouseUp{Range: textRange(h.text("p"), 5, 6)}
	time.Sleep(50 * time.Millisecond)
	h.sync()

	assert.Equal(t, toolbar.Idle, h.ctrl.View().State)
	assert.ErrorIs(t, h.do(toolbar.ActionHighlight, highlight.Blue), toolbar.ErrNoSelection)

	recs, err := h.svc.List(context.Background(), page)
	require.NoError(t, err)
	assert.Empty(t, recs)
	for len(h.changes) > 0 {
		assert.NotEqual(t, toolbar.Selecting, (<-h.changes).State)
	}
}

func TestRemoveClickedGroup(t *testing.T) {
	t.Parallel()

	key, err := highlight.URLKey(page)
	require.NoError(t, err)
	seed := highlight.Record{GroupID: 999, URLKey: key, Color: highlight.Yellow, StartAbs: 0, EndAbs: 5, Quote: "Hello"}

	h := start(t, `<article><p id="text">Hello world from IFRC</p></article>`, toolbar.Config{}, seed)

	require.Equal(t, 1, h.spans().Length())
	assert.Equal(t, "Hello", h.spans().Text())
	inside := h.spans().Nodes[0].FirstChild

	h.events <- toolbar.PointerDown{Target: inside}
	h.events <- toolbar.MouseUp{Range: textRange(inside, 2, 2)}
	h.events <- toolbar.Click{Target: inside}
	h.sync()

	v := h.ctrl.View()
	assert.Equal(t, toolbar.Inspecting, v.State)
	assert.Equal(t, int64(999), v.GroupID)
	assert.Equal(t, "Hello", v.Text)

	require.NoError(t, h.do(toolbar.ActionRemove, ""))
	assert.Equal(t, toolbar.Idle, h.ctrl.View().State)
	assert.Zero(t, h.spans().Length())

	left, err := h.db.ByGroup(context.Background(), 999)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Equal(t, "Hello world from IFRC", anchor.Text(h.root))
}

func TestNewerMouseUpCancelsPendingCheck(t *testing.T) {
	t.Parallel()

	h := start(t, `<article><p>Hello world</p></article>`, toolbar.Config{Debounce: 100 * time.Millisecond})
	text := h.text("p")

	h.events <- toolbar.MouseUp{Range: textRange(text, 0, 5)}
	h.events <- toolbar.MouseUp{Range: textRange(text, 6, 11)}

	v := h.waitFor(selecting)
	assert.Equal(t, "world", v.Text)

	time.Sleep(250 * time.Millisecond)
	h.sync()
	for len(h.changes) > 0 {
		assert.NotEqual(t, "Hello", (<-h.changes).Text)
	}
}

func TestKeyboard(t *testing.T) {
	t.Parallel()

	h := start(t, `<article><h2 id="key-figures">Key figures</h2><p>Hello world</p></article>`, toolbar.Config{Debounce: 5 * time.Millisecond})
	text := h.text("p")

	h.events <- toolbar.KeyUp{Key: "a", Meta: true, Range: textRange(text, 0, 11)}
	v := h.waitFor(selecting)
	assert.Equal(t, "Hello world", v.Text)
	assert.Equal(t, "key-figures", v.Hash)

	h.events <- toolbar.KeyUp{Key: "Escape"}
	h.sync()
	assert.Equal(t, toolbar.Idle, h.ctrl.View().State)
	assert.Empty(t, h.ctrl.View().Text)

	h.events <- toolbar.KeyUp{Key: "a", Range: textRange(text, 0, 5)}
	time.Sleep(30 * time.Millisecond)
	h.sync()
	assert.Equal(t, toolbar.Idle, h.ctrl.View().State)
}

func TestSelectionReplacesInspection(t *testing.T) {
	t.Parallel()

	key, err := highlight.URLKey(page)
	require.NoError(t, err)
	seed := highlight.Record{URLKey: key, Color: highlight.Pink, StartAbs: 0, EndAbs: 5, Quote: "Hello"}

	h := start(t, `<article><p>Hello world</p></article>`, toolbar.Config{Debounce: 5 * time.Millisecond}, seed)

	h.events <- toolbar.Click{Target: h.spans().Nodes[0].FirstChild}
	h.sync()
	require.Equal(t, toolbar.Inspecting, h.ctrl.View().State)

	rest := h.spans().Nodes[0].NextSibling
	h.events <- toolbar.MouseUp{Range: textRange(rest, 1, 6)}
	v := h.waitFor(selecting)
	assert.Equal(t, "world", v.Text)
	assert.Zero(t, v.GroupID)

	assert.ErrorIs(t, h.do(toolbar.ActionRemove, ""), toolbar.ErrNoSelection)

	h.events <- toolbar.Click{Target: h.spans().Nodes[0].FirstChild}
	h.sync()
	v = h.ctrl.View()
	assert.Equal(t, toolbar.Inspecting, v.State)
	assert.Zero(t, v.Selection)
	assert.Equal(t, "Hello", v.Text)

	require.NoError(t, h.do(toolbar.ActionDismiss, ""))
	assert.Equal(t, toolbar.Idle, h.ctrl.View().State)
}

func TestCopyAndShare(t *testing.T) {
	t.Parallel()

	c := &clip{}
	h := start(t, `<article><p>Hello world</p></article>`, toolbar.Config{Debounce: 5 * time.Millisecond, Clipboard: c})
	text := h.text("p")

	h.events <- toolbar.MouseUp{Range: textRange(text, 6, 11)}
	h.waitFor(selecting)
	require.NoError(t, h.do(toolbar.ActionCopy, ""))
	assert.Equal(t, "world", c.text)
	assert.Equal(t, toolbar.Idle, h.ctrl.View().State)

	h.events <- toolbar.MouseUp{Range: textRange(text, 0, 5)}
	h.waitFor(selecting)
	require.NoError(t, h.do(toolbar.ActionShare, ""))
	assert.Equal(t, page, c.text)

	assert.ErrorIs(t, h.do(toolbar.ActionCopy, ""), toolbar.ErrNoSelection)
	assert.ErrorIs(t, h.do("print", ""), toolbar.ErrUnknownAction)
}

func TestDegradedHighlightStaysVisible(t *testing.T) {
	t.Parallel()

	h := start(t, `<article><p>Hello world</p></article>`, toolbar.Config{Debounce: 5 * time.Millisecond})

	h.events <- toolbar.MouseUp{Range: textRange(h.text("p"), 6, 11)}
	h.waitFor(selecting)

	require.NoError(t, h.db.Close())
	require.NoError(t, h.do(toolbar.ActionHighlight, highlight.Green))

	v := h.ctrl.View()
	assert.True(t, v.Degraded)
	assert.Equal(t, 1, v.Rendered)
	assert.Equal(t, "world", h.spans().Text())
}
