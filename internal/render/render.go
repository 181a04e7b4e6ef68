// Package render wraps stored highlights into the text of a page container
// as <span class="highlight-span"> elements.
//
// Every pass starts by removing all previously injected spans, so passes are
// idempotent and always computed against the plain text of the container.
package render

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/renderinc/report-highlights/internal/anchor"
	"github.com/renderinc/report-highlights/internal/highlight"
)

const (
	ClassName = "highlight-span"
	AttrID    = "data-highlight-id"
	AttrGroup = "data-group-id"
	AttrColor = "data-color"
)

// ErrStaleRender is returned by Apply when a newer pass has been triggered.
var ErrStaleRender = errors.New("stale render pass")

// Stats summarizes one pass.
type Stats struct {
	Rendered  int `json:"rendered"`
	Skipped   int `json:"skipped"`
	Relocated int `json:"relocated"`
	Spans     int `json:"spans"`
}

type options struct {
	quoteFallback bool
}

// Option configures a pass.
type Option func(*options)

// WithQuoteFallback makes a pass compare the located text with the stored
// quote. On mismatch the occurrence of the quote nearest to the stored offset
// is highlighted instead; without any occurrence the stored offsets are kept.
func WithQuoteFallback(on bool) Option {
	return func(o *options) { o.quoteFallback = on }
}

// Pass re-renders recs into container. Records whose offsets fall outside the
// current text are skipped.
func Pass(container *html.Node, recs []highlight.Record, opts ...Option) Stats {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	Unwrap(container)

	sorted := make([]highlight.Record, len(recs))
	copy(sorted, recs)
	highlight.Sort(sorted)

	var st Stats
	for _, rec := range sorted {
		r, ok := anchor.Locate(rec.StartAbs, rec.EndAbs, container)
		if !ok || r.Collapsed() {
			st.Skipped++
			continue
		}

		if o.quoteFallback && rec.Quote != "" && strings.TrimSpace(r.String()) != rec.Quote {
			if start, end, found := anchor.Nearest(container, rec.Quote, rec.StartAbs); found {
				if moved, ok := anchor.Locate(start, end, container); ok {
					r = moved
					st.Relocated++
				}
			}
		}

		slices := anchor.Slices(r, container)
		if len(slices) == 0 {
			st.Skipped++
			continue
		}
		for i := len(slices) - 1; i >= 0; i-- {
			wrap(slices[i], rec)
			st.Spans++
		}
		st.Rendered++
	}
	return st
}

// Unwrap removes every highlight span under container and merges the text
// nodes they leave behind. It returns the number of spans removed.
func Unwrap(container *html.Node) int {
	if container == nil {
		return 0
	}

	spans := goquery.NewDocumentFromNode(container).Find("span." + ClassName).Nodes
	for i := len(spans) - 1; i >= 0; i-- {
		span := spans[i]
		parent := span.Parent
		if parent == nil {
			continue
		}
		for c := span.FirstChild; c != nil; c = span.FirstChild {
			span.RemoveChild(c)
			parent.InsertBefore(c, span)
		}
		parent.RemoveChild(span)
		anchor.Normalize(parent)
	}
	return len(spans)
}

func wrap(s anchor.Slice, rec highlight.Record) {
	node := s.Node
	if s.End < anchor.UnitLen(node.Data) {
		anchor.SplitText(node, s.End)
	}
	if s.Start > 0 {
		node = anchor.SplitText(node, s.Start)
	}

	span := newSpan(rec)
	node.Parent.InsertBefore(span, node)
	node.Parent.RemoveChild(node)
	span.AppendChild(node)
}

func newSpan(rec highlight.Record) *html.Node {
	style := fmt.Sprintf("background-color: %s; border-radius: 4px; padding: 0 2px; cursor: pointer;", rec.Color.RGBA())
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Span,
		Data:     "span",
		Attr: []html.Attribute{
			{Key: "class", Val: ClassName},
			{Key: AttrID, Val: strconv.FormatInt(rec.ID, 10)},
			{Key: AttrGroup, Val: strconv.FormatInt(rec.Group(), 10)},
			{Key: AttrColor, Val: string(rec.Color)},
			{Key: "style", Val: style},
		},
	}
}

// GroupAt returns the group of the innermost highlight span containing n.
func GroupAt(n *html.Node) (int64, bool) {
	for ; n != nil; n = n.Parent {
		if !isSpan(n) {
			continue
		}
		for _, a := range n.Attr {
			if a.Key == AttrGroup {
				id, err := strconv.ParseInt(a.Val, 10, 64)
				return id, err == nil
			}
		}
	}
	return 0, false
}

func isSpan(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.Span {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == ClassName {
					return true
				}
			}
		}
	}
	return false
}

// Renderer owns the highlight spans of one container and serializes passes.
//
// A caller first takes a generation with Trigger, loads the records, then
// calls Apply. If another Trigger happened meanwhile, Apply discards the pass
// with ErrStaleRender.
type Renderer struct {
	container *html.Node
	opts      []Option

	mu         sync.Mutex
	generation atomic.Uint64
	last       Stats
}

// New creates a Renderer for container.
func New(container *html.Node, opts ...Option) *Renderer {
	return &Renderer{container: container, opts: opts}
}

// Container returns the rendered root.
func (r *Renderer) Container() *html.Node {
	return r.container
}

// Trigger starts a new render generation and returns it.
func (r *Renderer) Trigger() uint64 {
	return r.generation.Add(1)
}

// Apply runs a pass for generation gen.
func (r *Renderer) Apply(gen uint64, recs []highlight.Record) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.generation.Load() {
		return Stats{}, ErrStaleRender
	}
	r.last = Pass(r.container, recs, r.opts...)
	return r.last, nil
}

// Render triggers and applies a pass in one step.
func (r *Renderer) Render(recs []highlight.Record) (Stats, error) {
	return r.Apply(r.Trigger(), recs)
}

// Clear removes all spans.
func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	Unwrap(r.container)
	r.last = Stats{}
}

// Last returns the stats of the latest applied pass.
func (r *Renderer) Last() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// GroupAt resolves a node inside the container to its highlight group.
func (r *Renderer) GroupAt(n *html.Node) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for p := n; p != nil; p = p.Parent {
		if p == r.container {
			return GroupAt(n)
		}
	}
	return 0, false
}
