// Package toolbar drives the floating highlight toolbar of one page
// container.
//
// A Controller consumes pointer, keyboard and action events on a single
// goroutine and keeps two mutually exclusive states: a text selection that
// can be highlighted, copied or shared, and an inspected highlight group that
// can be removed.
package toolbar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/renderinc/report-highlights/internal/anchor"
	"github.com/renderinc/report-highlights/internal/highlight"
	"github.com/renderinc/report-highlights/internal/render"
	"github.com/renderinc/report-highlights/internal/share"
)

// DefaultDebounce is the delay between a mouseup and the selection check.
const DefaultDebounce = 50 * time.Millisecond

var (
	// ErrNoSelection is returned for actions that need a selection or an
	// inspected highlight when there is none.
	ErrNoSelection = errors.New("nothing selected")
	// ErrUnknownAction is returned for unsupported action kinds.
	ErrUnknownAction = errors.New("unknown action")
)

// State is the visible state of the toolbar.
type State int

const (
	Idle State = iota
	Selecting
	Inspecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Inspecting:
		return "inspecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Highlights is the part of highlight.Service the toolbar uses.
type Highlights interface {
	Create(ctx context.Context, req highlight.Request) (highlight.Result, error)
	List(ctx context.Context, rawURL string) ([]highlight.Record, error)
	RemoveGroup(ctx context.Context, groupID int64) (int, error)
}

// Event is an input to Run.
type Event interface {
	event()
}

// MouseUp reports the end of a pointer gesture with the selection it left.
type MouseUp struct {
	Range anchor.Range
}

// PointerDown reports the start of a pointer gesture on Target.
type PointerDown struct {
	Target *html.Node
}

// Click reports a click on Target.
type Click struct {
	Target *html.Node
}

// KeyUp reports a released key and the selection at that moment.
type KeyUp struct {
	Key   string
	Ctrl  bool
	Meta  bool
	Range anchor.Range
}

// ActionKind names a toolbar button.
type ActionKind string

const (
	ActionHighlight ActionKind = "highlight"
	ActionCopy      ActionKind = "copy"
	ActionShare     ActionKind = "share"
	ActionRemove    ActionKind = "remove"
	ActionDismiss   ActionKind = "dismiss"
)

// Action is a toolbar button press. The outcome is sent on Done when it is
// not nil.
type Action struct {
	Kind  ActionKind
	Color highlight.Color
	Done  chan<- error
}

func (MouseUp) event()     {}
func (PointerDown) event() {}
func (Click) event()       {}
func (KeyUp) event()       {}
func (Action) event()      {}

// View is a snapshot of what the toolbar shows.
type View struct {
	State     State            `json:"state"`
	Text      string           `json:"text,omitempty"`
	Selection anchor.Selection `json:"selection"`
	GroupID   int64            `json:"groupId,omitempty"`
	// Hash is the id of the heading nearest to the selection.
	Hash     string      `json:"hash,omitempty"`
	Links    share.Links `json:"links"`
	Rendered int         `json:"rendered"`
	Degraded bool        `json:"degraded"`
}

// Config holds the page-level settings of a Controller.
type Config struct {
	URL       string
	Title     string
	Hashtag   string
	Separator string
	Debounce  time.Duration
	Clipboard share.Clipboard
	Sharer    share.Sharer
	OnChange  func(View)
}

// Controller is the toolbar of one container.
type Controller struct {
	svc      Highlights
	renderer *render.Renderer
	cfg      Config

	mu   sync.Mutex
	view View

	// Owned by the Run goroutine.
	suppress bool
}

// New creates a Controller for the page at cfg.URL rendered by r.
func New(svc Highlights, r *render.Renderer, cfg Config) *Controller {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Controller{svc: svc, renderer: r, cfg: cfg}
}

// View returns the current snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Run restores stored highlights into the container, then handles events
// until ctx is done or events is closed. The debounce timer is released on
// return.
func (c *Controller) Run(ctx context.Context, events <-chan Event) error {
	c.refresh(ctx)

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending anchor.Range
	)
	stop := func() {
		if timer != nil {
			timer.Stop()
		}
		fire = nil
	}
	defer stop()

	schedule := func(r anchor.Range) {
		stop()
		pending = r
		timer = time.NewTimer(c.cfg.Debounce)
		fire = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-fire:
			fire = nil
			if c.suppress {
				c.suppress = false
				continue
			}
			c.evaluate(pending)

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case MouseUp:
				if c.suppress {
					c.suppress = false
					continue
				}
				schedule(ev.Range)
			case PointerDown:
				if _, ok := c.renderer.GroupAt(ev.Target); ok {
					c.suppress = true
				}
			case Click:
				if c.inspect(ev.Target) {
					stop()
				}
			case KeyUp:
				switch {
				case ev.Key == "Escape":
					stop()
					c.reset()
				case strings.EqualFold(ev.Key, "a") && (ev.Ctrl || ev.Meta):
					schedule(ev.Range)
				}
			case Action:
				err := c.act(ctx, ev)
				if ev.Done != nil {
					select {
					case ev.Done <- err:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
		}
	}
}

// evaluate shows the selection toolbar for r, or hides the toolbar when r
// is not a usable selection inside the container.
func (c *Controller) evaluate(r anchor.Range) {
	sel, ok := anchor.Capture(r, c.renderer.Container())
	if !ok {
		c.reset()
		return
	}

	c.update(func(v *View) {
		v.State = Selecting
		v.Text = sel.Quote
		v.Selection = sel
		v.GroupID = 0
		v.Hash = anchor.NearestHeadingID(r, c.renderer.Container())
		v.Links = share.LinksFor(sel.Quote, c.cfg.URL, c.cfg.Hashtag, c.cfg.Separator)
	})
}

// inspect switches to the remove toolbar when target is inside a highlight.
func (c *Controller) inspect(target *html.Node) bool {
	group, ok := c.renderer.GroupAt(target)
	if !ok {
		return false
	}

	text := strings.TrimSpace(goquery.NewDocumentFromNode(spanOf(target)).Text())
	c.update(func(v *View) {
		v.State = Inspecting
		v.Text = text
		v.Selection = anchor.Selection{}
		v.GroupID = group
		v.Hash = ""
		v.Links = share.LinksFor(text, c.cfg.URL, c.cfg.Hashtag, c.cfg.Separator)
	})
	return true
}

func (c *Controller) act(ctx context.Context, a Action) error {
	v := c.View()

	switch a.Kind {
	case ActionDismiss:
		c.reset()
		return nil

	case ActionHighlight:
		if v.State != Selecting {
			return ErrNoSelection
		}
		color := a.Color
		if color == "" {
			color = highlight.DefaultColor
		}
		res, err := c.svc.Create(ctx, highlight.Request{
			URL:   c.cfg.URL,
			Color: color,
			Fragments: []highlight.Fragment{{
				StartAbs: v.Selection.StartAbs,
				EndAbs:   v.Selection.EndAbs,
				Quote:    v.Selection.Quote,
			}},
			Text: c.textBetween,
		})
		if err != nil {
			return err
		}
		c.update(func(v *View) { v.Degraded = res.Degraded })
		c.refresh(ctx)
		c.reset()
		return nil

	case ActionRemove:
		if v.State != Inspecting {
			return ErrNoSelection
		}
		_, err := c.svc.RemoveGroup(ctx, v.GroupID)
		c.refresh(ctx)
		if err != nil {
			return err
		}
		c.reset()
		return nil

	case ActionCopy:
		if v.State == Idle || v.Text == "" {
			return ErrNoSelection
		}
		err := share.Copy(c.cfg.Clipboard, v.Text)
		c.reset()
		return err

	case ActionShare:
		if v.State == Idle || v.Text == "" {
			return ErrNoSelection
		}
		err := share.ShareOrCopy(ctx, c.cfg.Sharer, c.cfg.Clipboard, share.Payload{
			Title: c.cfg.Title,
			Text:  v.Text,
			URL:   c.cfg.URL,
		})
		c.reset()
		return err

	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
	}
}

// refresh reloads the page's highlights and re-renders them. A newer refresh
// started meanwhile wins.
func (c *Controller) refresh(ctx context.Context) {
	gen := c.renderer.Trigger()

	recs, err := c.svc.List(ctx, c.cfg.URL)
	if err != nil {
		log.Error().Err(err).Str("url", c.cfg.URL).Msg("failed to load highlights")
		return
	}

	st, err := c.renderer.Apply(gen, recs)
	if errors.Is(err, render.ErrStaleRender) {
		return
	}
	if st.Skipped > 0 {
		log.Debug().Int("skipped", st.Skipped).Str("url", c.cfg.URL).Msg("highlights no longer match the page")
	}
	c.update(func(v *View) { v.Rendered = st.Rendered })
}

func (c *Controller) textBetween(start, end int) string {
	r, ok := anchor.Locate(start, end, c.renderer.Container())
	if !ok {
		return ""
	}
	return strings.TrimSpace(r.String())
}

func (c *Controller) reset() {
	c.suppress = false
	c.update(func(v *View) {
		v.State = Idle
		v.Text = ""
		v.Selection = anchor.Selection{}
		v.GroupID = 0
		v.Links = share.Links{}
	})
}

// update applies fn to the view and reports the new view when it changed.
func (c *Controller) update(fn func(*View)) {
	c.mu.Lock()
	before := c.view
	fn(&c.view)
	after := c.view
	c.mu.Unlock()

	if after != before && c.cfg.OnChange != nil {
		c.cfg.OnChange(after)
	}
}

// spanOf returns the innermost highlight span holding n.
func spanOf(n *html.Node) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		for _, a := range p.Attr {
			if a.Key == render.AttrGroup {
				return p
			}
		}
	}
	return n
}
