// Package verify re-anchors stored highlights against the current version of
// their pages and reports the ones that no longer fit.
package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/renderinc/report-highlights/internal/anchor"
	"github.com/renderinc/report-highlights/internal/highlight"
	"github.com/renderinc/report-highlights/internal/pages"
)

// DefaultConcurrency is the number of pages checked at once.
const DefaultConcurrency = 5

// Store lists the stored highlights per page
type Store interface {
	URLKeys(ctx context.Context) ([]string, error)
	ByURLKey(ctx context.Context, urlKey string) ([]highlight.Record, error)
}

// Kind classifies a highlight that does not anchor cleanly.
type Kind string

const (
	// Stale highlights point past the end of the page text.
	Stale Kind = "stale"
	// Drifted highlights anchor, but the text at their offsets is no longer
	// the quote. Moved is set when the quote occurs elsewhere on the page.
	Drifted Kind = "drifted"
)

// Issue is one highlight that needs attention
type Issue struct {
	ID       int64  `json:"id"`
	GroupID  int64  `json:"groupId"`
	URLKey   string `json:"urlKey"`
	Kind     Kind   `json:"kind"`
	Quote    string `json:"quote"`
	Found    string `json:"found,omitempty"`
	MovedTo  int    `json:"movedTo,omitempty"`
	Moved    bool   `json:"moved"`
	StartAbs int    `json:"startAbs"`
	EndAbs   int    `json:"endAbs"`
}

// Stats holds verification statistics
type Stats struct {
	Pages    int
	Records  int
	Anchored int
	Drifted  int
	Stale    int
	Errors   int
	Issues   []Issue
	Duration time.Duration
}

// Worker checks stored highlights against their pages
type Worker struct {
	store       Store
	source      pages.Source
	selector    string
	concurrency int
}

// NewWorker creates a new verify worker
func NewWorker(store Store, source pages.Source, selector string, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Worker{
		store:       store,
		source:      source,
		selector:    selector,
		concurrency: concurrency,
	}
}

// Run checks every page that has highlights. Failures of single pages are
// counted and logged; only a failure to list the pages is returned.
func (w *Worker) Run(ctx context.Context) (*Stats, error) {
	startTime := time.Now()
	stats := &Stats{}

	keys, err := w.store.URLKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	log.Info().Int("pages", len(keys)).Msg("verifying highlights")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for _, key := range keys {
		g.Go(func() error {
			if err := w.checkPage(gctx, key, stats, &mu); err != nil {
				log.Warn().Err(err).Str("url_key", key).Msg("failed to verify page")
				mu.Lock()
				stats.Errors++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(stats.Issues, func(i, j int) bool {
		a, b := stats.Issues[i], stats.Issues[j]
		if a.URLKey != b.URLKey {
			return a.URLKey < b.URLKey
		}
		return a.ID < b.ID
	})

	stats.Duration = time.Since(startTime)
	log.Info().
		Int("pages", stats.Pages).
		Int("records", stats.Records).
		Int("anchored", stats.Anchored).
		Int("drifted", stats.Drifted).
		Int("stale", stats.Stale).
		Int("errors", stats.Errors).
		Dur("duration", stats.Duration).
		Msg("verification complete")

	return stats, nil
}

// checkPage verifies the highlights of a single page
func (w *Worker) checkPage(ctx context.Context, key string, stats *Stats, mu *sync.Mutex) error {
	recs, err := w.store.ByURLKey(ctx, key)
	if err != nil {
		return fmt.Errorf("list highlights: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}

	_, container, err := pages.Load(ctx, w.source, key, w.selector)
	if err != nil {
		return err
	}

	issues, anchored := Check(container, recs)

	mu.Lock()
	defer mu.Unlock()
	stats.Pages++
	stats.Records += len(recs)
	stats.Anchored += anchored
	for _, is := range issues {
		switch is.Kind {
		case Stale:
			stats.Stale++
		case Drifted:
			stats.Drifted++
		}
	}
	stats.Issues = append(stats.Issues, issues...)
	return nil
}

// Check anchors recs in container and returns the ones that do not fit,
// along with the number that do.
func Check(container *html.Node, recs []highlight.Record) ([]Issue, int) {
	var (
		issues   []Issue
		anchored int
	)
	for _, rec := range recs {
		is := Issue{
			ID:       rec.ID,
			GroupID:  rec.Group(),
			URLKey:   rec.URLKey,
			Quote:    rec.Quote,
			StartAbs: rec.StartAbs,
			EndAbs:   rec.EndAbs,
		}

		r, ok := anchor.Locate(rec.StartAbs, rec.EndAbs, container)
		if !ok || r.Collapsed() {
			is.Kind = Stale
			if start, _, found := anchor.Nearest(container, rec.Quote, rec.StartAbs); rec.Quote != "" && found {
				is.Moved, is.MovedTo = true, start
			}
			issues = append(issues, is)
			continue
		}

		found := strings.TrimSpace(r.String())
		if rec.Quote == "" || found == rec.Quote {
			anchored++
			continue
		}

		is.Kind = Drifted
		is.Found = found
		if start, _, ok := anchor.Nearest(container, rec.Quote, rec.StartAbs); ok {
			is.Moved, is.MovedTo = true, start
		}
		issues = append(issues, is)
	}
	return issues, anchored
}
