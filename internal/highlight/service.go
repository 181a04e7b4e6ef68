package highlight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Mode selects how a new highlight treats existing ones it overlaps.
type Mode string

const (
	// ModeStack keeps every highlight and lets the renderer nest them.
	ModeStack Mode = "stack"
	// ModeSplit splits highlights that contain the new one and removes those it covers.
	ModeSplit Mode = "split"
)

// ParseMode accepts "stack" or "split"; empty means stack.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStack:
		return ModeStack, nil
	case ModeSplit:
		return ModeSplit, nil
	default:
		return "", fmt.Errorf("%w: unknown overlap mode %q", ErrInvalid, s)
	}
}

// Fragment is one piece of a selection, as captured from the page.
type Fragment struct {
	StartAbs int    `json:"startAbs"`
	EndAbs   int    `json:"endAbs"`
	Quote    string `json:"quote"`
}

// Request describes a highlight gesture.
type Request struct {
	URL       string
	Color     Color
	Fragments []Fragment
	// Text returns the visible page text between two offsets. It is optional
	// and only used to quote the remainders of split highlights.
	Text func(start, end int) string
}

// Result reports what a Create call stored.
type Result struct {
	Records []Record `json:"records"`
	Removed []int64  `json:"removed,omitempty"`
	// Degraded is set when the primary store was unavailable and the records
	// only live in the session store.
	Degraded bool `json:"degraded"`
}

// Service coordinates the primary store, the session fallback store and the
// quote index.
type Service struct {
	primary Store
	session Store
	indexer Indexer
	mode    Mode
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSession sets the store used when the primary store is unavailable.
func WithSession(s Store) Option {
	return func(svc *Service) { svc.session = s }
}

// WithIndexer mirrors created and removed records into a search index.
func WithIndexer(idx Indexer) Option {
	return func(svc *Service) { svc.indexer = idx }
}

// WithMode sets the overlap policy.
func WithMode(m Mode) Option {
	return func(svc *Service) { svc.mode = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// NewService creates a Service over the primary store.
func NewService(primary Store, opts ...Option) *Service {
	svc := &Service{
		primary: primary,
		mode:    ModeStack,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Mode returns the overlap policy in use.
func (s *Service) Mode() Mode {
	return s.mode
}

// Create stores the fragments of one gesture as a single group.
func (s *Service) Create(ctx context.Context, req Request) (Result, error) {
	key, err := URLKey(req.URL)
	if err != nil {
		return Result{}, err
	}
	if !req.Color.Valid() {
		return Result{}, fmt.Errorf("%w: unknown color %q", ErrInvalid, req.Color)
	}
	if len(req.Fragments) == 0 {
		return Result{}, fmt.Errorf("%w: no fragments", ErrInvalid)
	}

	created := s.now().UnixMilli()
	recs := make([]Record, 0, len(req.Fragments))
	for _, f := range req.Fragments {
		quote := strings.TrimSpace(f.Quote)
		if quote == "" {
			return Result{}, fmt.Errorf("%w: empty quote", ErrInvalid)
		}
		rec := Record{
			URLKey:    key,
			Color:     req.Color,
			StartAbs:  f.StartAbs,
			EndAbs:    f.EndAbs,
			CreatedAt: created,
			Quote:     quote,
		}
		if err := rec.Validate(); err != nil {
			return Result{}, err
		}
		recs = append(recs, rec)
	}

	var res Result
	if s.mode == ModeSplit {
		removed, err := s.split(ctx, key, recs, req.Text)
		if err != nil {
			return Result{}, err
		}
		res.Removed = removed
	}

	added, err := s.primary.AddGroup(ctx, recs)
	if errors.Is(err, ErrUnavailable) && s.session != nil {
		log.Warn().Err(err).Str("url_key", key).Msg("primary store unavailable, keeping highlight for this session")
		added, err = s.session.AddGroup(ctx, recs)
		res.Degraded = true
	}
	if err != nil {
		return Result{}, fmt.Errorf("create highlight: %w", err)
	}

	res.Records = added
	s.index(added...)
	return res, nil
}

// split applies ModeSplit in every store that holds records for the page.
func (s *Service) split(ctx context.Context, key string, recs []Record, text func(start, end int) string) ([]int64, error) {
	var removed []int64
	for _, store := range s.stores() {
		for _, rec := range recs {
			existing, err := store.ByURLKey(ctx, key)
			if errors.Is(err, ErrUnavailable) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("split highlights: %w", err)
			}

			remove, add := SplitAround(existing, rec.StartAbs, rec.EndAbs)
			if len(remove) == 0 {
				continue
			}
			if text != nil {
				for i := range add {
					add[i].Quote = strings.TrimSpace(text(add[i].StartAbs, add[i].EndAbs))
				}
			}

			ids := make([]int64, len(remove))
			for i, r := range remove {
				ids[i] = r.ID
			}
			added, err := replace(ctx, store, ids, add)
			if err != nil {
				return nil, fmt.Errorf("split highlights: %w", err)
			}

			removed = append(removed, ids...)
			s.unindex(ids...)
			s.index(added...)
		}
	}
	return removed, nil
}

func replace(ctx context.Context, store Store, remove []int64, add []Record) ([]Record, error) {
	if r, ok := store.(Replacer); ok {
		return r.Replace(ctx, remove, add)
	}

	for _, id := range remove {
		if err := store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	added := make([]Record, 0, len(add))
	for _, rec := range add {
		a, err := store.Add(ctx, rec)
		if err != nil {
			return nil, err
		}
		added = append(added, a)
	}
	return added, nil
}

// List returns every highlight for a page, oldest first. When the primary
// store fails the session records are still returned.
func (s *Service) List(ctx context.Context, rawURL string) ([]Record, error) {
	key, err := URLKey(rawURL)
	if err != nil {
		return nil, err
	}
	return s.ListKey(ctx, key)
}

// ListKey is List for an already normalized key.
func (s *Service) ListKey(ctx context.Context, key string) ([]Record, error) {
	var out []Record

	recs, err := s.primary.ByURLKey(ctx, key)
	if err != nil {
		if s.session == nil {
			return nil, fmt.Errorf("list highlights: %w", err)
		}
		log.Warn().Err(err).Str("url_key", key).Msg("primary store failed, listing session highlights only")
	}
	out = append(out, recs...)

	if s.session != nil {
		recs, err := s.session.ByURLKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("list session highlights: %w", err)
		}
		out = append(out, recs...)
	}

	SortByCreated(out)
	return out, nil
}

// Get returns one record from either store.
func (s *Service) Get(ctx context.Context, id int64) (Record, error) {
	var lastErr error
	for _, store := range s.stores() {
		rec, err := store.Get(ctx, id)
		if err == nil {
			return rec, nil
		}
		lastErr = err
	}
	return Record{}, fmt.Errorf("get highlight %d: %w", id, lastErr)
}

// Remove deletes a single fragment.
func (s *Service) Remove(ctx context.Context, id int64) error {
	var lastErr error
	for _, store := range s.stores() {
		err := store.Delete(ctx, id)
		if err == nil {
			s.unindex(id)
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("remove highlight %d: %w", id, lastErr)
}

// RemoveGroup deletes every fragment of a group and checks that none is left.
func (s *Service) RemoveGroup(ctx context.Context, groupID int64) (int, error) {
	total := 0
	var unavailable error
	for _, store := range s.stores() {
		members, err := store.ByGroup(ctx, groupID)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				unavailable = err
				continue
			}
			return total, fmt.Errorf("remove group %d: %w", groupID, err)
		}
		if len(members) == 0 {
			continue
		}

		n, err := store.DeleteGroup(ctx, groupID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return total, fmt.Errorf("remove group %d: %w", groupID, err)
		}
		total += n

		left, err := store.ByGroup(ctx, groupID)
		if err != nil {
			return total, fmt.Errorf("verify group %d removal: %w", groupID, err)
		}
		if len(left) > 0 {
			return total, fmt.Errorf("%w: group %d has %d fragments left", ErrGroupPartial, groupID, len(left))
		}

		ids := make([]int64, len(members))
		for i, m := range members {
			ids[i] = m.ID
		}
		s.unindex(ids...)
	}

	if total == 0 {
		if unavailable != nil {
			return 0, fmt.Errorf("remove group %d: %w", groupID, unavailable)
		}
		return 0, fmt.Errorf("remove group %d: %w", groupID, ErrNotFound)
	}
	return total, nil
}

func (s *Service) stores() []Store {
	if s.session == nil {
		return []Store{s.primary}
	}
	return []Store{s.primary, s.session}
}

func (s *Service) index(recs ...Record) {
	if s.indexer == nil {
		return
	}
	for _, rec := range recs {
		if err := s.indexer.IndexRecord(rec); err != nil {
			log.Warn().Err(err).Int64("id", rec.ID).Msg("failed to index highlight")
		}
	}
}

func (s *Service) unindex(ids ...int64) {
	if s.indexer == nil {
		return
	}
	for _, id := range ids {
		if err := s.indexer.DeleteRecord(id); err != nil {
			log.Warn().Err(err).Int64("id", id).Msg("failed to remove highlight from index")
		}
	}
}
