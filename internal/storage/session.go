package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/renderinc/report-highlights/internal/highlight"
)

// SessionIDBase is the first id handed out by a SessionStore. It keeps
// session ids apart from SQLite row ids.
const SessionIDBase int64 = 1 << 40

// SessionStore keeps highlights in memory, optionally mirrored to a JSON file.
// It backs highlights while the database is unavailable.
type SessionStore struct {
	mu      sync.RWMutex
	records []highlight.Record
	nextID  int64
	path    string
}

var _ highlight.Store = (*SessionStore)(nil)

// NewSessionStore creates a session store. When path is not empty, records
// are loaded from it and written back after every change.
func NewSessionStore(path string) (*SessionStore, error) {
	s := &SessionStore{nextID: SessionIDBase, path: path}
	if path == "" {
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the JSON file. Entries that cannot be coerced into records are
// logged and skipped.
func (s *SessionStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session file: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("decode session file %s: invalid json", s.path)
	}

	gjson.GetBytes(data, "highlights").ForEach(func(_, value gjson.Result) bool {
		rec, err := highlight.Coerce(value)
		if err != nil {
			log.Warn().Err(err).Str("path", s.path).Msg("skipping malformed session highlight")
			return true
		}
		s.records = append(s.records, rec)
		if rec.ID >= s.nextID {
			s.nextID = rec.ID + 1
		}
		return true
	})
	return nil
}

// save must be called with s.mu held.
func (s *SessionStore) save() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.Marshal(struct {
		Highlights []highlight.Record `json:"highlights"`
	}{Highlights: s.records})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Add stores one record.
func (s *SessionStore) Add(ctx context.Context, rec highlight.Record) (highlight.Record, error) {
	out, err := s.AddGroup(ctx, []highlight.Record{rec})
	if err != nil {
		return highlight.Record{}, err
	}
	return out[0], nil
}

// AddGroup stores the fragments of one gesture under one group.
func (s *SessionStore) AddGroup(ctx context.Context, recs []highlight.Record) ([]highlight.Record, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("add highlights: %w: no records", highlight.ErrInvalid)
	}
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("add highlights: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.records)
	group := recs[0].GroupID
	out := make([]highlight.Record, 0, len(recs))
	for _, rec := range recs {
		rec.ID = s.nextID
		s.nextID++
		if group <= 0 {
			group = rec.ID
		}
		rec.GroupID = group
		s.records = append(s.records, rec)
		out = append(out, rec)
	}

	if err := s.save(); err != nil {
		s.records = s.records[:before]
		return nil, fmt.Errorf("add highlights: %w", err)
	}
	return out, nil
}

// Get returns one record.
func (s *SessionStore) Get(_ context.Context, id int64) (highlight.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return highlight.Record{}, fmt.Errorf("get highlight %d: %w", id, highlight.ErrNotFound)
}

// ByURLKey lists the records of one page, oldest first.
func (s *SessionStore) ByURLKey(_ context.Context, urlKey string) ([]highlight.Record, error) {
	return s.filter(func(r highlight.Record) bool { return r.URLKey == urlKey }), nil
}

// ByGroup lists the fragments of one group.
func (s *SessionStore) ByGroup(_ context.Context, groupID int64) ([]highlight.Record, error) {
	return s.filter(func(r highlight.Record) bool { return r.Group() == groupID }), nil
}

// All lists every record, oldest first.
func (s *SessionStore) All(_ context.Context) ([]highlight.Record, error) {
	return s.filter(func(highlight.Record) bool { return true }), nil
}

func (s *SessionStore) filter(keep func(highlight.Record) bool) []highlight.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []highlight.Record
	for _, rec := range s.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	highlight.SortByCreated(out)
	return out
}

// Delete removes one record.
func (s *SessionStore) Delete(_ context.Context, id int64) error {
	n, err := s.remove(func(r highlight.Record) bool { return r.ID == id })
	if err != nil {
		return fmt.Errorf("delete highlight %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete highlight %d: %w", id, highlight.ErrNotFound)
	}
	return nil
}

// DeleteGroup removes every fragment of a group.
func (s *SessionStore) DeleteGroup(_ context.Context, groupID int64) (int, error) {
	n, err := s.remove(func(r highlight.Record) bool { return r.Group() == groupID })
	if err != nil {
		return 0, fmt.Errorf("delete group %d: %w", groupID, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("delete group %d: %w", groupID, highlight.ErrNotFound)
	}
	return n, nil
}

// remove drops matching records. The slice is only swapped once the file is
// written, so a failed save leaves the group intact.
func (s *SessionStore) remove(match func(highlight.Record) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]highlight.Record, 0, len(s.records))
	for _, rec := range s.records {
		if !match(rec) {
			kept = append(kept, rec)
		}
	}
	n := len(s.records) - len(kept)
	if n == 0 {
		return 0, nil
	}

	prev := s.records
	s.records = kept
	if err := s.save(); err != nil {
		s.records = prev
		return 0, err
	}
	return n, nil
}

// Len returns the number of stored records.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close flushes the store to disk.
func (s *SessionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}
