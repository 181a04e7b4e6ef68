// Package highlight defines highlight records, the store contract and the
// service that creates, lists and removes highlights for a page.
package highlight

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalid is returned for records or requests that break the record invariants.
	ErrInvalid = errors.New("invalid highlight")
	// ErrNotFound is returned when a record or group does not exist.
	ErrNotFound = errors.New("highlight not found")
	// ErrUnavailable is returned when the backing store cannot be used at all
	// (full, read-only, locked or impossible to open).
	ErrUnavailable = errors.New("highlight store unavailable")
	// ErrGroupPartial is returned when fragments of a group survive a group removal.
	ErrGroupPartial = errors.New("highlight group partially removed")
)

// Record is one stored highlight fragment.
type Record struct {
	ID        int64  `json:"id"`
	GroupID   int64  `json:"groupId"`
	URLKey    string `json:"urlKey"`
	Color     Color  `json:"color"`
	StartAbs  int    `json:"startAbs"`
	EndAbs    int    `json:"endAbs"`
	CreatedAt int64  `json:"createdAt"`
	Quote     string `json:"quote"`
}

// Group returns the record's group, which is its own id when ungrouped.
func (r Record) Group() int64 {
	if r.GroupID != 0 {
		return r.GroupID
	}
	return r.ID
}

// Len returns the length of the highlighted range.
func (r Record) Len() int {
	return r.EndAbs - r.StartAbs
}

// Validate checks the fields a record needs before it is stored.
func (r Record) Validate() error {
	switch {
	case strings.TrimSpace(r.URLKey) == "":
		return fmt.Errorf("%w: empty url key", ErrInvalid)
	case !r.Color.Valid():
		return fmt.Errorf("%w: unknown color %q", ErrInvalid, r.Color)
	case r.StartAbs < 0:
		return fmt.Errorf("%w: negative start offset %d", ErrInvalid, r.StartAbs)
	case r.EndAbs <= r.StartAbs:
		return fmt.Errorf("%w: empty range %d..%d", ErrInvalid, r.StartAbs, r.EndAbs)
	}
	return nil
}

// Sort orders records by start ascending, then end descending, so a record
// that contains another comes first. Ties are broken by id.
func Sort(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.StartAbs != b.StartAbs {
			return a.StartAbs < b.StartAbs
		}
		if a.EndAbs != b.EndAbs {
			return a.EndAbs > b.EndAbs
		}
		return a.ID < b.ID
	})
}

// SortByCreated orders records by creation time, then id.
func SortByCreated(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].CreatedAt != recs[j].CreatedAt {
			return recs[i].CreatedAt < recs[j].CreatedAt
		}
		return recs[i].ID < recs[j].ID
	})
}

// Overlaps reports whether the half-open ranges [aStart, aEnd) and
// [bStart, bEnd) share at least one position.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}
