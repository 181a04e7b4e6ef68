package highlight

import (
	"context"
	"errors"
	"fmt"
)

// Store persists highlight records.
//
// Add assigns the id and defaults the group to it when GroupID is zero.
// AddGroup stores fragments of one gesture together: when the first fragment
// has no group, every fragment joins the first fragment's id. DeleteGroup
// removes all fragments of a group in one step and reports how many went.
// Delete and DeleteGroup return ErrNotFound when nothing matched.
type Store interface {
	Add(ctx context.Context, rec Record) (Record, error)
	AddGroup(ctx context.Context, recs []Record) ([]Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	ByURLKey(ctx context.Context, urlKey string) ([]Record, error)
	ByGroup(ctx context.Context, groupID int64) ([]Record, error)
	Delete(ctx context.Context, id int64) error
	DeleteGroup(ctx context.Context, groupID int64) (int, error)
	Close() error
}

// Replacer is implemented by stores that can delete and insert records in a
// single transaction.
type Replacer interface {
	Replace(ctx context.Context, remove []int64, add []Record) ([]Record, error)
}

// Indexer receives records as they are created and removed.
type Indexer interface {
	IndexRecord(rec Record) error
	DeleteRecord(id int64) error
}

// OfflineStore stands in for a primary store that could not be opened. Every
// call fails with ErrUnavailable, so a Service built on it keeps highlights in
// its session store.
type OfflineStore struct {
	Err error
}

func (o OfflineStore) err() error {
	switch {
	case o.Err == nil:
		return ErrUnavailable
	case errors.Is(o.Err, ErrUnavailable):
		return o.Err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, o.Err)
	}
}

func (o OfflineStore) Add(context.Context, Record) (Record, error) {
	return Record{}, o.err()
}

func (o OfflineStore) AddGroup(context.Context, []Record) ([]Record, error) {
	return nil, o.err()
}

func (o OfflineStore) Get(context.Context, int64) (Record, error) {
	return Record{}, o.err()
}

func (o OfflineStore) ByURLKey(context.Context, string) ([]Record, error) {
	return nil, o.err()
}

func (o OfflineStore) ByGroup(context.Context, int64) ([]Record, error) {
	return nil, o.err()
}

func (o OfflineStore) Delete(context.Context, int64) error {
	return o.err()
}

func (o OfflineStore) DeleteGroup(context.Context, int64) (int, error) {
	return 0, o.err()
}

func (o OfflineStore) Close() error { return nil }
