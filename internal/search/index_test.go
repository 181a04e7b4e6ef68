package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/report-highlights/internal/highlight"
)

type records []highlight.Record

func (r records) All(context.Context) ([]highlight.Record, error) {
	return r, nil
}

func newIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func ids(results []*Result) []int64 {
	out := make([]int64, 0, len(results))
	for _, r := range results {
		out = append(out, r.ID)
	}
	return out
}

var sample = records{
	{ID: 1, GroupID: 1, URLKey: "/a", Color: highlight.Yellow, StartAbs: 0, EndAbs: 21, Quote: "Hello brave new world"},
	{ID: 2, GroupID: 7, URLKey: "/a", Color: highlight.Blue, StartAbs: 30, EndAbs: 63, Quote: "The annual report covers every region"},
	{ID: 3, GroupID: 3, URLKey: "/b", Color: highlight.Pink, StartAbs: 4, EndAbs: 20, Quote: "Offices in several regions"},
}

func TestSearch(t *testing.T) {
	t.Parallel()

	idx := newIndex(t)
	for _, rec := range sample {
		require.NoError(t, idx.IndexRecord(rec))
	}

	got, err := idx.Search("brave", "", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "/a", got[0].URLKey)
	assert.Equal(t, "yellow", got[0].Color)
	assert.Equal(t, "Hello brave new world", got[0].Quote)
	require.NotEmpty(t, got[0].Fragments["Quote"])
	assert.Contains(t, got[0].Fragments["Quote"][0], "<mark>brave</mark>")

	got, err = idx.Search("region", "", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3}, ids(got))

	got, err = idx.Search("region", "/a", 0)
	require.NoError(t, err)
	require.Equal(t, []int64{2}, ids(got))
	assert.Equal(t, int64(7), got[0].GroupID)

	require.NoError(t, idx.DeleteRecord(2))
	got, err = idx.Search("region", "/a", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = idx.Search("  ", "", 0)
	assert.ErrorIs(t, err, highlight.ErrInvalid)
}

func TestIndexRecordWithoutQuoteRemovesIt(t *testing.T) {
	t.Parallel()

	idx := newIndex(t)
	require.NoError(t, idx.IndexRecord(sample[0]))

	blank := sample[0]
	blank.Quote = " "
	require.NoError(t, idx.IndexRecord(blank))

	n, err := idx.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRebuild(t *testing.T) {
	t.Parallel()

	idx := newIndex(t)
	require.NoError(t, idx.IndexRecord(highlight.Record{ID: 99, URLKey: "/gone", Color: highlight.Green, StartAbs: 0, EndAbs: 4, Quote: "gone"}))

	src := append(records{}, sample...)
	src = append(src, highlight.Record{ID: 4, URLKey: "/b", Color: highlight.Green, StartAbs: 0, EndAbs: 3})

	n, err := idx.Rebuild(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	got, err := idx.Search("gone", "", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenPersistsIndex(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/quotes.bleve"
	idx, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, idx.IndexRecord(sample[1]))
	require.NoError(t, idx.Close())

	idx, err = Open(path)
	require.NoError(t, err)
	defer idx.Close()

	got, err := idx.Search("annual", "", 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(got))
}
