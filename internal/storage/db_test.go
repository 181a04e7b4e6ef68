package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/report-highlights/internal/highlight"
)

const (
	pageA = "https://reports.example.org/2024/annual"
	pageB = "https://reports.example.org/2024/summary"
)

func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "highlights.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func rec(url string, start, end int, quote string) highlight.Record {
	return highlight.Record{
		URLKey:    url,
		Color:     highlight.Yellow,
		StartAbs:  start,
		EndAbs:    end,
		CreatedAt: 1700000000000,
		Quote:     quote,
	}
}

func TestSchemaVersion(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	v, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestAddDefaultsGroupToID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := openTestDB(t)
	got, err := db.Add(ctx, rec(pageA, 0, 5, "Hello"))
	require.NoError(t, err)
	assert.Positive(t, got.ID)
	assert.Equal(t, got.ID, got.GroupID)

	stored, err := db.Get(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, got, stored)
}

func TestAddGroupSharesFirstID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := openTestDB(t)
	got, err := db.AddGroup(ctx, []highlight.Record{
		rec(pageA, 0, 5, "Hello"),
		rec(pageA, 10, 15, "world"),
		rec(pageA, 20, 24, "from"),
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, r := range got {
		assert.Equal(t, got[0].ID, r.GroupID)
	}

	_, err = db.AddGroup(ctx, nil)
	assert.ErrorIs(t, err, highlight.ErrInvalid)

	_, err = db.Add(ctx, rec(pageA, 5, 5, "x"))
	assert.ErrorIs(t, err, highlight.ErrInvalid)
}

func TestByURLKeyScopesPages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := openTestDB(t)
	_, err := db.Add(ctx, rec(pageA, 0, 5, "Hello"))
	require.NoError(t, err)
	_, err = db.Add(ctx, rec(pageB, 0, 4, "Sums"))
	require.NoError(t, err)

	a, err := db.ByURLKey(ctx, pageA)
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, "Hello", a[0].Quote)

	b, err := db.ByURLKey(ctx, pageB)
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, "Sums", b[0].Quote)

	keys, err := db.URLKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{pageA, pageB}, keys)

	n, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDeleteGroupRemovesAllFragments(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := openTestDB(t)
	group, err := db.AddGroup(ctx, []highlight.Record{
		rec(pageA, 0, 5, "Hello"),
		rec(pageA, 10, 15, "world"),
		rec(pageA, 20, 24, "from"),
	})
	require.NoError(t, err)
	other, err := db.Add(ctx, rec(pageA, 30, 35, "other"))
	require.NoError(t, err)

	n, err := db.DeleteGroup(ctx, group[0].GroupID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	left, err := db.ByGroup(ctx, group[0].GroupID)
	require.NoError(t, err)
	assert.Empty(t, left)

	remaining, err := db.ByURLKey(ctx, pageA)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, other.ID, remaining[0].ID)

	_, err = db.DeleteGroup(ctx, group[0].GroupID)
	assert.ErrorIs(t, err, highlight.ErrNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := openTestDB(t)
	got, err := db.Add(ctx, rec(pageA, 0, 5, "Hello"))
	require.NoError(t, err)

	require.NoError(t, db.Delete(ctx, got.ID))
	assert.ErrorIs(t, db.Delete(ctx, got.ID), highlight.ErrNotFound)

	_, err = db.Get(ctx, got.ID)
	assert.ErrorIs(t, err, highlight.ErrNotFound)
}

func TestReplace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := openTestDB(t)
	outer, err := db.Add(ctx, rec(pageA, 0, 20, "outer"))
	require.NoError(t, err)

	left := rec(pageA, 0, 5, "left")
	left.GroupID = outer.GroupID
	right := rec(pageA, 10, 20, "right")
	right.GroupID = outer.GroupID

	added, err := db.Replace(ctx, []int64{outer.ID}, []highlight.Record{left, right})
	require.NoError(t, err)
	require.Len(t, added, 2)

	recs, err := db.ByGroup(ctx, outer.GroupID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "left", recs[0].Quote)
	assert.Equal(t, "right", recs[1].Quote)
}

func TestMigrationBackfillsGroupIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := openTestDB(t, WithoutMigrations())
	require.NoError(t, db.MigrateTo(ctx, 2))

	v, err := db.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	for i, q := range []string{"alpha", "beta", "gamma"} {
		_, err := db.db.ExecContext(ctx,
			`INSERT INTO highlights (url_key, created_at, color, start_abs, end_abs, quote) VALUES (?, ?, ?, ?, ?, ?)`,
			pageA, 1000+i, "blue", i*10, i*10+5, q)
		require.NoError(t, err)
	}

	require.NoError(t, db.Migrate(ctx))

	v, err = db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	rows, err := db.db.QueryContext(ctx, `SELECT id, group_id FROM highlights`)
	require.NoError(t, err)
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id, group int64
		require.NoError(t, rows.Scan(&id, &group))
		assert.Equal(t, id, group)
		count++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, 3, count)

	recs, err := db.ByURLKey(ctx, pageA)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	n, err := db.DeleteGroup(ctx, recs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMalformedRowsAreDropped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := openTestDB(t)
	inserts := []string{
		`INSERT INTO highlights (url_key, color, start_abs, end_abs, quote) VALUES ('` + pageA + `', 'yellow', NULL, 5, 'no start')`,
		`INSERT INTO highlights (url_key, color, start_abs, end_abs, quote) VALUES ('` + pageA + `', 'yellow', 0, 'abc', 'bad end')`,
		`INSERT INTO highlights (url_key, color, start_abs, end_abs, quote) VALUES ('` + pageA + `', 'yellow', 9, 3, 'reversed')`,
		`INSERT INTO highlights (url_key, color, start_abs, end_abs, quote) VALUES ('` + pageA + `', 'purple', 0, 5, 'odd color')`,
	}
	for _, q := range inserts {
		_, err := db.db.ExecContext(ctx, q)
		require.NoError(t, err)
	}

	recs, err := db.ByURLKey(ctx, pageA)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "odd color", recs[0].Quote)
	assert.Equal(t, highlight.DefaultColor, recs[0].Color)
	// group_id was never written, so the row is its own group.
	assert.Equal(t, recs[0].ID, recs[0].GroupID)

	byGroup, err := db.ByGroup(ctx, recs[0].ID)
	require.NoError(t, err)
	assert.Len(t, byGroup, 1)
}

func TestClosedDatabaseIsUnavailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := openTestDB(t)
	require.NoError(t, db.Close())

	_, err := db.ByURLKey(ctx, pageA)
	assert.ErrorIs(t, err, highlight.ErrUnavailable)

	_, err = db.Add(ctx, rec(pageA, 0, 5, "Hello"))
	assert.ErrorIs(t, err, highlight.ErrUnavailable)
}

func TestToggleBookmark(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := openTestDB(t)

	marked, err := db.ToggleBookmark(ctx, "executive-summary")
	require.NoError(t, err)
	assert.True(t, marked)

	marked, err = db.ToggleBookmark(ctx, "key-figures")
	require.NoError(t, err)
	assert.True(t, marked)

	list, err := db.Bookmarks(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "executive-summary", list[0].SectionName)

	marked, err = db.ToggleBookmark(ctx, "executive-summary")
	require.NoError(t, err)
	assert.False(t, marked)

	list, err = db.Bookmarks(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "key-figures", list[0].SectionName)

	_, err = db.ToggleBookmark(ctx, "  ")
	assert.ErrorIs(t, err, highlight.ErrInvalid)
}
