package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog/log"

	"github.com/renderinc/report-highlights/internal/highlight"
)

const highlightsTable = "highlights"

var highlightColumns = []string{
	"id", "group_id", "url_key", "color", "start_abs", "end_abs", "created_at", "quote",
}

var _ highlight.Store = (*DB)(nil)
var _ highlight.Replacer = (*DB)(nil)

// Add inserts one highlight
func (d *DB) Add(ctx context.Context, rec highlight.Record) (highlight.Record, error) {
	out, err := d.AddGroup(ctx, []highlight.Record{rec})
	if err != nil {
		return highlight.Record{}, err
	}
	return out[0], nil
}

// AddGroup inserts the fragments of one gesture in a single transaction
func (d *DB) AddGroup(ctx context.Context, recs []highlight.Record) ([]highlight.Record, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("add highlights: %w: no records", highlight.ErrInvalid)
	}
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("add highlights: %w", err)
		}
	}

	var out []highlight.Record
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = insertGroup(ctx, tx, recs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add highlights: %w", err)
	}
	return out, nil
}

// Replace deletes and inserts highlights in one transaction. Inserted records
// keep their group; records without one become their own group.
func (d *DB) Replace(ctx context.Context, remove []int64, add []highlight.Record) ([]highlight.Record, error) {
	var out []highlight.Record
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		if len(remove) > 0 {
			del := builder.Delete(highlightsTable).Where(sq.Eq{"id": remove})
			if _, err := exec(ctx, tx, del); err != nil {
				return err
			}
		}
		for _, rec := range add {
			if err := rec.Validate(); err != nil {
				return err
			}
			inserted, err := insertGroup(ctx, tx, []highlight.Record{rec})
			if err != nil {
				return err
			}
			out = append(out, inserted...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace highlights: %w", err)
	}
	return out, nil
}

// insertGroup stores recs under the first record's group, or under the first
// inserted id when that record has none.
func insertGroup(ctx context.Context, tx *sql.Tx, recs []highlight.Record) ([]highlight.Record, error) {
	group := recs[0].GroupID
	out := make([]highlight.Record, 0, len(recs))

	for _, rec := range recs {
		var groupArg any
		if group > 0 {
			groupArg = group
		}

		ins := builder.Insert(highlightsTable).
			Columns("group_id", "url_key", "color", "start_abs", "end_abs", "created_at", "quote").
			Values(groupArg, rec.URLKey, string(rec.Color), rec.StartAbs, rec.EndAbs, rec.CreatedAt, rec.Quote)
		res, err := exec(ctx, tx, ins)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}

		if group <= 0 {
			group = id
			upd := builder.Update(highlightsTable).Set("group_id", group).Where(sq.Eq{"id": id})
			if _, err := exec(ctx, tx, upd); err != nil {
				return nil, err
			}
		}

		rec.ID = id
		rec.GroupID = group
		out = append(out, rec)
	}
	return out, nil
}

// Get retrieves a highlight by ID
func (d *DB) Get(ctx context.Context, id int64) (highlight.Record, error) {
	recs, err := d.selectHighlights(ctx, sq.Eq{"id": id})
	if err != nil {
		return highlight.Record{}, fmt.Errorf("get highlight %d: %w", id, err)
	}
	if len(recs) == 0 {
		return highlight.Record{}, fmt.Errorf("get highlight %d: %w", id, highlight.ErrNotFound)
	}
	return recs[0], nil
}

// ByURLKey lists the highlights of one page, oldest first
func (d *DB) ByURLKey(ctx context.Context, urlKey string) ([]highlight.Record, error) {
	recs, err := d.selectHighlights(ctx, sq.Eq{"url_key": urlKey})
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	return recs, nil
}

// ByGroup lists the fragments of one group
func (d *DB) ByGroup(ctx context.Context, groupID int64) ([]highlight.Record, error) {
	recs, err := d.selectHighlights(ctx, groupPredicate(groupID))
	if err != nil {
		return nil, fmt.Errorf("list group %d: %w", groupID, err)
	}
	return recs, nil
}

// All lists every highlight, oldest first
func (d *DB) All(ctx context.Context) ([]highlight.Record, error) {
	recs, err := d.selectHighlights(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	return recs, nil
}

// Delete removes one highlight
func (d *DB) Delete(ctx context.Context, id int64) error {
	res, err := exec(ctx, d.db, builder.Delete(highlightsTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete highlight %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete highlight %d: %w", id, highlight.ErrNotFound)
	}
	return nil
}

// DeleteGroup removes every fragment of a group in one transaction
func (d *DB) DeleteGroup(ctx context.Context, groupID int64) (int, error) {
	var n int64
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		res, err := exec(ctx, tx, builder.Delete(highlightsTable).Where(groupPredicate(groupID)))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete group %d: %w", groupID, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("delete group %d: %w", groupID, highlight.ErrNotFound)
	}
	return int(n), nil
}

// URLKeys lists every page that has highlights
func (d *DB) URLKeys(ctx context.Context) ([]string, error) {
	q := builder.Select("DISTINCT url_key").
		From(highlightsTable).
		Where(sq.NotEq{"url_key": nil}).
		OrderBy("url_key")

	rows, err := query(ctx, d.db, q)
	if err != nil {
		return nil, fmt.Errorf("list url keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan url key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Count returns the number of stored highlights
func (d *DB) Count(ctx context.Context) (int, error) {
	stmt, args, err := builder.Select("COUNT(*)").From(highlightsTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var count int
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count highlights: %w", mapError(err))
	}
	return count, nil
}

// groupPredicate matches a group, including rows written before groups
// existed whose group_id is still NULL.
func groupPredicate(groupID int64) sq.Sqlizer {
	return sq.Or{
		sq.Eq{"group_id": groupID},
		sq.And{sq.Eq{"group_id": nil}, sq.Eq{"id": groupID}},
	}
}

// highlightRow holds a row as SQLite returns it. Numeric columns are read as
// text so a value of the wrong type marks the row malformed instead of failing
// the whole query.
type highlightRow struct {
	id        sql.NullInt64
	groupID   sql.NullString
	urlKey    sql.NullString
	color     sql.NullString
	startAbs  sql.NullString
	endAbs    sql.NullString
	createdAt sql.NullString
	quote     sql.NullString
}

func (r highlightRow) record() (highlight.Record, error) {
	start, ok := parseInt(r.startAbs)
	if !ok {
		return highlight.Record{}, fmt.Errorf("%w: record %d has a bad start offset", highlight.ErrInvalid, r.id.Int64)
	}
	end, ok := parseInt(r.endAbs)
	if !ok {
		return highlight.Record{}, fmt.Errorf("%w: record %d has a bad end offset", highlight.ErrInvalid, r.id.Int64)
	}
	group, _ := parseInt(r.groupID)
	created, _ := parseInt(r.createdAt)

	return highlight.Repair(highlight.Record{
		ID:        r.id.Int64,
		GroupID:   group,
		URLKey:    r.urlKey.String,
		Color:     highlight.Color(r.color.String),
		StartAbs:  int(start),
		EndAbs:    int(end),
		CreatedAt: created,
		Quote:     r.quote.String,
	})
}

func parseInt(s sql.NullString) (int64, bool) {
	if !s.Valid {
		return 0, false
	}
	n, err := strconv.ParseInt(s.String, 10, 64)
	return n, err == nil
}

// selectHighlights reads rows matching where. Rows that do not form a valid
// record are logged and dropped.
func (d *DB) selectHighlights(ctx context.Context, where sq.Sqlizer) ([]highlight.Record, error) {
	q := builder.Select(highlightColumns...).
		From(highlightsTable).
		OrderBy("created_at", "id")
	if where != nil {
		q = q.Where(where)
	}

	rows, err := query(ctx, d.db, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []highlight.Record
	for rows.Next() {
		var r highlightRow
		if err := rows.Scan(&r.id, &r.groupID, &r.urlKey, &r.color, &r.startAbs, &r.endAbs, &r.createdAt, &r.quote); err != nil {
			return nil, fmt.Errorf("scan highlight: %w", err)
		}
		rec, err := r.record()
		if err != nil {
			log.Warn().Err(err).Int64("id", r.id.Int64).Msg("dropping malformed highlight row")
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}
