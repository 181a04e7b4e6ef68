package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/renderinc/report-highlights/internal/highlight"
)

const bookmarksTable = "bookmarks"

// Bookmark marks a report section
type Bookmark struct {
	ID          int64  `json:"id"`
	SectionName string `json:"sectionName"`
}

// ToggleBookmark adds the section when it is not bookmarked and removes it
// otherwise. It reports whether the section is bookmarked afterwards.
func (d *DB) ToggleBookmark(ctx context.Context, section string) (bool, error) {
	section = strings.TrimSpace(section)
	if section == "" {
		return false, fmt.Errorf("toggle bookmark: %w: empty section", highlight.ErrInvalid)
	}

	var marked bool
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		res, err := exec(ctx, tx, builder.Delete(bookmarksTable).Where(sq.Eq{"section_name": section}))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}

		if _, err := exec(ctx, tx, builder.Insert(bookmarksTable).Columns("section_name").Values(section)); err != nil {
			return err
		}
		marked = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("toggle bookmark %q: %w", section, err)
	}
	return marked, nil
}

// Bookmarks lists bookmarked sections in the order they were added
func (d *DB) Bookmarks(ctx context.Context) ([]Bookmark, error) {
	q := builder.Select("id", "section_name").
		From(bookmarksTable).
		Where(sq.NotEq{"section_name": nil}).
		OrderBy("id")

	rows, err := query(ctx, d.db, q)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.ID, &b.SectionName); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
