package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/renderinc/report-highlights/internal/highlight"
)

// mapError converts SQLite failures into highlight errors. Conditions that
// make the database unusable become highlight.ErrUnavailable so callers can
// fall back to the session store. Context errors pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return highlight.ErrNotFound
	}

	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code {
		case sqlite3.ErrFull, sqlite3.ErrCantOpen, sqlite3.ErrBusy, sqlite3.ErrLocked,
			sqlite3.ErrReadonly, sqlite3.ErrIoErr, sqlite3.ErrCorrupt, sqlite3.ErrNotADB,
			sqlite3.ErrPerm:
			return fmt.Errorf("%w: %v", highlight.ErrUnavailable, err)
		}
	}

	// database/sql reports use after Close with an unexported error.
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %v", highlight.ErrUnavailable, err)
	}

	return err
}
