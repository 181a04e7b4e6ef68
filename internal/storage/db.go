// Package storage persists highlights and bookmarks in SQLite and keeps an
// in-memory session store for when SQLite cannot be used.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps SQLite database operations
type DB struct {
	db       *sql.DB
	migrator *goose.Provider
}

type openOptions struct {
	migrate     bool
	busyTimeout time.Duration
}

// Option configures Open
type Option func(*openOptions)

// WithoutMigrations leaves the schema at whatever version the file has
func WithoutMigrations() Option {
	return func(o *openOptions) { o.migrate = false }
}

// WithBusyTimeout sets how long SQLite waits on a locked database
func WithBusyTimeout(d time.Duration) Option {
	return func(o *openOptions) { o.busyTimeout = d }
}

// Open opens or creates a SQLite database and brings its schema up to date
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	o := openOptions{migrate: true, busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	// Connection settings go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d",
		path, o.busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", mapError(err))
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", mapError(err))
	}

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("goose new provider: %w", err)
	}

	storage := &DB{db: db, migrator: provider}

	if o.migrate {
		if err := storage.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	return storage, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate applies every pending schema version
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.migrator.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", mapError(err))
	}
	return nil
}

// MigrateTo applies pending schema versions up to and including version
func (d *DB) MigrateTo(ctx context.Context, version int64) error {
	if _, err := d.migrator.UpTo(ctx, version); err != nil {
		return fmt.Errorf("goose up to %d: %w", version, mapError(err))
	}
	return nil
}

// SchemaVersion returns the current schema version
func (d *DB) SchemaVersion(ctx context.Context) (int64, error) {
	v, err := d.migrator.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", mapError(err))
	}
	return v, nil
}

// builder produces SQLite-compatible queries with ? placeholders.
var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func exec(ctx context.Context, q execer, b sq.Sqlizer) (sql.Result, error) {
	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	res, err := q.ExecContext(ctx, stmt, args...)
	return res, mapError(err)
}

func query(ctx context.Context, q execer, b sq.Sqlizer) (*sql.Rows, error) {
	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := q.QueryContext(ctx, stmt, args...)
	return rows, mapError(err)
}

// inTx runs fn in a transaction, rolling back when fn fails or panics.
func (d *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapError(err))
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}
