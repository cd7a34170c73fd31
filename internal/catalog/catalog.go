// Package catalog implements the shadow catalog: the persistent,
// transactional store of everything the scanner and upload worker share —
// sync-roots, the local folder/file tree mirror, the task queue, and small
// caches (server-hash digests, file revisions, settings).
//
// It is backed by SQLite through modernc.org/sqlite (pure Go, no CGO) and
// migrated with goose. Following a sole-writer discipline, the database
// connection pool is capped at one connection so every statement — reads
// included — is serialized by the driver; TryBeginWrite layers a
// non-blocking write lock on top so a caller that must not block (the
// scanner, competing with the upload worker) can back off instead of
// deadlocking.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// ErrWriteLocked is returned by TryBeginWrite when another write
// transaction currently holds the catalog's write lock.
var ErrWriteLocked = errors.New("catalog: write lock held by another transaction")

// Catalog is the shadow catalog's single entry point. All repository
// methods in this package take a *Tx (from BeginWrite/TryBeginWrite) or a
// *sql.Tx (from ReadLocked), never the bare *sql.DB, so every access is
// transactionally scoped.
type Catalog struct {
	db       *sql.DB
	logger   *slog.Logger
	writeSem chan struct{}
	nowFunc  func() time.Time
}

// Open opens (creating if necessary) the SQLite database at path, runs
// pending migrations, and returns a ready-to-use Catalog. The database uses
// WAL mode with synchronous=FULL for crash-safe durability, matching the
// catalog's role as the single source of truth for in-flight state.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Catalog, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening database %s: %w", path, err)
	}

	// Sole-writer pattern: every statement — read or write — goes through
	// the same connection, giving the catalog single-writer serializable
	// semantics without relying on SQLite's own locking subtleties.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()

		return nil, err
	}

	logger.Info("catalog opened", slog.String("path", path))

	return &Catalog{
		db:       db,
		logger:   logger,
		writeSem: make(chan struct{}, 1),
		nowFunc:  time.Now,
	}, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Tx wraps a write transaction. Commit and Rollback release the catalog's
// write lock in addition to finalizing the underlying *sql.Tx, so callers
// must always end a Tx through one of them (typically via defer Rollback
// immediately after a successful BeginWrite/TryBeginWrite, following the
// standard Go sql.Tx idiom — a Commit beforehand makes the deferred
// Rollback a harmless no-op).
type Tx struct {
	*sql.Tx
	release func()
	done    bool
}

// Commit commits the underlying transaction and releases the write lock.
func (t *Tx) Commit() error {
	if t.done {
		return nil
	}

	t.done = true
	defer t.release()

	return t.Tx.Commit()
}

// Rollback rolls back the underlying transaction and releases the write
// lock. Safe to call after a successful Commit (no-op).
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}

	t.done = true
	defer t.release()

	return t.Tx.Rollback()
}

// BeginWrite starts a write transaction, blocking until any concurrent
// writer finishes or ctx is canceled.
func (c *Catalog) BeginWrite(ctx context.Context) (*Tx, error) {
	select {
	case c.writeSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		<-c.writeSem

		return nil, fmt.Errorf("catalog: begin write: %w", err)
	}

	return &Tx{Tx: tx, release: func() { <-c.writeSem }}, nil
}

// TryBeginWrite attempts to start a write transaction without blocking,
// returning ErrWriteLocked if another writer currently holds the lock. The
// scanner uses this to avoid deadlocking against the upload worker: rather
// than wait on a lock the worker may hold for the duration of a large
// upload, it backs off and retries its pass later.
func (c *Catalog) TryBeginWrite(ctx context.Context) (*Tx, error) {
	select {
	case c.writeSem <- struct{}{}:
	default:
		return nil, ErrWriteLocked
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		<-c.writeSem

		return nil, fmt.Errorf("catalog: try begin write: %w", err)
	}

	return &Tx{Tx: tx, release: func() { <-c.writeSem }}, nil
}

// ReadLocked runs fn within a read-only transaction, giving it a consistent
// snapshot of the catalog. It never contends with BeginWrite/TryBeginWrite
// for the write lock.
func (c *Catalog) ReadLocked(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("catalog: begin read: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// CellInt runs a single-row, single-column query and returns its value, or
// def if the query produced no rows. Matches the cell_int(query, default)
// contract used throughout the catalog for small scalar reads (counts,
// cached IDs) where "not found" is a legitimate, non-error outcome.
func (c *Catalog) CellInt(ctx context.Context, query string, def int64, args ...any) (int64, error) {
	var v int64

	err := c.db.QueryRowContext(ctx, query, args...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}

	if err != nil {
		return 0, fmt.Errorf("catalog: cell_int %q: %w", query, err)
	}

	return v, nil
}
