// Package storage implements the Storage Engine (C1): it owns the single
// embedded SQLite connection, applies pragmas and schema migrations, and
// exposes ExecuteTransaction with savepoint-based nesting.
//
// Grounded on the teacher's internal/storage/orm.go ("minimal overhead,
// explicit over implicit", a thin wrapper around *sql.DB) and migrator.go
// (versioned, transactional, idempotent migrations) — adapted from a
// separate schema_migrations tracking table to the spec's own
// PRAGMA user_version slot, and extended with the nested-savepoint
// ExecuteTransaction the teacher's migrator never needed (each migration
// ran standalone, never nested inside a caller's transaction).
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"watcherd/internal/domain"
)

// CurrentSchemaVersion is the schema version this build expects. Stored in
// SQLite's own user_version pragma slot per spec §4.1/§6.
const CurrentSchemaVersion = 1

// sidecarSuffixes lists the SQLite sidecar files quarantined alongside the
// main database file when initialization repeatedly fails to acquire the
// lock (spec §4.1 "stale lock sidecar quarantine").
var sidecarSuffixes = []string{"-wal", "-shm", "-journal", ".lock", ".tmp"}

// Engine owns the embedded database connection.
type Engine struct {
	db   *sql.DB
	path string
	log  zerolog.Logger

	txSeq atomic.Uint64
}

// Options configures Initialize.
type Options struct {
	Path            string
	BusyTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Initialize opens or creates the database file, applies pragmas, creates
// the schema if absent, and synchronizes the schema version. On repeated
// lock failures it quarantines sidecar files and retries once.
func Initialize(ctx context.Context, opts Options, log zerolog.Logger) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil && opts.Path != ":memory:" {
		return nil, domain.Wrap(domain.CodeInternal, "failed to create storage directory", err)
	}

	e := &Engine{path: opts.Path, log: log.With().Str("component", "storage").Logger()}

	db, err := e.open(opts)
	if err != nil && isLockError(err) {
		db, err = e.open(opts)
	}
	if err != nil {
		if isLockError(err) {
			e.log.Warn().Err(err).Msg("database locked on open, quarantining stale sidecars")
			if qerr := quarantineSidecars(opts.Path); qerr != nil {
				e.log.Error().Err(qerr).Msg("sidecar quarantine failed")
			}
			db, err = e.open(opts)
		}
		if err != nil {
			return nil, domain.Wrap(domain.CodeInternal, "failed to open database", err)
		}
	}
	e.db = db

	if err := e.applyPragmas(ctx, opts); err != nil {
		return nil, err
	}
	if err := e.syncSchema(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) open(opts Options) (*sql.DB, error) {
	dsn := opts.Path
	if dsn != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=%d", opts.Path, opts.BusyTimeout.Milliseconds())
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// applyPragmas sets the pragmas required by spec §4.1: 5s busy timeout, WAL
// journaling, normal synchronous, memory temp store, foreign keys on.
func (e *Engine) applyPragmas(ctx context.Context, opts Options) error {
	busyMs := int(opts.BusyTimeout.Milliseconds())
	if busyMs <= 0 {
		busyMs = 5000
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyMs),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := e.db.ExecContext(ctx, p); err != nil {
			return domain.Wrap(domain.CodeInternal, "failed to apply pragma: "+p, err)
		}
	}
	return nil
}

// syncSchema creates the schema if absent and reconciles the schema
// version. Fails closed if the on-disk version is newer than this build.
func (e *Engine) syncSchema(ctx context.Context) error {
	var version int
	if err := e.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return domain.Wrap(domain.CodeInternal, "failed to read schema version", err)
	}

	if version > CurrentSchemaVersion {
		return domain.NewErrorf(domain.CodeSchemaNewer,
			"database schema version %d is newer than supported version %d", version, CurrentSchemaVersion)
	}

	return e.ExecuteTransaction(ctx, func(ctx context.Context, tx *Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return domain.Wrap(domain.CodeInternal, "failed to apply schema statement", err)
			}
		}
		if err := e.ensureMonitorColumns(ctx, tx); err != nil {
			return err
		}
		if version < CurrentSchemaVersion {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", CurrentSchemaVersion)); err != nil {
				return domain.Wrap(domain.CodeInternal, "failed to set schema version", err)
			}
			e.log.Info().Int("from", version).Int("to", CurrentSchemaVersion).Msg("schema upgraded")
		}
		return nil
	})
}

// GetConnection returns the underlying handle for read-only queries that
// don't need transactional semantics.
func (e *Engine) GetConnection() *sql.DB { return e.db }

// Reopen closes the current connection and reopens the database file at
// the same path, re-applying pragmas and reconciling the schema version.
// Used by DatabaseManager.RestoreBackup after atomically swapping in a
// validated backup file, so the Engine never serves a stale handle to the
// file it just replaced.
func (e *Engine) Reopen(ctx context.Context, opts Options) error {
	if err := e.db.Close(); err != nil {
		e.log.Warn().Err(err).Msg("error closing connection before reopen")
	}
	db, err := e.open(opts)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "failed to reopen database", err)
	}
	e.db = db
	if err := e.applyPragmas(ctx, opts); err != nil {
		return err
	}
	return e.syncSchema(ctx)
}

// Path returns the on-disk database file path (or ":memory:").
func (e *Engine) Path() string { return e.path }

// Close stops accepting new work and closes the underlying connection.
func (e *Engine) Close() error { return e.db.Close() }

type txKey struct{}

// Tx wraps an active transaction or savepoint for repository internal
// methods. It satisfies the subset of *sql.Tx repositories need.
type Tx struct {
	*sql.Tx
	depth int
}

// ExecuteTransaction acquires the connection, begins a transaction (or
// creates a named savepoint if one is already active on ctx), runs fn
// synchronously, then commits/releases on success or rolls back on error.
func (e *Engine) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	if existing, ok := ctx.Value(txKey{}).(*Tx); ok {
		return e.runInSavepoint(ctx, existing, fn)
	}

	sqlTx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyTxError(err)
	}
	tx := &Tx{Tx: sqlTx, depth: 0}
	nestedCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(nestedCtx, tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			e.log.Error().Err(rbErr).Msg("rollback failed after operation error")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return classifyTxError(err)
	}
	return nil
}

func (e *Engine) runInSavepoint(ctx context.Context, tx *Tx, fn func(ctx context.Context, tx *Tx) error) error {
	name := fmt.Sprintf("sp_%d", e.txSeq.Add(1))
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return classifyTxError(err)
	}

	nested := &Tx{Tx: tx.Tx, depth: tx.depth + 1}
	nestedCtx := context.WithValue(ctx, txKey{}, nested)

	if err := fn(nestedCtx, nested); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			e.log.Error().Err(rbErr).Str("savepoint", name).Msg("savepoint rollback failed")
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return classifyTxError(err)
	}
	return nil
}

// classifyTxError promotes raw driver errors into the domain taxonomy so
// the operational hook can decide whether to retry.
func classifyTxError(err error) error {
	if err == nil {
		return nil
	}
	if isLockError(err) {
		return domain.Wrap(domain.CodeTransient, "database busy or locked", err)
	}
	return domain.Wrap(domain.CodeInternal, "transaction failed", err)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

// quarantineSidecars moves WAL/SHM/journal/lock/tmp files aside into a
// stale-lock-artifacts/ directory so a fresh open can proceed.
func quarantineSidecars(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	quarantineDir := filepath.Join(dir, "stale-lock-artifacts")
	if err := os.MkdirAll(quarantineDir, 0o755); err != nil {
		return err
	}
	stamp := time.Now().UnixNano()
	for _, suffix := range sidecarSuffixes {
		src := dbPath + suffix
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(quarantineDir, fmt.Sprintf("%s%s.%d", filepath.Base(dbPath), suffix, stamp))
		if err := os.Rename(src, dst); err != nil {
			return err
		}
	}
	return nil
}
