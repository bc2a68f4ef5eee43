// Package repository implements typed CRUD for sites, monitors, status
// history, and settings (C2), each exposing a dual-mode API: public methods
// own their transaction via the operational hook, internal methods run
// inside a caller-supplied transaction.
//
// Grounded on the teacher's internal/storage/repository.go generic
// Repository[T, PT EntityPtr[T]] (reflection-driven dynamic INSERT/UPDATE),
// adapted into concrete per-aggregate repositories: the generic form
// doesn't fit the spec's dual public/internal method split or the
// per-monitor-type dynamic columns cleanly, so the reflection idea is kept
// only for row scanning (storage.ScanRows) and the CRUD bodies are
// hand-written per aggregate, the way the teacher's own checks/manager.go
// hand-writes per-type dispatch instead of generating it.
package repository

import (
	"context"
	"database/sql"
)

// Queryer is satisfied by both *sql.DB and *storage.Tx, letting internal
// methods run against either a bare connection or an active transaction.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
