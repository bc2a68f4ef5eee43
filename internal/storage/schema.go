package storage

import (
	"context"
	"fmt"
	"strings"

	"watcherd/internal/domain"
)

// schemaStatements creates the core schema described in spec §6. All
// statements are idempotent (IF NOT EXISTS) so re-running them on every
// startup is safe.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sites (
		identifier TEXT PRIMARY KEY NOT NULL CHECK(length(trim(identifier)) > 0),
		name TEXT NOT NULL CHECK(length(trim(name)) > 0),
		monitoring INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')*1000),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now')*1000)
	)`,
	`CREATE TABLE IF NOT EXISTS monitors (
		id TEXT PRIMARY KEY NOT NULL CHECK(length(trim(id)) > 0),
		site_identifier TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		check_interval_ms INTEGER NOT NULL,
		timeout_ms INTEGER NOT NULL,
		retry_attempts INTEGER NOT NULL DEFAULT 0,
		monitoring INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')*1000),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now')*1000),
		FOREIGN KEY(site_identifier) REFERENCES sites(identifier) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		monitor_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		status TEXT NOT NULL,
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		details TEXT,
		FOREIGN KEY(monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_monitors_site_id ON monitors(site_identifier, id)`,
	`CREATE INDEX IF NOT EXISTS idx_history_monitor_ts ON history(monitor_id, timestamp DESC)`,
}

// monitorDynamicColumns lists the type-specific monitor columns added on
// upgrade via ALTER TABLE ... ADD COLUMN when absent (spec §3, §4.1, §6).
// Every registered monitor type's fields are a subset of this fixed set;
// the registry (C6) decides which of these columns a given type reads.
var monitorDynamicColumns = []struct {
	name string
	ddl  string
}{
	{"url", "TEXT"},
	{"host", "TEXT"},
	{"port", "INTEGER"},
	{"record_type", "TEXT"},
	{"expected_value", "TEXT"},
	{"status_code", "TEXT"},
	{"header_name", "TEXT"},
	{"keyword", "TEXT"},
	{"json_path", "TEXT"},
	{"latency_threshold_ms", "INTEGER"},
}

// MonitorDynamicColumnNames returns the dynamic column names in schema
// order, for use by the monitor row mapper.
func MonitorDynamicColumnNames() []string {
	names := make([]string, len(monitorDynamicColumns))
	for i, c := range monitorDynamicColumns {
		names[i] = c.name
	}
	return names
}

// ensureMonitorColumns adds any missing dynamic monitor columns. Called
// once during syncSchema; safe to call repeatedly.
func (e *Engine) ensureMonitorColumns(ctx context.Context, tx *Tx) error {
	existing, err := columnSet(ctx, tx, "monitors")
	if err != nil {
		return err
	}
	for _, col := range monitorDynamicColumns {
		if existing[col.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE monitors ADD COLUMN %s %s", col.name, col.ddl)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return domain.Wrap(domain.CodeInternal, "failed to add monitor column "+col.name, err)
		}
	}
	return nil
}

func columnSet(ctx context.Context, tx *Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "failed to introspect table "+table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notnull    int
			dflt       any
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &primaryKey); err != nil {
			return nil, domain.Wrap(domain.CodeInternal, "failed to scan table_info row", err)
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}
