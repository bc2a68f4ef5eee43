package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"watcherd/internal/domain"
	"watcherd/internal/ophook"
	"watcherd/internal/storage"
)

// MonitorRepository provides typed CRUD for the monitors aggregate. Row
// mapping is dynamic: type-specific columns (url, host, port, ...) are
// read into Monitor.Fields based on whatever columns the schema currently
// carries, per spec §4.2 "monitors use a dynamic mapper".
type MonitorRepository struct {
	engine *storage.Engine
	hook   *ophook.Hook
	dynCols []string
}

func NewMonitorRepository(engine *storage.Engine, log zerolog.Logger) *MonitorRepository {
	return &MonitorRepository{
		engine:  engine,
		hook:    ophook.New(log.With().Str("repo", "monitor").Logger()),
		dynCols: storage.MonitorDynamicColumnNames(),
	}
}

func (r *MonitorRepository) selectColumns() string {
	base := []string{"id", "site_identifier", "type", "status", "check_interval_ms",
		"timeout_ms", "retry_attempts", "monitoring", "created_at", "updated_at"}
	return strings.Join(append(base, r.dynCols...), ", ")
}

// GetBySite returns every monitor belonging to siteIdentifier, ordered by
// id for deterministic iteration.
func (r *MonitorRepository) GetBySite(ctx context.Context, siteIdentifier string) ([]*domain.Monitor, error) {
	var monitors []*domain.Monitor
	err := r.hook.Run(ctx, ophook.Options{OperationName: "monitor.GetBySite"}, func(ctx context.Context) error {
		var err error
		monitors, err = r.GetBySiteInternal(ctx, r.engine.GetConnection(), siteIdentifier)
		return err
	})
	return monitors, err
}

func (r *MonitorRepository) GetBySiteInternal(ctx context.Context, q Queryer, siteIdentifier string) ([]*domain.Monitor, error) {
	query := fmt.Sprintf(`SELECT %s FROM monitors WHERE site_identifier = ? ORDER BY id`, r.selectColumns())
	rows, err := q.QueryContext(ctx, query, siteIdentifier)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "failed to query monitors", err)
	}
	defer rows.Close()
	return r.scanMonitors(rows)
}

// GetById returns a single monitor or NOT_FOUND.
func (r *MonitorRepository) GetById(ctx context.Context, id string) (*domain.Monitor, error) {
	var m *domain.Monitor
	err := r.hook.Run(ctx, ophook.Options{OperationName: "monitor.GetById"}, func(ctx context.Context) error {
		var err error
		m, err = r.GetByIdInternal(ctx, r.engine.GetConnection(), id)
		return err
	})
	return m, err
}

func (r *MonitorRepository) GetByIdInternal(ctx context.Context, q Queryer, id string) (*domain.Monitor, error) {
	query := fmt.Sprintf(`SELECT %s FROM monitors WHERE id = ?`, r.selectColumns())
	rows, err := q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "failed to query monitor", err)
	}
	defer rows.Close()
	monitors, err := r.scanMonitors(rows)
	if err != nil {
		return nil, err
	}
	if len(monitors) == 0 {
		return nil, domain.NewErrorf(domain.CodeNotFound, "monitor %q not found", id)
	}
	return monitors[0], nil
}

func (r *MonitorRepository) scanMonitors(rows *sql.Rows) ([]*domain.Monitor, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "failed to read monitor columns", err)
	}

	var monitors []*domain.Monitor
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, domain.Wrap(domain.CodeInternal, "failed to scan monitor row", err)
		}

		m := &domain.Monitor{Fields: make(map[string]string)}
		var monitoring int
		for i, col := range cols {
			v := values[i]
			switch col {
			case "id":
				m.ID, _ = v.(string)
			case "site_identifier":
				m.SiteIdentifier, _ = v.(string)
			case "type":
				m.Type, _ = v.(string)
			case "status":
				s, _ := v.(string)
				m.Status = domain.MonitorStatus(s)
			case "check_interval_ms":
				m.CheckIntervalMs = toInt(v)
			case "timeout_ms":
				m.TimeoutMs = toInt(v)
			case "retry_attempts":
				m.RetryAttempts = toInt(v)
			case "monitoring":
				monitoring = toInt(v)
			case "created_at":
				m.CreatedAt = toInt64(v)
			case "updated_at":
				m.UpdatedAt = toInt64(v)
			default:
				if v != nil {
					m.Fields[col] = toString(v)
				}
			}
		}
		m.Monitoring = monitoring != 0
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

// Upsert persists a monitor's fixed and dynamic columns in one statement.
func (r *MonitorRepository) Upsert(ctx context.Context, m *domain.Monitor) error {
	return r.hook.Run(ctx, ophook.Options{OperationName: "monitor.Upsert"}, func(ctx context.Context) error {
		return r.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
			return r.UpsertInternal(ctx, tx, m)
		})
	})
}

func (r *MonitorRepository) UpsertInternal(ctx context.Context, q Queryer, m *domain.Monitor) error {
	cols := []string{"id", "site_identifier", "type", "status", "check_interval_ms",
		"timeout_ms", "retry_attempts", "monitoring", "created_at", "updated_at"}
	args := []any{m.ID, m.SiteIdentifier, m.Type, string(m.Status), m.CheckIntervalMs,
		m.TimeoutMs, m.RetryAttempts, boolToInt(m.Monitoring), m.CreatedAt, m.UpdatedAt}

	for _, dc := range r.dynCols {
		cols = append(cols, dc)
		if v, ok := m.Fields[dc]; ok && v != "" {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	updates := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	query := fmt.Sprintf(`INSERT INTO monitors (%s) VALUES (%s)
		ON CONFLICT(id) DO UPDATE SET %s`,
		strings.Join(cols, ", "), placeholders, strings.Join(updates, ", "))

	_, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return classifyWriteError(err, domain.CodeDuplicateMonitorID)
	}
	return nil
}

// BulkReplace replaces every monitor belonging to siteIdentifier with the
// given set, inside a single transaction.
func (r *MonitorRepository) BulkReplace(ctx context.Context, siteIdentifier string, monitors []*domain.Monitor) error {
	return r.hook.Run(ctx, ophook.Options{OperationName: "monitor.BulkReplace"}, func(ctx context.Context) error {
		return r.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
			if err := r.deleteBySiteInternal(ctx, tx, siteIdentifier); err != nil {
				return err
			}
			for _, m := range monitors {
				if err := r.UpsertInternal(ctx, tx, m); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (r *MonitorRepository) deleteBySiteInternal(ctx context.Context, q Queryer, siteIdentifier string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM monitors WHERE site_identifier = ?`, siteIdentifier)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "failed to clear monitors for site", err)
	}
	return nil
}

// Delete removes a single monitor (and, via cascade, its history).
func (r *MonitorRepository) Delete(ctx context.Context, id string) error {
	return r.hook.Run(ctx, ophook.Options{OperationName: "monitor.Delete"}, func(ctx context.Context) error {
		return r.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
			return r.DeleteInternal(ctx, tx, id)
		})
	})
}

func (r *MonitorRepository) DeleteInternal(ctx context.Context, q Queryer, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM monitors WHERE id = ?`, id)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "failed to delete monitor", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewErrorf(domain.CodeNotFound, "monitor %q not found", id)
	}
	return nil
}

// UpdateStatus persists only the monitor's status column, used by the
// scheduler's run cycle which must not clobber type-specific fields it
// never loaded a fresh copy of.
func (r *MonitorRepository) UpdateStatus(ctx context.Context, id string, status domain.MonitorStatus, updatedAtMs int64) error {
	return r.hook.Run(ctx, ophook.Options{OperationName: "monitor.UpdateStatus"}, func(ctx context.Context) error {
		return r.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
			return r.UpdateStatusInternal(ctx, tx, id, status, updatedAtMs)
		})
	})
}

func (r *MonitorRepository) UpdateStatusInternal(ctx context.Context, q Queryer, id string, status domain.MonitorStatus, updatedAtMs int64) error {
	res, err := q.ExecContext(ctx, `UPDATE monitors SET status = ?, updated_at = ? WHERE id = ?`, string(status), updatedAtMs, id)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "failed to update monitor status", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewErrorf(domain.CodeNotFound, "monitor %q not found", id)
	}
	return nil
}

func toInt(v any) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case int:
		return t
	case float64:
		return int(t)
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}
