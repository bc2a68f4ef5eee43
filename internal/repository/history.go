package repository

import (
	"context"

	"github.com/rs/zerolog"

	"watcherd/internal/domain"
	"watcherd/internal/ophook"
	"watcherd/internal/storage"
)

// HistoryRepository provides append-only access to status history, pruned
// per monitor to a configured retention limit (spec §3 StatusRecord,
// §4.2).
type HistoryRepository struct {
	engine *storage.Engine
	hook   *ophook.Hook
}

func NewHistoryRepository(engine *storage.Engine, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{engine: engine, hook: ophook.New(log.With().Str("repo", "history").Logger())}
}

// Append inserts a StatusRecord then prunes the monitor's history down to
// maxEntries, all inside one transaction so the ring is never observed in
// a partially-pruned state.
func (r *HistoryRepository) Append(ctx context.Context, rec *domain.StatusRecord, maxEntries int) error {
	return r.hook.Run(ctx, ophook.Options{OperationName: "history.Append"}, func(ctx context.Context) error {
		return r.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
			if err := r.AppendInternal(ctx, tx, rec); err != nil {
				return err
			}
			return r.PruneInternal(ctx, tx, rec.MonitorID, maxEntries)
		})
	})
}

func (r *HistoryRepository) AppendInternal(ctx context.Context, q Queryer, rec *domain.StatusRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO history (monitor_id, timestamp, status, response_time_ms, details)
		VALUES (?, ?, ?, ?, ?)
	`, rec.MonitorID, rec.TimestampMs, string(rec.Status), rec.ResponseTimeMs, rec.Details)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "failed to append history record", err)
	}
	return nil
}

// GetRecent returns the most recent `limit` records for monitorId, newest
// first.
func (r *HistoryRepository) GetRecent(ctx context.Context, monitorID string, limit int) ([]*domain.StatusRecord, error) {
	var recs []*domain.StatusRecord
	err := r.hook.Run(ctx, ophook.Options{OperationName: "history.GetRecent"}, func(ctx context.Context) error {
		var err error
		recs, err = r.GetRecentInternal(ctx, r.engine.GetConnection(), monitorID, limit)
		return err
	})
	return recs, err
}

func (r *HistoryRepository) GetRecentInternal(ctx context.Context, q Queryer, monitorID string, limit int) ([]*domain.StatusRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, monitor_id, timestamp, status, response_time_ms, details
		FROM history WHERE monitor_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?
	`, monitorID, limit)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "failed to query history", err)
	}
	defer rows.Close()

	var recs []*domain.StatusRecord
	for rows.Next() {
		rec := &domain.StatusRecord{}
		var status string
		if err := rows.Scan(&rec.ID, &rec.MonitorID, &rec.TimestampMs, &status, &rec.ResponseTimeMs, &rec.Details); err != nil {
			return nil, domain.Wrap(domain.CodeInternal, "failed to scan history row", err)
		}
		rec.Status = domain.HistoryStatus(status)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Prune deletes all but the most recent maxEntries rows for monitorId.
func (r *HistoryRepository) Prune(ctx context.Context, monitorID string, maxEntries int) error {
	return r.hook.Run(ctx, ophook.Options{OperationName: "history.Prune"}, func(ctx context.Context) error {
		return r.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
			return r.PruneInternal(ctx, tx, monitorID, maxEntries)
		})
	})
}

func (r *HistoryRepository) PruneInternal(ctx context.Context, q Queryer, monitorID string, maxEntries int) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM history WHERE monitor_id = ? AND id NOT IN (
			SELECT id FROM history WHERE monitor_id = ?
			ORDER BY timestamp DESC, id DESC LIMIT ?
		)
	`, monitorID, monitorID, maxEntries)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "failed to prune history", err)
	}
	return nil
}

// DeleteForMonitor removes every history row for a monitor (used ahead of
// a manual monitor delete where cascade isn't already in flight).
func (r *HistoryRepository) DeleteForMonitor(ctx context.Context, monitorID string) error {
	return r.hook.Run(ctx, ophook.Options{OperationName: "history.DeleteForMonitor"}, func(ctx context.Context) error {
		return r.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
			return r.DeleteForMonitorInternal(ctx, tx, monitorID)
		})
	})
}

func (r *HistoryRepository) DeleteForMonitorInternal(ctx context.Context, q Queryer, monitorID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM history WHERE monitor_id = ?`, monitorID)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "failed to delete history for monitor", err)
	}
	return nil
}
