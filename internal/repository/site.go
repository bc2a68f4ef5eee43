package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog"

	"watcherd/internal/domain"
	"watcherd/internal/ophook"
	"watcherd/internal/storage"
)

// SiteRepository provides typed CRUD for the sites aggregate, composing in
// each site's monitors via MonitorRepository to satisfy the full Site
// shape (identifier, name, monitoring, monitors, timestamps).
type SiteRepository struct {
	engine   *storage.Engine
	monitors *MonitorRepository
	hook     *ophook.Hook
}

func NewSiteRepository(engine *storage.Engine, monitors *MonitorRepository, log zerolog.Logger) *SiteRepository {
	return &SiteRepository{engine: engine, monitors: monitors, hook: ophook.New(log.With().Str("repo", "site").Logger())}
}

// GetAll returns every site with its monitors populated, ordered by
// identifier for deterministic snapshots.
func (r *SiteRepository) GetAll(ctx context.Context) ([]*domain.Site, error) {
	var sites []*domain.Site
	err := r.hook.Run(ctx, ophook.Options{OperationName: "site.GetAll"}, func(ctx context.Context) error {
		var err error
		sites, err = r.GetAllInternal(ctx, r.engine.GetConnection())
		return err
	})
	return sites, err
}

func (r *SiteRepository) GetAllInternal(ctx context.Context, q Queryer) ([]*domain.Site, error) {
	rows, err := q.QueryContext(ctx, `SELECT identifier, name, monitoring, created_at, updated_at FROM sites ORDER BY identifier`)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "failed to query sites", err)
	}
	defer rows.Close()

	var sites []*domain.Site
	for rows.Next() {
		s := &domain.Site{}
		var monitoring int
		if err := rows.Scan(&s.Identifier, &s.Name, &monitoring, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, domain.Wrap(domain.CodeInternal, "failed to scan site row", err)
		}
		s.Monitoring = monitoring != 0
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "site row iteration failed", err)
	}

	for _, s := range sites {
		monitors, err := r.monitors.GetBySiteInternal(ctx, q, s.Identifier)
		if err != nil {
			return nil, err
		}
		s.Monitors = monitors
	}
	return sites, nil
}

// GetByIdentifier returns a single site with its monitors, or a NOT_FOUND
// domain error.
func (r *SiteRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Site, error) {
	var site *domain.Site
	err := r.hook.Run(ctx, ophook.Options{OperationName: "site.GetByIdentifier"}, func(ctx context.Context) error {
		var err error
		site, err = r.GetByIdentifierInternal(ctx, r.engine.GetConnection(), identifier)
		return err
	})
	return site, err
}

func (r *SiteRepository) GetByIdentifierInternal(ctx context.Context, q Queryer, identifier string) (*domain.Site, error) {
	row := q.QueryRowContext(ctx, `SELECT identifier, name, monitoring, created_at, updated_at FROM sites WHERE identifier = ?`, identifier)
	s := &domain.Site{}
	var monitoring int
	if err := row.Scan(&s.Identifier, &s.Name, &monitoring, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewErrorf(domain.CodeNotFound, "site %q not found", identifier)
		}
		return nil, domain.Wrap(domain.CodeInternal, "failed to query site", err)
	}
	s.Monitoring = monitoring != 0

	monitors, err := r.monitors.GetBySiteInternal(ctx, q, s.Identifier)
	if err != nil {
		return nil, err
	}
	s.Monitors = monitors
	return s, nil
}

// Upsert inserts or updates a site row (monitors are persisted separately
// by the caller via MonitorRepository within the same transaction).
func (r *SiteRepository) Upsert(ctx context.Context, site *domain.Site) error {
	return r.hook.Run(ctx, ophook.Options{OperationName: "site.Upsert"}, func(ctx context.Context) error {
		return r.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
			return r.UpsertInternal(ctx, tx, site)
		})
	})
}

func (r *SiteRepository) UpsertInternal(ctx context.Context, q Queryer, site *domain.Site) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sites (identifier, name, monitoring, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			name = excluded.name,
			monitoring = excluded.monitoring,
			updated_at = excluded.updated_at
	`, site.Identifier, site.Name, boolToInt(site.Monitoring), site.CreatedAt, site.UpdatedAt)
	if err != nil {
		return classifyWriteError(err, domain.CodeDuplicateSiteIdentifier)
	}
	return nil
}

// Delete removes a site and, via ON DELETE CASCADE, its monitors and their
// history.
func (r *SiteRepository) Delete(ctx context.Context, identifier string) error {
	return r.hook.Run(ctx, ophook.Options{OperationName: "site.Delete"}, func(ctx context.Context) error {
		return r.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
			return r.DeleteInternal(ctx, tx, identifier)
		})
	})
}

func (r *SiteRepository) DeleteInternal(ctx context.Context, q Queryer, identifier string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM sites WHERE identifier = ?`, identifier)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "failed to delete site", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewErrorf(domain.CodeNotFound, "site %q not found", identifier)
	}
	return nil
}

// DeleteAll removes every site (and cascading monitors/history), used by
// DatabaseManager.PersistImport before replaying an import payload.
func (r *SiteRepository) DeleteAll(ctx context.Context) error {
	return r.hook.Run(ctx, ophook.Options{OperationName: "site.DeleteAll"}, func(ctx context.Context) error {
		return r.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
			return r.DeleteAllInternal(ctx, tx)
		})
	})
}

func (r *SiteRepository) DeleteAllInternal(ctx context.Context, q Queryer) error {
	_, err := q.ExecContext(ctx, `DELETE FROM sites`)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "failed to delete all sites", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
