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

// SettingsRepository provides typed CRUD for the key/value settings table.
type SettingsRepository struct {
	engine *storage.Engine
	hook   *ophook.Hook
}

func NewSettingsRepository(engine *storage.Engine, log zerolog.Logger) *SettingsRepository {
	return &SettingsRepository{engine: engine, hook: ophook.New(log.With().Str("repo", "settings").Logger())}
}

// Get returns a single setting value, or NOT_FOUND.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.hook.Run(ctx, ophook.Options{OperationName: "settings.Get"}, func(ctx context.Context) error {
		var err error
		value, err = r.GetInternal(ctx, r.engine.GetConnection(), key)
		return err
	})
	return value, err
}

func (r *SettingsRepository) GetInternal(ctx context.Context, q Queryer, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.NewErrorf(domain.CodeNotFound, "setting %q not found", key)
	}
	if err != nil {
		return "", domain.Wrap(domain.CodeInternal, "failed to query setting", err)
	}
	return value, nil
}

// Set inserts or updates a setting.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	return r.hook.Run(ctx, ophook.Options{OperationName: "settings.Set"}, func(ctx context.Context) error {
		return r.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
			return r.SetInternal(ctx, tx, key, value)
		})
	})
}

func (r *SettingsRepository) SetInternal(ctx context.Context, q Queryer, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "failed to set setting", err)
	}
	return nil
}

// GetAll returns every setting, including reserved-prefix ones; callers
// that build export/import payloads are responsible for filtering those
// out via domain.IsReservedSettingKey.
func (r *SettingsRepository) GetAll(ctx context.Context) ([]*domain.Setting, error) {
	var settings []*domain.Setting
	err := r.hook.Run(ctx, ophook.Options{OperationName: "settings.GetAll"}, func(ctx context.Context) error {
		var err error
		settings, err = r.GetAllInternal(ctx, r.engine.GetConnection())
		return err
	})
	return settings, err
}

func (r *SettingsRepository) GetAllInternal(ctx context.Context, q Queryer) ([]*domain.Setting, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "failed to query settings", err)
	}
	defer rows.Close()

	var settings []*domain.Setting
	for rows.Next() {
		s := &domain.Setting{}
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, domain.Wrap(domain.CodeInternal, "failed to scan setting row", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// Delete removes a setting if present; absence is not an error.
func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	return r.hook.Run(ctx, ophook.Options{OperationName: "settings.Delete"}, func(ctx context.Context) error {
		return r.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
			return r.DeleteInternal(ctx, tx, key)
		})
	})
}

func (r *SettingsRepository) DeleteInternal(ctx context.Context, q Queryer, key string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "failed to delete setting", err)
	}
	return nil
}
