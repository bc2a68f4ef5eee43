package managers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"watcherd/internal/domain"
	"watcherd/internal/eventbus"
	"watcherd/internal/repository"
	"watcherd/internal/storage"
)

// ExportPayload is the portable export format of spec §6: every site,
// monitor, history record and non-reserved setting, self-describing via
// schemaVersion/appVersion/createdAtMs so a future importer can detect
// incompatible payloads before touching storage.
type ExportPayload struct {
	SchemaVersion int                     `json:"schemaVersion"`
	AppVersion    string                  `json:"appVersion"`
	CreatedAtMs   int64                   `json:"createdAtMs"`
	Sites         []*domain.Site          `json:"sites"`
	Monitors      []*domain.Monitor       `json:"monitors"`
	History       []*domain.StatusRecord  `json:"history"`
	Settings      []*domain.Setting       `json:"settings"`
}

// ImportPreview is ImportData's report of what PersistImport would do,
// built without mutating storage, letting a host surface a confirmation dialog before the
// destructive PersistImport call.
type ImportPreview struct {
	Valid        bool     `json:"valid"`
	Issues       []string `json:"issues,omitempty"`
	SiteCount    int      `json:"siteCount"`
	MonitorCount int      `json:"monitorCount"`
}

// BackupMetadata describes a backup artifact: the raw database file plus
// a sidecar of everything needed to validate it before restoring, per
// spec §6's backup artifact format.
type BackupMetadata struct {
	SchemaVersion     int    `json:"schemaVersion"`
	AppVersion        string `json:"appVersion"`
	CreatedAtMs       int64  `json:"createdAtMs"`
	SizeBytes         int64  `json:"sizeBytes"`
	ChecksumHex       string `json:"checksumHex"`
	RetentionHintDays int    `json:"retentionHintDays"`
	OriginalPath      string `json:"originalPath"`
}

// DefaultRetentionHintDays is advisory metadata only; nothing in this
// package enforces it.
const DefaultRetentionHintDays = 30

// DatabaseManager implements export/import/backup/restore and history
// retention control (spec §4.9 DatabaseManager). Grounded on the
// teacher's storage package convention of driving everything through the
// single Engine-owned connection, extended with VACUUM INTO (SQLite's
// online hot-backup primitive) for DownloadBackup/RestoreBackup, which
// the teacher's GORM-based storage never needed since it never shipped a
// backup feature.
type DatabaseManager struct {
	log zerolog.Logger

	engine   *storage.Engine
	engOpts  storage.Options
	sites    *repository.SiteRepository
	monitors *repository.MonitorRepository
	history  *repository.HistoryRepository
	settings *repository.SettingsRepository
	bus      *eventbus.Bus

	appVersion string
}

// NewDatabaseManager constructs a DatabaseManager. engOpts must match the
// options the Engine was originally Initialize'd with, so RestoreBackup's
// Reopen call reapplies the same pragmas.
func NewDatabaseManager(engine *storage.Engine, engOpts storage.Options, sites *repository.SiteRepository,
	monitors *repository.MonitorRepository, history *repository.HistoryRepository,
	settings *repository.SettingsRepository, appVersion string, log zerolog.Logger) *DatabaseManager {
	return &DatabaseManager{
		log:        log.With().Str("component", "database_manager").Logger(),
		engine:     engine,
		engOpts:    engOpts,
		sites:      sites,
		monitors:   monitors,
		history:    history,
		settings:   settings,
		bus:        eventbus.New("database_manager", log),
		appVersion: appVersion,
	}
}

// Bus returns the manager's internal event bus for orchestrator forwarding.
func (m *DatabaseManager) Bus() *eventbus.Bus { return m.bus }

// ExportAll builds the full portable export payload.
func (m *DatabaseManager) ExportAll(ctx context.Context) (*ExportPayload, error) {
	sites, err := m.sites.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	payload := &ExportPayload{
		SchemaVersion: storage.CurrentSchemaVersion,
		AppVersion:    m.appVersion,
		CreatedAtMs:   time.Now().UnixMilli(),
	}
	for _, s := range sites {
		payload.Monitors = append(payload.Monitors, s.Monitors...)
		flat := *s
		flat.Monitors = nil
		payload.Sites = append(payload.Sites, &flat)
	}
	for _, mon := range payload.Monitors {
		recs, err := m.history.GetRecent(ctx, mon.ID, domain.DefaultHistoryLimit)
		if err != nil {
			return nil, err
		}
		payload.History = append(payload.History, recs...)
	}
	settings, err := m.settings.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range settings {
		if !domain.IsReservedSettingKey(s.Key) {
			payload.Settings = append(payload.Settings, s)
		}
	}
	return payload, nil
}

// ImportData validates a payload without mutating storage, per spec §4.9
// "validate-only preview, separate from the destructive persist step".
func (m *DatabaseManager) ImportData(ctx context.Context, payload *ExportPayload) (*ImportPreview, error) {
	preview := &ImportPreview{Valid: true}
	if payload.SchemaVersion > storage.CurrentSchemaVersion {
		preview.Valid = false
		preview.Issues = append(preview.Issues, "payload schema version is newer than this build supports")
	}
	seenSites := make(map[string]bool, len(payload.Sites))
	for _, s := range payload.Sites {
		if s.Identifier == "" {
			preview.Valid = false
			preview.Issues = append(preview.Issues, "a site in the payload is missing an identifier")
			continue
		}
		if seenSites[s.Identifier] {
			preview.Valid = false
			preview.Issues = append(preview.Issues, "duplicate site identifier in payload: "+s.Identifier)
		}
		seenSites[s.Identifier] = true
	}
	for _, mon := range payload.Monitors {
		if mon.ID == "" || mon.SiteIdentifier == "" {
			preview.Valid = false
			preview.Issues = append(preview.Issues, "a monitor in the payload is missing an id or site identifier")
			continue
		}
		if !seenSites[mon.SiteIdentifier] {
			preview.Valid = false
			preview.Issues = append(preview.Issues, "monitor "+mon.ID+" references an unknown site")
		}
	}
	preview.SiteCount = len(payload.Sites)
	preview.MonitorCount = len(payload.Monitors)
	return preview, nil
}

// PersistImport atomically replaces all sites, monitors, history and
// non-reserved settings with the payload's contents, inside a single
// transaction so a failure partway through never leaves storage with some
// state deleted and the rest un-replayed. Callers are expected to have
// already confirmed an ImportData preview.
func (m *DatabaseManager) PersistImport(ctx context.Context, payload *ExportPayload) error {
	byIdentifier := make(map[string]*domain.Site, len(payload.Sites))
	for _, s := range payload.Sites {
		cp := *s
		byIdentifier[s.Identifier] = &cp
	}
	for _, mon := range payload.Monitors {
		if site, ok := byIdentifier[mon.SiteIdentifier]; ok {
			site.Monitors = append(site.Monitors, mon)
		}
	}

	err := m.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
		if err := m.sites.DeleteAllInternal(ctx, tx); err != nil {
			return err
		}
		for _, s := range byIdentifier {
			if err := m.sites.UpsertInternal(ctx, tx, s); err != nil {
				return err
			}
			for _, mon := range s.Monitors {
				if err := m.monitors.UpsertInternal(ctx, tx, mon); err != nil {
					return err
				}
			}
		}
		prunedMonitors := make(map[string]bool)
		for _, rec := range payload.History {
			if err := m.history.AppendInternal(ctx, tx, rec); err != nil {
				return err
			}
			prunedMonitors[rec.MonitorID] = true
		}
		for monitorID := range prunedMonitors {
			if err := m.history.PruneInternal(ctx, tx, monitorID, domain.DefaultHistoryLimit); err != nil {
				return err
			}
		}
		existing, err := m.settings.GetAllInternal(ctx, tx)
		if err != nil {
			return err
		}
		for _, s := range existing {
			if domain.IsReservedSettingKey(s.Key) {
				continue
			}
			if err := m.settings.DeleteInternal(ctx, tx, s.Key); err != nil {
				return err
			}
		}
		for _, s := range payload.Settings {
			if domain.IsReservedSettingKey(s.Key) {
				continue
			}
			if err := m.settings.SetInternal(ctx, tx, s.Key, s.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.bus.Publish(EventDataImported, DataImportedEvent{
		SiteCount: len(payload.Sites), MonitorCount: len(payload.Monitors),
	}, "")
	return nil
}

// DownloadBackup snapshots the live database into destPath using
// SQLite's VACUUM INTO (a consistent, lock-free hot copy), then computes
// its SHA-256 checksum and size for the returned metadata, per spec §6's
// backup artifact format.
func (m *DatabaseManager) DownloadBackup(ctx context.Context, destPath string) (*BackupMetadata, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "failed to create backup directory", err)
	}
	_ = os.Remove(destPath)

	if _, err := m.engine.GetConnection().ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "failed to vacuum backup", err)
	}

	checksum, size, err := checksumFile(destPath)
	if err != nil {
		return nil, err
	}

	meta := &BackupMetadata{
		SchemaVersion:     storage.CurrentSchemaVersion,
		AppVersion:        m.appVersion,
		CreatedAtMs:       time.Now().UnixMilli(),
		SizeBytes:         size,
		ChecksumHex:       checksum,
		RetentionHintDays: DefaultRetentionHintDays,
		OriginalPath:      m.engine.Path(),
	}
	m.bus.Publish(EventBackupCreated, BackupEvent{Path: destPath, SizeBytes: size}, "")
	return meta, nil
}

// RestoreBackup validates a backup artifact's checksum, size, schema
// version and page integrity on the artifact itself, then copies it to a
// temporary file beside the live database, atomically renames that over
// the live file and reopens the Engine against the new file,
// per spec §6/§7: "fails closed on checksum mismatch, newer schema, or
// failed integrity check".
func (m *DatabaseManager) RestoreBackup(ctx context.Context, srcPath string, meta *BackupMetadata) error {
	checksum, size, err := checksumFile(srcPath)
	if err != nil {
		return err
	}
	if checksum != meta.ChecksumHex {
		return domain.NewErrorf(domain.CodeIntegrityFailed, "backup checksum mismatch")
	}
	if size != meta.SizeBytes {
		return domain.NewErrorf(domain.CodeIntegrityFailed, "backup size mismatch")
	}
	if meta.SchemaVersion > storage.CurrentSchemaVersion {
		return domain.NewErrorf(domain.CodeSchemaNewer,
			"backup schema version %d is newer than supported version %d", meta.SchemaVersion, storage.CurrentSchemaVersion)
	}
	if err := quickCheck(ctx, srcPath); err != nil {
		return err
	}

	livePath := m.engine.Path()
	staleBackup := livePath + ".pre-restore"
	if err := copyFile(livePath, staleBackup); err != nil {
		return domain.Wrap(domain.CodeInternal, "failed to snapshot current database before restore", err)
	}
	tmpPath := livePath + ".restore-tmp"
	if err := copyFile(srcPath, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return domain.Wrap(domain.CodeInternal, "failed to stage restored database", err)
	}
	if err := os.Rename(tmpPath, livePath); err != nil {
		_ = os.Remove(tmpPath)
		return domain.Wrap(domain.CodeInternal, "failed to install restored database", err)
	}

	if err := m.engine.Reopen(ctx, m.engOpts); err != nil {
		_ = copyFile(staleBackup, livePath)
		_ = m.engine.Reopen(ctx, m.engOpts)
		return domain.Wrap(domain.CodeInternal, "failed to reopen database after restore", err)
	}
	_ = os.Remove(staleBackup)

	m.bus.Publish(EventBackupRestored, BackupEvent{Path: srcPath, SizeBytes: size}, "")
	return nil
}

// SetHistoryLimit persists the new retention limit and prunes every
// monitor's existing history down to it immediately, rather than waiting
// for the next check cycle's own prune-on-append.
func (m *DatabaseManager) SetHistoryLimit(ctx context.Context, limit int) error {
	if limit <= 0 {
		return domain.NewErrorf(domain.CodeValidation, "history limit must be positive")
	}
	if err := m.settings.Set(ctx, domain.SettingHistoryLimit, strconv.Itoa(limit)); err != nil {
		return err
	}
	sites, err := m.sites.GetAll(ctx)
	if err != nil {
		return err
	}
	for _, s := range sites {
		for _, mon := range s.Monitors {
			if err := m.history.Prune(ctx, mon.ID, limit); err != nil {
				return err
			}
		}
	}
	m.bus.Publish(EventHistoryLimitSet, HistoryLimitSetEvent{Limit: limit}, "")
	return nil
}

func checksumFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, domain.Wrap(domain.CodeInternal, "failed to open file for checksum", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, domain.Wrap(domain.CodeInternal, "failed to checksum file", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// quickCheck opens path through storage.Initialize (which applies the usual
// pragmas, including WAL journaling, and creates any missing schema, so the
// file is opened read-write) and runs PRAGMA quick_check, failing closed
// per spec §7 INTEGRITY_FAILED.
func quickCheck(ctx context.Context, path string) error {
	opts := storage.Options{Path: path, BusyTimeout: 5 * time.Second}
	probe, err := storage.Initialize(ctx, opts, zerolog.Nop())
	if err != nil {
		return domain.Wrap(domain.CodeIntegrityFailed, "backup failed to open for integrity check", err)
	}
	defer probe.Close()

	var result string
	if err := probe.GetConnection().QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return domain.Wrap(domain.CodeIntegrityFailed, "backup integrity check failed", err)
	}
	if result != "ok" {
		return domain.NewErrorf(domain.CodeIntegrityFailed, "backup failed integrity check: %s", result)
	}
	return nil
}
