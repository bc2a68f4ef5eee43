package orchestrator

import (
	"context"
	"strconv"

	"watcherd/internal/domain"
	"watcherd/internal/managers"
	"watcherd/internal/monitortypes"
)

// The methods below implement the Host Interface operation set of spec
// §4.11, thin enough that internal/hostapi's adapters need only bind a
// transport (Go call, HTTP route, ...) to each one.

// GetAllSites implements sites.getAll.
func (o *Orchestrator) GetAllSites(ctx context.Context) ([]*domain.Site, error) {
	return o.siteMgr.GetAll(ctx)
}

// GetSite implements sites.get.
func (o *Orchestrator) GetSite(ctx context.Context, identifier string) (*domain.Site, error) {
	return o.siteMgr.GetByIdentifier(ctx, identifier)
}

// AddSite implements sites.add.
func (o *Orchestrator) AddSite(ctx context.Context, site *domain.Site) (*domain.Site, error) {
	return o.siteMgr.AddSite(ctx, site)
}

// UpdateSite implements sites.update.
func (o *Orchestrator) UpdateSite(ctx context.Context, site *domain.Site) (*domain.Site, error) {
	return o.siteMgr.UpdateSite(ctx, site)
}

// RemoveSite implements sites.remove.
func (o *Orchestrator) RemoveSite(ctx context.Context, identifier string) error {
	return o.siteMgr.RemoveSite(ctx, identifier)
}

// AddMonitor implements monitors.add.
func (o *Orchestrator) AddMonitor(ctx context.Context, mon *domain.Monitor) error {
	if _, err := o.registry.Validate(mon.Type, mon.Fields); err != nil {
		return err
	}
	return o.monitorMgr.AddMonitorToSite(ctx, mon)
}

// RemoveMonitor implements monitors.remove.
func (o *Orchestrator) RemoveMonitor(ctx context.Context, monitorID string) error {
	return o.monitorMgr.RemoveMonitor(ctx, monitorID)
}

// StartMonitoringForSite implements monitoring.startForSite.
func (o *Orchestrator) StartMonitoringForSite(ctx context.Context, siteIdentifier string) error {
	return o.monitorMgr.StartMonitoringForSite(ctx, siteIdentifier)
}

// StopMonitoringForSite implements monitoring.stopForSite.
func (o *Orchestrator) StopMonitoringForSite(ctx context.Context, siteIdentifier string) error {
	return o.monitorMgr.StopMonitoringForSite(ctx, siteIdentifier)
}

// CheckSiteNow implements monitoring.checkNow for a whole site.
func (o *Orchestrator) CheckSiteNow(ctx context.Context, siteIdentifier string) error {
	return o.monitorMgr.CheckSiteNow(ctx, siteIdentifier)
}

// CheckMonitorNow implements monitoring.checkNow for a single monitor.
func (o *Orchestrator) CheckMonitorNow(ctx context.Context, monitorID string) error {
	return o.monitorMgr.CheckMonitorNow(monitorID)
}

// GetHistoryLimit implements settings.getHistoryLimit.
func (o *Orchestrator) GetHistoryLimit(ctx context.Context) (int, error) {
	value, err := o.settings.Get(ctx, domain.SettingHistoryLimit)
	if domain.IsCode(err, domain.CodeNotFound) {
		return domain.DefaultHistoryLimit, nil
	}
	if err != nil {
		return 0, err
	}
	limit, convErr := strconv.Atoi(value)
	if convErr != nil || limit <= 0 {
		return domain.DefaultHistoryLimit, nil
	}
	return limit, nil
}

// UpdateHistoryLimit implements settings.updateHistoryLimit.
func (o *Orchestrator) UpdateHistoryLimit(ctx context.Context, limit int) error {
	return o.dbMgr.SetHistoryLimit(ctx, limit)
}

// ExportData implements data.export.
func (o *Orchestrator) ExportData(ctx context.Context) (*managers.ExportPayload, error) {
	return o.dbMgr.ExportAll(ctx)
}

// PreviewImport implements the validate-only half of data.import.
func (o *Orchestrator) PreviewImport(ctx context.Context, payload *managers.ExportPayload) (*managers.ImportPreview, error) {
	return o.dbMgr.ImportData(ctx, payload)
}

// PersistImport implements the destructive half of data.import, expected
// to run only after a caller has confirmed a PreviewImport result.
func (o *Orchestrator) PersistImport(ctx context.Context, payload *managers.ExportPayload) error {
	return o.dbMgr.PersistImport(ctx, payload)
}

// DownloadBackup implements data.backup.download.
func (o *Orchestrator) DownloadBackup(ctx context.Context, destPath string) (*managers.BackupMetadata, error) {
	return o.dbMgr.DownloadBackup(ctx, destPath)
}

// RestoreBackup implements data.backup.restore.
func (o *Orchestrator) RestoreBackup(ctx context.Context, srcPath string, meta *managers.BackupMetadata) error {
	return o.dbMgr.RestoreBackup(ctx, srcPath, meta)
}

// ListMonitorTypes implements monitorTypes.list.
func (o *Orchestrator) ListMonitorTypes() []monitortypes.SafeView {
	return o.registry.List()
}

