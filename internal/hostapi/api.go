// Package hostapi defines the Host Interface (spec §4.11) as a narrow Go
// interface, so adapters (httpapi's Gin binding, a future CLI, a desktop
// shell's IPC bridge) depend on a handful of methods rather than the
// orchestrator's concrete type and its full construction graph.
//
// Grounded on the teacher's internal/api/handlers.go Handler pattern
// (a thin struct wrapping the engine/storage it fronts), generalized
// from one concrete *core.Engine field into an interface so the binding
// package never needs to import internal/orchestrator directly.
package hostapi

import (
	"context"

	"watcherd/internal/domain"
	"watcherd/internal/eventbus"
	"watcherd/internal/managers"
	"watcherd/internal/monitortypes"
)

// API is the full Host Interface operation set. *orchestrator.Orchestrator
// satisfies this interface.
type API interface {
	GetAllSites(ctx context.Context) ([]*domain.Site, error)
	GetSite(ctx context.Context, identifier string) (*domain.Site, error)
	AddSite(ctx context.Context, site *domain.Site) (*domain.Site, error)
	UpdateSite(ctx context.Context, site *domain.Site) (*domain.Site, error)
	RemoveSite(ctx context.Context, identifier string) error

	AddMonitor(ctx context.Context, mon *domain.Monitor) error
	RemoveMonitor(ctx context.Context, monitorID string) error

	StartMonitoringForSite(ctx context.Context, siteIdentifier string) error
	StopMonitoringForSite(ctx context.Context, siteIdentifier string) error
	CheckSiteNow(ctx context.Context, siteIdentifier string) error
	CheckMonitorNow(ctx context.Context, monitorID string) error

	GetHistoryLimit(ctx context.Context) (int, error)
	UpdateHistoryLimit(ctx context.Context, limit int) error

	ExportData(ctx context.Context) (*managers.ExportPayload, error)
	PreviewImport(ctx context.Context, payload *managers.ExportPayload) (*managers.ImportPreview, error)
	PersistImport(ctx context.Context, payload *managers.ExportPayload) error
	DownloadBackup(ctx context.Context, destPath string) (*managers.BackupMetadata, error)
	RestoreBackup(ctx context.Context, srcPath string, meta *managers.BackupMetadata) error

	ListMonitorTypes() []monitortypes.SafeView

	PublicBus() *eventbus.Bus
}

// Subscribe registers handler for eventName on the API's public bus and
// returns an idempotent unsubscribe closure (spec §4.11 "event stream
// with deregistration closures").
func Subscribe(api API, eventName string, handler func(eventbus.Envelope)) func() {
	unsub := api.PublicBus().Subscribe(eventName, func(env eventbus.Envelope) error {
		handler(env)
		return nil
	})
	if unsub == nil {
		return func() {}
	}
	return unsub
}
