package httpapi

import (
	"context"

	"watcherd/internal/domain"
	"watcherd/internal/eventbus"
	"watcherd/internal/managers"
	"watcherd/internal/monitortypes"
)

// fakeAPI is a hand-rolled hostapi.API double: no mocking framework is
// wired into this repo's dependency set, so handler tests exercise the
// Gin binding against a minimal in-memory stand-in, the way the teacher's
// own tests construct plain structs rather than reaching for a mock lib.
type fakeAPI struct {
	sites   map[string]*domain.Site
	bus     *eventbus.Bus
	limit   int
	lastErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		sites: make(map[string]*domain.Site),
		bus:   eventbus.New("public", testLogger()),
		limit: 100,
	}
}

func (f *fakeAPI) GetAllSites(ctx context.Context) ([]*domain.Site, error) {
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	var out []*domain.Site
	for _, s := range f.sites {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeAPI) GetSite(ctx context.Context, identifier string) (*domain.Site, error) {
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	s, ok := f.sites[identifier]
	if !ok {
		return nil, domain.NewErrorf(domain.CodeNotFound, "site %q not found", identifier)
	}
	return s, nil
}

func (f *fakeAPI) AddSite(ctx context.Context, site *domain.Site) (*domain.Site, error) {
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	if _, exists := f.sites[site.Identifier]; exists {
		return nil, domain.NewErrorf(domain.CodeDuplicateSiteIdentifier, "site %q already exists", site.Identifier)
	}
	f.sites[site.Identifier] = site
	return site, nil
}

func (f *fakeAPI) UpdateSite(ctx context.Context, site *domain.Site) (*domain.Site, error) {
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	f.sites[site.Identifier] = site
	return site, nil
}

func (f *fakeAPI) RemoveSite(ctx context.Context, identifier string) error {
	if f.lastErr != nil {
		return f.lastErr
	}
	delete(f.sites, identifier)
	return nil
}

func (f *fakeAPI) AddMonitor(ctx context.Context, mon *domain.Monitor) error { return f.lastErr }
func (f *fakeAPI) RemoveMonitor(ctx context.Context, monitorID string) error { return f.lastErr }

func (f *fakeAPI) StartMonitoringForSite(ctx context.Context, siteIdentifier string) error {
	return f.lastErr
}
func (f *fakeAPI) StopMonitoringForSite(ctx context.Context, siteIdentifier string) error {
	return f.lastErr
}
func (f *fakeAPI) CheckSiteNow(ctx context.Context, siteIdentifier string) error { return f.lastErr }
func (f *fakeAPI) CheckMonitorNow(ctx context.Context, monitorID string) error  { return f.lastErr }

func (f *fakeAPI) GetHistoryLimit(ctx context.Context) (int, error) {
	return f.limit, f.lastErr
}
func (f *fakeAPI) UpdateHistoryLimit(ctx context.Context, limit int) error {
	if f.lastErr != nil {
		return f.lastErr
	}
	f.limit = limit
	return nil
}

func (f *fakeAPI) ExportData(ctx context.Context) (*managers.ExportPayload, error) {
	return &managers.ExportPayload{}, f.lastErr
}
func (f *fakeAPI) PreviewImport(ctx context.Context, payload *managers.ExportPayload) (*managers.ImportPreview, error) {
	return &managers.ImportPreview{}, f.lastErr
}
func (f *fakeAPI) PersistImport(ctx context.Context, payload *managers.ExportPayload) error {
	return f.lastErr
}
func (f *fakeAPI) DownloadBackup(ctx context.Context, destPath string) (*managers.BackupMetadata, error) {
	return &managers.BackupMetadata{}, f.lastErr
}
func (f *fakeAPI) RestoreBackup(ctx context.Context, srcPath string, meta *managers.BackupMetadata) error {
	return f.lastErr
}

func (f *fakeAPI) ListMonitorTypes() []monitortypes.SafeView { return nil }

func (f *fakeAPI) PublicBus() *eventbus.Bus { return f.bus }
