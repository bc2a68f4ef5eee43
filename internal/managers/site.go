// Package managers implements the Host Interface's three managers (C9):
// SiteManager, MonitorManager and DatabaseManager. Each owns its own
// eventbus.Bus rather than publishing on a single shared bus directly, so
// the orchestrator (C10) can subscribe once per manager and rewrite/
// forward a fixed subset of events onto the public bus — the same
// separation the teacher keeps between its alert.Manager and core.Engine.
//
// Grounded on the teacher's internal/core/engine.go composition (Engine
// holding config/storage/scheduler/alerter/checker as named fields wired
// at construction) generalized from one monolithic Engine into three
// narrower managers, each with the single responsibility spec §4.9 gives
// it.
package managers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"watcherd/internal/cache"
	"watcherd/internal/domain"
	"watcherd/internal/eventbus"
	"watcherd/internal/repository"
	"watcherd/internal/storage"
)

// SiteManager owns site lifecycle: validation, persistence, cache
// coherence, and delegating monitor scheduling to a MonitorManager.
type SiteManager struct {
	log zerolog.Logger

	engine   *storage.Engine
	sites    *repository.SiteRepository
	monitors *repository.MonitorRepository
	cache    *cache.Cache[*domain.Site]
	bus      *eventbus.Bus

	// monitorMgr is wired after construction via SetMonitorManager to
	// break the construction-order cycle (MonitorManager doesn't need a
	// SiteManager back-reference, but SiteManager needs MonitorManager
	// to schedule monitors a new/updated site brings with it).
	monitorMgr *MonitorManager
}

// NewSiteManager constructs a SiteManager with its own internal bus.
func NewSiteManager(engine *storage.Engine, sites *repository.SiteRepository, monitors *repository.MonitorRepository,
	siteCache *cache.Cache[*domain.Site], log zerolog.Logger) *SiteManager {
	return &SiteManager{
		log:      log.With().Str("component", "site_manager").Logger(),
		engine:   engine,
		sites:    sites,
		monitors: monitors,
		cache:    siteCache,
		bus:      eventbus.New("site_manager", log),
	}
}

// validateMonitorSet enforces spec §3/§4.9: a site must carry at least one
// monitor, and monitor IDs must be unique within the site.
func validateMonitorSet(monitors []*domain.Monitor) error {
	if len(monitors) == 0 {
		return domain.NewErrorf(domain.CodeNoMonitors, "a site must have at least one monitor")
	}
	seen := make(map[string]bool, len(monitors))
	for _, mon := range monitors {
		if mon.ID == "" {
			continue
		}
		if seen[mon.ID] {
			return domain.NewErrorf(domain.CodeDuplicateMonitorID, "duplicate monitor id %q within site", mon.ID)
		}
		seen[mon.ID] = true
	}
	return nil
}

// Bus returns the manager's internal event bus for orchestrator forwarding.
func (m *SiteManager) Bus() *eventbus.Bus { return m.bus }

// SetMonitorManager wires the MonitorManager collaborator after both
// managers have been constructed.
func (m *SiteManager) SetMonitorManager(mm *MonitorManager) { m.monitorMgr = mm }

// AddSite validates, persists, and schedules a new site with its embedded
// monitors (spec §4.9 SiteManager.AddSite). Each embedded monitor is
// assigned an ID and starts in StatusPending.
func (m *SiteManager) AddSite(ctx context.Context, site *domain.Site) (*domain.Site, error) {
	site.Normalize()
	if site.Identifier == "" {
		return nil, domain.NewErrorf(domain.CodeValidation, "site identifier is required")
	}
	if site.Name == "" {
		return nil, domain.NewErrorf(domain.CodeValidation, "site name is required")
	}
	if err := validateMonitorSet(site.Monitors); err != nil {
		return nil, err
	}
	if _, err := m.sites.GetByIdentifier(ctx, site.Identifier); err == nil {
		return nil, domain.NewErrorf(domain.CodeDuplicateSiteIdentifier, "site %q already exists", site.Identifier)
	}

	now := time.Now().UnixMilli()
	site.CreatedAt = now
	site.UpdatedAt = now
	for _, mon := range site.Monitors {
		if mon.ID == "" {
			mon.ID = uuid.NewString()
		}
		mon.SiteIdentifier = site.Identifier
		mon.Status = domain.StatusPending
		mon.CreatedAt = now
		mon.UpdatedAt = now
		if mon.CheckIntervalMs < domain.MinCheckIntervalMs {
			mon.CheckIntervalMs = domain.MinCheckIntervalMs
		}
		if mon.TimeoutMs <= 0 {
			mon.TimeoutMs = domain.DefaultTimeoutMs
		}
	}

	err := m.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
		if err := m.sites.UpsertInternal(ctx, tx, site); err != nil {
			return err
		}
		for _, mon := range site.Monitors {
			if err := m.monitors.UpsertInternal(ctx, tx, mon); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.cache.Set(site.Identifier, site.Clone())
	m.bus.Publish(EventSiteAdded, SiteEvent{Identifier: site.Identifier}, "")

	if m.monitorMgr != nil {
		m.monitorMgr.SetupNewMonitors(ctx, site.Monitors)
	}
	return site, nil
}

// UpdateSite replaces a site's mutable fields and reconciles its monitor
// set (spec §4.9 "diff monitor set, hooks for new monitors"): monitors
// absent from the new set are removed and unscheduled, new monitors are
// persisted and scheduled, and existing monitors keep their status and
// scheduler job (restarted only if their definition changed).
func (m *SiteManager) UpdateSite(ctx context.Context, site *domain.Site) (*domain.Site, error) {
	site.Normalize()
	existing, err := m.sites.GetByIdentifier(ctx, site.Identifier)
	if err != nil {
		return nil, err
	}
	if err := validateMonitorSet(site.Monitors); err != nil {
		return nil, err
	}

	site.CreatedAt = existing.CreatedAt
	site.UpdatedAt = time.Now().UnixMilli()

	existingByID := make(map[string]*domain.Monitor, len(existing.Monitors))
	for _, mon := range existing.Monitors {
		existingByID[mon.ID] = mon
	}

	var added, changed []*domain.Monitor
	keep := make(map[string]bool, len(site.Monitors))
	for _, mon := range site.Monitors {
		mon.SiteIdentifier = site.Identifier
		if mon.ID == "" {
			mon.ID = uuid.NewString()
			mon.Status = domain.StatusPending
			mon.CreatedAt = site.UpdatedAt
			mon.UpdatedAt = site.UpdatedAt
			added = append(added, mon)
		} else if prev, ok := existingByID[mon.ID]; ok {
			mon.Status = prev.Status
			mon.CreatedAt = prev.CreatedAt
			mon.UpdatedAt = site.UpdatedAt
			if monitorDefinitionChanged(prev, mon) {
				changed = append(changed, mon)
			}
		}
		keep[mon.ID] = true
	}

	var removed []*domain.Monitor
	for id, mon := range existingByID {
		if !keep[id] {
			removed = append(removed, mon)
		}
	}

	err = m.engine.ExecuteTransaction(ctx, func(ctx context.Context, tx *storage.Tx) error {
		if err := m.sites.UpsertInternal(ctx, tx, site); err != nil {
			return err
		}
		for _, mon := range site.Monitors {
			if err := m.monitors.UpsertInternal(ctx, tx, mon); err != nil {
				return err
			}
		}
		for _, mon := range removed {
			if err := m.monitors.DeleteInternal(ctx, tx, mon.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.cache.Set(site.Identifier, site.Clone())
	m.bus.Publish(EventSiteUpdated, SiteEvent{Identifier: site.Identifier}, "")

	if m.monitorMgr != nil {
		for _, mon := range removed {
			m.monitorMgr.teardownMonitor(mon.ID)
		}
		m.monitorMgr.SetupNewMonitors(ctx, added)
		for _, mon := range changed {
			m.monitorMgr.restartMonitor(mon)
		}
	}
	return site, nil
}

// monitorDefinitionChanged reports whether a monitor's schedulable
// properties differ, meaning its scheduler job must be rebuilt rather
// than left running against stale fields.
func monitorDefinitionChanged(prev, next *domain.Monitor) bool {
	if prev.Type != next.Type || prev.CheckIntervalMs != next.CheckIntervalMs ||
		prev.TimeoutMs != next.TimeoutMs || prev.Monitoring != next.Monitoring {
		return true
	}
	if len(prev.Fields) != len(next.Fields) {
		return true
	}
	for k, v := range next.Fields {
		if prev.Fields[k] != v {
			return true
		}
	}
	return false
}

// RemoveSite stops scheduling every monitor belonging to the site before
// the cascading delete commits, per spec §4.9 "stop scheduler jobs before
// commit".
func (m *SiteManager) RemoveSite(ctx context.Context, identifier string) error {
	site, err := m.sites.GetByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}

	if m.monitorMgr != nil {
		for _, mon := range site.Monitors {
			m.monitorMgr.teardownMonitor(mon.ID)
		}
	}

	if err := m.sites.Delete(ctx, identifier); err != nil {
		return err
	}
	m.cache.Delete(identifier)
	m.bus.Publish(EventSiteRemoved, SiteEvent{Identifier: identifier}, "")
	return nil
}

// GetAll returns every site read from the repository and refreshes the
// cache entry of each; the cache is not consulted on this path.
func (m *SiteManager) GetAll(ctx context.Context) ([]*domain.Site, error) {
	sites, err := m.sites.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range sites {
		m.cache.Set(s.Identifier, s.Clone())
	}
	return sites, nil
}

// GetByIdentifier returns a single site, checking the cache first.
func (m *SiteManager) GetByIdentifier(ctx context.Context, identifier string) (*domain.Site, error) {
	if cached, ok := m.cache.Get(identifier); ok {
		return cached, nil
	}
	site, err := m.sites.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	m.cache.Set(identifier, site.Clone())
	return site, nil
}
