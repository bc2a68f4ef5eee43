package managers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"watcherd/internal/domain"
	"watcherd/internal/eventbus"
	"watcherd/internal/repository"
	"watcherd/internal/scheduler"
)

// MonitorManager bridges persisted monitor state and the in-memory
// scheduler: starting/stopping monitoring for a site's monitors, wiring
// newly created monitors into the scheduler, and dispatching manual
// checks. Grounded on the teacher's core.Engine.scheduleCheck (resolve a
// persisted definition, hand it to the scheduler, log and continue on a
// single failure rather than aborting the whole batch).
type MonitorManager struct {
	log zerolog.Logger

	monitors *repository.MonitorRepository
	sched    *scheduler.Scheduler
	bus      *eventbus.Bus
}

// NewMonitorManager constructs a MonitorManager with its own internal bus.
func NewMonitorManager(monitors *repository.MonitorRepository, sched *scheduler.Scheduler, log zerolog.Logger) *MonitorManager {
	return &MonitorManager{
		log:      log.With().Str("component", "monitor_manager").Logger(),
		monitors: monitors,
		sched:    sched,
		bus:      eventbus.New("monitor_manager", log),
	}
}

// Bus returns the manager's internal event bus for orchestrator forwarding.
func (m *MonitorManager) Bus() *eventbus.Bus { return m.bus }

// SetupNewMonitors hands each monitoring-enabled monitor among freshly
// added ones to the scheduler; it writes nothing to storage.
// Grounded on teacher's Engine.Start: iterate, log and continue per item
// rather than abort on a single scheduling failure.
func (m *MonitorManager) SetupNewMonitors(ctx context.Context, monitors []*domain.Monitor) {
	for _, mon := range monitors {
		if !mon.Monitoring {
			continue
		}
		if err := m.sched.AddMonitor(mon); err != nil {
			m.log.Warn().Err(err).Str("monitor_id", mon.ID).Msg("failed to schedule new monitor")
			continue
		}
		m.bus.Publish(EventMonitorAdded, MonitorEvent{MonitorID: mon.ID, SiteIdentifier: mon.SiteIdentifier}, "")
	}
}

// teardownMonitor removes a monitor's scheduler job unconditionally, used
// by SiteManager ahead of a monitor/site delete.
func (m *MonitorManager) teardownMonitor(monitorID string) {
	m.sched.RemoveMonitor(monitorID)
}

// restartMonitor stops and re-adds a monitor's job so schedule-affecting
// field changes (interval, timeout, type-specific fields) take effect
// immediately, matching spec §4.8 "On UpdateMonitor, the old job is
// stopped and replaced with a fresh one".
func (m *MonitorManager) restartMonitor(mon *domain.Monitor) {
	if err := m.sched.UpdateMonitor(mon); err != nil {
		m.log.Warn().Err(err).Str("monitor_id", mon.ID).Msg("failed to reschedule updated monitor")
	}
}

// StartMonitoringForSite flips monitoring=true for every monitor of a
// site and schedules each one.
func (m *MonitorManager) StartMonitoringForSite(ctx context.Context, siteIdentifier string) error {
	mons, err := m.monitors.GetBySite(ctx, siteIdentifier)
	if err != nil {
		return err
	}
	if len(mons) == 0 {
		return domain.NewErrorf(domain.CodeNoMonitors, "site %q has no monitors", siteIdentifier)
	}
	now := time.Now().UnixMilli()
	for _, mon := range mons {
		if mon.Monitoring {
			continue
		}
		mon.Monitoring = true
		mon.UpdatedAt = now
		if err := m.monitors.Upsert(ctx, mon); err != nil {
			return err
		}
		if err := m.sched.AddMonitor(mon); err != nil {
			m.log.Warn().Err(err).Str("monitor_id", mon.ID).Msg("failed to schedule monitor on start")
		}
	}
	m.bus.Publish(EventMonitoringStarted, MonitoringScopeEvent{SiteIdentifier: siteIdentifier, MonitorCount: len(mons)}, "")
	return nil
}

// StopMonitoringForSite flips monitoring=false for every monitor of a
// site and unschedules each one. Per spec §4.8, stopping removes the job
// entirely rather than pausing it — monitoring must be restarted via
// StartMonitoringForSite, which re-adds fresh jobs.
func (m *MonitorManager) StopMonitoringForSite(ctx context.Context, siteIdentifier string) error {
	mons, err := m.monitors.GetBySite(ctx, siteIdentifier)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for _, mon := range mons {
		if !mon.Monitoring {
			continue
		}
		mon.Monitoring = false
		mon.UpdatedAt = now
		if err := m.monitors.Upsert(ctx, mon); err != nil {
			return err
		}
		m.sched.RemoveMonitor(mon.ID)
	}
	m.bus.Publish(EventMonitoringStopped, MonitoringScopeEvent{SiteIdentifier: siteIdentifier, MonitorCount: len(mons)}, "")
	return nil
}

// AddMonitorToSite persists a new monitor for an existing site and
// schedules it immediately if monitoring is enabled.
func (m *MonitorManager) AddMonitorToSite(ctx context.Context, mon *domain.Monitor) error {
	now := time.Now().UnixMilli()
	mon.Status = domain.StatusPending
	mon.CreatedAt = now
	mon.UpdatedAt = now
	if mon.CheckIntervalMs < domain.MinCheckIntervalMs {
		mon.CheckIntervalMs = domain.MinCheckIntervalMs
	}
	if mon.TimeoutMs <= 0 {
		mon.TimeoutMs = domain.DefaultTimeoutMs
	}
	if err := m.monitors.Upsert(ctx, mon); err != nil {
		return err
	}
	m.SetupNewMonitors(ctx, []*domain.Monitor{mon})
	return nil
}

// RemoveMonitor unschedules and deletes a single monitor (spec §4.11
// monitors.remove).
func (m *MonitorManager) RemoveMonitor(ctx context.Context, monitorID string) error {
	m.teardownMonitor(monitorID)
	if err := m.monitors.Delete(ctx, monitorID); err != nil {
		return err
	}
	m.bus.Publish(EventMonitorRemoved, MonitorEvent{MonitorID: monitorID}, "")
	return nil
}

// CheckMonitorNow pre-empts a single monitor for an immediate manual run.
func (m *MonitorManager) CheckMonitorNow(monitorID string) error {
	return m.sched.TriggerManualCheck(monitorID)
}

// CheckSiteNow pre-empts every monitoring-enabled monitor of a site for an
// immediate manual run (spec §4.8 Manual checks), skipping monitors that
// aren't currently scheduled rather than failing the whole batch.
func (m *MonitorManager) CheckSiteNow(ctx context.Context, siteIdentifier string) error {
	mons, err := m.monitors.GetBySite(ctx, siteIdentifier)
	if err != nil {
		return err
	}
	var triggered int
	for _, mon := range mons {
		if !mon.Monitoring {
			continue
		}
		if err := m.sched.TriggerManualCheck(mon.ID); err != nil {
			m.log.Debug().Err(err).Str("monitor_id", mon.ID).Msg("manual check skipped, not scheduled")
			continue
		}
		triggered++
	}
	if triggered == 0 {
		return domain.NewErrorf(domain.CodeNoMonitors, "site %q has no monitoring-enabled monitors to check", siteIdentifier)
	}
	return nil
}
