package scheduler

import "watcherd/internal/domain"

// Event names published on the scheduler's bus (spec §4.8 run cycle).
const (
	EventCheckStarted       = "monitor:check-started"
	EventCheckCompleted     = "monitor:check-completed"
	EventStatusChanged      = "monitor:status-changed"
	EventUp                 = "monitor:up"
	EventDown               = "monitor:down"
	EventTimeout            = "monitor:timeout"
	EventManualCheckStarted = "monitor:manual-check-started"
)

// CheckStartedEvent is published at the top of every run cycle.
type CheckStartedEvent struct {
	MonitorID      string
	SiteIdentifier string
}

// CheckCompletedEvent is published once a run settles, successful or not.
type CheckCompletedEvent struct {
	MonitorID      string
	SiteIdentifier string
	Status         domain.HistoryStatus
	DurationMs     int64
}

// StatusChangedEvent is published only when the monitor's persisted
// status actually flips.
type StatusChangedEvent struct {
	MonitorID      string
	SiteIdentifier string
	Previous       domain.MonitorStatus
	Current        domain.MonitorStatus
}

// TimeoutEvent is published when a checker run is aborted by the
// scheduler's timeout+buffer deadline.
type TimeoutEvent struct {
	MonitorID      string
	SiteIdentifier string
}

// ManualCheckStartedEvent is published whenever a manual check actually
// begins executing (not merely queued).
type ManualCheckStartedEvent struct {
	MonitorID      string
	SiteIdentifier string
}
