package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"watcherd/internal/checkexec"
	"watcherd/internal/domain"
	"watcherd/internal/eventbus"
	"watcherd/internal/repository"
)

// job is the in-memory scheduled state for one monitor, matching spec
// §4.8's job-state shape. Grounded on the teacher's core.ScheduledJob,
// replaced the fixed time.Ticker with a self-rearming time.Timer so each
// job's delay can change between runs (backoff, jitter, manual pre-empt)
// without recreating the ticker.
type job struct {
	mu sync.Mutex

	monitorID      string
	siteIdentifier string
	fields         map[string]string
	checker        checkexec.Checker

	baseIntervalMs int
	timeoutMs      int
	backoffAttempt int
	isRunning      bool
	needsReschedule bool
	paused         bool
	stopped        bool

	correlationID              string
	pendingManualCorrelationID string

	previousStatus domain.MonitorStatus

	timer *time.Timer

	ctx    context.Context
	cancel context.CancelFunc

	bus      *eventbus.Bus
	history  *repository.HistoryRepository
	monitors *repository.MonitorRepository
	cfg      schedulerTuning
}

// schedulerTuning is the subset of config.SchedulerConfig/EngineConfig a
// job needs, copied in rather than holding the whole Config to keep job
// independent of the config package's import surface.
type schedulerTuning struct {
	maxBackoffMs    int
	jitterFraction  float64
	timeoutBufferMs int
	historyLimit    int
}

func newJob(parent context.Context, m *domain.Monitor, checker checkexec.Checker, bus *eventbus.Bus,
	history *repository.HistoryRepository, monitors *repository.MonitorRepository, cfg schedulerTuning) *job {
	ctx, cancel := context.WithCancel(parent)
	return &job{
		monitorID:      m.ID,
		siteIdentifier: m.SiteIdentifier,
		fields:         m.Fields,
		checker:        checker,
		baseIntervalMs: m.CheckIntervalMs,
		timeoutMs:      m.TimeoutMs,
		previousStatus: m.Status,
		ctx:            ctx,
		cancel:         cancel,
		bus:            bus,
		history:        history,
		monitors:       monitors,
		cfg:            cfg,
	}
}

// start arms the job's first run after a jittered initial delay (spec
// §4.8 "initial delays ... independently jittered to avoid a thundering
// herd"), unless immediate is true (used for manual pre-emption paths
// like resuming from pause).
func (j *job) start(immediate bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stopped || j.paused {
		return
	}
	delay := 0
	if !immediate {
		delay = computeDelay(j.baseIntervalMs, 0, j.cfg.maxBackoffMs, j.cfg.jitterFraction)
	}
	j.armLocked(delay)
}

// armLocked schedules fire to run after delayMs. Caller holds j.mu.
func (j *job) armLocked(delayMs int) {
	if j.stopped {
		return
	}
	if j.timer != nil {
		j.timer.Stop()
	}
	j.timer = time.AfterFunc(time.Duration(delayMs)*time.Millisecond, j.fire)
}

// stop permanently disarms the job; it will never fire again.
func (j *job) stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopped = true
	if j.timer != nil {
		j.timer.Stop()
	}
	j.cancel()
}

// pause disarms the timer without marking the job stopped; backoffAttempt
// stops growing while paused (spec §4.8 Pause/resume).
func (j *job) pause() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.paused = true
	if j.timer != nil {
		j.timer.Stop()
	}
}

// resume re-arms the job immediately, per spec "schedule the next run
// immediately ... then resume normal jitter".
func (j *job) resume() {
	j.mu.Lock()
	j.paused = false
	j.mu.Unlock()
	j.start(true)
}

// queueManual implements spec §4.8's manual-check pre-emption rules.
func (j *job) queueManual() {
	j.mu.Lock()
	if j.stopped {
		j.mu.Unlock()
		return
	}
	if j.isRunning {
		j.pendingManualCorrelationID = uuid.NewString()
		j.mu.Unlock()
		return
	}
	if j.timer != nil {
		j.timer.Stop()
	}
	j.backoffAttempt = 0
	j.isRunning = true
	corrID := uuid.NewString()
	j.correlationID = corrID
	j.mu.Unlock()

	j.bus.Publish(EventManualCheckStarted, ManualCheckStartedEvent{
		MonitorID: j.monitorID, SiteIdentifier: j.siteIdentifier,
	}, corrID)
	j.runCycle(corrID, true)
}

// fire is the timer callback: the normal scheduled run path.
func (j *job) fire() {
	j.mu.Lock()
	if j.stopped || j.paused {
		j.mu.Unlock()
		return
	}
	if j.isRunning {
		j.needsReschedule = true
		j.mu.Unlock()
		return
	}
	j.isRunning = true
	corrID := uuid.NewString()
	j.correlationID = corrID
	j.mu.Unlock()

	j.runCycle(corrID, false)
}

// runCycle executes one checker invocation and its full settle sequence
// (spec §4.8 "Run cycle"): start event, timeout-bounded check, history
// append, status-change detection, completion event, backoff update,
// then either an immediately-queued manual run or the next scheduled
// arm.
func (j *job) runCycle(correlationID string, manual bool) {
	j.bus.Publish(EventCheckStarted, CheckStartedEvent{
		MonitorID: j.monitorID, SiteIdentifier: j.siteIdentifier,
	}, correlationID)

	deadline := time.Duration(j.timeoutMs+j.cfg.timeoutBufferMs) * time.Millisecond
	runCtx, cancel := context.WithTimeout(j.ctx, deadline)
	start := time.Now()
	result := j.checker.Check(runCtx, j.fields)
	timedOut := runCtx.Err() == context.DeadlineExceeded
	cancel()
	duration := time.Since(start).Milliseconds()

	rec := &domain.StatusRecord{
		MonitorID:      j.monitorID,
		TimestampMs:    time.Now().UnixMilli(),
		Status:         result.Status,
		ResponseTimeMs: result.ResponseTimeMs,
		Details:        result.Details,
	}
	_ = j.history.Append(j.ctx, rec, j.cfg.historyLimit)

	newStatus := domain.StatusDown
	if result.Status == domain.HistoryUp {
		newStatus = domain.StatusUp
	}

	j.mu.Lock()
	previous := j.previousStatus
	j.previousStatus = newStatus
	j.mu.Unlock()

	if previous != newStatus {
		_ = j.monitors.UpdateStatus(j.ctx, j.monitorID, newStatus, time.Now().UnixMilli())
		j.bus.Publish(EventStatusChanged, StatusChangedEvent{
			MonitorID: j.monitorID, SiteIdentifier: j.siteIdentifier,
			Previous: previous, Current: newStatus,
		}, correlationID)
		if newStatus == domain.StatusUp {
			j.bus.Publish(EventUp, CheckCompletedEvent{
				MonitorID: j.monitorID, SiteIdentifier: j.siteIdentifier, Status: result.Status, DurationMs: duration,
			}, correlationID)
		} else {
			j.bus.Publish(EventDown, CheckCompletedEvent{
				MonitorID: j.monitorID, SiteIdentifier: j.siteIdentifier, Status: result.Status, DurationMs: duration,
			}, correlationID)
		}
	}

	j.bus.Publish(EventCheckCompleted, CheckCompletedEvent{
		MonitorID: j.monitorID, SiteIdentifier: j.siteIdentifier, Status: result.Status, DurationMs: duration,
	}, correlationID)

	if timedOut {
		j.bus.Publish(EventTimeout, TimeoutEvent{MonitorID: j.monitorID, SiteIdentifier: j.siteIdentifier}, correlationID)
	}

	j.settle(manual, result.Status == domain.HistoryUp)
}

// settle updates backoff/run-state and decides what happens next: an
// immediately-pending manual check, an already-queued reschedule, or a
// normal jittered re-arm.
func (j *job) settle(wasManual, wasUp bool) {
	j.mu.Lock()
	if !wasManual {
		if wasUp {
			j.backoffAttempt = 0
		} else {
			maxAttempt := maxBackoffAttempt(j.baseIntervalMs, j.cfg.maxBackoffMs)
			if j.backoffAttempt < maxAttempt {
				j.backoffAttempt++
			}
		}
	}
	j.isRunning = false
	pending := j.pendingManualCorrelationID
	j.pendingManualCorrelationID = ""
	reschedule := j.needsReschedule
	j.needsReschedule = false
	stopped := j.stopped
	paused := j.paused
	j.mu.Unlock()

	if stopped {
		return
	}
	if pending != "" {
		j.mu.Lock()
		j.isRunning = true
		j.correlationID = pending
		j.mu.Unlock()
		j.bus.Publish(EventManualCheckStarted, ManualCheckStartedEvent{
			MonitorID: j.monitorID, SiteIdentifier: j.siteIdentifier,
		}, pending)
		j.runCycle(pending, true)
		return
	}
	if paused {
		return
	}

	j.mu.Lock()
	delay := computeDelay(j.baseIntervalMs, j.backoffAttempt, j.cfg.maxBackoffMs, j.cfg.jitterFraction)
	if reschedule {
		delay = 0
	}
	j.armLocked(delay)
	j.mu.Unlock()
}
