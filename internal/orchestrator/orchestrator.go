// Package orchestrator is the composition root (C10): it wires storage,
// repositories, the monitor type registry, the scheduler, and the three
// managers together, forwards their internal events onto one public bus
// under host-facing names, and exposes the operations the Host Interface
// (spec §4.11) dispatches into.
//
// Grounded on the teacher's internal/core/engine.go Engine (a single
// struct holding config/storage/scheduler/alerter/checker, with
// Start/Stop/IsRunning lifecycle guarded by a mutex), generalized from one
// god-object into a composition root that constructs narrower managers
// and wires them together instead of embedding their logic directly —
// per spec §9's note that manager-to-manager references should run
// through a narrow collaborator (SiteManager.SetMonitorManager) rather
// than a cyclic package dependency.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"watcherd/internal/cache"
	"watcherd/internal/checkexec"
	"watcherd/internal/config"
	"watcherd/internal/domain"
	"watcherd/internal/eventbus"
	"watcherd/internal/managers"
	"watcherd/internal/monitortypes"
	"watcherd/internal/repository"
	"watcherd/internal/scheduler"
	"watcherd/internal/storage"
	"watcherd/internal/telemetry"
)

// AppVersion is stamped into export payloads and backup metadata.
const AppVersion = "0.1.0"

// Orchestrator is the process-wide composition root. Construct with New,
// then call Initialize once before dispatching any host operation.
type Orchestrator struct {
	log zerolog.Logger
	cfg *config.Config

	mu          sync.Mutex
	initialized bool
	unsubs      []func()
	stopPoll    chan struct{}

	publicBus *eventbus.Bus
	metrics   *telemetry.Metrics

	engine    *storage.Engine
	sites     *repository.SiteRepository
	monitors  *repository.MonitorRepository
	history   *repository.HistoryRepository
	settings  *repository.SettingsRepository
	registry  *monitortypes.Registry
	sched     *scheduler.Scheduler
	siteCache *cache.Cache[*domain.Site]

	siteMgr    *managers.SiteManager
	monitorMgr *managers.MonitorManager
	dbMgr      *managers.DatabaseManager
}

// New constructs an Orchestrator. Nothing is opened or started until
// Initialize runs.
func New(cfg *config.Config, log zerolog.Logger) *Orchestrator {
	l := log.With().Str("component", "orchestrator").Logger()
	metrics := telemetry.New()
	publicBus := eventbus.New("public", l)
	publicBus.Use(metrics.BusMiddleware())
	return &Orchestrator{
		log:       l,
		cfg:       cfg,
		publicBus: publicBus,
		metrics:   metrics,
	}
}

// PublicBus returns the bus the Host Interface subscribes to for every
// host-facing event name (spec §4.10's forwarding table target).
func (o *Orchestrator) PublicBus() *eventbus.Bus { return o.publicBus }

// Metrics returns the process's Prometheus registry wrapper, so the
// optional HTTP adapter (or a standalone metrics listener) can mount
// its /metrics handler.
func (o *Orchestrator) Metrics() *telemetry.Metrics { return o.metrics }

// Initialize runs the full startup sequence: open storage, construct
// repositories, build the monitor type registry, construct the scheduler
// and managers, wire event forwarding, then rebuild scheduler jobs from
// persisted monitoring-enabled monitors. Calling Initialize more than
// once is a no-op (idempotent per spec §4.10).
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.initialized {
		return nil
	}

	engOpts := storage.Options{
		Path:            o.cfg.Storage.Path,
		BusyTimeout:     o.cfg.Storage.BusyTimeout,
		MaxOpenConns:    o.cfg.Storage.MaxOpenConns,
		MaxIdleConns:    o.cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: o.cfg.Storage.ConnMaxLifetime,
	}
	engine, err := storage.Initialize(ctx, engOpts, o.log)
	if err != nil {
		return err
	}

	monitorRepo := repository.NewMonitorRepository(engine, o.log)
	siteRepo := repository.NewSiteRepository(engine, monitorRepo, o.log)
	historyRepo := repository.NewHistoryRepository(engine, o.log)
	settingsRepo := repository.NewSettingsRepository(engine, o.log)

	registry := monitortypes.New()
	monitortypes.RegisterBuiltins(registry)
	if len(o.cfg.MonitorTypes.Enabled) > 0 {
		if err := registry.MustHaveTypes(o.cfg.MonitorTypes.Enabled); err != nil {
			return domain.Wrap(domain.CodeInternal, "configured monitor types are not registered", err)
		}
	}

	limiter := checkexec.NewHostRateLimiter(o.cfg.Engine.RateLimitPerSecond, o.cfg.Engine.RateLimitBurst)
	checkerCfg := checkexec.Config{
		KeywordMaxBytes: int64(o.cfg.Engine.HTTPKeywordMaxBytes),
		UserAgent:       "watcherd/" + AppVersion,
		Limiter:         limiter,
		SSLExpiryWindow: 14 * 24 * time.Hour,
	}

	schedBus := eventbus.New("scheduler", o.log)
	schedBus.Use(o.metrics.BusMiddleware())
	schedBus.Subscribe(scheduler.EventCheckCompleted, func(env eventbus.Envelope) error {
		evt, ok := env.Payload.(scheduler.CheckCompletedEvent)
		if ok {
			o.metrics.RecordCheck(string(evt.Status), float64(evt.DurationMs)/1000)
		}
		return nil
	})
	schedBus.Subscribe(scheduler.EventTimeout, func(env eventbus.Envelope) error {
		o.metrics.RecordTimeout()
		return nil
	})
	sched := scheduler.New(scheduler.Deps{
		Registry:   registry,
		Bus:        schedBus,
		History:    historyRepo,
		Monitors:   monitorRepo,
		Scheduler:  o.cfg.Scheduler,
		Engine:     o.cfg.Engine,
		CheckerCfg: checkerCfg,
		Log:        o.log,
	})

	siteCache := cache.New[*domain.Site]("sites", o.cfg.Cache.SiteTTL, o.cfg.Cache.MaxEntries, o.publicBus)
	siteMgr := managers.NewSiteManager(engine, siteRepo, monitorRepo, siteCache, o.log)
	monitorMgr := managers.NewMonitorManager(monitorRepo, sched, o.log)
	siteMgr.SetMonitorManager(monitorMgr)
	dbMgr := managers.NewDatabaseManager(engine, engOpts, siteRepo, monitorRepo, historyRepo, settingsRepo, AppVersion, o.log)
	siteMgr.Bus().Use(o.metrics.BusMiddleware())
	monitorMgr.Bus().Use(o.metrics.BusMiddleware())
	dbMgr.Bus().Use(o.metrics.BusMiddleware())

	o.relay(schedBus, scheduler.EventCheckStarted, scheduler.EventCheckCompleted, scheduler.EventStatusChanged,
		scheduler.EventUp, scheduler.EventDown, scheduler.EventTimeout, scheduler.EventManualCheckStarted)
	o.relayRenamed(siteMgr.Bus(), map[string]string{
		managers.EventSiteAdded:   "site:added",
		managers.EventSiteUpdated: "site:updated",
		managers.EventSiteRemoved: "site:removed",
	})
	o.relayRenamed(monitorMgr.Bus(), map[string]string{
		managers.EventMonitorAdded:      "monitor:added",
		managers.EventMonitorRemoved:    "monitor:removed",
		managers.EventMonitoringStarted: "monitoring:started",
		managers.EventMonitoringStopped: "monitoring:stopped",
	})
	o.relayRenamed(dbMgr.Bus(), map[string]string{
		managers.EventDataImported:    "data:imported",
		managers.EventBackupCreated:   "backup:created",
		managers.EventBackupRestored:  "backup:restored",
		managers.EventHistoryLimitSet: "settings:history-limit-set",
	})

	sites, err := siteRepo.GetAll(ctx)
	if err != nil {
		return err
	}
	var allMonitors []*domain.Monitor
	for _, s := range sites {
		allMonitors = append(allMonitors, s.Monitors...)
	}
	if err := sched.Start(ctx, allMonitors); err != nil {
		return err
	}

	o.engine = engine
	o.sites = siteRepo
	o.monitors = monitorRepo
	o.history = historyRepo
	o.settings = settingsRepo
	o.registry = registry
	o.sched = sched
	o.siteCache = siteCache
	o.siteMgr = siteMgr
	o.monitorMgr = monitorMgr
	o.dbMgr = dbMgr
	o.initialized = true

	o.stopPoll = make(chan struct{})
	go o.pollMetrics(o.stopPoll)

	o.log.Info().Int("site_count", len(sites)).Int("monitor_count", len(allMonitors)).Msg("orchestrator initialized")
	return nil
}

// pollMetrics periodically snapshots cache and scheduler gauges that have
// no natural per-event hook (cache hit/miss counters, live job count).
func (o *Orchestrator) pollMetrics(stop chan struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			stats := o.siteCache.Stats()
			o.metrics.SetCacheStats("sites", stats.Hits, stats.Misses)
			o.metrics.SetSchedulerJobs(o.sched.JobCount())
		case <-stop:
			return
		}
	}
}

// relay forwards events unchanged (the scheduler already emits under the
// spec's public event names).
func (o *Orchestrator) relay(bus *eventbus.Bus, names ...string) {
	for _, name := range names {
		eventName := name
		unsub := bus.Subscribe(eventName, func(env eventbus.Envelope) error {
			o.publicBus.Publish(eventName, env.Payload, env.Meta.CorrelationID)
			return nil
		})
		if unsub != nil {
			o.unsubs = append(o.unsubs, unsub)
		}
	}
}

// relayRenamed forwards events under a different public-facing name, per
// spec §4.10's forwarding table (internal:site:added -> site:added, ...).
func (o *Orchestrator) relayRenamed(bus *eventbus.Bus, rename map[string]string) {
	for from, to := range rename {
		from, to := from, to
		unsub := bus.Subscribe(from, func(env eventbus.Envelope) error {
			o.publicBus.Publish(to, env.Payload, env.Meta.CorrelationID)
			return nil
		})
		if unsub != nil {
			o.unsubs = append(o.unsubs, unsub)
		}
	}
}

// Shutdown stops the scheduler, tears down event forwarding, and closes
// the storage engine. Safe to call on a never-initialized Orchestrator.
func (o *Orchestrator) Shutdown() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.initialized {
		return nil
	}
	close(o.stopPoll)
	o.sched.Stop()
	for _, unsub := range o.unsubs {
		unsub()
	}
	o.unsubs = nil
	o.initialized = false
	return o.engine.Close()
}
