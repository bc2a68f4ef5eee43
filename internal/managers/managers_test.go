package managers

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watcherd/internal/cache"
	"watcherd/internal/domain"
	"watcherd/internal/repository"
	"watcherd/internal/storage"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// newTestSiteManager builds a SiteManager against a fresh in-memory SQLite
// engine, the same ":memory:" path the storage package special-cases for
// directory creation, so each test gets an isolated schema.
func newTestSiteManager(t *testing.T) (*SiteManager, *storage.Engine) {
	t.Helper()
	// MaxOpenConns is pinned to 1: mattn/go-sqlite3 hands each new pooled
	// connection its own private ":memory:" database, so anything beyond
	// one connection would see an empty schema.
	engine, err := storage.Initialize(context.Background(), storage.Options{Path: ":memory:", MaxOpenConns: 1}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	monitorRepo := repository.NewMonitorRepository(engine, testLogger())
	siteRepo := repository.NewSiteRepository(engine, monitorRepo, testLogger())
	siteCache := cache.New[*domain.Site]("sites", time.Minute, 100, testBus())

	return NewSiteManager(engine, siteRepo, monitorRepo, siteCache, testLogger()), engine
}

func testBus() *busStub { return &busStub{} }

// busStub satisfies cache.Emitter without pulling eventbus into every test.
type busStub struct{}

func (b *busStub) Publish(eventName string, payload any, correlationID string) {}

func TestSiteManagerAddSite(t *testing.T) {
	t.Run("rejects an empty identifier", func(t *testing.T) {
		mgr, _ := newTestSiteManager(t)
		_, err := mgr.AddSite(context.Background(), &domain.Site{Name: "Example"})
		require.Error(t, err)
		assert.True(t, domain.IsCode(err, domain.CodeValidation))
	})

	t.Run("rejects an empty name", func(t *testing.T) {
		mgr, _ := newTestSiteManager(t)
		_, err := mgr.AddSite(context.Background(), &domain.Site{Identifier: "example"})
		require.Error(t, err)
		assert.True(t, domain.IsCode(err, domain.CodeValidation))
	})

	t.Run("persists a new site and assigns monitor defaults", func(t *testing.T) {
		mgr, _ := newTestSiteManager(t)
		site := &domain.Site{
			Identifier: "example",
			Name:       "Example",
			Monitors: []*domain.Monitor{
				{Type: "http", Fields: map[string]string{"url": "https://example.com"}},
			},
		}
		created, err := mgr.AddSite(context.Background(), site)
		require.NoError(t, err)
		require.Len(t, created.Monitors, 1)

		mon := created.Monitors[0]
		assert.NotEmpty(t, mon.ID)
		assert.Equal(t, "example", mon.SiteIdentifier)
		assert.Equal(t, domain.StatusPending, mon.Status)
		assert.Equal(t, domain.MinCheckIntervalMs, mon.CheckIntervalMs)
		assert.Equal(t, domain.DefaultTimeoutMs, mon.TimeoutMs)
	})

	t.Run("rejects a duplicate identifier", func(t *testing.T) {
		mgr, _ := newTestSiteManager(t)
		site := &domain.Site{
			Identifier: "example",
			Name:       "Example",
			Monitors:   []*domain.Monitor{{Type: "http", Fields: map[string]string{"url": "https://example.com"}}},
		}
		_, err := mgr.AddSite(context.Background(), site)
		require.NoError(t, err)

		_, err = mgr.AddSite(context.Background(), &domain.Site{
			Identifier: "example",
			Name:       "Again",
			Monitors:   []*domain.Monitor{{Type: "http", Fields: map[string]string{"url": "https://example.com"}}},
		})
		require.Error(t, err)
		assert.True(t, domain.IsCode(err, domain.CodeDuplicateSiteIdentifier))
	})

	t.Run("rejects a site with no monitors", func(t *testing.T) {
		mgr, _ := newTestSiteManager(t)
		_, err := mgr.AddSite(context.Background(), &domain.Site{Identifier: "example", Name: "Example"})
		require.Error(t, err)
		assert.True(t, domain.IsCode(err, domain.CodeNoMonitors))
	})

	t.Run("rejects duplicate monitor ids within the site", func(t *testing.T) {
		mgr, _ := newTestSiteManager(t)
		_, err := mgr.AddSite(context.Background(), &domain.Site{
			Identifier: "example",
			Name:       "Example",
			Monitors: []*domain.Monitor{
				{ID: "dup", Type: "http", Fields: map[string]string{"url": "https://example.com"}},
				{ID: "dup", Type: "ping", Fields: map[string]string{"host": "example.com"}},
			},
		})
		require.Error(t, err)
		assert.True(t, domain.IsCode(err, domain.CodeDuplicateMonitorID))
	})
}

func TestSiteManagerGetByIdentifier(t *testing.T) {
	mgr, _ := newTestSiteManager(t)
	_, err := mgr.AddSite(context.Background(), &domain.Site{
		Identifier: "example",
		Name:       "Example",
		Monitors:   []*domain.Monitor{{Type: "http", Fields: map[string]string{"url": "https://example.com"}}},
	})
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		got, err := mgr.GetByIdentifier(context.Background(), "example")
		require.NoError(t, err)
		assert.Equal(t, "Example", got.Name)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := mgr.GetByIdentifier(context.Background(), "missing")
		require.Error(t, err)
	})
}

func TestSiteManagerUpdateSite(t *testing.T) {
	mgr, _ := newTestSiteManager(t)
	_, err := mgr.AddSite(context.Background(), &domain.Site{
		Identifier: "example",
		Name:       "Example",
		Monitors: []*domain.Monitor{
			{Type: "http", Fields: map[string]string{"url": "https://example.com"}},
		},
	})
	require.NoError(t, err)

	existing, err := mgr.GetByIdentifier(context.Background(), "example")
	require.NoError(t, err)
	keptMonitorID := existing.Monitors[0].ID

	t.Run("adds a new monitor and keeps the existing one", func(t *testing.T) {
		updated, err := mgr.UpdateSite(context.Background(), &domain.Site{
			Identifier: "example",
			Name:       "Example Renamed",
			Monitors: []*domain.Monitor{
				{ID: keptMonitorID, Type: "http", Fields: map[string]string{"url": "https://example.com"}},
				{Type: "ping", Fields: map[string]string{"host": "example.com"}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "Example Renamed", updated.Name)
		assert.Len(t, updated.Monitors, 2)
	})

	t.Run("rejects reconciling down to zero monitors", func(t *testing.T) {
		_, err := mgr.UpdateSite(context.Background(), &domain.Site{
			Identifier: "example",
			Name:       "Example Renamed",
			Monitors:   nil,
		})
		require.Error(t, err)
		assert.True(t, domain.IsCode(err, domain.CodeNoMonitors))
	})

	t.Run("rejects duplicate monitor ids in the new set", func(t *testing.T) {
		_, err := mgr.UpdateSite(context.Background(), &domain.Site{
			Identifier: "example",
			Name:       "Example Renamed",
			Monitors: []*domain.Monitor{
				{ID: keptMonitorID, Type: "http", Fields: map[string]string{"url": "https://example.com"}},
				{ID: keptMonitorID, Type: "ping", Fields: map[string]string{"host": "example.com"}},
			},
		})
		require.Error(t, err)
		assert.True(t, domain.IsCode(err, domain.CodeDuplicateMonitorID))
	})

	t.Run("unknown identifier is not found", func(t *testing.T) {
		_, err := mgr.UpdateSite(context.Background(), &domain.Site{Identifier: "missing", Name: "x"})
		require.Error(t, err)
		assert.True(t, domain.IsCode(err, domain.CodeNotFound))
	})
}

func TestSiteManagerRemoveSite(t *testing.T) {
	mgr, _ := newTestSiteManager(t)
	_, err := mgr.AddSite(context.Background(), &domain.Site{
		Identifier: "example",
		Name:       "Example",
		Monitors:   []*domain.Monitor{{Type: "http", Fields: map[string]string{"url": "https://example.com"}}},
	})
	require.NoError(t, err)

	require.NoError(t, mgr.RemoveSite(context.Background(), "example"))

	_, err = mgr.GetByIdentifier(context.Background(), "example")
	assert.Error(t, err)
}

func TestMonitorDefinitionChanged(t *testing.T) {
	base := &domain.Monitor{Type: "http", CheckIntervalMs: 5000, TimeoutMs: 3000, Monitoring: true, Fields: map[string]string{"url": "a"}}

	cases := []struct {
		name string
		next *domain.Monitor
		want bool
	}{
		{"identical", &domain.Monitor{Type: "http", CheckIntervalMs: 5000, TimeoutMs: 3000, Monitoring: true, Fields: map[string]string{"url": "a"}}, false},
		{"type changed", &domain.Monitor{Type: "ping", CheckIntervalMs: 5000, TimeoutMs: 3000, Monitoring: true, Fields: map[string]string{"url": "a"}}, true},
		{"interval changed", &domain.Monitor{Type: "http", CheckIntervalMs: 9000, TimeoutMs: 3000, Monitoring: true, Fields: map[string]string{"url": "a"}}, true},
		{"field value changed", &domain.Monitor{Type: "http", CheckIntervalMs: 5000, TimeoutMs: 3000, Monitoring: true, Fields: map[string]string{"url": "b"}}, true},
		{"field count changed", &domain.Monitor{Type: "http", CheckIntervalMs: 5000, TimeoutMs: 3000, Monitoring: true, Fields: map[string]string{"url": "a", "keyword": "x"}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, monitorDefinitionChanged(base, tc.next))
		})
	}
}
