package orchestrator

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watcherd/internal/config"
	"watcherd/internal/domain"
	"watcherd/internal/eventbus"
)

// testConfig builds a minimal, valid Config against an isolated in-memory
// database, the way the teacher's own integration tests assemble a Config
// literal directly instead of routing through Load()'s env/file precedence.
func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Path: ":memory:", MaxOpenConns: 1, BusyTimeout: 5 * time.Second},
		Scheduler: config.SchedulerConfig{
			MaxBackoffMs:    60000,
			JitterFraction:  0.2,
			TimeoutBufferMs: 1000,
			MaxRetries:      3,
		},
		Engine: config.EngineConfig{
			HistoryLimit:        1000,
			HTTPKeywordMaxBytes: 1 << 20,
			RateLimitPerSecond:  10,
			RateLimitBurst:      20,
		},
		Cache: config.CacheConfig{
			SiteTTL:    time.Minute,
			MonitorTTL: time.Minute,
			MaxEntries: 100,
		},
		Log: config.LogConfig{Level: "error"},
	}
}

func testLogger() zerolog.Logger { return zerolog.New(io.Discard) }

func TestOrchestratorInitializeIsIdempotent(t *testing.T) {
	o := New(testConfig(), testLogger())
	ctx := context.Background()

	require.NoError(t, o.Initialize(ctx))
	require.NoError(t, o.Initialize(ctx))

	require.NoError(t, o.Shutdown())
}

func TestOrchestratorShutdownWithoutInitializeIsNoop(t *testing.T) {
	o := New(testConfig(), testLogger())
	assert.NoError(t, o.Shutdown())
}

func TestOrchestratorAddSiteRoundTrip(t *testing.T) {
	o := New(testConfig(), testLogger())
	ctx := context.Background()
	require.NoError(t, o.Initialize(ctx))
	t.Cleanup(func() { o.Shutdown() })

	created, err := o.AddSite(ctx, &domain.Site{
		Identifier: "example",
		Name:       "Example",
		Monitors:   []*domain.Monitor{{Type: "http", Fields: map[string]string{"url": "https://example.com"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "example", created.Identifier)

	sites, err := o.GetAllSites(ctx)
	require.NoError(t, err)
	assert.Len(t, sites, 1)

	limit, err := o.GetHistoryLimit(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultHistoryLimit, limit)
}

func TestOrchestratorPublicBusForwardsSiteEvents(t *testing.T) {
	o := New(testConfig(), testLogger())
	ctx := context.Background()
	require.NoError(t, o.Initialize(ctx))
	t.Cleanup(func() { o.Shutdown() })

	received := make(chan eventbus.Envelope, 1)
	unsub := o.PublicBus().Subscribe("site:added", func(env eventbus.Envelope) error {
		received <- env
		return nil
	})
	require.NotNil(t, unsub)
	defer unsub()

	_, err := o.AddSite(ctx, &domain.Site{
		Identifier: "example",
		Name:       "Example",
		Monitors:   []*domain.Monitor{{Type: "http", Fields: map[string]string{"url": "https://example.com"}}},
	})
	require.NoError(t, err)

	select {
	case env := <-received:
		assert.Equal(t, "site:added", env.Meta.EventName)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for site:added to be forwarded to the public bus")
	}
}
