package telemetry

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watcherd/internal/eventbus"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	m := New()
	require.NotNil(t, m)
	require.NotNil(t, m.registry)

	// Labelled vectors only appear in the exposition once a child exists.
	m.RecordCheck("up", 0.1)
	m.RecordBusEvent("public", "site:added")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "watcherd_checks_total")
	assert.Contains(t, rec.Body.String(), "watcherd_bus_events_total")
}

func TestRecordCheck(t *testing.T) {
	t.Run("up status increments counter and observes duration", func(t *testing.T) {
		m := New()
		m.RecordCheck("up", 0.25)
		assert.Equal(t, float64(1), testutilCounterValue(t, m.ChecksTotal.WithLabelValues("up")))
	})

	t.Run("distinct statuses are tracked independently", func(t *testing.T) {
		m := New()
		m.RecordCheck("up", 0.1)
		m.RecordCheck("down", 0.1)
		m.RecordCheck("down", 0.2)
		assert.Equal(t, float64(1), testutilCounterValue(t, m.ChecksTotal.WithLabelValues("up")))
		assert.Equal(t, float64(2), testutilCounterValue(t, m.ChecksTotal.WithLabelValues("down")))
	})
}

func TestRecordTimeout(t *testing.T) {
	m := New()
	m.RecordTimeout()
	m.RecordTimeout()
	assert.Equal(t, float64(2), testutilCounterValue(t, m.TimeoutsTotal))
}

func TestSetCacheStats(t *testing.T) {
	m := New()
	m.SetCacheStats("sites", 42, 7)
	assert.Equal(t, float64(42), testutilGaugeValue(t, m.CacheHits.WithLabelValues("sites")))
	assert.Equal(t, float64(7), testutilGaugeValue(t, m.CacheMisses.WithLabelValues("sites")))
}

func TestSetMonitorCounts(t *testing.T) {
	m := New()
	m.SetMonitorCounts(3, 1, 2)
	assert.Equal(t, float64(3), testutilGaugeValue(t, m.MonitorsUp))
	assert.Equal(t, float64(1), testutilGaugeValue(t, m.MonitorsDown))
	assert.Equal(t, float64(2), testutilGaugeValue(t, m.MonitorsPending))
}

func TestSetSchedulerJobs(t *testing.T) {
	m := New()
	m.SetSchedulerJobs(9)
	assert.Equal(t, float64(9), testutilGaugeValue(t, m.SchedulerJobs))
}

func TestBusMiddlewareRecordsEveryPublish(t *testing.T) {
	m := New()
	bus := eventbus.New("public", testLogger())
	require.True(t, bus.Use(m.BusMiddleware()))

	bus.Publish("site:added", "payload", "")
	bus.Publish("site:added", "payload", "")
	bus.Publish("monitor:added", "payload", "")

	assert.Equal(t, float64(2), testutilCounterValue(t, m.BusEventsTotal.WithLabelValues("public", "site:added")))
	assert.Equal(t, float64(1), testutilCounterValue(t, m.BusEventsTotal.WithLabelValues("public", "monitor:added")))
}
