package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Committed(1.5)
	m.Committed(0.5)
	m.Discarded("too_large")
	m.CommitFailed()
	m.Message("UPDATE_WATCH_TIME", ResultAccepted)
	m.PageEvent("media.play")
	m.EventDropped("slow_client")

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.committedSeconds), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.discardedDeltas.WithLabelValues("too_large")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.commitFailures), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("UPDATE_WATCH_TIME", ResultAccepted)), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.pageEvents.WithLabelValues("media.play")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.droppedEvents.WithLabelValues("slow_client")), 1e-9)
}

func TestMetrics_Gauges(t *testing.T) {
	m := New()

	m.PlayerBound(true)
	m.PlayerBound(true)
	m.PlayerBound(false)
	m.PageAttached(true)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.boundPlayers), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.attachedPages), 1e-9)
}

func TestMetrics_HandlerExposesRegistry(t *testing.T) {
	m := New()
	m.RegisterGaugeFunc("sse_clients", "Connected SSE clients.", func() float64 { return 3 })
	m.Committed(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mstimer_watch_time_committed_seconds_total 2")
	assert.Contains(t, string(body), "mstimer_sse_clients 3")
	assert.Contains(t, string(body), "go_goroutines")
}
