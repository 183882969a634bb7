package providers

import (
	"github.com/samber/do/v2"

	"github.com/mstimer/mstimer-server/internal/metrics"
)

// ProvideMetrics provides the Prometheus metrics and hooks them into the SSE manager.
func ProvideMetrics(i do.Injector) (*metrics.Metrics, error) {
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	m := metrics.New()
	sseHandle.SetDropCounter(m)
	m.RegisterGaugeFunc("sse_clients", "Connected SSE clients.", func() float64 {
		return float64(sseHandle.ClientCount())
	})

	return m, nil
}
