package chat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for upstream calls.
const (
	outcomeOK          = "ok"
	outcomeError       = "error"
	outcomeRateLimited = "rate_limited"
)

// Metrics holds Prometheus metrics for the chat proxy.
//
// Metrics:
//   - chat_upstream_requests_total{outcome} - outbound completion calls
//   - chat_upstream_duration_seconds - latency of outbound completion calls
type Metrics struct {
	RequestsTotal *prometheus.CounterVec
	Duration      prometheus.Histogram
}

// NewMetrics registers the chat metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_upstream_requests_total",
				Help: "Total number of chat completion calls by outcome",
			},
			[]string{"outcome"},
		),
		Duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chat_upstream_duration_seconds",
				Help:    "Duration of chat completion calls in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
		),
	}
}

func (m *Metrics) observe(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
	if outcome != outcomeRateLimited {
		m.Duration.Observe(d.Seconds())
	}
}
