package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "persona_chat",
			Subsystem: "relay",
			Name:      "turns_total",
			Help:      "Relayed turns by persona and path (normal or reset)",
		},
		[]string{"persona", "path"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "persona_chat",
			Subsystem: "relay",
			Name:      "fallbacks_total",
			Help:      "Replies answered with a canned fallback, by reason",
		},
		[]string{"reason"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "persona_chat",
			Subsystem: "relay",
			Name:      "upstream_duration_seconds",
			Help:      "Upstream completion call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"persona"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "persona_chat",
			Subsystem: "relay",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
)

func RecordTurn(persona, path string) {
	TurnsTotal.WithLabelValues(persona, path).Inc()
}

func RecordFallback(reason string) {
	FallbacksTotal.WithLabelValues(reason).Inc()
}

func ObserveUpstream(persona string, seconds float64) {
	UpstreamDuration.WithLabelValues(persona).Observe(seconds)
}

func RecordRequest(method, endpoint, status string) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}
