package metrics

import "github.com/prometheus/client_golang/prometheus"

// LLM generation Prometheus metrics.
var (
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datalens",
			Name:      "generation_requests_total",
			Help:      "Total number of LLM generation attempts",
		},
		[]string{"provider", "model", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "datalens",
			Name:      "generation_request_duration_seconds",
			Help:      "LLM generation attempt duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	GenerationRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datalens",
			Name:      "generation_retries_total",
			Help:      "Total number of LLM generation retries after a failed attempt",
		},
		[]string{"provider", "model"},
	)

	PlotRendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datalens",
			Name:      "plot_renders_total",
			Help:      "Total number of chart render attempts",
		},
		[]string{"kind", "status"},
	)
)

var llmMetricsRegistered bool

// RegisterGenerationMetrics registers Prometheus LLM metrics. Must be called once from main.
func RegisterGenerationMetrics() {
	if llmMetricsRegistered {
		return
	}
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	prometheus.MustRegister(GenerationRetriesTotal)
	prometheus.MustRegister(PlotRendersTotal)
	llmMetricsRegistered = true
}
