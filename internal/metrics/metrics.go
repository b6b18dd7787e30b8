// Package metrics exposes Prometheus instrumentation for the generation
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlforge_generations_total",
			Help: "Total number of finalized SQL generations by status.",
		},
		[]string{"status"},
	)

	validationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlforge_validation_duration_seconds",
			Help:    "Latency of candidate query validation against the target database.",
			Buckets: prometheus.DefBuckets,
		},
	)

	agentDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlforge_agent_duration_seconds",
			Help:    "End-to-end latency of one agent generation run.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	tokensUsedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlforge_tokens_used_total",
			Help: "Total LLM tokens consumed by generation runs.",
		},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, validationDurationSeconds, agentDurationSeconds, tokensUsedTotal)
}

func CountGeneration(status string) {
	generationsTotal.WithLabelValues(status).Inc()
}

func ObserveValidation(d time.Duration) {
	validationDurationSeconds.Observe(d.Seconds())
}

func ObserveAgentRun(d time.Duration) {
	agentDurationSeconds.Observe(d.Seconds())
}

func CountTokens(n int) {
	if n > 0 {
		tokensUsedTotal.Add(float64(n))
	}
}
