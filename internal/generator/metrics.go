package generator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the orchestrator.
//
// Metrics:
//   - codemage_generations_total{outcome} - finished Start/Confirm calls
//   - codemage_review_retries_total - fix+review rounds
//   - codemage_review_score - final review scores
//   - codemage_synthesis_duration_seconds{operation} - model call latency
//   - codemage_generation_in_progress - 1 while a generation runs
type Metrics struct {
	Generations       *prometheus.CounterVec
	ReviewRetries     prometheus.Counter
	ReviewScore       prometheus.Histogram
	SynthesisDuration *prometheus.HistogramVec
	InProgress        prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Generations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codemage_generations_total",
				Help: "Total number of generation calls by outcome",
			},
			[]string{"outcome"}, // success, pending, cancelled, no_pending, or a failure kind
		),
		ReviewRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "codemage_review_retries_total",
			Help: "Total number of fix and re-review rounds",
		}),
		ReviewScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "codemage_review_score",
			Help:    "Satisfaction score of the final review",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		SynthesisDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codemage_synthesis_duration_seconds",
				Help:    "Duration of model requests in seconds",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
			},
			[]string{"operation"},
		),
		InProgress: f.NewGauge(prometheus.GaugeOpts{
			Name: "codemage_generation_in_progress",
			Help: "1 while a generation is running",
		}),
	}
}

func (m *Metrics) outcome(label string) {
	m.Generations.WithLabelValues(label).Inc()
}
