package mcp

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/codemage/internal/generator"
)

// Metrics holds MCP tool metrics.
type Metrics struct {
	invocations    *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	errors         *prometheus.CounterVec
	activeRequests *prometheus.GaugeVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		invocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codemage_mcp_tool_invocations_total",
			Help: "Total number of MCP tool invocations",
		}, []string{"tool"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codemage_mcp_tool_duration_seconds",
			Help:    "Duration of MCP tool invocations",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"tool"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codemage_mcp_tool_errors_total",
			Help: "Total number of MCP tool errors by reason",
		}, []string{"tool", "reason"}),
		activeRequests: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "codemage_mcp_tool_active_requests",
			Help: "Number of currently running MCP tool calls",
		}, []string{"tool"}),
	}
}

// track marks a tool call as active and returns a func that records it.
func (m *Metrics) track(tool string) func(err error) {
	start := time.Now()
	m.activeRequests.WithLabelValues(tool).Inc()
	return func(err error) {
		m.activeRequests.WithLabelValues(tool).Dec()
		m.invocations.WithLabelValues(tool).Inc()
		m.duration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
		if err != nil {
			m.errors.WithLabelValues(tool, categorizeError(err)).Inc()
		}
	}
}

// categorizeError reduces an error to a low-cardinality reason.
func categorizeError(err error) string {
	if kind := generator.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, errInvalidArgument) {
		return "validation_error"
	}
	return "internal_error"
}
