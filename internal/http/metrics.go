package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds request metrics for the server.
type HTTPMetrics struct {
	requestsTotal  *prometheus.CounterVec
	requestDur     *prometheus.HistogramVec
	activeRequests prometheus.Gauge
}

// NewHTTPMetrics creates the metrics and registers them with reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	f := promauto.With(reg)
	return &HTTPMetrics{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codemage_http_requests_total",
			Help: "Total HTTP requests by method, route and status code",
		}, []string{"method", "endpoint", "status"}),
		requestDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codemage_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
		}, []string{"method", "endpoint"}),
		activeRequests: f.NewGauge(prometheus.GaugeOpts{
			Name: "codemage_http_active_requests",
			Help: "Number of currently active HTTP requests",
		}),
	}
}

// Middleware returns an Echo middleware that records request metrics.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			m.activeRequests.Inc()
			defer m.activeRequests.Dec()

			err := next(c)
			if err != nil {
				// Let echo render the error so the recorded status is final.
				c.Error(err)
				err = nil
			}

			endpoint := normalizePath(c.Path())
			method := c.Request().Method
			m.requestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(c.Response().Status)).Inc()
			m.requestDur.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// normalizePath uses the route template so /plugins/:name stays one series.
// Unmatched requests collapse into a single label.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
