package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"

	"hxnotes/internal/http/htmx"
)

// unmatchedPath labels requests that no route handled, e.g. 404s and CSRF rejections.
const unmatchedPath = "unmatched"

// PrometheusMiddleware holds the HTTP metrics.
type PrometheusMiddleware struct {
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fragmentCount   *prometheus.CounterVec
	csrfRejections  *prometheus.CounterVec
}

// NewPrometheusMiddleware creates the collectors and registers them on reg.
func NewPrometheusMiddleware(reg prometheus.Registerer) (*PrometheusMiddleware, error) {
	m := &PrometheusMiddleware{
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests processed.",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		fragmentCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_fragment_requests_total",
				Help: "Requests answered with an HTML fragment instead of a full page.",
			},
			[]string{"path"},
		),
		csrfRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csrf_rejections_total",
				Help: "State-changing requests rejected for a missing or invalid CSRF token.",
			},
			[]string{"reason"},
		),
	}

	for _, c := range []prometheus.Collector{m.requestCount, m.requestDuration, m.fragmentCount, m.csrfRejections} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// CSRFRejected counts a rejected request; it fits CSRFConfig.OnReject.
func (m *PrometheusMiddleware) CSRFRejected(reason string) {
	m.csrfRejections.WithLabelValues(reason).Inc()
}

// Handler returns the fiber middleware handler.
func (m *PrometheusMiddleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		// route pattern (/notes/:id); requests no route handled share one series
		path := c.Route().Path
		if path == "" || (path == "/" && c.Path() != "/") {
			path = unmatchedPath
		}
		// fasthttp reuses the request buffer behind c.Method()
		method := utils.CopyString(c.Method())

		status := c.Response().StatusCode()
		if err != nil {
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		m.requestCount.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if htmx.IsFragment(c) {
			m.fragmentCount.WithLabelValues(path).Inc()
		}

		return err
	}
}
