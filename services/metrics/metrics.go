// Package metrics exposes the Prometheus collectors of the API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "admissions"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "applications",
			Name:      "transitions_total",
			Help:      "Total number of application status changes.",
		},
		[]string{"status"},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests refused by the rate limiter.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		transitions,
		rateLimited,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request metrics labelled by route template.
// It hands errors to the echo HTTPErrorHandler itself and returns nil.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			// the error is handled here so that the recorded status is the one sent
			if err := next(c); err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := strings.ToUpper(c.Request().Method)
			httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// RecordTransition counts an application moving into status.
func RecordTransition(status string) {
	transitions.WithLabelValues(status).Inc()
}

func RecordRateLimited() {
	rateLimited.Inc()
}

// HubStats is what the realtime hub reports about itself.
type HubStats interface {
	Sent() int64
	Dropped() int64
	Total() int
}

// RegisterHub exposes the realtime hub counters. It must be called once per registry.
func RegisterHub(reg prometheus.Registerer, hub HubStats) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_sent_total",
			Help:      "Total number of events delivered to sessions.",
		}, func() float64 { return float64(hub.Sent()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_dropped_total",
			Help:      "Total number of events refused by slow sessions.",
		}, func() float64 { return float64(hub.Dropped()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "sessions",
			Help:      "Current number of connected sessions.",
		}, func() float64 { return float64(hub.Total()) }),
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Recorder adapts the package-level counters to the interfaces of the core services.
type Recorder struct{}

func (Recorder) RecordTransition(status string) { RecordTransition(status) }
