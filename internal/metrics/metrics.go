package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the composer's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alert_composer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "alert_composer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	catalogLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alert_composer",
			Subsystem: "catalog",
			Name:      "lookups_total",
			Help:      "Indicator catalog loads by cache outcome.",
		},
		[]string{"result"},
	)

	submits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alert_composer",
			Subsystem: "forms",
			Name:      "submits_total",
			Help:      "Alert form submissions by alert type and outcome.",
		},
		[]string{"alert_type", "outcome"},
	)

	openSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "alert_composer",
			Subsystem: "forms",
			Name:      "open_sessions",
			Help:      "Form sessions currently held in memory.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		catalogLookups,
		submits,
		openSessions,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one handled request
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// CatalogLookup records a catalog load; result is "hit", "miss" or "error"
func CatalogLookup(result string) {
	catalogLookups.WithLabelValues(result).Inc()
}

// Submit records a form submission outcome
func Submit(alertType, outcome string) {
	submits.WithLabelValues(alertType, outcome).Inc()
}

// SetOpenSessions reports the number of live form sessions
func SetOpenSessions(n int) {
	openSessions.Set(float64(n))
}
