package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the kitchenpos collectors.
	Registry = prometheus.NewRegistry()

	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kitchenpos",
			Name:      "reconcile_total",
			Help:      "Reconciliation calls by link kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	reconcileLinkChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kitchenpos",
			Name:      "reconcile_link_changes_total",
			Help:      "Junction rows inserted, updated or deleted by reconciliation.",
		},
		[]string{"kind", "op"},
	)

	reportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kitchenpos",
			Name:      "report_duration_seconds",
			Help:      "Duration of report queries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"report"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kitchenpos",
			Name:      "http_requests_total",
			Help:      "HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	Registry.MustRegister(
		reconcileTotal,
		reconcileLinkChanges,
		reportDuration,
		httpRequests,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordReconcile(kind string, outcome string, inserted int, updated int, deleted int) {
	reconcileTotal.WithLabelValues(kind, outcome).Inc()
	if inserted > 0 {
		reconcileLinkChanges.WithLabelValues(kind, "insert").Add(float64(inserted))
	}
	if updated > 0 {
		reconcileLinkChanges.WithLabelValues(kind, "update").Add(float64(updated))
	}
	if deleted > 0 {
		reconcileLinkChanges.WithLabelValues(kind, "delete").Add(float64(deleted))
	}
}

func ObserveReport(report string, duration time.Duration) {
	reportDuration.WithLabelValues(report).Observe(duration.Seconds())
}

// RecordHTTPRequest expects route to be the matched route pattern, not the
// raw path, to keep label cardinality bounded.
func RecordHTTPRequest(method string, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(strings.ToUpper(method), route, strconv.Itoa(status)).Inc()
}
