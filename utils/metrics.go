package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cppla/marketcore/models"
)

// Registry holds every collector this service exports.
var Registry = prometheus.NewRegistry()

var (
	unlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketcore",
			Subsystem: "achievement",
			Name:      "unlocks_total",
			Help:      "Number of achievement unlock records created.",
		},
		[]string{"group", "tier"},
	)

	creditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketcore",
			Subsystem: "achievement",
			Name:      "credits_total",
			Help:      "Number of achievement rewards credited to wallets.",
		},
		[]string{"group"},
	)

	creditAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketcore",
			Subsystem: "achievement",
			Name:      "credit_amount_total",
			Help:      "Total wallet amount credited as achievement rewards.",
		},
		[]string{"group"},
	)

	creditFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketcore",
			Subsystem: "achievement",
			Name:      "credit_failures_total",
			Help:      "Number of unlock transactions rolled back by a credit failure.",
		},
		[]string{"group"},
	)

	evalErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketcore",
			Subsystem: "achievement",
			Name:      "evaluation_errors_total",
			Help:      "Number of requirement evaluations that failed.",
		},
		[]string{"metric"},
	)

	scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketcore",
			Subsystem: "achievement",
			Name:      "scan_duration_seconds",
			Help:      "Duration of trigger scans per event kind.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketcore",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketcore",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		unlocksTotal,
		creditsTotal,
		creditAmount,
		creditFailures,
		evalErrors,
		scanDuration,
		httpRequests,
		httpDuration,
	)
}

// ObserveUnlock counts a newly created unlock record.
func ObserveUnlock(group, tier string) {
	unlocksTotal.WithLabelValues(group, tier).Inc()
}

// ObserveCredit counts a wallet credit and its amount.
func ObserveCredit(group string, amount float64) {
	creditsTotal.WithLabelValues(group).Inc()
	if amount > 0 {
		creditAmount.WithLabelValues(group).Add(amount)
	}
}

// ObserveCreditFailure counts an unlock rolled back by its credit.
func ObserveCreditFailure(group string) {
	creditFailures.WithLabelValues(group).Inc()
}

// ObserveEvalError counts a failed evaluation.
func ObserveEvalError(metric models.MetricKind) {
	evalErrors.WithLabelValues(string(metric)).Inc()
}

// ObserveScan records the duration of one trigger scan.
func ObserveScan(event string, d time.Duration) {
	scanDuration.WithLabelValues(event).Observe(d.Seconds())
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route, status string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// MetricsHandler exposes Registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
