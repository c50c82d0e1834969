// Package metrics exposes Prometheus collectors for the monitor coordination core.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	monitorRunsTotal          *prometheus.CounterVec
	monitorRunDurationSeconds *prometheus.HistogramVec
	leaseDeniedTotal          *prometheus.CounterVec
	leaseReclaimsTotal        *prometheus.CounterVec
	commitConflictsTotal      *prometheus.CounterVec
	commitAbandonedTotal      *prometheus.CounterVec
	notifyFailuresTotal       prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times; the helpers call it themselves so an uninitialized collector can
// never be hit.
func Init() {
	once.Do(func() {
		monitorRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_runs_total",
				Help: "Total runs, labeled by domain and terminal status.",
			},
			[]string{"domain", "status"},
		)

		monitorRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "monitor_run_duration_seconds",
				Help:    "Histogram of job body wall-clock durations.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
			},
			[]string{"domain"},
		)

		leaseDeniedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_lease_denied_total",
				Help: "Lease acquisitions denied because the domain was busy.",
			},
			[]string{"domain"},
		)

		leaseReclaimsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_lease_reclaims_total",
				Help: "Stale leases reclaimed from presumed-crashed holders.",
			},
			[]string{"domain"},
		)

		commitConflictsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_commit_conflicts_total",
				Help: "Optimistic-concurrency write races lost, labeled by document.",
			},
			[]string{"doc"},
		)

		commitAbandonedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_commit_abandoned_total",
				Help: "State commits abandoned after the retry budget, labeled by document.",
			},
			[]string{"doc"},
		)

		notifyFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "monitor_notify_failures_total",
				Help: "Alert deliveries that failed after all retries.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records a finished run's status and duration.
func ObserveRun(domain, status string, duration time.Duration) {
	Init()
	monitorRunsTotal.WithLabelValues(domain, status).Inc()
	monitorRunDurationSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// LeaseDenied increments the denied-acquisition counter.
func LeaseDenied(domain string) {
	Init()
	leaseDeniedTotal.WithLabelValues(domain).Inc()
}

// LeaseReclaimed increments the stale-reclaim counter.
func LeaseReclaimed(domain string) {
	Init()
	leaseReclaimsTotal.WithLabelValues(domain).Inc()
}

// CommitConflict increments the lost-race counter for a document.
func CommitConflict(doc string) {
	Init()
	commitConflictsTotal.WithLabelValues(doc).Inc()
}

// CommitAbandoned increments the abandoned-commit counter for a document.
func CommitAbandoned(doc string) {
	Init()
	commitAbandonedTotal.WithLabelValues(doc).Inc()
}

// NotifyFailed increments the failed-delivery counter.
func NotifyFailed() {
	Init()
	notifyFailuresTotal.Inc()
}
