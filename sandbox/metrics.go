package sandbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric label values for run outcomes.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"

	// unknownLanguageLabel replaces ids missing from the registry so labels stay bounded.
	unknownLanguageLabel = "unknown"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbox_runs_total",
			Help: "Total number of code runs by language and outcome.",
		},
		[]string{"language", "outcome"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runbox_run_duration_seconds",
			Help:    "Duration from provisioning to reaping of a sandbox, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"language"},
	)

	activeSandboxes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "runbox_active_sandboxes",
			Help: "Number of sandboxes provisioned and not yet reaped.",
		},
	)

	cleanupFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runbox_cleanup_failures_total",
			Help: "Total number of explicit sandbox deletions that failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(activeSandboxes)
	prometheus.MustRegister(cleanupFailures)
}

// observeRun records the outcome of one run
func observeRun(lang string, started time.Time, err error) {
	switch {
	case err == nil:
		runsTotal.WithLabelValues(lang, outcomeCompleted).Inc()
	case StageOf(err) == StageUnknownLanguage:
		runsTotal.WithLabelValues(unknownLanguageLabel, outcomeRejected).Inc()
		return
	default:
		runsTotal.WithLabelValues(lang, outcomeFailed).Inc()
	}
	runDuration.WithLabelValues(lang).Observe(time.Since(started).Seconds())
}
