package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomePassed labels runs whose validation passed.
	OutcomePassed = "passed"
	// OutcomeFailed labels runs whose validation failed.
	OutcomeFailed = "failed"
	// OutcomeError labels runs aborted by formation failure or timeout.
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cluster_fuzz",
			Name:      "runs_total",
			Help:      "Total number of scenario runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cluster_fuzz",
			Name:      "run_seconds",
			Help:      "Scenario run duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cluster_fuzz",
			Name:      "actions_total",
			Help:      "Timeline actions executed, partitioned by kind and status.",
		},
		[]string{"kind", "status"},
	)

	checkFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cluster_fuzz",
			Name:      "check_failures_total",
			Help:      "Validation check failures, partitioned by check name.",
		},
		[]string{"check"},
	)
)

// Register attaches cluster-fuzz collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		actionsTotal,
		checkFailuresTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a scenario run duration and outcome label.
func ObserveRun(duration time.Duration, outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveAction records an executed timeline action.
func ObserveAction(kind, status string) {
	actionsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveCheckFailure records a failed validation check.
func ObserveCheckFailure(check string) {
	checkFailuresTotal.WithLabelValues(check).Inc()
}
