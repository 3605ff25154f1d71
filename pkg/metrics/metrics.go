package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "havoc",
			Name:      "runs_total",
			Help:      "Experiment runs by terminal status.",
		},
		[]string{"status"},
	)

	safetyBreachesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "havoc",
			Name:      "safety_breaches_total",
			Help:      "Safety-control breaches by configured action.",
		},
		[]string{"action"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "havoc",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of experiment runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	rollbackFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "havoc",
			Name:      "rollback_failures_total",
			Help:      "Rollbacks that failed and require operator attention.",
		},
	)
)

// Register attaches the engine collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		safetyBreachesTotal,
		runDurationSeconds,
		rollbackFailuresTotal,
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

// ObserveRun records one terminal run.
func ObserveRun(status string, duration time.Duration) {
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveBreach records one tripped safety control.
func ObserveBreach(action string) {
	safetyBreachesTotal.WithLabelValues(action).Inc()
}

// ObserveRollbackFailure records a rollback needing manual intervention.
func ObserveRollbackFailure() {
	rollbackFailuresTotal.Inc()
}
