package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeClassified labels submissions answered by the inference backend.
	OutcomeClassified = "classified"
	// OutcomeCached labels submissions answered from the content cache.
	OutcomeCached = "cached"
	// OutcomeFallback labels submissions answered with a synthesized incident.
	OutcomeFallback = "fallback"
	// OutcomeRejected labels submissions refused before any backend call.
	OutcomeRejected = "rejected"
)

var (
	reportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel_pipeline",
			Name:      "reports_total",
			Help:      "Total number of report submissions handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	classificationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentinel_pipeline",
			Name:      "classification_seconds",
			Help:      "Classification latency in seconds, including retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	diagnosticsPassing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sentinel_pipeline",
			Name:      "diagnostics_passing_ratio",
			Help:      "Fraction of self-checks passing in the most recent diagnostics run.",
		},
	)
)

// Register attaches pipeline collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		reportsTotal,
		classificationSeconds,
		diagnosticsPassing,
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

// ObserveSubmission records a submission outcome and, for classified or
// fallback outcomes, the time spent against the inference backend.
func ObserveSubmission(outcome string, duration time.Duration) {
	reportsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeClassified || outcome == OutcomeFallback {
		if duration < 0 {
			duration = 0
		}
		classificationSeconds.Observe(duration.Seconds())
	}
}

// ObserveDiagnostics publishes the pass ratio of the latest diagnostics run.
func ObserveDiagnostics(passing, total int) {
	if total <= 0 {
		diagnosticsPassing.Set(0)
		return
	}
	diagnosticsPassing.Set(float64(passing) / float64(total))
}
