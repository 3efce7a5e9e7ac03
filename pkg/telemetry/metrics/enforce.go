package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"nanogov/governor/pkg/config"
	"nanogov/governor/pkg/enforce"
)

// EnforceMetrics tracks enforcement calls.
//
// Metrics:
//   - governor_enforcements_total{checkpoint,verdict}
//   - governor_enforce_duration_seconds{checkpoint}
//   - governor_evaluation_anomalies_total{kind}
//   - governor_engine_faults_total{kind}
//   - governor_rule_matches_total{policy_id,rule_id,action}
type EnforceMetrics struct {
	enforcements *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	anomalies    *prometheus.CounterVec
	faults       *prometheus.CounterVec
	ruleMatches  *prometheus.CounterVec
}

func newEnforceMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EnforceMetrics {
	m := &EnforceMetrics{
		enforcements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "enforcements_total",
				Help:      "Enforcement calls by checkpoint and verdict",
			},
			[]string{"checkpoint", "verdict"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "enforce_duration_seconds",
				Help:      "Time spent evaluating the active policy set",
				Buckets:   cfg.EnforceDurationBuckets,
			},
			[]string{"checkpoint"},
		),
		anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "evaluation_anomalies_total",
				Help:      "Non-fatal condition evaluation anomalies by kind",
			},
			[]string{"kind"},
		),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "engine_faults_total",
				Help:      "Engine faults resolved to deny, by kind",
			},
			[]string{"kind"},
		),
		ruleMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "rule_matches_total",
				Help:      "Rules whose condition held, by policy, rule and action",
			},
			[]string{"policy_id", "rule_id", "action"},
		),
	}
	registry.MustRegister(m.enforcements, m.duration, m.anomalies, m.faults, m.ruleMatches)
	return m
}

func (m *EnforceMetrics) record(d enforce.Decision) {
	cp := d.Checkpoint.String()
	m.enforcements.WithLabelValues(cp, d.Verdict.String()).Inc()
	m.duration.WithLabelValues(cp).Observe(d.Duration.Seconds())
	for _, a := range d.Anomalies {
		m.anomalies.WithLabelValues(a.Anomaly.Kind.String()).Inc()
	}
	if d.Fault != nil {
		m.faults.WithLabelValues(string(d.Fault.Kind)).Inc()
	}
}
