package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"nanogov/governor/pkg/config"
	"nanogov/governor/pkg/policy/store"
)

// AdmissionMetrics tracks policy store mutations.
//
// Metrics:
//   - governor_admissions_total{op,result,reason}
//   - governor_active_policies
//   - governor_policy_generation
type AdmissionMetrics struct {
	admissions *prometheus.CounterVec
	active     prometheus.Gauge
	generation prometheus.Gauge
}

func newAdmissionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AdmissionMetrics {
	m := &AdmissionMetrics{
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "admissions_total",
				Help:      "Policy store mutations by operation, result and rejection reason",
			},
			[]string{"op", "result", "reason"},
		),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "active_policies",
			Help:      "Number of active policies, defaults included",
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "policy_generation",
			Help:      "Generation of the active policy snapshot",
		}),
	}
	registry.MustRegister(m.admissions, m.active, m.generation)
	return m
}

func (m *AdmissionMetrics) record(ev store.Event) {
	result := "accepted"
	if ev.Err != nil {
		result = "rejected"
	}
	m.admissions.WithLabelValues(string(ev.Op), result, string(ev.Reason)).Inc()
	m.active.Set(float64(ev.Active))
	m.generation.Set(float64(ev.Generation))
}
