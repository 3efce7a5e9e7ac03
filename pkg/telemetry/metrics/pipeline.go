package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"nanogov/governor/pkg/config"
)

// PipelineMetrics tracks the workers around the engine.
//
// Metrics:
//   - governor_statebus_messages_total{result}
//   - governor_evidence_writes_total{result}
//   - governor_evidence_prune_runs_total{result}
//   - governor_evidence_pruned_records_total
//   - governor_stream_subscribers
//   - governor_rate_limited_total{route}
type PipelineMetrics struct {
	statebusMessages  *prometheus.CounterVec
	evidenceWrites    *prometheus.CounterVec
	pruneRuns         *prometheus.CounterVec
	pruned            prometheus.Counter
	streamSubscribers prometheus.Gauge
	rateLimited       *prometheus.CounterVec
}

func newPipelineMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PipelineMetrics {
	m := &PipelineMetrics{
		statebusMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "statebus_messages_total",
				Help:      "State snapshots consumed from the bus, by outcome",
			},
			[]string{"result"},
		),
		evidenceWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "evidence_writes_total",
				Help:      "Evidence records written, by outcome",
			},
			[]string{"result"},
		),
		pruneRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "evidence_prune_runs_total",
				Help:      "Retention runs over the evidence archive, by outcome",
			},
			[]string{"result"},
		),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "evidence_pruned_records_total",
			Help:      "Evidence records deleted by retention",
		}),
		streamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "stream_subscribers",
			Help:      "Connected audit stream clients",
		}),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "rate_limited_total",
				Help:      "Admission requests refused by the rate limiter",
			},
			[]string{"route"},
		),
	}
	registry.MustRegister(m.statebusMessages, m.evidenceWrites, m.pruneRuns, m.pruned, m.streamSubscribers, m.rateLimited)
	return m
}
