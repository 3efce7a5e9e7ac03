package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"nanogov/governor/pkg/config"
	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/policy/store"
	"nanogov/governor/pkg/state"
)

// maxRuleSeries bounds the number of distinct policy/rule label sets. Policy
// identifiers churn through supersede and removal, so the series would
// otherwise grow without limit over a long run.
const maxRuleSeries = 1000

// Collector owns the governor metrics and the registry they live in. A
// collector built from a disabled config records nothing.
type Collector struct {
	cfg      config.MetricsConfig
	registry *prometheus.Registry

	enforce   *EnforceMetrics
	admission *AdmissionMetrics
	pipeline  *PipelineMetrics

	ruleSeries *CardinalityLimiter
}

// NewCollector registers every governor metric with registry. A nil registry
// gets a fresh one carrying the Go runtime and process collectors.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	c := &Collector{ruleSeries: NewCardinalityLimiter(maxRuleSeries)}
	if cfg != nil {
		c.cfg = *cfg
	}
	if c.cfg.Namespace == "" {
		c.cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(c.cfg.EnforceDurationBuckets) == 0 {
		c.cfg.EnforceDurationBuckets = config.DefaultEnforceDurationBuckets
	}

	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	c.registry = registry

	c.enforce = newEnforceMetrics(&c.cfg, registry)
	c.admission = newAdmissionMetrics(&c.cfg, registry)
	c.pipeline = newPipelineMetrics(&c.cfg, registry)
	return c
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c.cfg.Enabled
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveDecision records one enforcement decision. It has the signature of
// an enforce.Observer.
func (c *Collector) ObserveDecision(d enforce.Decision, _ *state.SystemState) {
	if !c.cfg.Enabled {
		return
	}
	c.enforce.record(d)
	for _, e := range d.Entries {
		if c.ruleSeries.Allow(e.PolicyID + "/" + e.RuleID) {
			c.enforce.ruleMatches.WithLabelValues(e.PolicyID, e.RuleID, e.Action.String()).Inc()
		} else {
			c.enforce.ruleMatches.WithLabelValues("other", "other", e.Action.String()).Inc()
		}
	}
}

// ObserveStoreEvent records one policy store mutation. It has the signature
// of a store listener.
func (c *Collector) ObserveStoreEvent(ev store.Event) {
	if !c.cfg.Enabled {
		return
	}
	c.admission.record(ev)
}

// RecordStateBusMessage counts one consumed state snapshot by outcome
// ("enforced", "invalid", "publish_error").
func (c *Collector) RecordStateBusMessage(result string) {
	if !c.cfg.Enabled {
		return
	}
	c.pipeline.statebusMessages.WithLabelValues(result).Inc()
}

// RecordEvidenceWrite counts one evidence write.
func (c *Collector) RecordEvidenceWrite(err error) {
	if !c.cfg.Enabled {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.pipeline.evidenceWrites.WithLabelValues(result).Inc()
}

// RecordEvidencePrune counts one retention run and the records it deleted.
// A failed run may still have deleted records.
func (c *Collector) RecordEvidencePrune(deleted int64, err error) {
	if !c.cfg.Enabled {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.pipeline.pruneRuns.WithLabelValues(result).Inc()
	if deleted > 0 {
		c.pipeline.pruned.Add(float64(deleted))
	}
}

// SetStreamSubscribers sets the number of connected audit stream clients.
func (c *Collector) SetStreamSubscribers(n int) {
	if !c.cfg.Enabled {
		return
	}
	c.pipeline.streamSubscribers.Set(float64(n))
}

// RecordRateLimited counts one admission request refused by the limiter.
func (c *Collector) RecordRateLimited(route string) {
	if !c.cfg.Enabled {
		return
	}
	c.pipeline.rateLimited.WithLabelValues(route).Inc()
}

// CardinalityLimiter admits at most max distinct label sets.
type CardinalityLimiter struct {
	max  int
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewCardinalityLimiter creates a limiter admitting max label sets.
func NewCardinalityLimiter(max int) *CardinalityLimiter {
	return &CardinalityLimiter{max: max, seen: make(map[string]struct{})}
}

// Allow reports whether key may be used as a label set. Keys seen before are
// always allowed.
func (l *CardinalityLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[key]; ok {
		return true
	}
	if len(l.seen) >= l.max {
		return false
	}
	l.seen[key] = struct{}{}
	return true
}

// Count returns the number of admitted label sets.
func (l *CardinalityLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
