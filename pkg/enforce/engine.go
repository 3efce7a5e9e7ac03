package enforce

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"nanogov/governor/pkg/condition"
	"nanogov/governor/pkg/decisionlog"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/store"
	"nanogov/governor/pkg/state"
)

// PolicySource supplies the active policy set. *store.Store implements it.
type PolicySource interface {
	Snapshot() *store.Snapshot
}

// Journal records decision entries. *decisionlog.Log implements it.
type Journal interface {
	Append(decisionlog.Entry) (decisionlog.Entry, error)
}

// RuleAnomaly is a condition anomaly attributed to the rule that raised it.
type RuleAnomaly struct {
	PolicyID string            `json:"policy_id"`
	RuleID   string            `json:"rule_id"`
	Anomaly  condition.Anomaly `json:"-"`
}

// Decision is the result of one enforcement call.
type Decision struct {
	Checkpoint policy.Checkpoint `json:"checkpoint"`
	Verdict    Verdict           `json:"verdict"`
	Effect     Effect            `json:"effect"`

	// Entry is the entry of the rule or fault that decided the verdict, nil
	// when nothing terminated the scan.
	Entry *decisionlog.Entry `json:"entry,omitempty"`

	// Entries holds every entry appended by this call, in order.
	Entries []decisionlog.Entry `json:"entries"`

	Anomalies  []RuleAnomaly `json:"anomalies,omitempty"`
	Fault      *FaultError   `json:"-"`
	Generation uint64        `json:"policy_generation"`
	Time       time.Time     `json:"time"`
	Duration   time.Duration `json:"duration_ns"`
}

// Engine evaluates the active policy set at lifecycle checkpoints. It owns no
// global state: the policy source, the journal and the checkpoint mask are
// supplied by the caller and an Engine is safe for concurrent use.
type Engine struct {
	policies  PolicySource
	journal   Journal
	enabled   atomic.Uint32
	observers []Observer
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// Observer receives every decision together with the state it was made on.
// Observers run on the enforcing goroutine, must not block and must not
// retain st.
type Observer func(d Decision, st *state.SystemState)

// WithObserver registers fn to receive every decision after it is made.
func WithObserver(fn Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, fn) }
}

// WithTracer sets the tracer used by EnforceContext.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithCheckpoints sets the initially enabled checkpoints.
func WithCheckpoints(set policy.CheckpointSet) Option {
	return func(e *Engine) { e.enabled.Store(uint32(set)) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the clock used for decision durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an engine reading policies from src and recording to journal.
// Every checkpoint is enabled.
func New(src PolicySource, journal Journal, opts ...Option) (*Engine, error) {
	if src == nil {
		return nil, fmt.Errorf("policy source cannot be nil")
	}
	if journal == nil {
		return nil, fmt.Errorf("journal cannot be nil")
	}

	e := &Engine{
		policies: src,
		journal:  journal,
		now:      time.Now,
	}
	e.enabled.Store(uint32(policy.AllCheckpoints))
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer("governor")
	}
	e.logger = e.logger.With("component", "enforce")
	return e, nil
}

// EnableCheckpoint turns enforcement at cp on.
func (e *Engine) EnableCheckpoint(cp policy.Checkpoint) {
	e.enabled.Or(uint32(cp.Bit()))
}

// DisableCheckpoint turns enforcement at cp off. Calls at a disabled
// checkpoint return Allow without consulting any policy.
func (e *Engine) DisableCheckpoint(cp policy.Checkpoint) {
	e.enabled.And(^uint32(cp.Bit()))
}

// Checkpoints returns the enabled checkpoints.
func (e *Engine) Checkpoints() policy.CheckpointSet {
	return policy.CheckpointSet(e.enabled.Load())
}

// Enforce evaluates the active policies that apply at cp against st.
//
// Policies are scanned in load order and rules in declaration order. Every
// rule whose condition holds is appended to the journal. Allow and log
// actions continue the scan; deny, quarantine and self_destruct end it and
// decide the verdict. If nothing ends the scan the verdict is Allow. Engine
// faults resolve to Deny.
func (e *Engine) Enforce(cp policy.Checkpoint, st *state.SystemState) Decision {
	return e.run(cp, st, true)
}

// EnforceContext is Enforce wrapped in a "governor.enforce" span.
func (e *Engine) EnforceContext(ctx context.Context, cp policy.Checkpoint, st *state.SystemState) Decision {
	return e.traced(ctx, cp, st, true)
}

// run evaluates and stamps the decision. Observers see it only when notify
// is set.
func (e *Engine) run(cp policy.Checkpoint, st *state.SystemState, notify bool) Decision {
	start := e.now()
	d := e.evaluate(cp, st)
	d.Time = start
	d.Duration = e.now().Sub(start)
	if notify {
		e.notify(d, st)
	}
	return d
}

func (e *Engine) traced(ctx context.Context, cp policy.Checkpoint, st *state.SystemState, notify bool) Decision {
	_, span := e.tracer.Start(ctx, "governor.enforce",
		trace.WithAttributes(attribute.String("governor.checkpoint", cp.String())))
	defer span.End()

	d := e.run(cp, st, notify)
	span.SetAttributes(
		attribute.String("governor.verdict", d.Verdict.String()),
		attribute.Int("governor.entries", len(d.Entries)),
		attribute.Int64("governor.policy_generation", int64(d.Generation)),
	)
	if d.Entry != nil {
		span.SetAttributes(
			attribute.String("governor.policy_id", d.Entry.PolicyID),
			attribute.String("governor.rule_id", d.Entry.RuleID),
		)
	}
	if d.Fault != nil {
		span.SetStatus(codes.Error, d.Fault.Error())
	}
	return d
}

func (e *Engine) evaluate(cp policy.Checkpoint, st *state.SystemState) Decision {
	d := Decision{Checkpoint: cp, Verdict: VerdictAllow}
	if !cp.Valid() {
		return e.fault(d, &FaultError{Kind: FaultInconsistentState, Cause: fmt.Errorf("%w: %d", ErrUnknownCheckpoint, uint8(cp))})
	}
	if st == nil {
		return e.fault(d, &FaultError{Kind: FaultInconsistentState, Cause: ErrNilState})
	}
	if !e.Checkpoints().Has(cp) {
		return d
	}

	snap := e.policies.Snapshot()
	d.Generation = snap.Generation()
	for _, p := range snap.Policies() {
		if !p.Applies(cp) {
			continue
		}
		for i := range p.Rules {
			r := &p.Rules[i]
			prog := r.Program()
			if prog == nil {
				return e.fault(d, &FaultError{Kind: FaultInconsistentState, PolicyID: p.ID, RuleID: r.ID, Cause: ErrUncompiledRule})
			}

			matched, anomaly := prog.Eval(st)
			if !anomaly.IsZero() {
				d.Anomalies = append(d.Anomalies, RuleAnomaly{PolicyID: p.ID, RuleID: r.ID, Anomaly: anomaly})
				e.logger.Warn("condition anomaly",
					"policy_id", p.ID,
					"rule_id", r.ID,
					"checkpoint", cp,
					"anomaly", anomaly.String(),
				)
			}
			if !matched {
				continue
			}

			entry, err := e.journal.Append(decisionlog.Entry{
				PolicyID:   p.ID,
				RuleID:     r.ID,
				Action:     r.Action,
				Checkpoint: cp,
				Message:    r.Message,
			})
			d.Entries = append(d.Entries, entry)
			if err != nil {
				return e.fault(d, &FaultError{Kind: FaultLogCorruption, PolicyID: p.ID, RuleID: r.ID, Cause: err})
			}

			verdict, effect, terminal := Resolve(r.Action)
			if terminal {
				d.Verdict, d.Effect = verdict, effect
				d.Entry = &d.Entries[len(d.Entries)-1]
				return d
			}
		}
	}
	return d
}

// fault records a fault entry and resolves d to Deny.
func (e *Engine) fault(d Decision, f *FaultError) Decision {
	e.logger.Error("engine fault",
		"kind", f.Kind,
		"checkpoint", d.Checkpoint,
		"policy_id", f.PolicyID,
		"rule_id", f.RuleID,
		"error", f.Cause,
	)

	entry, _ := e.journal.Append(decisionlog.Entry{
		PolicyID:   FaultPolicyID,
		RuleID:     FaultRuleID,
		Action:     policy.ActionDeny,
		Checkpoint: d.Checkpoint,
		Message:    truncate(f.Error(), policy.MaxMessageLen),
		Fault:      string(f.Kind),
	})
	d.Entries = append(d.Entries, entry)
	d.Entry = &d.Entries[len(d.Entries)-1]
	d.Verdict = VerdictDeny
	d.Effect = EffectNone
	d.Fault = f
	return d
}

func (e *Engine) notify(d Decision, st *state.SystemState) {
	for _, fn := range e.observers {
		fn(d, st)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
