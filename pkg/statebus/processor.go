package statebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/state"
	"nanogov/governor/pkg/telemetry/logging"
	"nanogov/governor/pkg/telemetry/tracing"
)

// Outcomes reported to the result hook.
const (
	ResultEnforced     = "enforced"
	ResultInvalid      = "invalid"
	ResultPublishError = "publish_error"
)

// readRetryDelay is the pause after a failed read before trying again.
const readRetryDelay = 500 * time.Millisecond

// Enforcer is satisfied by *enforce.Engine.
type Enforcer interface {
	Guard(ctx context.Context, timeout time.Duration, cp policy.Checkpoint, st *state.SystemState) enforce.Decision
}

// Verdict is the message published for every enforced snapshot.
type Verdict struct {
	NodeID     string    `json:"node_id,omitempty"`
	Checkpoint string    `json:"checkpoint"`
	Verdict    string    `json:"verdict"`
	Code       int       `json:"code"`
	Effect     string    `json:"effect"`
	PolicyID   string    `json:"policy_id,omitempty"`
	RuleID     string    `json:"rule_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	Fault      string    `json:"fault,omitempty"`
	Generation uint64    `json:"policy_generation"`
	DecidedAt  time.Time `json:"decided_at"`
}

// NewVerdict flattens a decision for the verdict topic.
func NewVerdict(nodeID string, d enforce.Decision) Verdict {
	v := Verdict{
		NodeID:     nodeID,
		Checkpoint: d.Checkpoint.String(),
		Verdict:    d.Verdict.String(),
		Code:       d.Verdict.Code(),
		Effect:     d.Effect.String(),
		Generation: d.Generation,
		DecidedAt:  d.Time.UTC(),
	}
	if d.Entry != nil {
		v.PolicyID = d.Entry.PolicyID
		v.RuleID = d.Entry.RuleID
		v.Message = d.Entry.Message
	}
	if d.Fault != nil {
		v.Fault = string(d.Fault.Kind)
	}
	return v
}

// Stats counts processed messages by outcome.
type Stats struct {
	Consumed      int64
	Enforced      int64
	Invalid       int64
	PublishErrors int64
	ReadErrors    int64
}

// Processor enforces every state snapshot read from the bus at a fixed
// checkpoint and publishes the verdict keyed by the reporting node.
type Processor struct {
	consumer   Consumer
	publisher  Publisher
	engine     Enforcer
	checkpoint policy.Checkpoint
	timeout    time.Duration
	tracer     trace.Tracer
	logger     *slog.Logger
	onResult   func(string)

	mu      sync.Mutex
	stats   Stats
	running bool
}

// Option configures a Processor.
type Option func(*Processor)

// WithPublisher publishes a Verdict for every enforced snapshot.
func WithPublisher(p Publisher) Option {
	return func(pr *Processor) { pr.publisher = p }
}

// WithCheckpoint sets the checkpoint for snapshots without a checkpoint
// header. The default is runtime.
func WithCheckpoint(cp policy.Checkpoint) Option {
	return func(pr *Processor) { pr.checkpoint = cp }
}

// WithTimeout bounds each enforcement through Guard.
func WithTimeout(d time.Duration) Option {
	return func(pr *Processor) { pr.timeout = d }
}

// WithTracer opens a governor.statebus.ingest span per message.
func WithTracer(t trace.Tracer) Option {
	return func(pr *Processor) { pr.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(pr *Processor) { pr.logger = logger }
}

// WithResultHook receives one outcome per consumed message.
func WithResultHook(fn func(result string)) Option {
	return func(pr *Processor) { pr.onResult = fn }
}

// NewProcessor creates a processor reading from consumer.
func NewProcessor(consumer Consumer, engine Enforcer, opts ...Option) (*Processor, error) {
	if consumer == nil {
		return nil, errors.New("consumer cannot be nil")
	}
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	p := &Processor{
		consumer:   consumer,
		engine:     engine,
		checkpoint: policy.CheckpointRuntime,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = noop.NewTracerProvider().Tracer(tracing.InstrumentationName)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "statebus")
	return p, nil
}

// Run consumes until ctx is done. Read errors are logged and retried after
// a short pause; undecodable snapshots are skipped.
func (p *Processor) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("processor is already running")
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.logger.Info("state bus consumer started", "checkpoint", p.checkpoint.String())
	for {
		msg, err := p.consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("state bus consumer stopped")
				return nil
			}
			p.count(func(s *Stats) { s.ReadErrors++ })
			p.logger.Warn("state bus read error", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readRetryDelay):
			}
			continue
		}
		p.Handle(ctx, msg)
	}
}

// IsRunning reports whether Run is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Handle enforces a single message and returns the outcome.
func (p *Processor) Handle(ctx context.Context, msg Message) string {
	p.count(func(s *Stats) { s.Consumed++ })
	nodeID := string(msg.Key)
	if nodeID == "" {
		nodeID = msg.Headers[HeaderNodeID]
	}

	ctx = tracing.ExtractFromMap(ctx, msg.Headers)
	ctx, span := p.tracer.Start(ctx, tracing.SpanIngest, trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("governor.node_id", nodeID)))
	defer span.End()
	ctx = logging.WithNodeID(ctx, nodeID)

	cp, st, err := p.decode(msg)
	if err != nil {
		tracing.SetError(span, err)
		p.logger.WarnContext(ctx, "rejecting state snapshot", "error", err)
		p.count(func(s *Stats) { s.Invalid++ })
		return p.result(ResultInvalid)
	}

	d := p.engine.Guard(ctx, p.timeout, cp, st)
	p.count(func(s *Stats) { s.Enforced++ })
	if d.Verdict != enforce.VerdictAllow {
		p.logger.InfoContext(ctx, "snapshot not allowed",
			"checkpoint", cp.String(), "verdict", d.Verdict.String(), "effect", d.Effect.String())
	}

	if p.publisher == nil {
		return p.result(ResultEnforced)
	}
	if err := p.publish(ctx, msg.Key, nodeID, d); err != nil {
		tracing.SetError(span, err)
		p.logger.ErrorContext(ctx, "failed to publish verdict", "error", err)
		p.count(func(s *Stats) { s.PublishErrors++ })
		return p.result(ResultPublishError)
	}
	return p.result(ResultEnforced)
}

func (p *Processor) decode(msg Message) (policy.Checkpoint, *state.SystemState, error) {
	cp := p.checkpoint
	if name := msg.Headers[HeaderCheckpoint]; name != "" {
		parsed, ok := policy.ParseCheckpoint(name)
		if !ok {
			return 0, nil, fmt.Errorf("unknown checkpoint %q", name)
		}
		cp = parsed
	}
	if len(msg.Value) == 0 {
		return 0, nil, errors.New("empty snapshot")
	}
	var st state.SystemState
	if err := json.Unmarshal(msg.Value, &st); err != nil {
		return 0, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := st.Validate(); err != nil {
		return 0, nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return cp, &st, nil
}

func (p *Processor) publish(ctx context.Context, key []byte, nodeID string, d enforce.Decision) error {
	body, err := json.Marshal(NewVerdict(nodeID, d))
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	headers := map[string]string{HeaderCheckpoint: d.Checkpoint.String()}
	tracing.InjectToMap(ctx, headers)
	return p.publisher.Publish(ctx, Message{Key: key, Value: body, Headers: headers})
}

func (p *Processor) count(fn func(*Stats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}

func (p *Processor) result(r string) string {
	if p.onResult != nil {
		p.onResult(r)
	}
	return r
}

// Stats returns a copy of the processing counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close releases the consumer and publisher.
func (p *Processor) Close() error {
	var errs []error
	if err := p.consumer.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.publisher != nil {
		if err := p.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
