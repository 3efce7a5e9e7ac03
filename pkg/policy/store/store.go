package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nanogov/governor/pkg/condition"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/signature"
)

const (
	// DefaultCapacity is the maximum number of active policies, the default
	// policy included.
	DefaultCapacity = 5

	// DefaultRemovalWindow bounds the age of an accepted removal request.
	DefaultRemovalWindow = 10 * time.Minute

	nonceMemory = 64
)

var errUnsigned = errors.New("policy carries no signature")

// Operation names the store mutation an Event reports.
type Operation string

const (
	OpAdmit     Operation = "admit"
	OpRemove    Operation = "remove"
	OpSupersede Operation = "supersede"
)

// Event describes one completed or rejected store mutation.
type Event struct {
	Op         Operation
	PolicyID   string
	Version    string
	Err        error
	Reason     policy.Reason
	Generation uint64
	Active     int
}

// Store holds the active policy set. Mutations are serialized and publish a
// new immutable Snapshot; readers load the current snapshot without locking.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]

	capacity      int
	defaults      []*policy.Policy
	condOpts      []condition.Option
	removalWindow time.Duration
	nonces        *nonceSet
	listeners     []func(Event)
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity sets the maximum number of active policies.
func WithCapacity(n int) Option {
	return func(s *Store) { s.capacity = n }
}

// WithDefaults replaces the factory policy set installed by New.
func WithDefaults(ps ...*policy.Policy) Option {
	return func(s *Store) { s.defaults = ps }
}

// WithStrictFields rejects policies whose conditions reference fields the
// engine does not know.
func WithStrictFields() Option {
	return func(s *Store) { s.condOpts = append(s.condOpts, condition.Strict()) }
}

// WithRemovalWindow bounds how old a removal request may be.
func WithRemovalWindow(d time.Duration) Option {
	return func(s *Store) { s.removalWindow = d }
}

// WithListener registers fn to receive an Event after every mutation
// attempt. Listeners run on the writer's goroutine and must not block.
func WithListener(fn func(Event)) Option {
	return func(s *Store) { s.listeners = append(s.listeners, fn) }
}

// WithClock overrides the time source used for removal freshness.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New returns a store holding the factory policy set.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		capacity:      DefaultCapacity,
		defaults:      policy.Defaults(),
		removalWindow: DefaultRemovalWindow,
		nonces:        newNonceSet(nonceMemory),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "policy-store")

	if s.capacity < 1 {
		return nil, fmt.Errorf("capacity must be positive, got %d", s.capacity)
	}
	if len(s.defaults) > s.capacity {
		return nil, fmt.Errorf("%d default policies exceed capacity %d", len(s.defaults), s.capacity)
	}
	initial := make([]*policy.Policy, 0, len(s.defaults))
	for _, p := range s.defaults {
		if p == nil {
			return nil, fmt.Errorf("default policy cannot be nil")
		}
		for _, q := range initial {
			if q.ID == p.ID {
				return nil, fmt.Errorf("duplicate default policy %s", p.ID)
			}
		}
		initial = append(initial, p)
	}
	s.current.Store(&Snapshot{policies: initial})
	return s, nil
}

// Snapshot returns the current policy set.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Count returns the number of active policies.
func (s *Store) Count() int {
	return s.current.Load().Len()
}

// Capacity returns the maximum number of active policies.
func (s *Store) Capacity() int {
	return s.capacity
}

// Get returns the active policy with the given identifier.
func (s *Store) Get(id string) (*policy.Policy, bool) {
	return s.current.Load().Get(id)
}

// AdmitBytes decodes, validates and admits a wire document.
func (s *Store) AdmitBytes(data []byte, v signature.Verifier) (*policy.Policy, error) {
	opts := []policy.DecodeOption{}
	if len(s.condOpts) > 0 {
		opts = append(opts, policy.StrictFields())
	}
	p, err := policy.Decode(data, opts...)
	if err != nil {
		cur := s.current.Load()
		s.emit(Event{Op: OpAdmit, PolicyID: policy.PolicyIDOf(err), Err: err, Reason: policy.ReasonOf(err), Generation: cur.Generation(), Active: cur.Len()})
		return nil, err
	}
	if err := s.Admit(p, v); err != nil {
		return nil, err
	}
	return p, nil
}

// Admit adds p to the active set. Checks run in a fixed order: capacity,
// identifier uniqueness, well-formedness, size ceiling, signature. A full
// store therefore reports CapacityExceeded whatever the candidate holds. A
// rejected admission leaves the active set unchanged.
func (s *Store) Admit(p *policy.Policy, v signature.Verifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if p == nil {
		return s.reject(OpAdmit, nil, policy.NewAdmissionError(policy.ReasonMalformedSchema, "", errors.New("policy cannot be nil")), cur)
	}
	if cur.Len() >= s.capacity {
		return s.reject(OpAdmit, p, policy.NewAdmissionError(policy.ReasonCapacityExceeded, p.ID,
			fmt.Errorf("%d of %d slots in use", cur.Len(), s.capacity)), cur)
	}
	if cur.index(p.ID) >= 0 {
		return s.reject(OpAdmit, p, policy.NewAdmissionError(policy.ReasonDuplicateIdentifier, p.ID, nil), cur)
	}
	if err := s.checkCandidate(p, v); err != nil {
		return s.reject(OpAdmit, p, err, cur)
	}

	next := make([]*policy.Policy, cur.Len(), cur.Len()+1)
	copy(next, cur.policies)
	next = append(next, p)
	return s.publish(OpAdmit, p, cur.with(next))
}

// Supersede replaces the active policy carrying p's identifier with p. The
// new version must be strictly greater than the active one and carry a valid
// signature. Load order is preserved.
func (s *Store) Supersede(p *policy.Policy, v signature.Verifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if err := s.checkCandidate(p, v); err != nil {
		return s.reject(OpSupersede, p, err, cur)
	}
	i := cur.index(p.ID)
	if i < 0 {
		return s.reject(OpSupersede, p, policy.NewAdmissionError(policy.ReasonUnknownPolicy, p.ID, nil), cur)
	}
	active := cur.policies[i]
	if active.Builtin {
		return s.reject(OpSupersede, p, policy.NewAdmissionError(policy.ReasonBuiltinPolicy, p.ID, nil), cur)
	}
	if !p.Version.GreaterThan(active.Version) {
		return s.reject(OpSupersede, p, policy.NewAdmissionError(policy.ReasonStaleVersion, p.ID,
			fmt.Errorf("candidate %s, active %s", p.Version, active.Version)), cur)
	}

	next := make([]*policy.Policy, cur.Len())
	copy(next, cur.policies)
	next[i] = p
	return s.publish(OpSupersede, p, cur.with(next))
}

// Remove deactivates the policy named by a signed removal request. The
// request must be fresh and its nonce unused. Factory policies cannot be
// removed.
func (s *Store) Remove(req *policy.RemovalRequest, v signature.Verifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	target := &policy.Policy{ID: req.PolicyID}
	if err := s.checkRemoval(req, v); err != nil {
		return s.reject(OpRemove, target, err, cur)
	}
	i := cur.index(req.PolicyID)
	if i < 0 {
		return s.reject(OpRemove, target, policy.NewAdmissionError(policy.ReasonUnknownPolicy, req.PolicyID, nil), cur)
	}
	if cur.policies[i].Builtin {
		return s.reject(OpRemove, target, policy.NewAdmissionError(policy.ReasonBuiltinPolicy, req.PolicyID, nil), cur)
	}

	s.nonces.add(req.Nonce)
	next := make([]*policy.Policy, 0, cur.Len()-1)
	next = append(next, cur.policies[:i]...)
	next = append(next, cur.policies[i+1:]...)
	return s.publish(OpRemove, cur.policies[i], cur.with(next))
}

func (s *Store) checkCandidate(p *policy.Policy, v signature.Verifier) error {
	if p == nil {
		return policy.NewAdmissionError(policy.ReasonMalformedSchema, "", errors.New("policy cannot be nil"))
	}
	if !policy.ValidID(p.ID) {
		return policy.NewAdmissionError(policy.ReasonMalformedSchema, p.ID, fmt.Errorf("policy_id %q does not match GOV-SEC-XXXXXXXX", p.ID))
	}
	if p.Canonical() == nil || p.Version == nil {
		return policy.NewAdmissionError(policy.ReasonMalformedSchema, p.ID, errors.New("policy was not built"))
	}
	if p.Size() > policy.MaxSize {
		return policy.NewAdmissionError(policy.ReasonOversizePolicy, p.ID,
			fmt.Errorf("canonical body is %d bytes, limit is %d", p.Size(), policy.MaxSize))
	}
	return verify(p.ID, p.Canonical(), p.Signature, v)
}

func (s *Store) checkRemoval(req *policy.RemovalRequest, v signature.Verifier) error {
	if req == nil || req.PolicyID == "" || req.Nonce == "" {
		return policy.NewAdmissionError(policy.ReasonMalformedSchema, "", errors.New("removal request needs policy_id and nonce"))
	}
	body, err := req.Canonical()
	if err != nil {
		return policy.NewAdmissionError(policy.ReasonMalformedSchema, req.PolicyID, err)
	}
	if err := verify(req.PolicyID, body, req.Signature, v); err != nil {
		return err
	}
	if s.nonces.contains(req.Nonce) {
		return policy.NewAdmissionError(policy.ReasonReplayedRequest, req.PolicyID, fmt.Errorf("nonce %s", req.Nonce))
	}
	if age := s.now().Sub(req.IssuedAt); s.removalWindow > 0 && (age > s.removalWindow || age < -s.removalWindow) {
		return policy.NewAdmissionError(policy.ReasonReplayedRequest, req.PolicyID,
			fmt.Errorf("issued %s ago, window is %s", age.Round(time.Second), s.removalWindow))
	}
	return nil
}

func verify(id string, body []byte, sig policy.Signature, v signature.Verifier) error {
	if sig.IsZero() {
		return policy.NewAdmissionError(policy.ReasonInvalidSignature, id, errUnsigned)
	}
	if v == nil {
		return policy.NewAdmissionError(policy.ReasonInvalidSignature, id, errors.New("no signature verifier configured"))
	}
	if err := v.Verify(body, sig); err != nil {
		return policy.NewAdmissionError(policy.ReasonInvalidSignature, id, err)
	}
	return nil
}

func (s *Store) publish(op Operation, p *policy.Policy, next *Snapshot) error {
	s.current.Store(next)
	s.logger.Info("policy set updated",
		"op", op,
		"policy_id", p.ID,
		"version", versionOf(p),
		"active", next.Len(),
		"generation", next.Generation(),
	)
	s.emit(Event{Op: op, PolicyID: p.ID, Version: versionOf(p), Generation: next.Generation(), Active: next.Len()})
	return nil
}

func (s *Store) reject(op Operation, p *policy.Policy, err error, cur *Snapshot) error {
	id := ""
	if p != nil {
		id = p.ID
	}
	s.logger.Warn("policy update rejected",
		"op", op,
		"policy_id", id,
		"reason", policy.ReasonOf(err),
		"error", err,
	)
	s.emit(Event{Op: op, PolicyID: id, Version: versionOf(p), Err: err, Reason: policy.ReasonOf(err), Generation: cur.Generation(), Active: cur.Len()})
	return err
}

func (s *Store) emit(ev Event) {
	for _, fn := range s.listeners {
		fn(ev)
	}
}

func versionOf(p *policy.Policy) string {
	if p == nil || p.Version == nil {
		return ""
	}
	return p.Version.Original()
}
