package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"

	"nanogov/governor/pkg/condition"
)

const (
	// MaxRules is the most rules a policy may carry.
	MaxRules = 10

	// MaxSize is the ceiling, in bytes, on a policy's canonical serialization.
	MaxSize = 1024

	// MaxMessageLen bounds a rule's audit message.
	MaxMessageLen = 64

	// MaxDocumentSize bounds the raw wire document, signature included, that
	// the decoder will parse.
	MaxDocumentSize = 16 * 1024
)

var (
	idPattern   = regexp.MustCompile(`^GOV-SEC-[0-9A-F]{8}$`)
	rulePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{0,15}$`)
)

// ValidID reports whether id has the GOV-SEC-XXXXXXXX form.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Rule is one condition/action pair. Rules are immutable once their policy
// is built.
type Rule struct {
	ID        string
	Condition string
	Action    Action
	Message   string

	program *condition.Program
}

// NewRule returns an uncompiled rule. Policies compile their rules when built.
func NewRule(id, cond string, action Action, message string) Rule {
	return Rule{ID: id, Condition: cond, Action: action, Message: message}
}

// Program returns the compiled condition, nil for a rule that was never
// part of a built policy.
func (r *Rule) Program() *condition.Program {
	return r.program
}

// Signature covers the canonical serialization of the rest of the policy.
type Signature struct {
	Algorithm string `json:"algorithm"`
	Value     []byte `json:"value"`
	PublicKey []byte `json:"public_key"`
}

// IsZero reports whether no signature is present.
func (s Signature) IsZero() bool {
	return s.Algorithm == "" && len(s.Value) == 0 && len(s.PublicKey) == 0
}

// Policy is an admitted-or-candidate rule set. A Policy is immutable after
// construction and safe to share between goroutines.
type Policy struct {
	ID          string
	Version     *semver.Version
	Description string
	Rules       []Rule
	Enforcement CheckpointSet
	Signature   Signature

	// Builtin marks factory policies installed at start-up. They are exempt
	// from signature verification and cannot be removed.
	Builtin bool

	canonical []byte
	digest    string
}

// Spec describes a policy to build programmatically.
type Spec struct {
	ID          string
	Version     string
	Description string
	Rules       []Rule
	Enforcement CheckpointSet
	Signature   Signature
}

// Build validates spec, compiles every rule condition and computes the
// canonical form. Errors are *AdmissionError with ReasonMalformedSchema.
func Build(spec Spec, opts ...condition.Option) (*Policy, error) {
	p, err := build(spec, opts...)
	if err != nil {
		return nil, NewAdmissionError(ReasonMalformedSchema, spec.ID, err)
	}
	return p, nil
}

func build(spec Spec, opts ...condition.Option) (*Policy, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("policy_id is required")
	}
	version, err := semver.StrictNewVersion(spec.Version)
	if err != nil {
		return nil, fmt.Errorf("version %q: %w", spec.Version, err)
	}
	if len(spec.Rules) == 0 || len(spec.Rules) > MaxRules {
		return nil, fmt.Errorf("rule count %d outside 1..%d", len(spec.Rules), MaxRules)
	}
	if spec.Enforcement&^AllCheckpoints != 0 {
		return nil, fmt.Errorf("enforcement set %08b has undefined checkpoints", uint8(spec.Enforcement))
	}

	rules := make([]Rule, len(spec.Rules))
	seen := make(map[string]bool, len(spec.Rules))
	for i, r := range spec.Rules {
		if !rulePattern.MatchString(r.ID) {
			return nil, fmt.Errorf("rule %d: invalid id %q", i, r.ID)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("rule %d: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = true
		if !r.Action.Valid() {
			return nil, fmt.Errorf("rule %s: invalid action %d", r.ID, uint8(r.Action))
		}
		if len(r.Message) > MaxMessageLen {
			return nil, fmt.Errorf("rule %s: message longer than %d bytes", r.ID, MaxMessageLen)
		}
		prog, err := condition.Compile(r.Condition, opts...)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		r.program = prog
		rules[i] = r
	}

	p := &Policy{
		ID:          spec.ID,
		Version:     version,
		Description: spec.Description,
		Rules:       rules,
		Enforcement: spec.Enforcement,
		Signature:   spec.Signature,
	}
	canonical, err := canonicalize(p.document(false))
	if err != nil {
		return nil, err
	}
	p.canonical = canonical
	sum := sha256.Sum256(canonical)
	p.digest = hex.EncodeToString(sum[:])
	return p, nil
}

// Canonical returns the canonical serialization the signature covers: the
// RFC 8785 form of the wire document without its signature member.
func (p *Policy) Canonical() []byte {
	return p.canonical
}

// Size returns the length of the canonical serialization.
func (p *Policy) Size() int {
	return len(p.canonical)
}

// Digest returns the hex SHA-256 of the canonical serialization.
func (p *Policy) Digest() string {
	return p.digest
}

// Applies reports whether the policy is enforced at c.
func (p *Policy) Applies(c Checkpoint) bool {
	return p.Enforcement.Has(c)
}

// Rule returns the rule with the given id.
func (p *Policy) Rule(id string) (*Rule, bool) {
	for i := range p.Rules {
		if p.Rules[i].ID == id {
			return &p.Rules[i], true
		}
	}
	return nil, false
}

// String returns "ID@version".
func (p *Policy) String() string {
	return p.ID + "@" + p.Version.Original()
}
