package decisionlog

import (
	"time"

	"nanogov/governor/pkg/policy"
)

// Entry records one triggered rule or engine fault. Entries are fixed-size
// values and are never mutated once appended.
type Entry struct {
	Seq        uint64            `json:"seq"`
	Timestamp  time.Time         `json:"timestamp"`
	PolicyID   string            `json:"policy_id"`
	RuleID     string            `json:"rule_id"`
	Action     policy.Action     `json:"action"`
	Checkpoint policy.Checkpoint `json:"checkpoint"`
	Message    string            `json:"message,omitempty"`
	Fault      string            `json:"fault,omitempty"`
}

// IsFault reports whether the entry records an engine fault rather than a
// triggered rule.
func (e Entry) IsFault() bool {
	return e.Fault != ""
}
