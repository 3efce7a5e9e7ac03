package evidence

import (
	"context"
	"io"
	"time"
)

// Record is the durable archive form of one enforcement decision. The ring
// buffer in package decisionlog keeps only the most recent entries; records
// outlive it for audit and forensics.
type Record struct {
	// Identity
	ID     string `json:"id"`      // UUID v4
	NodeID string `json:"node_id"` // Reporting node

	// Timestamps
	DecisionTime time.Time `json:"decision_time"` // When the engine decided
	RecordedTime time.Time `json:"recorded_time"` // When the record was written

	// Decision
	Checkpoint  string        `json:"checkpoint"`   // compile, load, runtime, update
	Verdict     string        `json:"verdict"`      // allow, deny, quarantine, erase
	VerdictCode int           `json:"verdict_code"` // 0..3
	Effect      string        `json:"effect"`       // none, quarantine, erase_and_halt
	PolicyID    string        `json:"policy_id"`    // Deciding policy, empty for Allow
	RuleID      string        `json:"rule_id"`      // Deciding rule
	Message     string        `json:"message"`      // Deciding rule message
	Fault       string        `json:"fault"`        // Engine fault kind, if any
	Duration    time.Duration `json:"duration"`     // Evaluation time

	// Trail
	Entries          []EntryRecord `json:"entries"`           // Every triggered rule, in order
	Anomalies        []string      `json:"anomalies"`         // policy/rule: anomaly
	PolicyGeneration uint64        `json:"policy_generation"` // Store snapshot generation
	StateHash        string        `json:"state_hash"`        // SHA-256 of the evaluated snapshot
}

// EntryRecord mirrors a decision log entry inside a Record.
type EntryRecord struct {
	Seq      uint64 `json:"seq"`
	PolicyID string `json:"policy_id"`
	RuleID   string `json:"rule_id"`
	Action   string `json:"action"`
	Message  string `json:"message,omitempty"`
	Fault    string `json:"fault,omitempty"`
}

// Query defines filter parameters for querying evidence records.
type Query struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	NodeID     string `json:"node_id,omitempty"`
	Checkpoint string `json:"checkpoint,omitempty"`
	Verdict    string `json:"verdict,omitempty"`
	PolicyID   string `json:"policy_id,omitempty"`
	RuleID     string `json:"rule_id,omitempty"`
	FaultsOnly bool   `json:"faults_only,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`  // Max records to return
	Offset int `json:"offset,omitempty"` // Skip N records

	// Sorting
	SortBy    string `json:"sort_by,omitempty"`    // "timestamp", "duration", "verdict"
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Storage defines the interface for evidence storage backends.
// Implementations must be thread-safe and support concurrent access.
type Storage interface {
	// Store persists an evidence record.
	Store(ctx context.Context, record *Record) error

	// Query retrieves evidence records matching the query filters.
	// Returns an empty slice if no records match.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// QueryStream returns a channel of records for memory-efficient
	// streaming. Both channels are closed when the query completes; the
	// error channel carries at most one error.
	QueryStream(ctx context.Context, query *Query) (<-chan *Record, <-chan error, error)

	// Count returns the number of records matching the query filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes records matching the query filters and returns how
	// many were removed. Used for retention.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the storage backend.
	Close() error
}

// Exporter defines the interface for exporting evidence records to various formats.
type Exporter interface {
	// Export writes evidence records to the provided writer in the exporter's format.
	Export(ctx context.Context, records []*Record, w io.Writer) error
}
