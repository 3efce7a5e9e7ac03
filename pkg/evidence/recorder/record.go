package recorder

import (
	"github.com/google/uuid"

	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/evidence"
)

// NewRecord converts a decision into an archive record with a fresh UUID.
// RecordedTime and StateHash are left for the caller.
func NewRecord(nodeID string, d enforce.Decision) *evidence.Record {
	record := &evidence.Record{
		ID:               uuid.New().String(),
		NodeID:           nodeID,
		DecisionTime:     d.Time.UTC(),
		Checkpoint:       d.Checkpoint.String(),
		Verdict:          d.Verdict.String(),
		VerdictCode:      d.Verdict.Code(),
		Effect:           d.Effect.String(),
		Duration:         d.Duration,
		Entries:          make([]evidence.EntryRecord, 0, len(d.Entries)),
		Anomalies:        make([]string, 0, len(d.Anomalies)),
		PolicyGeneration: d.Generation,
	}

	for _, e := range d.Entries {
		record.Entries = append(record.Entries, evidence.EntryRecord{
			Seq:      e.Seq,
			PolicyID: e.PolicyID,
			RuleID:   e.RuleID,
			Action:   e.Action.String(),
			Message:  e.Message,
			Fault:    e.Fault,
		})
	}
	for _, a := range d.Anomalies {
		record.Anomalies = append(record.Anomalies, a.PolicyID+"/"+a.RuleID+": "+a.Anomaly.String())
	}

	if d.Entry != nil {
		record.PolicyID = d.Entry.PolicyID
		record.RuleID = d.Entry.RuleID
		record.Message = d.Entry.Message
		record.Fault = d.Entry.Fault
	}
	if d.Fault != nil {
		record.Fault = string(d.Fault.Kind)
	}
	return record
}
