package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"nanogov/governor/pkg/evidence"
)

// CSVExporter exports evidence records to CSV format.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// Export writes evidence records to the provided writer in CSV format.
// The rule trail is flattened to "seq:policy/rule:action" items joined by
// ';' and anomalies are joined by ';'.
func (e *CSVExporter) Export(ctx context.Context, records []*evidence.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(headerRow); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}
	for _, record := range records {
		if err := writer.Write(recordToRow(record)); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return evidence.NewExportError("csv", len(records), err)
	}
	return nil
}

// ExportStream exports evidence records from a channel to CSV format,
// flushing every 100 records.
func (e *CSVExporter) ExportStream(ctx context.Context, recordsCh <-chan *evidence.Record, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(headerRow); err != nil {
			return evidence.NewExportError("csv", 0, err)
		}
	}

	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return evidence.NewExportError("csv", recordCount, err)
				}
				return nil
			}

			if err := writer.Write(recordToRow(record)); err != nil {
				return evidence.NewExportError("csv", recordCount, err)
			}
			recordCount++

			if recordCount%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return evidence.NewExportError("csv", recordCount, err)
				}
			}
		}
	}
}

var headerRow = []string{
	"id", "node_id", "decision_time", "recorded_time",
	"checkpoint", "verdict", "verdict_code", "effect",
	"policy_id", "rule_id", "message", "fault", "duration_ns",
	"entries", "anomalies", "policy_generation", "state_hash",
}

func recordToRow(record *evidence.Record) []string {
	formatTime := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339Nano)
	}

	trail := make([]string, 0, len(record.Entries))
	for _, e := range record.Entries {
		trail = append(trail, strconv.FormatUint(e.Seq, 10)+":"+e.PolicyID+"/"+e.RuleID+":"+e.Action)
	}

	return []string{
		record.ID,
		record.NodeID,
		formatTime(record.DecisionTime),
		formatTime(record.RecordedTime),
		record.Checkpoint,
		record.Verdict,
		strconv.Itoa(record.VerdictCode),
		record.Effect,
		record.PolicyID,
		record.RuleID,
		record.Message,
		record.Fault,
		strconv.FormatInt(int64(record.Duration), 10),
		strings.Join(trail, ";"),
		strings.Join(record.Anomalies, ";"),
		strconv.FormatUint(record.PolicyGeneration, 10),
		record.StateHash,
	}
}
