package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"nanogov/governor/pkg/evidence"
	"nanogov/governor/pkg/evidence/storage"
)

func createTestRecord(id string) *evidence.Record {
	return &evidence.Record{
		ID:           id,
		NodeID:       "node-1",
		DecisionTime: time.Date(2026, 2, 3, 4, 5, 6, 7, time.UTC),
		RecordedTime: time.Date(2026, 2, 3, 4, 5, 7, 0, time.UTC),
		Checkpoint:   "runtime",
		Verdict:      "deny",
		VerdictCode:  1,
		Effect:       "none",
		PolicyID:     "GOV-SEC-AA11BB22",
		RuleID:       "MEM-001",
		Message:      "Exceeds nano-scale memory limit, \"hard\" cap",
		Duration:     1500 * time.Nanosecond,
		Entries: []evidence.EntryRecord{
			{Seq: 41, PolicyID: "GOV-SEC-AA11BB22", RuleID: "LOG-001", Action: "log"},
			{Seq: 42, PolicyID: "GOV-SEC-AA11BB22", RuleID: "MEM-001", Action: "deny"},
		},
		Anomalies:        []string{"GOV-SEC-AA11BB22/CTX-001: unknown_field(context.job)"},
		PolicyGeneration: 3,
		StateHash:        strings.Repeat("f", 64),
	}
}

func TestJSONExporter_Export(t *testing.T) {
	tests := []struct {
		name    string
		records []*evidence.Record
		pretty  bool
		want    int
	}{
		{name: "nil records", records: nil, want: 0},
		{name: "single record", records: []*evidence.Record{createTestRecord("a")}, want: 1},
		{name: "multiple records pretty", records: []*evidence.Record{createTestRecord("a"), createTestRecord("b")}, pretty: true, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewJSONExporter(tt.pretty).Export(context.Background(), tt.records, &buf); err != nil {
				t.Fatalf("Export() failed: %v", err)
			}
			if tt.pretty && !strings.Contains(buf.String(), "\n  ") {
				t.Error("Pretty output is not indented")
			}

			var got []*evidence.Record
			if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("Output is not a JSON array: %v\n%s", err, buf.String())
			}
			if len(got) != tt.want {
				t.Fatalf("Decoded %d records, want %d", len(got), tt.want)
			}
			if tt.want > 0 {
				r := got[0]
				if r.RuleID != "MEM-001" || len(r.Entries) != 2 || r.Entries[1].Seq != 42 {
					t.Errorf("Record not preserved: %+v", r)
				}
				if !r.DecisionTime.Equal(createTestRecord("a").DecisionTime) {
					t.Errorf("DecisionTime = %v", r.DecisionTime)
				}
			}
		})
	}
}

func TestCSVExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	records := []*evidence.Record{createTestRecord("a"), createTestRecord("b")}
	if err := NewCSVExporter(true).Export(context.Background(), records, &buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "id" || len(rows[0]) != len(rows[1]) {
		t.Errorf("Header = %v", rows[0])
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[name] = i
	}
	row := rows[1]
	checks := map[string]string{
		"id":            "a",
		"decision_time": "2026-02-03T04:05:06.000000007Z",
		"verdict_code":  "1",
		"message":       "Exceeds nano-scale memory limit, \"hard\" cap",
		"duration_ns":   "1500",
		"entries":       "41:GOV-SEC-AA11BB22/LOG-001:log;42:GOV-SEC-AA11BB22/MEM-001:deny",
		"anomalies":     "GOV-SEC-AA11BB22/CTX-001: unknown_field(context.job)",
	}
	for name, want := range checks {
		if got := row[col[name]]; got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestCSVExporter_NoHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(false).Export(context.Background(), []*evidence.Record{createTestRecord("a")}, &buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if strings.HasPrefix(buf.String(), "id,") {
		t.Error("Header written when disabled")
	}
}

func TestCSVExporter_ZeroValues(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(false).Export(context.Background(), []*evidence.Record{{ID: "z"}}, &buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if rows[0][2] != "" {
		t.Errorf("Zero time rendered as %q", rows[0][2])
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONLinesExporter(t *testing.T) {
	var buf bytes.Buffer
	records := []*evidence.Record{createTestRecord("a"), createTestRecord("b")}
	if err := NewJSONLinesExporter().Export(context.Background(), records, &buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	for i, line := range lines {
		var r evidence.Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("line %d is not a JSON object: %v", i, err)
		}
		if r.ID != records[i].ID {
			t.Errorf("line %d id = %q, want %q", i, r.ID, records[i].ID)
		}
	}

	buf.Reset()
	if err := NewJSONLinesExporter().Export(context.Background(), nil, &buf); err != nil || buf.Len() != 0 {
		t.Errorf("empty export = %q, %v", buf.String(), err)
	}
}

func TestContentType(t *testing.T) {
	for format, want := range map[string]string{
		FormatJSON:  "application/json",
		"":          "application/json",
		FormatJSONL: "application/x-ndjson",
		FormatCSV:   "text/csv",
	} {
		if got := ContentType(format); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", format, got, want)
		}
	}
}

func TestExporters_WriterErrors(t *testing.T) {
	records := []*evidence.Record{createTestRecord("a")}
	for _, exp := range []evidence.Exporter{NewJSONExporter(false), NewJSONLinesExporter(), NewCSVExporter(true)} {
		err := exp.Export(context.Background(), records, failingWriter{})
		var exportErr *evidence.ExportError
		if !errors.As(err, &exportErr) {
			t.Errorf("%T: expected ExportError, got %v", exp, err)
		}
	}
}

func TestForFormat(t *testing.T) {
	if exp, err := ForFormat("json", true); err != nil || exp.(*JSONExporter).Pretty != true {
		t.Errorf("ForFormat(json) = %v, %v", exp, err)
	}
	if exp, err := ForFormat("jsonl", false); err != nil || !exp.(*JSONExporter).Lines {
		t.Errorf("ForFormat(jsonl) = %v, %v", exp, err)
	}
	if _, err := ForFormat("csv", false); err != nil {
		t.Errorf("ForFormat(csv) failed: %v", err)
	}
	if _, err := ForFormat("xml", false); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestStream(t *testing.T) {
	mem := storage.NewMemoryStorage()
	ctx := context.Background()
	for i := 0; i < 150; i++ {
		r := createTestRecord(strings.Repeat("0", 3) + string(rune('a'+i%26)) + strings.Repeat("x", i/26))
		r.DecisionTime = r.DecisionTime.Add(time.Duration(i) * time.Second)
		if err := mem.Store(ctx, r); err != nil {
			t.Fatalf("Store() failed: %v", err)
		}
	}

	tests := []struct {
		format string
		count  func(t *testing.T, out []byte) int
	}{
		{
			format: FormatJSON,
			count: func(t *testing.T, out []byte) int {
				var got []*evidence.Record
				if err := json.Unmarshal(out, &got); err != nil {
					t.Fatalf("invalid JSON: %v", err)
				}
				return len(got)
			},
		},
		{
			format: FormatCSV,
			count: func(t *testing.T, out []byte) int {
				rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
				if err != nil {
					t.Fatalf("invalid CSV: %v", err)
				}
				return len(rows) - 1
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exp, err := ForFormat(tt.format, false)
			if err != nil {
				t.Fatalf("ForFormat() failed: %v", err)
			}
			var buf bytes.Buffer
			if err := Stream(ctx, mem, &evidence.Query{Limit: 1000}, exp, &buf); err != nil {
				t.Fatalf("Stream() failed: %v", err)
			}
			if n := tt.count(t, buf.Bytes()); n != 150 {
				t.Errorf("Exported %d records, want 150", n)
			}
		})
	}
}

func TestExportStream_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := make(chan *evidence.Record)

	for _, exp := range []StreamExporter{NewJSONExporter(false), NewCSVExporter(true)} {
		if err := exp.ExportStream(ctx, ch, &bytes.Buffer{}); !errors.Is(err, context.Canceled) {
			t.Errorf("%T: expected context.Canceled, got %v", exp, err)
		}
	}
}

func BenchmarkCSVExport_100Records(b *testing.B) {
	records := make([]*evidence.Record, 100)
	for i := range records {
		records[i] = createTestRecord("r")
	}
	exp := NewCSVExporter(true)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		_ = exp.Export(context.Background(), records, &buf)
	}
}
