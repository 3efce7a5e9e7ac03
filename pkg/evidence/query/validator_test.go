package query

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"nanogov/governor/pkg/evidence"
)

func TestValidate(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name    string
		query   *evidence.Query
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid query with all filters",
			query: &evidence.Query{
				StartTime:  &past,
				EndTime:    &now,
				NodeID:     "node-1",
				Checkpoint: "runtime",
				Verdict:    "deny",
				PolicyID:   "GOV-SEC-AA11BB22",
				RuleID:     "MEM-001",
				FaultsOnly: true,
				Limit:      100,
				SortBy:     "duration",
				SortOrder:  "asc",
			},
		},
		{
			name:  "valid query with minimal filters",
			query: &evidence.Query{Limit: 50},
		},
		{
			name:  "engine fault policy id",
			query: &evidence.Query{PolicyID: "ENGINE"},
		},
		{
			name:  "default policy id",
			query: &evidence.Query{PolicyID: "GOV-SEC-DEFAULT"},
		},
		{
			name:    "negative limit",
			query:   &evidence.Query{Limit: -1},
			wantErr: true,
			errMsg:  "limit must be >= 0",
		},
		{
			name:    "limit too large",
			query:   &evidence.Query{Limit: MaxLimit + 1},
			wantErr: true,
			errMsg:  "limit must be <=",
		},
		{
			name:    "negative offset",
			query:   &evidence.Query{Offset: -5},
			wantErr: true,
			errMsg:  "offset must be >= 0",
		},
		{
			name:    "invalid sort field",
			query:   &evidence.Query{SortBy: "request_time"},
			wantErr: true,
			errMsg:  "invalid sort field",
		},
		{
			name:    "invalid sort order",
			query:   &evidence.Query{SortOrder: "up"},
			wantErr: true,
			errMsg:  "invalid sort order",
		},
		{
			name:    "inverted time range",
			query:   &evidence.Query{StartTime: &now, EndTime: &past},
			wantErr: true,
			errMsg:  "start_time must be before end_time",
		},
		{
			name:    "unknown verdict",
			query:   &evidence.Query{Verdict: "block"},
			wantErr: true,
			errMsg:  "invalid verdict",
		},
		{
			name:    "unknown checkpoint",
			query:   &evidence.Query{Checkpoint: "boot"},
			wantErr: true,
			errMsg:  "invalid checkpoint",
		},
		{
			name:    "malformed policy id",
			query:   &evidence.Query{PolicyID: "GOV-SEC-12"},
			wantErr: true,
			errMsg:  "invalid policy_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	q := &evidence.Query{}
	ApplyDefaults(q)
	if q.Limit != DefaultLimit || q.SortBy != "timestamp" || q.SortOrder != "desc" {
		t.Errorf("ApplyDefaults() = %+v", q)
	}

	custom := &evidence.Query{Limit: 7, SortBy: "verdict", SortOrder: "asc"}
	ApplyDefaults(custom)
	if custom.Limit != 7 || custom.SortBy != "verdict" || custom.SortOrder != "asc" {
		t.Errorf("ApplyDefaults() overwrote explicit values: %+v", custom)
	}

	again := *q
	ApplyDefaults(&again)
	if again != *q {
		t.Error("ApplyDefaults() is not idempotent")
	}
}

func TestFromValues(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, q *evidence.Query)
	}{
		{
			name: "empty",
			raw:  "",
			check: func(t *testing.T, q *evidence.Query) {
				if q.Limit != DefaultLimit || q.SortOrder != "desc" {
					t.Errorf("defaults not applied: %+v", q)
				}
			},
		},
		{
			name: "all parameters",
			raw:  "since=2026-01-01T00:00:00Z&until=2026-01-02T00:00:00Z&node=n1&checkpoint=load&verdict=quarantine&policy=GOV-SEC-0000000A&rule=TIME-001&faults=true&limit=5&offset=10&sort=verdict&order=asc",
			check: func(t *testing.T, q *evidence.Query) {
				if q.StartTime == nil || q.StartTime.Day() != 1 || q.EndTime == nil || q.EndTime.Day() != 2 {
					t.Errorf("time range = %v..%v", q.StartTime, q.EndTime)
				}
				if q.NodeID != "n1" || q.Checkpoint != "load" || q.Verdict != "quarantine" {
					t.Errorf("filters = %+v", q)
				}
				if q.PolicyID != "GOV-SEC-0000000A" || q.RuleID != "TIME-001" || !q.FaultsOnly {
					t.Errorf("filters = %+v", q)
				}
				if q.Limit != 5 || q.Offset != 10 || q.SortBy != "verdict" || q.SortOrder != "asc" {
					t.Errorf("pagination = %+v", q)
				}
			},
		},
		{name: "bad time", raw: "since=yesterday", wantErr: true},
		{name: "bad limit", raw: "limit=ten", wantErr: true},
		{name: "bad faults", raw: "faults=maybe", wantErr: true},
		{name: "invalid verdict", raw: "verdict=maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := url.ParseQuery(tt.raw)
			if err != nil {
				t.Fatalf("ParseQuery() failed: %v", err)
			}
			q, err := FromValues(v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromValues() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, q)
			}
		})
	}
}

func BenchmarkValidate(b *testing.B) {
	now := time.Now()
	past := now.Add(-time.Hour)
	q := &evidence.Query{StartTime: &past, EndTime: &now, Verdict: "deny", PolicyID: "GOV-SEC-AA11BB22", Limit: 100}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Validate(q)
	}
}
