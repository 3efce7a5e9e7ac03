package recorder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"nanogov/governor/pkg/decisionlog"
	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/evidence"
	"nanogov/governor/pkg/evidence/storage"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/store"
	"nanogov/governor/pkg/state"
)

func newEngine(t *testing.T, rec *Recorder) *enforce.Engine {
	t.Helper()

	s, err := store.New()
	if err != nil {
		t.Fatalf("store.New() failed: %v", err)
	}
	e, err := enforce.New(s, decisionlog.New(0), enforce.WithObserver(rec.Observe))
	if err != nil {
		t.Fatalf("enforce.New() failed: %v", err)
	}
	return e
}

func TestRecorder_Observe(t *testing.T) {
	mem := storage.NewMemoryStorage()
	config := DefaultConfig()
	config.NodeID = "node-7"
	rec := NewRecorder(mem, config)

	e := newEngine(t, rec)
	st := &state.SystemState{TotalMemory: 5000, CryptoAlgorithm: state.CryptoKyber512}
	d := e.Enforce(policy.CheckpointRuntime, st)
	if d.Verdict != enforce.VerdictDeny {
		t.Fatalf("Expected deny, got %s", d.Verdict)
	}
	rec.Close()

	records, err := mem.Query(context.Background(), &evidence.Query{})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	r := records[0]

	if r.NodeID != "node-7" {
		t.Errorf("NodeID = %q, want node-7", r.NodeID)
	}
	if r.Verdict != "deny" || r.VerdictCode != 1 || r.Effect != "none" {
		t.Errorf("Unexpected verdict fields: %s %d %s", r.Verdict, r.VerdictCode, r.Effect)
	}
	if r.PolicyID != policy.DefaultPolicyID || r.RuleID != "MEM-000" {
		t.Errorf("Deciding rule = %s/%s, want %s/MEM-000", r.PolicyID, r.RuleID, policy.DefaultPolicyID)
	}
	if r.Checkpoint != "runtime" {
		t.Errorf("Checkpoint = %q, want runtime", r.Checkpoint)
	}
	if len(r.Entries) != 1 || r.Entries[0].Action != "deny" {
		t.Errorf("Entries = %+v", r.Entries)
	}
	want, _ := HashState(st)
	if r.StateHash != want || len(r.StateHash) != 64 {
		t.Errorf("StateHash = %q, want %q", r.StateHash, want)
	}
	if !r.DecisionTime.Equal(d.Time.UTC()) {
		t.Errorf("DecisionTime = %v, want %v", r.DecisionTime, d.Time)
	}

	recorded, dropped, failed := rec.Stats()
	if recorded != 1 || dropped != 0 || failed != 0 {
		t.Errorf("Stats() = %d/%d/%d, want 1/0/0", recorded, dropped, failed)
	}
}

func TestRecorder_ConfigFilters(t *testing.T) {
	tests := []struct {
		name   string
		config func(*Config)
		state  state.SystemState
		want   int
	}{
		{
			name:   "allow recorded by default",
			config: func(*Config) {},
			state:  state.SystemState{TotalMemory: 2000, CryptoAlgorithm: state.CryptoKyber512},
			want:   1,
		},
		{
			name:   "allow skipped",
			config: func(c *Config) { c.SkipAllow = true },
			state:  state.SystemState{TotalMemory: 2000, CryptoAlgorithm: state.CryptoKyber512},
			want:   0,
		},
		{
			name:   "deny kept when skipping allow",
			config: func(c *Config) { c.SkipAllow = true },
			state:  state.SystemState{TotalMemory: 5000, CryptoAlgorithm: state.CryptoKyber512},
			want:   1,
		},
		{
			name:   "disabled",
			config: func(c *Config) { c.Enabled = false },
			state:  state.SystemState{TotalMemory: 5000},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storage.NewMemoryStorage()
			config := DefaultConfig()
			tt.config(config)
			rec := NewRecorder(mem, config)

			newEngine(t, rec).Enforce(policy.CheckpointRuntime, &tt.state)
			rec.Close()

			if mem.Size() != tt.want {
				t.Errorf("Stored %d records, want %d", mem.Size(), tt.want)
			}
		})
	}
}

// blockingStorage holds every Store call until release is closed.
type blockingStorage struct {
	*storage.MemoryStorage
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStorage) Store(ctx context.Context, record *evidence.Record) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.MemoryStorage.Store(ctx, record)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	blocking := &blockingStorage{
		MemoryStorage: storage.NewMemoryStorage(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	config := DefaultConfig()
	config.AsyncBuffer = 1
	rec := NewRecorder(blocking, config)

	d := enforce.Decision{Checkpoint: policy.CheckpointLoad, Time: time.Now()}
	rec.Observe(d, nil)
	<-blocking.entered

	rec.Observe(d, nil) // buffered
	rec.Observe(d, nil) // dropped

	close(blocking.release)
	rec.Close()

	recorded, dropped, _ := rec.Stats()
	if recorded != 2 || dropped != 1 {
		t.Errorf("Stats() recorded=%d dropped=%d, want 2 and 1", recorded, dropped)
	}

	rec.Observe(d, nil)
	if _, dropped, _ = rec.Stats(); dropped != 2 {
		t.Errorf("Observe after Close should drop, dropped=%d", dropped)
	}
}

type captureForwarder struct {
	mu      sync.Mutex
	records []*evidence.Record
	err     error
}

func (c *captureForwarder) Forward(ctx context.Context, record *evidence.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
	return c.err
}

func TestRecorder_Forwarders(t *testing.T) {
	ok := &captureForwarder{}
	failing := &captureForwarder{err: errors.New("unreachable")}
	mem := storage.NewMemoryStorage()
	rec := NewRecorder(mem, DefaultConfig(), WithForwarder(failing), WithForwarder(ok))

	e := newEngine(t, rec)
	for i := 0; i < 3; i++ {
		e.Enforce(policy.CheckpointRuntime, &state.SystemState{DependencyCount: 3})
	}
	rec.Close()

	if len(ok.records) != 3 || len(failing.records) != 3 {
		t.Errorf("Forwarded %d and %d records, want 3 each", len(ok.records), len(failing.records))
	}
	if mem.Size() != 3 {
		t.Errorf("Stored %d records, want 3", mem.Size())
	}
}

func TestRecorder_RecordStorageError(t *testing.T) {
	mem := storage.NewMemoryStorage()
	mem.Close()
	rec := NewRecorder(mem, DefaultConfig())
	defer rec.Close()

	err := rec.Record(context.Background(), &evidence.Record{ID: "r-1"})
	var recErr *evidence.RecorderError
	if !errors.As(err, &recErr) {
		t.Fatalf("Expected RecorderError, got %v", err)
	}
	if _, _, failed := rec.Stats(); failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}

func TestRecorder_WriteHook(t *testing.T) {
	mem := storage.NewMemoryStorage()
	var outcomes []error
	rec := NewRecorder(mem, DefaultConfig(), WithWriteHook(func(err error) { outcomes = append(outcomes, err) }))
	defer rec.Close()

	if err := rec.Record(context.Background(), &evidence.Record{ID: "r-1"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	mem.Close()
	_ = rec.Record(context.Background(), &evidence.Record{ID: "r-2"})

	if len(outcomes) != 2 {
		t.Fatalf("hook called %d times, want 2", len(outcomes))
	}
	if outcomes[0] != nil || outcomes[1] == nil {
		t.Errorf("outcomes = %v, want [nil, error]", outcomes)
	}
}

func TestNewRecord(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	entries := []decisionlog.Entry{
		{Seq: 4, PolicyID: "GOV-SEC-00000001", RuleID: "LOG-1", Action: policy.ActionLog, Message: "seen"},
		{Seq: 5, PolicyID: "GOV-SEC-00000001", RuleID: "Q-1", Action: policy.ActionQuarantine, Message: "isolate"},
	}
	d := enforce.Decision{
		Checkpoint: policy.CheckpointUpdate,
		Verdict:    enforce.VerdictQuarantine,
		Effect:     enforce.EffectQuarantine,
		Entries:    entries,
		Entry:      &entries[1],
		Generation: 9,
		Time:       now,
		Duration:   3 * time.Microsecond,
		Anomalies: []enforce.RuleAnomaly{{
			PolicyID: "GOV-SEC-00000001",
			RuleID:   "LOG-1",
		}},
	}
	d.Anomalies[0].Anomaly.Field = "context.job"

	r := NewRecord("node-1", d)
	if len(r.ID) != 36 {
		t.Errorf("ID = %q, want a UUID", r.ID)
	}
	if r.Verdict != "quarantine" || r.VerdictCode != 2 || r.Effect != "quarantine" {
		t.Errorf("Unexpected verdict fields: %s %d %s", r.Verdict, r.VerdictCode, r.Effect)
	}
	if r.RuleID != "Q-1" || r.Message != "isolate" {
		t.Errorf("Deciding rule = %s %q", r.RuleID, r.Message)
	}
	if r.Checkpoint != "update" || r.PolicyGeneration != 9 || !r.DecisionTime.Equal(now) {
		t.Errorf("Unexpected context fields: %+v", r)
	}
	if len(r.Entries) != 2 || r.Entries[0].Action != "log" || r.Entries[1].Seq != 5 {
		t.Errorf("Entries = %+v", r.Entries)
	}
	if len(r.Anomalies) != 1 || !strings.HasPrefix(r.Anomalies[0], "GOV-SEC-00000001/LOG-1: ") {
		t.Errorf("Anomalies = %v", r.Anomalies)
	}
}

func TestNewRecord_Fault(t *testing.T) {
	entry := decisionlog.Entry{Seq: 1, PolicyID: enforce.FaultPolicyID, RuleID: enforce.FaultRuleID, Action: policy.ActionDeny, Fault: "timeout"}
	d := enforce.Decision{
		Verdict: enforce.VerdictDeny,
		Entries: []decisionlog.Entry{entry},
		Entry:   &entry,
		Fault:   &enforce.FaultError{Kind: enforce.FaultTimeout},
	}

	r := NewRecord("", d)
	if r.Fault != "timeout" || r.PolicyID != "ENGINE" || r.RuleID != "FAULT" {
		t.Errorf("Fault record = %+v", r)
	}
}

func TestHashState(t *testing.T) {
	var a, b state.SystemState
	a.TotalMemory, b.TotalMemory = 2048, 2048
	_ = a.Context.Set(state.ContextFilePath, "/etc/keys")
	_ = a.Context.Set(state.ContextModuleName, "mesh")
	_ = b.Context.Set(state.ContextModuleName, "mesh")
	_ = b.Context.Set(state.ContextFilePath, "/etc/keys")

	ha, err := HashState(&a)
	if err != nil {
		t.Fatalf("HashState() failed: %v", err)
	}
	hb, _ := HashState(&b)
	if ha != hb {
		t.Errorf("Context insertion order changed the hash: %s != %s", ha, hb)
	}

	b.Uptime = 1
	if hc, _ := HashState(&b); hc == ha {
		t.Error("Different states produced the same hash")
	}

	if h, err := HashState(nil); h != "" || err != nil {
		t.Errorf("HashState(nil) = %q, %v", h, err)
	}
	if HashContent(nil) != "" {
		t.Error("HashContent(nil) should be empty")
	}
}
