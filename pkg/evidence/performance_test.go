package evidence_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"nanogov/governor/pkg/decisionlog"
	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/evidence"
	"nanogov/governor/pkg/evidence/recorder"
	"nanogov/governor/pkg/evidence/retention"
	"nanogov/governor/pkg/evidence/storage"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/store"
	"nanogov/governor/pkg/state"
)

func newSQLite(tb testing.TB) *storage.SQLiteStorage {
	tb.Helper()
	s, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
		Path:         filepath.Join(tb.TempDir(), "perf.db"),
		Driver:       storage.DriverPure,
		MaxOpenConns: 4,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	})
	if err != nil {
		tb.Fatalf("Failed to create storage: %v", err)
	}
	return s
}

// TestEndToEnd_EnforceToArchive runs decisions through the engine and
// recorder into SQLite and reads them back.
func TestEndToEnd_EnforceToArchive(t *testing.T) {
	s := newSQLite(t)
	defer s.Close()

	rec := recorder.NewRecorder(s, recorder.DefaultConfig())
	policies, err := store.New()
	if err != nil {
		t.Fatalf("store.New() failed: %v", err)
	}
	engine, err := enforce.New(policies, decisionlog.New(0), enforce.WithObserver(rec.Observe))
	if err != nil {
		t.Fatalf("enforce.New() failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		engine.Enforce(policy.CheckpointRuntime, &state.SystemState{
			TotalMemory:     uint64(1000 + i*100),
			CryptoAlgorithm: state.CryptoKyber512,
		})
	}
	rec.Close()

	ctx := context.Background()
	total, err := s.Count(ctx, &evidence.Query{})
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if total != 50 {
		t.Fatalf("Archived %d decisions, want 50", total)
	}

	denies, err := s.Query(ctx, &evidence.Query{Verdict: "deny", RuleID: "MEM-000", Limit: 100})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	// total_memory > 4096 denies i >= 31.
	if len(denies) != 19 {
		t.Errorf("Found %d MEM-000 denials, want 19", len(denies))
	}
}

func TestRetentionPerformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}

	s := newSQLite(t)
	defer s.Close()
	ctx := context.Background()

	base := time.Now().AddDate(0, 0, -60)
	for i := 0; i < 10000; i++ {
		r := &evidence.Record{
			ID:           fmt.Sprintf("rec-%05d", i),
			DecisionTime: base.Add(time.Duration(i) * time.Minute),
			Verdict:      "allow",
		}
		if err := s.Store(ctx, r); err != nil {
			t.Fatalf("Store() failed: %v", err)
		}
	}

	start := time.Now()
	deleted, err := retention.NewPruner(s, &retention.Config{MaxRecords: 1000}).Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	elapsed := time.Since(start)

	if deleted != 9000 {
		t.Errorf("Prune() deleted %d, want 9000", deleted)
	}
	t.Logf("pruned %d records in %v", deleted, elapsed)
	if elapsed > 5*time.Second {
		t.Errorf("Pruning took %v, want < 5s", elapsed)
	}
}

func BenchmarkRecordingThroughput_SQLite(b *testing.B) {
	s := newSQLite(b)
	defer s.Close()
	ctx := context.Background()
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Store(ctx, &evidence.Record{
			ID:           fmt.Sprintf("record-%d", i),
			DecisionTime: now,
			Verdict:      "deny",
			PolicyID:     "GOV-SEC-AA11BB22",
			RuleID:       "MEM-001",
		})
	}
	b.StopTimer()
	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "records/sec")
}

func BenchmarkObserve(b *testing.B) {
	rec := recorder.NewRecorder(storage.NewMemoryStorage(), &recorder.Config{
		Enabled:     true,
		AsyncBuffer: 4096,
		HashState:   true,
	})
	defer rec.Close()

	st := &state.SystemState{TotalMemory: 5000, CryptoAlgorithm: state.CryptoKyber512}
	d := enforce.Decision{Checkpoint: policy.CheckpointRuntime, Verdict: enforce.VerdictDeny, Time: time.Now()}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec.Observe(d, st)
	}
}
