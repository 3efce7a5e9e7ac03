package sink_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/evidence"
	"nanogov/governor/pkg/evidence/recorder"
	"nanogov/governor/pkg/evidence/sink"
	"nanogov/governor/pkg/evidence/storage"
	"nanogov/governor/pkg/policy"
)

func newSink(t *testing.T, maxLen int64) (*sink.RedisSink, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := sink.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.MaxLen = maxLen
	s, err := sink.NewRedisSink(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func record(id string) *evidence.Record {
	return &evidence.Record{
		ID:           id,
		NodeID:       "node-1",
		DecisionTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Checkpoint:   "runtime",
		Verdict:      "deny",
		VerdictCode:  1,
		PolicyID:     "GOV-SEC-AA11BB22",
		RuleID:       "MEM-001",
		Entries:      []evidence.EntryRecord{{Seq: 1, PolicyID: "GOV-SEC-AA11BB22", RuleID: "MEM-001", Action: "deny"}},
	}
}

func TestRedisSink_ForwardAndRecent(t *testing.T) {
	s, mr := newSink(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Forward(ctx, record("a")))
	require.NoError(t, s.Forward(ctx, record("b")))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].ID)
	assert.Equal(t, "a", recent[1].ID)
	assert.Equal(t, "MEM-001", recent[0].Entries[0].RuleID)

	entries, err := mr.Stream("governor:decisions")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Values, "verdict")
}

func TestRedisSink_MaxLen(t *testing.T) {
	s, _ := newSink(t, 3)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.Forward(ctx, record(id)))
	}
	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	recent, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "e", recent[0].ID)
}

func TestRedisSink_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := sink.DefaultConfig()
	cfg.Addr = addr
	cfg.DialTimeout = 200 * time.Millisecond
	_, err := sink.NewRedisSink(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRedisSink_AsRecorderForwarder(t *testing.T) {
	s, _ := newSink(t, 0)
	mem := storage.NewMemoryStorage()
	rec := recorder.NewRecorder(mem, recorder.DefaultConfig(), recorder.WithForwarder(s))

	rec.Observe(enforce.Decision{Checkpoint: policy.CheckpointLoad, Verdict: enforce.VerdictAllow, Time: time.Now()}, nil)
	require.NoError(t, rec.Close())

	recent, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "load", recent[0].Checkpoint)
	assert.Equal(t, 1, mem.Size())
}
