package git

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"nanogov/governor/internal/testkeys"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/signature"
	"nanogov/governor/pkg/policy/store"
)

func rule(limit string) policy.Rule {
	return policy.NewRule("MEM-001", "total_memory > "+limit, policy.ActionDeny, "memory")
}

func doc(t *testing.T, id, version, limit string) []byte {
	t.Helper()
	data, err := policy.Encode(testkeys.Policy(t, id, version, rule(limit)))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newSyncer(t *testing.T, src *sourceRepo, v signature.Verifier) (*Syncer, *store.Store) {
	t.Helper()
	st, err := store.New()
	if err != nil {
		t.Fatal(err)
	}
	s := NewSyncer(clonedRepo(t, src), st, v, time.Hour, nil)
	return s, st
}

func TestSyncer_StartAppliesCheckout(t *testing.T) {
	src := newSourceRepo(t)
	sha := src.commit("policies", map[string][]byte{
		"policies/one.json": doc(t, testkeys.ID(1), "1.0.0", "10"),
		"policies/two.json": doc(t, testkeys.ID(2), "1.0.0", "20"),
		"policies/bad.json": []byte("{"),
	})
	s, st := newSyncer(t, src, testkeys.Registry())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if !s.IsRunning() {
		t.Error("expected syncer to be running")
	}
	if s.LastCommit() != sha {
		t.Errorf("LastCommit() = %s, want %s", s.LastCommit(), sha)
	}
	if _, ok := st.Get(testkeys.ID(1)); !ok {
		t.Error("policy one not admitted")
	}
	if _, ok := st.Get(testkeys.ID(2)); !ok {
		t.Error("policy two not admitted")
	}

	res := s.LastResult()
	if len(res.Applied) != 2 {
		t.Errorf("Applied = %v", res.Applied)
	}
	if reason := res.Rejected["policies/bad.json"]; reason != string(policy.ReasonMalformedSchema) {
		t.Errorf("bad.json rejected with %q", reason)
	}

	if err := s.Start(context.Background()); err == nil {
		t.Error("expected second Start to fail")
	}
}

func TestSyncer_ForceCheckAppliesChangedDocuments(t *testing.T) {
	src := newSourceRepo(t)
	src.commit("v1", map[string][]byte{"policies/one.json": doc(t, testkeys.ID(1), "1.0.0", "10")})
	s, st := newSyncer(t, src, testkeys.Registry())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	res, err := s.ForceCheck(context.Background())
	if err != nil || res != nil {
		t.Fatalf("ForceCheck() with no new commits = %+v, %v", res, err)
	}

	sha := src.commit("v2", map[string][]byte{
		"policies/one.json": doc(t, testkeys.ID(1), "2.0.0", "50"),
		"policies/new.json": doc(t, testkeys.ID(3), "1.0.0", "30"),
	})
	res, err = s.ForceCheck(context.Background())
	if err != nil {
		t.Fatalf("ForceCheck() error = %v", err)
	}
	if res == nil || res.Commit != sha || len(res.Applied) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	p, ok := st.Get(testkeys.ID(1))
	if !ok || p.Version.Original() != "2.0.0" {
		t.Errorf("policy one not superseded: %+v", p)
	}
	if _, ok := st.Get(testkeys.ID(3)); !ok {
		t.Error("new policy not admitted")
	}
}

func TestSyncer_SkipsNonPolicyCommits(t *testing.T) {
	src := newSourceRepo(t)
	s, _ := newSyncer(t, src, testkeys.Registry())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	sha := src.commit("docs only", map[string][]byte{"README.md": []byte("more\n")})
	res, err := s.ForceCheck(context.Background())
	if err != nil || res != nil {
		t.Fatalf("ForceCheck() = %+v, %v", res, err)
	}
	if s.Stats().SkippedPolls != 1 {
		t.Errorf("SkippedPolls = %d, want 1", s.Stats().SkippedPolls)
	}
	if s.LastCommit() != sha {
		t.Error("LastCommit should advance past non-policy commits")
	}
}

func TestSyncer_RemovalAndDeletion(t *testing.T) {
	src := newSourceRepo(t)
	src.commit("v1", map[string][]byte{
		"policies/one.json": doc(t, testkeys.ID(1), "1.0.0", "10"),
		"policies/two.json": doc(t, testkeys.ID(2), "1.0.0", "20"),
	})
	s, st := newSyncer(t, src, testkeys.Registry())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	removal, err := json.Marshal(testkeys.Removal(t, testkeys.Authority(), testkeys.ID(1)))
	if err != nil {
		t.Fatal(err)
	}
	src.commit("retire one, drop two", map[string][]byte{
		"policies/remove-one.json": removal,
		"policies/two.json":        nil,
	})

	res, err := s.ForceCheck(context.Background())
	if err != nil {
		t.Fatalf("ForceCheck() error = %v", err)
	}
	if len(res.Applied) != 1 || res.Applied[0] != "policies/remove-one.json" {
		t.Errorf("Applied = %v", res.Applied)
	}
	if _, ok := st.Get(testkeys.ID(1)); ok {
		t.Error("signed removal should retire policy one")
	}
	if _, ok := st.Get(testkeys.ID(2)); !ok {
		t.Error("deleting a file must not retire its policy")
	}
}

func TestSyncer_UntrustedSignerRejected(t *testing.T) {
	src := newSourceRepo(t)
	rogue := testkeys.SignedBy(t, testkeys.Rogue(), policy.Spec{
		ID:          testkeys.ID(9),
		Version:     "1.0.0",
		Rules:       []policy.Rule{rule("1")},
		Enforcement: policy.AllCheckpoints,
	})
	data, err := policy.Encode(rogue)
	if err != nil {
		t.Fatal(err)
	}
	src.commit("rogue", map[string][]byte{"policies/rogue.json": data})

	trusted := signature.NewRegistry(signature.WithTrustedKeys(testkeys.Authority().PublicKey()))
	s, st := newSyncer(t, src, trusted)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if _, ok := st.Get(testkeys.ID(9)); ok {
		t.Error("rogue policy admitted")
	}
	if got := s.LastResult().Rejected["policies/rogue.json"]; got != string(policy.ReasonInvalidSignature) {
		t.Errorf("rejection reason = %q", got)
	}
	if s.Stats().Rejected != 1 {
		t.Errorf("Rejected = %d", s.Stats().Rejected)
	}
}

func TestSyncer_ResyncIsIdempotent(t *testing.T) {
	src := newSourceRepo(t)
	src.commit("v1", map[string][]byte{"policies/one.json": doc(t, testkeys.ID(1), "1.0.0", "10")})
	s, st := newSyncer(t, src, testkeys.Registry())

	if _, err := s.Sync(); err != nil {
		t.Fatal(err)
	}
	res, err := s.Sync()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Unchanged) != 1 || len(res.Rejected) != 0 {
		t.Errorf("second Sync() = %+v", res)
	}
	if st.Count() != 2 {
		t.Errorf("Count() = %d, want 2", st.Count())
	}
}

func TestSyncer_StopAndContextCancel(t *testing.T) {
	src := newSourceRepo(t)
	s, _ := newSyncer(t, src, testkeys.Registry())

	if err := s.Stop(); err == nil {
		t.Error("Stop() before Start should fail")
	}
	if _, err := s.ForceCheck(context.Background()); err == nil {
		t.Error("ForceCheck() before Start should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.IsRunning() {
		t.Error("syncer still running after context cancel")
	}
}
