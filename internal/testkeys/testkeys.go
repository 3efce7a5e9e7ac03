// Package testkeys provides deterministic signing keys and signed policy
// fixtures for tests. Keys are derived from a fixed master secret, so the
// same key material is produced in every run.
package testkeys

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/signature"
)

var master = []byte("governor test master secret; never deploy")

var (
	authority = sync.OnceValue(func() *signature.Signer { return mustSigner(signature.AlgorithmDilithium2, "authority") })
	rogue     = sync.OnceValue(func() *signature.Signer { return mustSigner(signature.AlgorithmDilithium2, "rogue") })
	edSigner  = sync.OnceValue(func() *signature.Signer { return mustSigner(signature.AlgorithmEd25519, "authority") })
)

// Authority is the trusted Dilithium2 policy signer.
func Authority() *signature.Signer { return authority() }

// Rogue is a valid Dilithium2 key that is not a trusted authority.
func Rogue() *signature.Signer { return rogue() }

// Ed25519 is an Ed25519 signer derived from the same master secret.
func Ed25519() *signature.Signer { return edSigner() }

// Registry trusts the Authority and Ed25519 signers.
func Registry() *signature.Registry {
	return signature.NewRegistry(signature.WithTrustedKeys(Authority().PublicKey(), Ed25519().PublicKey()))
}

// Key derives a key pair for label.
func Key(tb testing.TB, algorithm, label string) *signature.KeyPair {
	tb.Helper()
	kp, err := signature.DeriveKey(algorithm, master, label)
	if err != nil {
		tb.Fatalf("derive %s key %q: %v", algorithm, label, err)
	}
	return kp
}

// Policy builds a policy enforced at every checkpoint and signs it with
// the authority key.
func Policy(tb testing.TB, id, version string, rules ...policy.Rule) *policy.Policy {
	tb.Helper()
	return SignedBy(tb, Authority(), policy.Spec{
		ID:          id,
		Version:     version,
		Description: "test policy " + id,
		Rules:       rules,
		Enforcement: policy.AllCheckpoints,
	})
}

// SignedBy builds spec and signs it with s.
func SignedBy(tb testing.TB, s *signature.Signer, spec policy.Spec) *policy.Policy {
	tb.Helper()
	p, err := policy.Build(spec)
	if err != nil {
		tb.Fatalf("build %s: %v", spec.ID, err)
	}
	return s.SignPolicy(p)
}

// Removal returns a removal request for id signed by s.
func Removal(tb testing.TB, s *signature.Signer, id string) *policy.RemovalRequest {
	tb.Helper()
	req := policy.NewRemovalRequest(id, time.Now())
	if err := s.SignRemoval(req); err != nil {
		tb.Fatalf("sign removal: %v", err)
	}
	return req
}

// ID returns the n-th well-formed policy identifier.
func ID(n uint32) string {
	return fmt.Sprintf("GOV-SEC-%08X", n)
}

func mustSigner(alg, label string) *signature.Signer {
	kp, err := signature.DeriveKey(alg, master, label)
	if err != nil {
		panic(err)
	}
	s, err := signature.NewSigner(kp)
	if err != nil {
		panic(err)
	}
	return s
}
