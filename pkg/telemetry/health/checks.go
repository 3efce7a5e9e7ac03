package health

import (
	"context"
	"fmt"

	"nanogov/governor/pkg/policy"
)

// Check names registered by the governor.
const (
	CheckDefaultPolicy = "default_policy"
	CheckEvidence      = "evidence_storage"
	CheckEvidenceSink  = "evidence_sink"
	CheckPolicyGit     = "policy_git"
	CheckTLS           = "tls_certificate"
)

// PolicyLookup is satisfied by the policy store.
type PolicyLookup interface {
	Get(id string) (*policy.Policy, bool)
}

// Pinger is satisfied by evidence storage backends and the Redis sink.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Runner is satisfied by background sources such as the git syncer.
type Runner interface {
	IsRunning() bool
}

// DefaultPolicyCheck fails when the builtin security policy is not active.
// Without it the engine would allow every state that no other policy covers.
func DefaultPolicyCheck(store PolicyLookup) CheckFunc {
	return func(ctx context.Context) error {
		if _, ok := store.Get(policy.DefaultPolicyID); !ok {
			return fmt.Errorf("default policy %s is not active", policy.DefaultPolicyID)
		}
		return nil
	}
}

// PingCheck fails when p cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("unreachable: %w", err)
		}
		return nil
	}
}

// RunningCheck fails when r has stopped.
func RunningCheck(name string, r Runner) CheckFunc {
	return func(ctx context.Context) error {
		if !r.IsRunning() {
			return fmt.Errorf("%s is not running", name)
		}
		return nil
	}
}
