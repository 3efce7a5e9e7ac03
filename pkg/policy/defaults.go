package policy

import "nanogov/governor/pkg/condition"

// DefaultPolicyID identifies the factory policy.
const DefaultPolicyID = "GOV-SEC-DEFAULT"

// Rule identifiers of the factory policy.
const (
	DefaultCryptoRuleID     = "CRYPTO-000"
	DefaultMemoryRuleID     = "MEM-000"
	DefaultDependencyRuleID = "DEP-000"
)

// DefaultMemoryCeiling is the allocated-memory ceiling, in bytes, of the factory policy.
const DefaultMemoryCeiling = 4096

// Defaults returns the factory policy set: quantum-safe cryptography,
// memory ceiling and zero external dependencies, enforced at every checkpoint.
// A device that has not negotiated any algorithm yet (crypto_algorithm none)
// does not trip the cryptography rule.
func Defaults() []*Policy {
	p, err := Build(Spec{
		ID:          DefaultPolicyID,
		Version:     "1.0.0",
		Description: "Factory quantum-safe baseline",
		Enforcement: AllCheckpoints,
		Rules: []Rule{
			NewRule(DefaultCryptoRuleID,
				"crypto_algorithm != 'none' && crypto_algorithm != 'kyber512' && crypto_algorithm != 'dilithium2'",
				ActionDeny, "Non-quantum-safe algorithm"),
			NewRule(DefaultMemoryRuleID, "total_memory > 4096", ActionDeny, "Exceeds nano memory limit"),
			NewRule(DefaultDependencyRuleID, "dependency_count > 0", ActionDeny, "External dependencies forbidden"),
		},
	}, condition.Strict())
	if err != nil {
		panic(err)
	}
	p.Builtin = true
	return []*Policy{p}
}
