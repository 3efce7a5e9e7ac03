// Governor is a bounded policy enforcement engine for nano-scale systems.
//
// It admits signed security policies into a small fixed-capacity store and
// evaluates them against system state snapshots at four lifecycle
// checkpoints, returning Allow, Deny, Quarantine or Erase.
//
// Usage:
//
//	# Serve the HTTP API with the default configuration
//	governor run
//
//	# Serve with a configuration file
//	governor run --config /etc/governor/governor.yaml
//
//	# Enforce one snapshot; the exit status is the verdict code
//	governor enforce --checkpoint runtime --state state.json
//
//	# Check policy documents before signing them
//	governor lint policies/*.json
//
//	# Generate a signing key and sign a policy
//	governor keys generate --algorithm dilithium2 --out keys/
//	governor sign --key keys/authority_private.pem policy.json
//
//	# Query the evidence archive
//	governor evidence query --verdict deny --since 2026-10-01T00:00:00Z
package main

func main() {
	Execute()
}
