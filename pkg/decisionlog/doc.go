// Package decisionlog implements the bounded, append-only audit ring that
// records every triggered rule and engine fault.
package decisionlog
