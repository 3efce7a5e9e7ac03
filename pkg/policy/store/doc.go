// Package store holds the active policy set.
//
// The set is bounded (DefaultCapacity, the factory policy included) and
// published as an immutable Snapshot behind an atomic pointer. Admission,
// supersession and removal serialize on a single writer lock, run every
// check before building the successor snapshot and either publish it in one
// pointer store or leave the current one in place. Enforcement reads the
// snapshot without locking.
//
// Every mutation is signature-gated through a signature.Verifier; the
// factory policies installed by New are exempt and cannot be removed or
// superseded.
package store
