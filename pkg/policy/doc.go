// Package policy defines the signed policy model: rules, actions,
// checkpoints, the JSON wire format and its canonical serialization.
//
// A policy document is validated against an embedded JSON Schema, its rule
// conditions are compiled with package condition, and its canonical form
// (RFC 8785 JSON with the signature member removed) is computed once. The
// canonical form is what signatures cover and what the size ceiling
// measures.
//
//	p, err := policy.Decode(data, policy.WithSourceFile(path))
//	if err != nil {
//	    var ae *policy.AdmissionError
//	    errors.As(err, &ae) // ae.Reason == policy.ReasonMalformedSchema
//	}
//
// Admission itself (capacity, duplicates, size ceiling, signature
// verification) is performed by package store.
package policy
