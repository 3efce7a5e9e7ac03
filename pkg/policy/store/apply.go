package store

import (
	"encoding/json"

	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/signature"
)

// Result reports what Apply did with a document.
type Result struct {
	Op       Operation
	PolicyID string
	Version  string
}

// Apply routes a wire document to the matching mutation. A document with a
// nonce member is a removal request. A policy whose identifier is already
// active with a lower version supersedes it; anything else is an admission,
// so resubmitting an active identifier is still rejected as a duplicate.
func (s *Store) Apply(data []byte, v signature.Verifier) (Result, error) {
	if isRemoval(data) {
		req, err := policy.DecodeRemoval(data)
		if err != nil {
			cur := s.current.Load()
			s.emit(Event{Op: OpRemove, PolicyID: policy.PolicyIDOf(err), Err: err, Reason: policy.ReasonOf(err), Generation: cur.Generation(), Active: cur.Len()})
			return Result{Op: OpRemove, PolicyID: policy.PolicyIDOf(err)}, err
		}
		return Result{Op: OpRemove, PolicyID: req.PolicyID}, s.Remove(req, v)
	}

	opts := []policy.DecodeOption{}
	if len(s.condOpts) > 0 {
		opts = append(opts, policy.StrictFields())
	}
	p, err := policy.Decode(data, opts...)
	if err != nil {
		cur := s.current.Load()
		s.emit(Event{Op: OpAdmit, PolicyID: policy.PolicyIDOf(err), Err: err, Reason: policy.ReasonOf(err), Generation: cur.Generation(), Active: cur.Len()})
		return Result{Op: OpAdmit, PolicyID: policy.PolicyIDOf(err)}, err
	}
	res := Result{Op: OpAdmit, PolicyID: p.ID, Version: versionOf(p)}
	if active, ok := s.Get(p.ID); ok && !active.Builtin && p.Version.GreaterThan(active.Version) {
		res.Op = OpSupersede
		return res, s.Supersede(p, v)
	}
	return res, s.Admit(p, v)
}

func isRemoval(data []byte) bool {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return false
	}
	_, hasNonce := members["nonce"]
	_, hasRules := members["rules"]
	return hasNonce && !hasRules
}
