package store

import "nanogov/governor/pkg/policy"

// Snapshot is an immutable view of the active policy set. Policies are kept
// in load order; the default policy is always first unless the store was
// built without defaults.
type Snapshot struct {
	policies   []*policy.Policy
	generation uint64
}

// Policies returns the active policies in load order. The slice is shared
// and must not be modified.
func (s *Snapshot) Policies() []*policy.Policy {
	return s.policies
}

// Len returns the number of active policies.
func (s *Snapshot) Len() int {
	return len(s.policies)
}

// Generation increases by one with every published change.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// Get returns the active policy with the given identifier.
func (s *Snapshot) Get(id string) (*policy.Policy, bool) {
	i := s.index(id)
	if i < 0 {
		return nil, false
	}
	return s.policies[i], true
}

// IDs returns the identifiers in load order.
func (s *Snapshot) IDs() []string {
	ids := make([]string, len(s.policies))
	for i, p := range s.policies {
		ids[i] = p.ID
	}
	return ids
}

func (s *Snapshot) index(id string) int {
	for i, p := range s.policies {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// with returns a successor snapshot with policies replaced by next.
func (s *Snapshot) with(next []*policy.Policy) *Snapshot {
	return &Snapshot{policies: next, generation: s.generation + 1}
}
