package policy

import (
	"fmt"
	"strings"
)

// Checkpoint is a lifecycle point at which policies are enforced.
type Checkpoint uint8

const (
	CheckpointCompile Checkpoint = iota
	CheckpointLoad
	CheckpointRuntime
	CheckpointUpdate
)

var checkpointNames = [...]string{
	CheckpointCompile: "compile",
	CheckpointLoad:    "load",
	CheckpointRuntime: "runtime",
	CheckpointUpdate:  "update",
}

// Checkpoints lists every checkpoint in canonical order.
func Checkpoints() []Checkpoint {
	return []Checkpoint{CheckpointCompile, CheckpointLoad, CheckpointRuntime, CheckpointUpdate}
}

// String returns the wire name.
func (c Checkpoint) String() string {
	if int(c) < len(checkpointNames) {
		return checkpointNames[c]
	}
	return fmt.Sprintf("checkpoint(%d)", uint8(c))
}

// Valid reports whether c is a defined checkpoint.
func (c Checkpoint) Valid() bool {
	return int(c) < len(checkpointNames)
}

// Bit returns the set containing only c.
func (c Checkpoint) Bit() CheckpointSet {
	return CheckpointSet(1) << c
}

// ParseCheckpoint maps a wire name to a Checkpoint.
func ParseCheckpoint(s string) (Checkpoint, bool) {
	for i, name := range checkpointNames {
		if name == s {
			return Checkpoint(i), true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (c Checkpoint) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid checkpoint %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Checkpoint) UnmarshalText(text []byte) error {
	v, ok := ParseCheckpoint(string(text))
	if !ok {
		return fmt.Errorf("unknown checkpoint %q", text)
	}
	*c = v
	return nil
}

// CheckpointSet is a bitmask of checkpoints.
type CheckpointSet uint8

// AllCheckpoints enables every checkpoint.
const AllCheckpoints CheckpointSet = 1<<CheckpointCompile | 1<<CheckpointLoad | 1<<CheckpointRuntime | 1<<CheckpointUpdate

// NewCheckpointSet builds a set from checkpoints.
func NewCheckpointSet(cps ...Checkpoint) CheckpointSet {
	var s CheckpointSet
	for _, c := range cps {
		s |= c.Bit()
	}
	return s
}

// Has reports whether c is in the set.
func (s CheckpointSet) Has(c Checkpoint) bool {
	return c.Valid() && s&c.Bit() != 0
}

// List returns the members in canonical order.
func (s CheckpointSet) List() []Checkpoint {
	out := make([]Checkpoint, 0, len(checkpointNames))
	for _, c := range Checkpoints() {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the wire names of the members in canonical order.
func (s CheckpointSet) Names() []string {
	list := s.List()
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.String()
	}
	return out
}

// String renders the set as "compile|runtime".
func (s CheckpointSet) String() string {
	if s == 0 {
		return "none"
	}
	return strings.Join(s.Names(), "|")
}
