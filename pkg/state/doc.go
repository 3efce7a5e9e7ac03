// Package state defines the SystemState snapshot evaluated at enforcement
// checkpoints and the table of field names rule conditions may reference.
//
// Snapshots are produced by callers (boot sequence, mesh transport, kernel
// hooks) and are only read by the engine. The checkpoint context is a bounded
// key/value set so a snapshot has a fixed upper size.
package state
