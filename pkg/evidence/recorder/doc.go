// Package recorder turns enforcement decisions into evidence records and
// writes them to a storage backend.
//
// # Recording Flow
//
//  1. Engine.Enforce decides and calls its observers
//  2. Recorder.Observe builds a Record and hashes the evaluated state
//  3. The record is enqueued on a buffered channel (never blocking)
//  4. A background worker writes it to storage
//  5. Stored records are passed to forwarders such as the Redis sink
//
// # Basic Usage
//
//	rec := recorder.NewRecorder(store, &recorder.Config{
//	    Enabled:      true,
//	    NodeID:       "node-7",
//	    AsyncBuffer:  1000,
//	    WriteTimeout: 5 * time.Second,
//	    HashState:    true,
//	})
//	defer rec.Close()
//
//	engine, err := enforce.New(policies, log, enforce.WithObserver(rec.Observe))
//
// # State Hashing
//
// The evaluated SystemState is not archived. Its SHA-256 over the RFC 8785
// canonical JSON form is, so a caller holding a snapshot can prove it was
// the one a decision was made on.
//
// # Back-pressure
//
// When the buffer is full Observe drops the record and counts it; see
// Stats. Close drains the buffer before returning.
package recorder
