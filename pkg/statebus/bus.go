package statebus

import (
	"context"
	"time"
)

// Header names carried on state and verdict messages.
const (
	HeaderCheckpoint = "governor-checkpoint"
	HeaderNodeID     = "governor-node-id"
)

// Message is one record read from or written to the bus. Key carries the
// reporting node's identifier.
type Message struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
	Time    time.Time
}

// Consumer reads state snapshots.
type Consumer interface {
	ReadMessage(ctx context.Context) (Message, error)
	Close() error
}

// Publisher writes verdicts.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
	Close() error
}
