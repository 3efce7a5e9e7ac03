// Package statebus ingests SystemState snapshots from Kafka and publishes a
// verdict for each.
//
// A snapshot message carries the JSON SystemState as its value and the
// reporting node's identifier as its key. The governor-checkpoint header
// selects the checkpoint; without it the configured default (runtime) is
// used. W3C trace context in the headers is continued.
//
// Each verdict is written to the verdict topic with the same key, so a
// node's verdicts stay ordered on one partition.
package statebus
