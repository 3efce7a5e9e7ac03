// Package stream is the in-process fan-out behind the audit websocket.
//
// The engine publishes every decision through Hub.Observe and the policy
// store publishes every admission attempt through Hub.ObserveStoreEvent.
// Slow subscribers lose events rather than stall enforcement; they can
// catch up from the decision log with Log.Since.
package stream
