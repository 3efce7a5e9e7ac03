// Package sink mirrors evidence records to external consumers. RedisSink
// appends each stored record to a capped Redis stream; register it with
// recorder.WithForwarder.
package sink
