// Package tracing provides OpenTelemetry tracing for the governor.
//
// Spans are exported over OTLP gRPC. When telemetry.tracing.enabled is false
// New returns a tracer that hands out noop spans, so callers never branch on
// whether tracing is on.
//
// # Spans
//
//   - governor.enforce: one enforcement pass, opened by the engine
//   - governor.admit: one admission, rotation or removal request
//   - governor.statebus.ingest: one state message read off the bus
//
// # Sampling
//
//   - always: sample every trace
//   - never: sample nothing
//   - ratio: sample a fraction of traces by trace ID
//   - parent_ratio: follow the caller's traceparent flag, ratio for roots
//
// # Usage
//
//	tracer, err := tracing.Install(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	engine := enforce.New(store, journal, enforce.WithTracer(tracer.Tracer()))
//
// W3C trace context is extracted from HTTP headers by HTTPMiddleware and from
// state bus message headers with ExtractFromMap.
package tracing
