// Package server provides the governor HTTP API.
//
// The server wraps an enforce.Engine, the policy store and the decision log
// behind a chi router, and optionally the evidence archive, the audit stream
// hub, Prometheus metrics and health probes.
//
// # Routes
//
//	POST   /v1/enforce               evaluate {"checkpoint", "state"}
//	GET    /v1/decisions             retained log entries, ?since=<seq>
//	GET    /v1/decisions/stream      websocket audit stream
//	GET    /v1/policies              active policy summaries
//	GET    /v1/policies/{id}         active policy in wire format
//	POST   /v1/policies              admit, supersede or remove (Store.Apply)
//	PUT    /v1/policies/{id}         supersede with a newer signed version
//	DELETE /v1/policies/{id}         remove; body is a signed removal request
//	GET    /v1/evidence              archived records as JSON or CSV
//	GET    /metrics                  Prometheus exposition
//	GET    /health/live, /health/ready, /version
//
// A verdict is not an HTTP status: a well-formed enforce request answers 200
// and carries the verdict in the body and in the X-Governor-Verdict and
// X-Governor-Verdict-Code headers. Rejected policy mutations answer with a
// status derived from the rejection reason and an error body naming it:
//
//	{"error": {"code": "policy_rejected", "reason": "invalid_signature",
//	           "policy_id": "GOV-SEC-AA11BB22", "message": "..."}}
//
// # Middleware
//
// Every request passes, outermost first, through panic recovery, request
// ID assignment (X-Request-ID), an OpenTelemetry server span and an access
// log line. Mutating policy routes are additionally throttled per client
// address with a token bucket and answer 429 when the bucket is empty.
//
// # Audit stream
//
// The stream sends a "ready" event carrying the log cursor, then, when
// ?since= is given, every retained entry after that sequence number as
// "entry" events, then live "decision" and "admission" events from the hub.
// A subscriber that falls behind misses events rather than slowing the
// engine; the cursor lets it resynchronize through GET /v1/decisions.
//
// # Lifecycle
//
//	srv, err := server.NewServer(cfg, server.Dependencies{
//	    Engine: engine, Store: st, Log: log, Verifier: registry,
//	    Hub: hub, Metrics: collector, Health: checker,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // returns after ctx is done and shutdown completes
package server
