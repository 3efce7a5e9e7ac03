package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	nodeIDKey     contextKey = "node_id"
	policyIDKey   contextKey = "policy_id"
	checkpointKey contextKey = "checkpoint"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID stored in ctx, if any.
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

// WithNodeID adds the identifier of the node whose state is being enforced.
func WithNodeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, nodeIDKey, id)
}

// NodeID returns the node identifier stored in ctx, if any.
func NodeID(ctx context.Context) string {
	s, _ := ctx.Value(nodeIDKey).(string)
	return s
}

// WithPolicyID adds a policy identifier to the context.
func WithPolicyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, policyIDKey, id)
}

// PolicyID returns the policy identifier stored in ctx, if any.
func PolicyID(ctx context.Context) string {
	s, _ := ctx.Value(policyIDKey).(string)
	return s
}

// WithCheckpoint adds the enforcement checkpoint to the context.
func WithCheckpoint(ctx context.Context, cp string) context.Context {
	return context.WithValue(ctx, checkpointKey, cp)
}

// Checkpoint returns the checkpoint stored in ctx, if any.
func Checkpoint(ctx context.Context) string {
	s, _ := ctx.Value(checkpointKey).(string)
	return s
}

// Fields returns the context values as slog attributes, including the
// trace and span IDs of a recording span.
func Fields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	for _, k := range []contextKey{requestIDKey, nodeIDKey, policyIDKey, checkpointKey} {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			attrs = append(attrs, slog.String(string(k), s))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()))
	}
	return attrs
}

// contextHandler appends Fields(ctx) to records logged with a context.
type contextHandler struct {
	next slog.Handler
}

func newContextHandler(next slog.Handler) slog.Handler {
	return &contextHandler{next: next}
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := Fields(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}
