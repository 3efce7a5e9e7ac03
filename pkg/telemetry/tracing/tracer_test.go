package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nanogov/governor/pkg/config"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordingTracer(t *testing.T, sampler string) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tr, err := NewWithExporter(&config.TracingConfig{
		Enabled:     true,
		Sampler:     sampler,
		SampleRatio: 1,
		ServiceName: "test-service",
	}, exp)
	if err != nil {
		t.Fatalf("NewWithExporter() error = %v", err)
	}
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	return tr, exp
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *config.TracingConfig
		enabled bool
		wantErr bool
	}{
		{name: "nil config", wantErr: true},
		{
			name:   "disabled tracing",
			config: &config.TracingConfig{Enabled: false, ServiceName: "test-service"},
		},
		{
			name: "enabled otlp",
			config: &config.TracingConfig{
				Enabled:     true,
				Sampler:     SamplerRatio,
				SampleRatio: 0.5,
				Endpoint:    "localhost:4317",
				ServiceName: "test-service",
				OTLP:        config.OTLPConfig{Insecure: true, Timeout: time.Second},
			},
			enabled: true,
		},
		{
			name: "bad sampler",
			config: &config.TracingConfig{
				Enabled:  true,
				Sampler:  "sometimes",
				Endpoint: "localhost:4317",
			},
			wantErr: true,
		},
		{
			name: "ratio out of range",
			config: &config.TracingConfig{
				Enabled:     true,
				Sampler:     SamplerRatio,
				SampleRatio: 1.5,
				Endpoint:    "localhost:4317",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer tr.Shutdown(context.Background())
			if tr.Enabled() != tt.enabled {
				t.Errorf("Enabled() = %v, want %v", tr.Enabled(), tt.enabled)
			}
			if tr.Tracer() == nil {
				t.Error("Tracer() returned nil")
			}
		})
	}
}

func TestDisabledTracerProducesNoopSpans(t *testing.T) {
	tr, err := New(&config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, span := tr.Start(context.Background(), "noop")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Error("disabled tracer produced a valid span context")
	}
	if TraceID(ctx) != "" || SpanID(ctx) != "" {
		t.Error("expected empty IDs for noop span")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestTracer_RecordsSpans(t *testing.T) {
	tr, exp := recordingTracer(t, SamplerAlways)

	ctx, parent := tr.Start(context.Background(), SpanAdmit, AdmissionStart("http"))
	_, child := tr.Start(ctx, SpanEnforce)
	child.End()
	SetAdmission(parent, "admit", "GOV-POL-0001", "1.0.0", "")
	parent.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name != SpanEnforce || spans[1].Name != SpanAdmit {
		t.Errorf("unexpected span order: %s, %s", spans[0].Name, spans[1].Name)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("child span is not parented to the admission span")
	}

	got := map[attribute.Key]string{}
	for _, kv := range spans[1].Attributes {
		got[kv.Key] = kv.Value.Emit()
	}
	want := map[attribute.Key]string{
		AttrAdmitSource:   "http",
		AttrAdmitOp:       "admit",
		AttrPolicyID:      "GOV-POL-0001",
		AttrPolicyVersion: "1.0.0",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got[AttrAdmitReason]; ok {
		t.Error("accepted admission should not carry a reason")
	}
}

func TestSamplerNeverDropsSpans(t *testing.T) {
	tr, exp := recordingTracer(t, SamplerNever)
	_, span := tr.Start(context.Background(), "dropped")
	span.End()
	if n := len(exp.GetSpans()); n != 0 {
		t.Errorf("got %d spans, want 0", n)
	}
}

func TestParentRatioFollowsParent(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tr, err := NewWithExporter(&config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerParentRatio,
		SampleRatio: 0,
	}, exp)
	if err != nil {
		t.Fatalf("NewWithExporter() error = %v", err)
	}
	defer tr.Shutdown(context.Background())

	h := http.Header{}
	h.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	ctx := Extract(context.Background(), h)
	_, span := tr.Start(ctx, "child")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].SpanContext.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s", spans[0].SpanContext.TraceID())
	}

	_, root := tr.Start(context.Background(), "root")
	root.End()
	if n := len(exp.GetSpans()); n != 1 {
		t.Errorf("root span sampled at ratio 0: got %d spans", n)
	}
}

func TestSetError(t *testing.T) {
	tr, exp := recordingTracer(t, SamplerAlways)

	_, span := tr.Start(context.Background(), "ok")
	SetError(span, nil)
	SetStatus(span, nil)
	span.End()

	_, span = tr.Start(context.Background(), "failed")
	SetError(span, errors.New("boom"))
	span.End()

	spans := exp.GetSpans()
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("status = %v, want Ok", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "boom" {
		t.Errorf("status = %+v, want Error boom", spans[1].Status)
	}
	if len(spans[1].Events) != 1 {
		t.Errorf("expected one exception event, got %d", len(spans[1].Events))
	}
}

func TestInjectExtractRoundTrip(t *testing.T) {
	tr, _ := recordingTracer(t, SamplerAlways)
	ctx, span := tr.Start(context.Background(), "outbound")
	defer span.End()

	carrier := map[string]string{}
	InjectToMap(ctx, carrier)
	if carrier["traceparent"] == "" {
		t.Fatal("traceparent not injected")
	}

	got := trace.SpanContextFromContext(ExtractFromMap(context.Background(), carrier))
	if got.TraceID() != span.SpanContext().TraceID() {
		t.Errorf("trace id = %s, want %s", got.TraceID(), span.SpanContext().TraceID())
	}
	if !got.IsRemote() {
		t.Error("extracted span context should be remote")
	}

	h := http.Header{}
	Inject(ctx, h)
	if h.Get("traceparent") != carrier["traceparent"] {
		t.Errorf("header traceparent = %q, want %q", h.Get("traceparent"), carrier["traceparent"])
	}
}

func TestHTTPMiddleware(t *testing.T) {
	tr, exp := recordingTracer(t, SamplerAlways)

	var seen string
	handler := HTTPMiddleware(tr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/enforce", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("handler trace id = %q", seen)
	}
	if rec.Header().Get("X-Trace-ID") != seen {
		t.Errorf("X-Trace-ID = %q, want %q", rec.Header().Get("X-Trace-ID"), seen)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "POST /v1/enforce" {
		t.Fatalf("unexpected spans: %+v", spans)
	}
	if spans[0].SpanKind != trace.SpanKindServer {
		t.Errorf("span kind = %v, want server", spans[0].SpanKind)
	}
}

func TestNodeIDResource(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tr, err := New(&config.TracingConfig{Enabled: true, Sampler: SamplerAlways},
		WithExporter(exp), WithNodeID("gov-7"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer tr.Shutdown(context.Background())

	_, span := tr.Start(context.Background(), "enforce")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	var instance, service string
	for _, kv := range spans[0].Resource.Attributes() {
		switch kv.Key {
		case "service.instance.id":
			instance = kv.Value.AsString()
		case "service.name":
			service = kv.Value.AsString()
		}
	}
	if instance != "gov-7" {
		t.Errorf("service.instance.id = %q, want gov-7", instance)
	}
	if service != "governor" {
		t.Errorf("service.name = %q, want governor", service)
	}
}
