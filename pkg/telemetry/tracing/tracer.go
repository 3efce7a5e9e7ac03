package tracing

import (
	"context"
	"errors"
	"fmt"

	"nanogov/governor/internal/buildinfo"
	"nanogov/governor/pkg/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName names the tracer handed to the engine and server.
const InstrumentationName = "nanogov/governor"

// Tracer hands out enforcement and admission spans. A disabled Tracer
// hands out noop spans.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Option adjusts how New builds the provider.
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
	global   bool
	nodeID   string
}

// WithExporter sends spans to exp synchronously instead of batching them
// to the configured OTLP endpoint.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// WithGlobal registers the provider and the W3C propagators as the
// process-wide defaults.
func WithGlobal() Option {
	return func(o *options) { o.global = true }
}

// WithNodeID tags every span's resource with the governor node ID.
func WithNodeID(id string) Option {
	return func(o *options) { o.nodeID = id }
}

// New builds a Tracer from cfg. OTLP connections are lazy, so a collector
// that is down does not fail New. Enabled tracers must be shut down.
func New(cfg *config.TracingConfig, opts ...Option) (*Tracer, error) {
	if cfg == nil {
		return nil, errors.New("tracing: nil config")
	}
	if !cfg.Enabled {
		return Noop(), nil
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	sampler, err := createSampler(cfg.Sampler, cfg.SampleRatio)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	res, err := governorResource(cfg.ServiceName, o.nodeID)
	if err != nil {
		return nil, fmt.Errorf("tracing: resource: %w", err)
	}

	var export sdktrace.TracerProviderOption
	if o.exporter != nil {
		export = sdktrace.WithSyncer(o.exporter)
	} else {
		exp, err := otlpExporter(cfg)
		if err != nil {
			return nil, err
		}
		export = sdktrace.WithBatcher(exp)
	}

	provider := sdktrace.NewTracerProvider(export, sdktrace.WithResource(res), sdktrace.WithSampler(sampler))
	if o.global {
		otel.SetTracerProvider(provider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{}))
	}
	return &Tracer{tracer: provider.Tracer(InstrumentationName), provider: provider}, nil
}

// Install is New with WithGlobal.
func Install(cfg *config.TracingConfig, opts ...Option) (*Tracer, error) {
	return New(cfg, append(opts, WithGlobal())...)
}

// NewWithExporter is New with WithExporter. A nil exporter is an error.
func NewWithExporter(cfg *config.TracingConfig, exp sdktrace.SpanExporter) (*Tracer, error) {
	if exp == nil {
		return nil, errors.New("tracing: nil span exporter")
	}
	return New(cfg, WithExporter(exp))
}

// Noop returns a disabled Tracer.
func Noop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer(InstrumentationName)}
}

func governorResource(service, nodeID string) (*resource.Resource, error) {
	if service == "" {
		service = "governor"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(service),
		semconv.ServiceVersion(buildinfo.Version),
	}
	if nodeID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(nodeID))
	}
	return resource.New(context.Background(), resource.WithAttributes(attrs...))
}

func otlpExporter(cfg *config.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if cfg.OTLP.Timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.OTLP.Timeout))
	}
	exp, err := otlptracegrpc.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("tracing: otlp exporter for %s: %w", cfg.Endpoint, err)
	}
	return exp, nil
}

// Start opens a span. The caller ends it.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Tracer returns the underlying OpenTelemetry tracer.
func (t *Tracer) Tracer() trace.Tracer { return t.tracer }

// Shutdown flushes pending spans. It is a no-op on a disabled Tracer.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// Enabled reports whether spans are recorded.
func (t *Tracer) Enabled() bool { return t.provider != nil }

// TraceID returns the trace ID carried by ctx, or "".
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanID returns the span ID carried by ctx, or "".
func SpanID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.SpanID().String()
	}
	return ""
}

// SetError records err on span and marks it failed. A nil err is ignored.
func SetError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetStatus marks span Ok for a nil err and Error otherwise.
func SetStatus(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
