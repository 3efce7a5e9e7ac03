package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Sampling strategies accepted in telemetry.tracing.sampler.
const (
	// SamplerAlways samples all traces
	SamplerAlways = "always"

	// SamplerNever samples no traces
	SamplerNever = "never"

	// SamplerRatio samples a fraction of root traces by trace ID
	SamplerRatio = "ratio"

	// SamplerParentRatio follows the parent's decision and falls back to
	// ratio sampling for root spans
	SamplerParentRatio = "parent_ratio"
)

// createSampler creates a sampler for the strategy. Only parent_ratio honours
// the caller's sampling flag; the other strategies decide locally, so a
// "never" node stays silent even under a sampled upstream request.
//
//	telemetry:
//	  tracing:
//	    sampler: parent_ratio
//	    sample_ratio: 0.1
func createSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	switch strategy {
	case SamplerAlways:
		return sdktrace.AlwaysSample(), nil
	case SamplerNever:
		return sdktrace.NeverSample(), nil
	case SamplerRatio, SamplerParentRatio, "":
		if ratio < 0.0 || ratio > 1.0 {
			return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
		}
		base := sdktrace.TraceIDRatioBased(ratio)
		if strategy == SamplerParentRatio {
			return sdktrace.ParentBased(base), nil
		}
		return base, nil
	default:
		return nil, fmt.Errorf("unknown sampler strategy: %s (valid: always, never, ratio, parent_ratio)", strategy)
	}
}
