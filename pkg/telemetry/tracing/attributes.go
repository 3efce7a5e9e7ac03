package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanEnforce = "governor.enforce"
	SpanAdmit   = "governor.admit"
	SpanIngest  = "governor.statebus.ingest"
)

// Attribute keys under the governor.* namespace.
const (
	AttrCheckpoint = "governor.checkpoint"
	AttrVerdict    = "governor.verdict"
	AttrGeneration = "governor.policy_generation"

	AttrPolicyID      = "governor.policy_id"
	AttrPolicyVersion = "governor.policy_version"
	AttrRuleID        = "governor.rule_id"
	AttrAdmitOp       = "governor.admission.op"
	AttrAdmitSource   = "governor.admission.source"
	AttrAdmitReason   = "governor.admission.reason"

	AttrErrorMessage = "error.message"
)

// ServerSpan marks a span as handling an inbound request.
func ServerSpan() trace.SpanStartOption {
	return trace.WithSpanKind(trace.SpanKindServer)
}

// AdmissionStart returns the start options for an admission span.
func AdmissionStart(source string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String(AttrAdmitSource, source))
}

// SetAdmission records the outcome of an admission on span. An empty reason
// means the document was accepted.
func SetAdmission(span trace.Span, op, policyID, version, reason string) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAdmitOp, op),
	}
	if policyID != "" {
		attrs = append(attrs, attribute.String(AttrPolicyID, policyID))
	}
	if version != "" {
		attrs = append(attrs, attribute.String(AttrPolicyVersion, version))
	}
	if reason != "" {
		attrs = append(attrs, attribute.String(AttrAdmitReason, reason))
	}
	span.SetAttributes(attrs...)
}
