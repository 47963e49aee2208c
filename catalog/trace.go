package catalog

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

// TraceContext is the causality chain carried on every envelope. TraceID is
// shared by every event descending from one external trigger; SpanID is
// unique per event; ParentSpanID points at the event that caused this one.
type TraceContext struct {
	TraceID      string `json:"trace_id" validate:"required,len=32,hexadecimal"`
	SpanID       string `json:"span_id" validate:"required,len=16,hexadecimal"`
	ParentSpanID string `json:"parent_span_id,omitempty" validate:"omitempty,len=16,hexadecimal"`
}

// NewTraceContext mints a fresh root trace for an externally triggered event
// (inbound mail, timer fire, operator command).
func NewTraceContext() TraceContext {
	return TraceContext{
		TraceID: randomHex(16),
		SpanID:  randomHex(8),
	}
}

// Child derives the trace context for an event caused by the one carrying t:
// same trace, new span, parent set to t's span.
func (t TraceContext) Child() TraceContext {
	return TraceContext{
		TraceID:      t.TraceID,
		SpanID:       randomHex(8),
		ParentSpanID: t.SpanID,
	}
}

// SpanContext converts t into an OpenTelemetry span context so handler work
// can be correlated with any surrounding instrumentation.
func (t TraceContext) SpanContext() (trace.SpanContext, error) {
	traceID, err := trace.TraceIDFromHex(t.TraceID)
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("parse trace id: %w", err)
	}
	spanID, err := trace.SpanIDFromHex(t.SpanID)
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("parse span id: %w", err)
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
		Remote:  true,
	}), nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}
