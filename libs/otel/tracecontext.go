package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C trace context in the form stored next to an outbox
// row, so the publisher can continue the trace that wrote it.
type TraceContext struct {
	Parent string
	State  string
}

func (t TraceContext) Empty() bool {
	return t.Parent == "" && t.State == ""
}

// CaptureTraceContext serializes the span context of ctx with the global propagator.
func CaptureTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Parent: carrier["traceparent"], State: carrier["tracestate"]}
}

// Into returns ctx carrying the stored trace context as its remote parent.
func (t TraceContext) Into(ctx context.Context) context.Context {
	if t.Empty() {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": t.Parent}
	if t.State != "" {
		carrier["tracestate"] = t.State
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
