package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the tracer used by clinicdesk packages for their own spans.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("clinicdesk/" + name)
}

// StoredTrace is the W3C trace context persisted next to an outbox row so the
// publisher can continue the trace of the transaction that wrote it.
type StoredTrace struct {
	Parent string
	State  string
}

func CaptureTrace(ctx context.Context) StoredTrace {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return StoredTrace{Parent: carrier.Get("traceparent"), State: carrier.Get("tracestate")}
}

// Resume returns ctx carrying the stored span context as its remote parent.
func (t StoredTrace) Resume(ctx context.Context) context.Context {
	if t.Parent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": t.Parent}
	if t.State != "" {
		carrier.Set("tracestate", t.State)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
