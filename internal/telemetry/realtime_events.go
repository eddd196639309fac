package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RealtimeEvents traces the websocket layer: client signals, relayed
// domain events and events arriving from other processes
type RealtimeEvents struct {
	tracer trace.Tracer
}

// NewRealtimeEvents creates a tracer bound to the global provider
func NewRealtimeEvents() *RealtimeEvents {
	return &RealtimeEvents{
		tracer: otel.Tracer("realtime"),
	}
}

// TraceClientSignal creates a span for an inbound websocket message
func (re *RealtimeEvents) TraceClientSignal(ctx context.Context, msgType, userID, connectionID string) (context.Context, trace.Span) {
	return re.tracer.Start(ctx, "ws.signal."+msgType,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("ws.message_type", msgType),
			attribute.String("user.id", userID),
			attribute.String("ws.connection_id", connectionID),
		),
	)
}

// TraceRelay creates a span for a domain event fanned out to connections
func (re *RealtimeEvents) TraceRelay(ctx context.Context, event, scope string) (context.Context, trace.Span) {
	return re.tracer.Start(ctx, "relay."+event,
		trace.WithAttributes(
			attribute.String("relay.event", event),
			attribute.String("relay.scope", scope),
		),
	)
}

// TraceBridgeEvent creates a span for an event received from http, redis, kafka or postgres
func (re *RealtimeEvents) TraceBridgeEvent(ctx context.Context, source, eventType string) (context.Context, trace.Span) {
	return re.tracer.Start(ctx, "bridge."+source,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("bridge.source", source),
			attribute.String("event.type", eventType),
		),
	)
}

// RecordError marks the span as failed
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}

var globalRealtimeEvents = NewRealtimeEvents()

// GetRealtimeEvents returns the shared realtime tracer
func GetRealtimeEvents() *RealtimeEvents {
	return globalRealtimeEvents
}
