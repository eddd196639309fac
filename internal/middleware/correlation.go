package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

const (
	// CorrelationIDHeader ties the HTTP call that produced a realtime event to
	// the envelope relayed for it
	CorrelationIDHeader = "X-Correlation-ID"

	correlationIDKey = "correlation_id"
)

// CorrelationMiddleware propagates X-Correlation-ID, falling back to the
// request id. Run it after RequestIDMiddleware and TracingMiddleware.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = GetRequestID(c)
		}
		if correlationID == "" {
			c.Next()
			return
		}

		c.Set(correlationIDKey, correlationID)
		c.Header(CorrelationIDHeader, correlationID)

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			span.SetAttributes(attribute.String("trace.correlation_id", correlationID))
		}

		// baggage survives into the envelope trace map via telemetry.InjectMap
		if member, err := baggage.NewMember(correlationIDKey, correlationID); err == nil {
			bag := baggage.FromContext(c.Request.Context())
			if withMember, err := bag.SetMember(member); err == nil {
				c.Request = c.Request.WithContext(baggage.ContextWithBaggage(c.Request.Context(), withMember))
			}
		}

		c.Next()
	}
}

// GetCorrelationIDFromContext extracts the correlation id from baggage
func GetCorrelationIDFromContext(ctx context.Context) string {
	return baggage.FromContext(ctx).Member(correlationIDKey).Value()
}
