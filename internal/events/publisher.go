package events

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Publisher delivers a message to a broker. Publish returns only after the
// broker accepted the message.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// injectTrace writes the span context of ctx into carrier using the global propagator.
func injectTrace(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}
