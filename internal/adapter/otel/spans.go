package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "courier"

// StartProcessSpan starts the span covering one envelope.
func StartProcessSpan(ctx context.Context, channel, envelopeID, orgID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "connector.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("connector.channel", channel),
			attribute.String("envelope.id", envelopeID),
			attribute.String("org.id", orgID),
		),
	)
}

// StartAttemptSpan starts the span of one delivery attempt.
func StartAttemptSpan(ctx context.Context, channel string, attempt int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "connector.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("connector.channel", channel),
			attribute.Int("delivery.attempt", attempt),
		),
	)
}

// EndSpan records the final state of span and ends it.
func EndSpan(span trace.Span, err error, errorKind string) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errorKind)
		span.SetAttributes(attribute.String("delivery.error_kind", errorKind))
	}
	span.End()
}
