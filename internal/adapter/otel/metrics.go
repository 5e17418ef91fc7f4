package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "courier"

// Sink records delivery metrics as OpenTelemetry instruments.
type Sink struct {
	attempts   metric.Int64Counter
	duration   metric.Float64Histogram
	outcomes   metric.Int64Counter
	retries    metric.Int64Counter
	skipped    metric.Int64Counter
	inFlight   metric.Int64UpDownCounter
	background context.Context
}

// NewSink creates the instruments on the global meter provider.
func NewSink() (*Sink, error) {
	return NewSinkFromMeter(otel.Meter(meterName))
}

// NewSinkFromMeter creates the instruments on meter.
func NewSinkFromMeter(meter metric.Meter) (*Sink, error) {
	s := &Sink{background: context.Background()}
	var err error

	s.attempts, err = meter.Int64Counter("courier.delivery.attempts",
		metric.WithDescription("Outbound delivery attempts"))
	if err != nil {
		return nil, err
	}

	s.duration, err = meter.Float64Histogram("courier.delivery.attempt.duration",
		metric.WithDescription("Delivery attempt duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	s.outcomes, err = meter.Int64Counter("courier.delivery.outcomes",
		metric.WithDescription("Terminal delivery outcomes"))
	if err != nil {
		return nil, err
	}

	s.retries, err = meter.Int64Counter("courier.delivery.retries",
		metric.WithDescription("Scheduled in-process redeliveries"))
	if err != nil {
		return nil, err
	}

	s.skipped, err = meter.Int64Counter("courier.messages.skipped",
		metric.WithDescription("Inbound messages that produced no outcome"))
	if err != nil {
		return nil, err
	}

	s.inFlight, err = meter.Int64UpDownCounter("courier.deliveries.in_flight",
		metric.WithDescription("Envelopes currently being processed"))
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Sink) DeliveryAttempt(channel string, attempt int, result string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("result", result),
	)
	s.attempts.Add(s.background, 1, attrs, metric.WithAttributes(attribute.Int("attempt", attempt)))
	s.duration.Record(s.background, d.Seconds(), attrs)
}

func (s *Sink) DeliveryOutcome(channel string, successful bool, errorKind string) {
	s.outcomes.Add(s.background, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.Bool("successful", successful),
		attribute.String("error_kind", errorKind),
	))
}

func (s *Sink) Retry(channel, errorKind string) {
	s.retries.Add(s.background, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("error_kind", errorKind),
	))
}

func (s *Sink) MessageSkipped(channel, reason string) {
	s.skipped.Add(s.background, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("reason", reason),
	))
}

func (s *Sink) InFlightIncr() { s.inFlight.Add(s.background, 1) }
func (s *Sink) InFlightDecr() { s.inFlight.Add(s.background, -1) }
