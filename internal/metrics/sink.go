// Package metrics records delivery metrics behind a backend-neutral Sink.
package metrics

import "time"

// Sink records delivery metrics.
// All methods are fire-and-forget: implementations must not block or return errors.
type Sink interface {
	// DeliveryAttempt records one outbound attempt. result is "success"
	// or the error kind of the attempt.
	DeliveryAttempt(channel string, attempt int, result string, d time.Duration)
	// DeliveryOutcome records the terminal outcome of an envelope.
	DeliveryOutcome(channel string, successful bool, errorKind string)
	// Retry records a scheduled in-process redelivery.
	Retry(channel, errorKind string)
	// MessageSkipped records an inbound message that produced no outcome.
	MessageSkipped(channel, reason string)
	InFlightIncr()
	InFlightDecr()
}

// Result and skip label values.
const (
	ResultSuccess = "success"

	SkipFiltered  = "filtered"
	SkipDuplicate = "duplicate"
	SkipMalformed = "malformed"
)
