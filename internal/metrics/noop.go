package metrics

import "time"

// NoopSink discards everything. Used when metrics are disabled.
type NoopSink struct{}

func (NoopSink) DeliveryAttempt(string, int, string, time.Duration) {}
func (NoopSink) DeliveryOutcome(string, bool, string)               {}
func (NoopSink) Retry(string, string)                               {}
func (NoopSink) MessageSkipped(string, string)                      {}
func (NoopSink) InFlightIncr()                                      {}
func (NoopSink) InFlightDecr()                                      {}
