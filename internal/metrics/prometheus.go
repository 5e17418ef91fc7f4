package metrics

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink with the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	retries  *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	inFlight prometheus.Gauge
}

// NewPrometheusSink creates the collectors and registers them on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_delivery_attempts_total",
			Help: "Outbound delivery attempts by channel, attempt number and result.",
		}, []string{"channel", "attempt", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courier_delivery_attempt_duration_seconds",
			Help:    "Latency of a single outbound attempt, backoff excluded.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_delivery_outcomes_total",
			Help: "Terminal outcomes reported per envelope.",
		}, []string{"channel", "successful", "error_kind"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_delivery_retries_total",
			Help: "In-process redeliveries scheduled, by error kind.",
		}, []string{"channel", "error_kind"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_messages_skipped_total",
			Help: "Inbound messages that produced no outcome.",
		}, []string{"channel", "reason"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "courier_envelopes_in_flight",
			Help: "Envelopes currently being processed.",
		}),
	}

	for name, c := range map[string]prometheus.Collector{
		"courier_delivery_attempts_total":           s.attempts,
		"courier_delivery_attempt_duration_seconds": s.duration,
		"courier_delivery_outcomes_total":           s.outcomes,
		"courier_delivery_retries_total":            s.retries,
		"courier_messages_skipped_total":            s.skipped,
		"courier_envelopes_in_flight":               s.inFlight,
	} {
		if err := reg.Register(c); err != nil {
			slog.Warn("metrics: register failed", "metric", name, "error", err)
		}
	}
	return s
}

func (s *PrometheusSink) DeliveryAttempt(channel string, attempt int, result string, d time.Duration) {
	s.attempts.WithLabelValues(channel, strconv.Itoa(attempt), result).Inc()
	s.duration.WithLabelValues(channel).Observe(d.Seconds())
}

func (s *PrometheusSink) DeliveryOutcome(channel string, successful bool, errorKind string) {
	s.outcomes.WithLabelValues(channel, strconv.FormatBool(successful), errorKind).Inc()
}

func (s *PrometheusSink) Retry(channel, errorKind string) {
	s.retries.WithLabelValues(channel, errorKind).Inc()
}

func (s *PrometheusSink) MessageSkipped(channel, reason string) {
	s.skipped.WithLabelValues(channel, reason).Inc()
}

func (s *PrometheusSink) InFlightIncr() { s.inFlight.Inc() }
func (s *PrometheusSink) InFlightDecr() { s.inFlight.Dec() }
