package consumer

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	consumedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatherings",
		Subsystem: "event_log",
		Name:      "events_consumed_total",
		Help:      "Events appended to the event log, by topic and event type.",
	}, []string{"topic", "event_type"})

	handlerFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatherings",
		Subsystem: "event_log",
		Name:      "handler_failures_total",
		Help:      "Events left uncommitted after the handler exhausted its attempts.",
	}, []string{"topic", "event_type"})

	undecodableCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatherings",
		Subsystem: "event_log",
		Name:      "undecodable_records_total",
		Help:      "Records skipped because they could not be decoded, by reason.",
	}, []string{"topic", "reason"})

	handleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gatherings",
		Subsystem: "event_log",
		Name:      "handle_duration_seconds",
		Help:      "Time from fetch to settled handler call, retries included.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"topic"})

	lastConsumedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gatherings",
		Subsystem: "event_log",
		Name:      "last_consumed_timestamp_seconds",
		Help:      "Record timestamp of the newest committed event per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(consumedCounter, handlerFailureCounter, undecodableCounter, handleDuration, lastConsumedGauge)
}

func recordConsumed(msg Message, started time.Time) {
	consumedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	handleDuration.WithLabelValues(msg.Topic).Observe(time.Since(started).Seconds())
	if !msg.Timestamp.IsZero() {
		lastConsumedGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerFailure(msg Message, started time.Time) {
	handlerFailureCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	handleDuration.WithLabelValues(msg.Topic).Observe(time.Since(started).Seconds())
}

func recordUndecodable(topic string, err error) {
	undecodableCounter.WithLabelValues(topic, decodeReason(err)).Inc()
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, ErrShortRecord):
		return "short"
	case errors.Is(err, ErrUnknownMagicByte):
		return "magic_byte"
	case errors.Is(err, ErrMissingEventType):
		return "event_type_header"
	case errors.Is(err, ErrInvalidPayload):
		return "payload"
	default:
		return "other"
	}
}
