package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	subscribersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatherings",
		Subsystem: "chat",
		Name:      "subscribers",
		Help:      "Connections currently joined to at least one room.",
	})

	roomsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatherings",
		Subsystem: "chat",
		Name:      "rooms",
		Help:      "Activity rooms with at least one subscriber.",
	})

	framesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gatherings",
		Subsystem: "chat",
		Name:      "frames_delivered_total",
		Help:      "Live comment frames queued to subscribers.",
	})

	subscribersDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gatherings",
		Subsystem: "chat",
		Name:      "subscribers_dropped_total",
		Help:      "Subscribers disconnected because their outbound queue was full.",
	})

	sendsThrottled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gatherings",
		Subsystem: "chat",
		Name:      "sends_throttled_total",
		Help:      "SendComment frames rejected by the per-connection rate limit.",
	})
)

func init() {
	prometheus.MustRegister(subscribersGauge, roomsGauge, framesDelivered, subscribersDropped, sendsThrottled)
}
