package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	historyHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gatherings",
		Subsystem: "history_cache",
		Name:      "hits_total",
		Help:      "Comment history loads served from Redis.",
	})
	historyMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gatherings",
		Subsystem: "history_cache",
		Name:      "misses_total",
		Help:      "Comment history loads that fell back to the store.",
	})
)

func init() {
	prometheus.MustRegister(historyHits, historyMisses)
}
