package domain

import "github.com/prometheus/client_golang/prometheus"

var (
	attendanceTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatherings",
		Subsystem: "attendance",
		Name:      "transitions_total",
		Help:      "Committed attendance transitions by kind.",
	}, []string{"kind"})

	commentsPosted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gatherings",
		Subsystem: "comments",
		Name:      "posted_total",
		Help:      "Comments persisted.",
	})

	feedQueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gatherings",
		Subsystem: "feed",
		Name:      "query_duration_seconds",
		Help:      "Latency of feed page queries.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(attendanceTransitions, commentsPosted, feedQueryDuration)
}
