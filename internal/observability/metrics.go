// Package observability holds process-wide persistence watermarks.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	attendanceChangedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatherings",
		Subsystem: "persistence",
		Name:      "last_attendance_change_timestamp_seconds",
		Help:      "Unix timestamp of the most recent committed attendance transition.",
	})
	commentPersistedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatherings",
		Subsystem: "persistence",
		Name:      "last_comment_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent comment persisted to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(attendanceChangedGauge, commentPersistedGauge)
}

// RecordAttendanceChanged updates the attendance watermark gauge.
func RecordAttendanceChanged(ts time.Time) {
	if ts.IsZero() {
		return
	}
	attendanceChangedGauge.Set(float64(ts.Unix()))
}

// RecordCommentPersisted updates the comment watermark gauge.
func RecordCommentPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	commentPersistedGauge.Set(float64(ts.Unix()))
}
