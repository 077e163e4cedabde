// Package events defines the payloads published to the event topics.
package events

import "time"

// Event type names carried in the outbox and in the Kafka event_type header.
const (
	TypeActivityCreated   = "activity.created"
	TypeAttendanceChanged = "attendance.changed"
	TypeCommentPosted     = "comment.posted"
)

// ActivityCreated is emitted when a host creates an activity.
type ActivityCreated struct {
	ActivityID string    `json:"activity_id"`
	HostID     string    `json:"host_id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	City       string    `json:"city"`
	Date       time.Time `json:"date"`
	CreatedAt  time.Time `json:"created_at"`
}

// AttendanceChanged is emitted for every committed attendance toggle.
type AttendanceChanged struct {
	ActivityID  string    `json:"activity_id"`
	UserID      string    `json:"user_id"`
	Transition  string    `json:"transition"`
	IsCancelled bool      `json:"is_cancelled"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// CommentPosted is emitted once a comment is durably stored.
type CommentPosted struct {
	CommentID  string    `json:"comment_id"`
	ActivityID string    `json:"activity_id"`
	AuthorID   string    `json:"author_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// Kafka header keys set by the outbox dispatcher on every record.
const (
	HeaderEventType     = "event_type"
	HeaderSchemaSubject = "schema_subject"
	HeaderAggregateType = "aggregate_type"
	HeaderEventID       = "event_id"
)
