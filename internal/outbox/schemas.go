package outbox

import platformevents "example.com/gatherings/pkg/platform/events"

const activityCreatedSchema = `{
  "type": "object",
  "title": "ActivityCreated",
  "properties": {
    "activity_id": {"type": "string"},
    "host_id": {"type": "string"},
    "title": {"type": "string"},
    "category": {"type": "string"},
    "city": {"type": "string"},
    "date": {"type": "string", "format": "date-time"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "host_id", "title", "date", "created_at"],
  "additionalProperties": false
}`

const attendanceChangedSchema = `{
  "type": "object",
  "title": "AttendanceChanged",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "transition": {"type": "string", "enum": ["cancel_toggle", "leave", "join"]},
    "is_cancelled": {"type": "boolean"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "transition", "is_cancelled", "occurred_at"],
  "additionalProperties": false
}`

const commentPostedSchema = `{
  "type": "object",
  "title": "CommentPosted",
  "properties": {
    "comment_id": {"type": "string"},
    "activity_id": {"type": "string"},
    "author_id": {"type": "string"},
    "body": {"type": "string", "minLength": 1},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["comment_id", "activity_id", "author_id", "body", "created_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	platformevents.TypeActivityCreated:   {Schema: activityCreatedSchema},
	platformevents.TypeAttendanceChanged: {Schema: attendanceChangedSchema},
	platformevents.TypeCommentPosted:     {Schema: commentPostedSchema},
}
