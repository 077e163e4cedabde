package consumer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PersistenceHandler appends consumed events to activity_event_log.
type PersistenceHandler struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool, now: time.Now}
}

// Handle stores one record. Redelivered records are keyed by
// (topic, partition, offset) and stored once.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	receivedAt := msg.Timestamp
	if receivedAt.IsZero() {
		receivedAt = h.now().UTC()
	}
	_, err := h.pool.Exec(ctx,
		`INSERT INTO activity_event_log (topic, partition, kafka_offset, event_type, schema_subject, schema_id, aggregate_id, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
         ON CONFLICT (topic, partition, kafka_offset) DO NOTHING`,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.EventType,
		msg.SchemaSubject,
		msg.SchemaID,
		msg.AggregateID,
		msg.Payload,
		receivedAt,
	)
	return err
}
