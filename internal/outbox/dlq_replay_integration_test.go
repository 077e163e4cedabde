//go:build integration

package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/gatherings/internal/testsupport"
	platformevents "example.com/gatherings/pkg/platform/events"
)

func TestDLQReplayPublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	pool := testsupport.StartPostgres(ctx, t)

	activityID := uuid.NewString()
	payload, err := json.Marshal(platformevents.CommentPosted{
		CommentID:  uuid.NewString(),
		ActivityID: activityID,
		AuthorID:   "u-hana",
		Body:       "see you at the crag",
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	})
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ('comment', $1, $2, 'comment_events', 'comment_events-value', $3, $4)`,
		uuid.NewString(), platformevents.TypeCommentPosted, activityID, payload,
	)
	require.NoError(t, err)

	registry := &stubRegistry{id: 100}

	// First delivery fails and parks the event in the DLQ.
	dispatcher := NewDispatcher(pool, &stubProducer{err: errors.New("upstream kafka unavailable")}, registry, 5*time.Millisecond, 10)
	require.NoError(t, dispatcher.processBatch(ctx))

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Equal(t, 1, dlqCount, "expected message routed to DLQ on failure")

	manager := NewDLQManager(pool, 5, time.Second, nil)
	replayed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, replayed)

	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Equal(t, 0, dlqCount, "expected DLQ cleared after requeue")

	brokers := testsupport.StartKafka(ctx, t, "comment_events")

	producer := NewKafkaProducer(brokers)
	defer producer.Close()

	dispatcher = NewDispatcher(pool, producer, registry, 5*time.Millisecond, 10)
	require.NoError(t, dispatcher.processBatch(ctx))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     "comment_events",
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, activityID, string(msg.Key))
	require.Equal(t, uint32(100), binary.BigEndian.Uint32(msg.Value[1:5]))
	require.JSONEq(t, string(payload), string(msg.Value[5:]))

	var eventType string
	for _, h := range msg.Headers {
		if h.Key == platformevents.HeaderEventType {
			eventType = string(h.Value)
		}
	}
	require.Equal(t, platformevents.TypeCommentPosted, eventType)
}
