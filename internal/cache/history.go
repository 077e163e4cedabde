// Package cache keeps shaped comment histories in Redis so joins do not hit Postgres.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"example.com/gatherings/internal/domain"
)

// RedisHistory stores each activity's comments in a sorted set scored by
// creation time. A companion warm key marks the set as a complete history,
// which also covers activities with no comments yet. Writes only ever add
// members, so a refill and a concurrent append merge instead of racing.
type RedisHistory struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.HistoryCache = (*RedisHistory)(nil)

// NewRedisHistory connects to Redis and verifies the connection.
func NewRedisHistory(ctx context.Context, opts *redis.Options, ttl time.Duration) (*RedisHistory, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisHistoryWithClient(client, ttl), nil
}

// NewRedisHistoryWithClient wraps an existing client.
func NewRedisHistoryWithClient(client *redis.Client, ttl time.Duration) *RedisHistory {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisHistory{client: client, ttl: ttl}
}

func commentsKey(activityID string) string { return fmt.Sprintf("activity:%s:comments", activityID) }
func warmKey(activityID string) string     { return fmt.Sprintf("activity:%s:comments:warm", activityID) }

// Load returns the cached history in creation order; ok is false on a miss.
func (r *RedisHistory) Load(ctx context.Context, activityID string) ([]domain.CommentView, bool, error) {
	pipe := r.client.Pipeline()
	warm := pipe.Exists(ctx, warmKey(activityID))
	members := pipe.ZRange(ctx, commentsKey(activityID), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, false, fmt.Errorf("failed to load comment history: %w", err)
	}
	if warm.Val() == 0 {
		historyMisses.Inc()
		return nil, false, nil
	}

	out := make([]domain.CommentView, 0, len(members.Val()))
	seen := make(map[string]struct{}, len(members.Val()))
	for _, raw := range members.Val() {
		var view domain.CommentView
		if err := json.Unmarshal([]byte(raw), &view); err != nil {
			historyMisses.Inc()
			return nil, false, fmt.Errorf("failed to decode cached comment: %w", err)
		}
		// An append and a refill can encode the same comment differently.
		if _, dup := seen[view.ID]; dup {
			continue
		}
		seen[view.ID] = struct{}{}
		out = append(out, view)
	}
	historyHits.Inc()
	return out, true, nil
}

// Store merges a full history read from the store into the set and marks it
// warm. Comments appended while the read was in flight are kept.
func (r *RedisHistory) Store(ctx context.Context, activityID string, comments []domain.CommentView) error {
	members := make([]*redis.Z, 0, len(comments))
	for _, c := range comments {
		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal comment: %w", err)
		}
		members = append(members, &redis.Z{Score: float64(c.CreatedAt.UnixNano()), Member: raw})
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(members) > 0 {
			pipe.ZAdd(ctx, commentsKey(activityID), members...)
			pipe.PExpire(ctx, commentsKey(activityID), r.ttl)
		}
		pipe.Set(ctx, warmKey(activityID), "1", r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store comment history: %w", err)
	}
	return nil
}

// Append adds a freshly persisted comment. A cold history collects it too so
// that a refill started before the comment was written cannot drop it; the
// set only becomes visible once Store marks it warm.
func (r *RedisHistory) Append(ctx context.Context, activityID string, comment domain.CommentView) error {
	raw, err := json.Marshal(comment)
	if err != nil {
		return fmt.Errorf("failed to marshal comment: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, commentsKey(activityID), &redis.Z{Score: float64(comment.CreatedAt.UnixNano()), Member: raw})
		pipe.PExpire(ctx, commentsKey(activityID), r.ttl)
		pipe.PExpire(ctx, warmKey(activityID), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append comment: %w", err)
	}
	return nil
}

// Close releases the client.
func (r *RedisHistory) Close() error {
	return r.client.Close()
}
