//go:build integration

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"example.com/gatherings/internal/domain"
	"example.com/gatherings/internal/persistence/memory"
	"example.com/gatherings/internal/testsupport"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testsupport.StartRedis(context.Background(), t)})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	history := NewRedisHistoryWithClient(startRedis(t), time.Minute)
	base := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)

	_, ok, err := history.Load(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, history.Append(ctx, "a1", domain.CommentView{ID: "early", CreatedAt: base}))
	_, ok, err = history.Load(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok, "append must not warm a cold history")

	require.NoError(t, history.Store(ctx, "a1", nil))
	got, ok, err := history.Load(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"early"}, []string{got[0].ID}, "a refill keeps what was appended while cold")

	require.NoError(t, history.Store(ctx, "a1", []domain.CommentView{
		{ID: "c2", Body: "second", CreatedAt: base.Add(2 * time.Second)},
		{ID: "c1", Body: "first", CreatedAt: base.Add(time.Second)},
	}))
	require.NoError(t, history.Append(ctx, "a1", domain.CommentView{ID: "c3", Body: "third", CreatedAt: base.Add(3 * time.Second)}))

	got, ok, err = history.Load(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 4)
	require.Equal(t, []string{"early", "c1", "c2", "c3"}, []string{got[0].ID, got[1].ID, got[2].ID, got[3].ID})
}

func TestRedisHistoryRefillMergesColdAppends(t *testing.T) {
	ctx := context.Background()
	history := NewRedisHistoryWithClient(startRedis(t), time.Minute)
	base := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)

	stale := []domain.CommentView{{ID: "c1", Body: "first", Username: "hana", CreatedAt: base}}
	require.NoError(t, history.Append(ctx, "a2", domain.CommentView{ID: "c2", Body: "second", Username: "ivo", CreatedAt: base.Add(time.Second)}))
	// Same comment, encoded with a different display name.
	require.NoError(t, history.Append(ctx, "a2", domain.CommentView{ID: "c1", Body: "first", Username: "Hana", CreatedAt: base}))
	require.NoError(t, history.Store(ctx, "a2", stale))

	got, ok, err := history.Load(ctx, "a2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	require.Equal(t, []string{"c1", "c2"}, []string{got[0].ID, got[1].ID})
}

// gatedStore returns its comment snapshot only after the test releases it.
type gatedStore struct {
	*memory.Store
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (g *gatedStore) ListComments(ctx context.Context, activityID string) ([]domain.CommentRecord, error) {
	records, err := g.Store.ListComments(ctx, activityID)
	g.once.Do(func() {
		close(g.read)
		<-g.release
	})
	return records, err
}

func TestCommentPostedDuringColdRefillReachesLaterJoins(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{Store: memory.NewStore(), read: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: "u-hana", Username: "hana", DisplayName: "hana"}))

	svc := domain.NewService(store, domain.WithHistoryCache(NewRedisHistoryWithClient(startRedis(t), time.Minute)))
	activity, ok := svc.CreateActivity(ctx, domain.CreateActivityCommand{
		HostID: "u-hana", Title: "Night ride", Date: time.Date(2026, time.June, 1, 19, 0, 0, 0, time.UTC),
		Description: "gravel loop", Category: "sport", City: "Leeds", Venue: "Roundhay",
	}).Value()
	require.True(t, ok)

	refilled := make(chan domain.Result[[]domain.CommentView], 1)
	go func() {
		refilled <- svc.ListComments(ctx, domain.CommentHistoryQuery{ActivityID: activity.ID})
	}()
	<-store.read

	posted := svc.PostComment(ctx, domain.PostCommentCommand{ActivityID: activity.ID, AuthorID: "u-hana", Body: "see you there"})
	require.Equal(t, domain.OutcomeSuccess, posted.Outcome(), posted.Message())
	close(store.release)

	first := <-refilled
	snapshot, ok := first.Value()
	require.True(t, ok)
	require.Empty(t, snapshot)

	later, ok := svc.ListComments(ctx, domain.CommentHistoryQuery{ActivityID: activity.ID}).Value()
	require.True(t, ok)
	require.Len(t, later, 1)
	require.Equal(t, "see you there", later[0].Body)
}
