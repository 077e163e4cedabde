package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/gatherings/internal/domain"
	"example.com/gatherings/internal/persistence/memory"
)

func TestPostCommentAssignsIdentityAndShapesView(t *testing.T) {
	f := newFixture(t, "hana", "ali")
	act := f.createActivity(t, "hana", fixedNow)

	res := f.svc.PostComment(context.Background(), domain.PostCommentCommand{ActivityID: act.ID, AuthorID: "u-ali", Body: "  see you there  "})
	view, ok := res.Value()
	require.True(t, ok, res.Message())
	require.NotEmpty(t, view.ID)
	require.Equal(t, fixedNow, view.CreatedAt)
	require.Equal(t, "see you there", view.Body)
	require.Equal(t, "ali", view.Username)
	require.Equal(t, act.ID, view.ActivityID)

	other := f.svc.PostComment(context.Background(), domain.PostCommentCommand{ActivityID: act.ID, AuthorID: "u-ali", Body: "again"})
	second, _ := other.Value()
	require.NotEqual(t, view.ID, second.ID)
}

func TestPostCommentRejectsEmptyBodyWithoutStoreAccess(t *testing.T) {
	store := &countingStore{Store: memory.NewStore()}
	svc := domain.NewService(store)
	res := svc.PostComment(context.Background(), domain.PostCommentCommand{ActivityID: "a", AuthorID: "u", Body: "   "})
	require.Equal(t, domain.OutcomeFailure, res.Outcome())
	require.ErrorIs(t, res.Err(), domain.ErrValidation)
	require.Zero(t, store.reads)
}

func TestPostCommentMissingActivityOrAuthor(t *testing.T) {
	f := newFixture(t, "hana")
	act := f.createActivity(t, "hana", fixedNow)

	res := f.svc.PostComment(context.Background(), domain.PostCommentCommand{ActivityID: "nope", AuthorID: "u-hana", Body: "x"})
	require.Equal(t, domain.OutcomeNotFound, res.Outcome())

	res = f.svc.PostComment(context.Background(), domain.PostCommentCommand{ActivityID: act.ID, AuthorID: "u-ghost", Body: "x"})
	require.Equal(t, domain.OutcomeNotFound, res.Outcome())
	require.ErrorIs(t, res.Err(), domain.ErrUserNotFound)
}

type failingAppendStore struct {
	*memory.Store
	err error
}

func (s failingAppendStore) AppendComment(context.Context, domain.Comment) (int64, error) {
	return 0, s.err
}

func TestPostCommentPersistenceFailure(t *testing.T) {
	for name, storeErr := range map[string]error{"zero rows": nil, "store error": errors.New("disk full")} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, "hana")
			act := f.createActivity(t, "hana", fixedNow)
			cache := &recordingCache{}
			svc := domain.NewService(failingAppendStore{Store: f.store, err: storeErr}, domain.WithHistoryCache(cache))

			res := svc.PostComment(context.Background(), domain.PostCommentCommand{ActivityID: act.ID, AuthorID: "u-hana", Body: "hello"})
			require.Equal(t, domain.OutcomeFailure, res.Outcome())
			require.Equal(t, "Failed to add comment", res.Message())
			require.Empty(t, cache.appended)
		})
	}
}

func TestListCommentsReturnsCreationOrder(t *testing.T) {
	f := newFixture(t, "hana")
	act := f.createActivity(t, "hana", fixedNow)
	clock := fixedNow
	svc := domain.NewService(f.store, domain.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	for _, body := range []string{"one", "two", "three"} {
		require.Equal(t, domain.OutcomeSuccess, svc.PostComment(context.Background(), domain.PostCommentCommand{ActivityID: act.ID, AuthorID: "u-hana", Body: body}).Outcome())
	}

	res := svc.ListComments(context.Background(), domain.CommentHistoryQuery{ActivityID: act.ID})
	history, ok := res.Value()
	require.True(t, ok)
	require.Len(t, history, 3)
	require.Equal(t, "one", history[0].Body)
	require.Equal(t, "three", history[2].Body)

	missing := svc.ListComments(context.Background(), domain.CommentHistoryQuery{ActivityID: "nope"})
	require.Equal(t, domain.OutcomeNotFound, missing.Outcome())
}

func TestListCommentsUsesHistoryCache(t *testing.T) {
	f := newFixture(t, "hana")
	act := f.createActivity(t, "hana", fixedNow)
	cache := &recordingCache{}
	svc := domain.NewService(f.store, domain.WithHistoryCache(cache))

	res := svc.ListComments(context.Background(), domain.CommentHistoryQuery{ActivityID: act.ID})
	require.Equal(t, domain.OutcomeSuccess, res.Outcome())
	require.Contains(t, cache.stored, act.ID)

	cache.stored[act.ID] = []domain.CommentView{{ID: "cached", Body: "from cache"}}
	res = svc.ListComments(context.Background(), domain.CommentHistoryQuery{ActivityID: act.ID})
	history, _ := res.Value()
	require.Len(t, history, 1)
	require.Equal(t, "cached", history[0].ID)

	cache.failLoad = true
	res = svc.ListComments(context.Background(), domain.CommentHistoryQuery{ActivityID: act.ID})
	history, ok := res.Value()
	require.True(t, ok, "cache errors must not fail the read")
	require.Empty(t, history)
}

func TestServiceWithoutHistoryCacheReadsThroughToStore(t *testing.T) {
	f := newFixture(t, "hana")
	act := f.createActivity(t, "hana", fixedNow)
	svc := domain.NewService(f.store, domain.WithHistoryCache(nil))

	require.Equal(t, domain.OutcomeSuccess, svc.PostComment(context.Background(), domain.PostCommentCommand{ActivityID: act.ID, AuthorID: "u-hana", Body: "one"}).Outcome())
	for i := 0; i < 2; i++ {
		history, ok := svc.ListComments(context.Background(), domain.CommentHistoryQuery{ActivityID: act.ID}).Value()
		require.True(t, ok)
		require.Len(t, history, 1)
	}
}

type countingStore struct {
	*memory.Store
	reads int
}

func (c *countingStore) GetActivity(ctx context.Context, id string) (*domain.ActivityRecord, error) {
	c.reads++
	return c.Store.GetActivity(ctx, id)
}

type recordingCache struct {
	mu       sync.Mutex
	stored   map[string][]domain.CommentView
	appended []domain.CommentView
	failLoad bool
}

func (c *recordingCache) Load(_ context.Context, activityID string) ([]domain.CommentView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failLoad {
		return nil, false, errors.New("cache down")
	}
	v, ok := c.stored[activityID]
	return v, ok, nil
}

func (c *recordingCache) Store(_ context.Context, activityID string, comments []domain.CommentView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stored == nil {
		c.stored = make(map[string][]domain.CommentView)
	}
	c.stored[activityID] = comments
	return nil
}

func (c *recordingCache) Append(_ context.Context, _ string, comment domain.CommentView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appended = append(c.appended, comment)
	return nil
}
