//go:build integration

package postgres

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/gatherings/internal/domain"
	"example.com/gatherings/internal/testsupport"
)

func seedUser(t *testing.T, repo *Repository, name string) domain.User {
	t.Helper()
	u := domain.User{ID: uuid.NewString(), Username: name, DisplayName: name}
	require.NoError(t, repo.UpsertUser(context.Background(), u))
	return u
}

func TestRepositoryAttendanceAndOutbox(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(context.Background(), t)
	repo := NewRepository(pool)
	svc := domain.NewService(repo)

	host := seedUser(t, repo, "hana")
	guest := seedUser(t, repo, "ali")

	res := svc.CreateActivity(ctx, domain.CreateActivityCommand{
		HostID: host.ID, Title: "Run club", Date: time.Now().Add(24 * time.Hour),
		Description: "5k", Category: "sport", City: "York", Venue: "Park",
	})
	view, ok := res.Value()
	require.True(t, ok, res.Message())

	toggle := domain.ToggleAttendanceCommand{ActivityID: view.ID, UserID: guest.ID}
	require.Equal(t, domain.OutcomeSuccess, svc.ToggleAttendance(ctx, toggle).Outcome())
	rec, err := repo.GetActivity(ctx, view.ID)
	require.NoError(t, err)
	require.Len(t, rec.Attendees, 2)

	require.Equal(t, domain.OutcomeSuccess, svc.ToggleAttendance(ctx, toggle).Outcome())
	require.Equal(t, domain.OutcomeSuccess, svc.ToggleAttendance(ctx, domain.ToggleAttendanceCommand{ActivityID: view.ID, UserID: host.ID}).Outcome())
	rec, err = repo.GetActivity(ctx, view.ID)
	require.NoError(t, err)
	require.Len(t, rec.Attendees, 1)
	require.True(t, rec.IsCancelled)

	var events int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE aggregate_id=$1`, view.ID).Scan(&events))
	require.Equal(t, 4, events, "one activity.created plus three attendance.changed")

	missing := svc.ToggleAttendance(ctx, domain.ToggleAttendanceCommand{ActivityID: uuid.NewString(), UserID: guest.ID})
	require.Equal(t, domain.OutcomeNotFound, missing.Outcome())
}

func TestRepositoryConcurrentTogglesStayConsistent(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(context.Background(), t)
	repo := NewRepository(pool)
	svc := domain.NewService(repo)

	host := seedUser(t, repo, "hana")
	guest := seedUser(t, repo, "ali")
	view, ok := svc.CreateActivity(ctx, domain.CreateActivityCommand{
		HostID: host.ID, Title: "Swim", Date: time.Now(), Description: "laps", Category: "sport", City: "Hull", Venue: "Pool",
	}).Value()
	require.True(t, ok)

	const toggles = 10
	var wg sync.WaitGroup
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.ToggleAttendance(ctx, domain.ToggleAttendanceCommand{ActivityID: view.ID, UserID: guest.ID})
		}()
	}
	wg.Wait()

	rec, err := repo.GetActivity(ctx, view.ID)
	require.NoError(t, err)
	require.Len(t, rec.Attendees, 1, "an even number of serialised toggles leaves the guest out")
}

func TestRepositoryFeedAndComments(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(context.Background(), t)
	repo := NewRepository(pool)
	svc := domain.NewService(repo)

	host := seedUser(t, repo, "hana")
	base := time.Now().UTC().Truncate(time.Second).Add(time.Hour)
	var firstID string
	for i := 0; i < 7; i++ {
		v, ok := svc.CreateActivity(ctx, domain.CreateActivityCommand{
			HostID: host.ID, Title: "Walk", Date: base.Add(time.Duration(i) * time.Hour),
			Description: "d", Category: "c", City: "c", Venue: "v",
		}).Value()
		require.True(t, ok)
		if i == 0 {
			firstID = v.ID
		}
	}

	start := base.Add(-time.Minute)
	for page, want := range map[int]int{1: 3, 2: 3, 3: 1, 4: 0} {
		p, ok := svc.ListActivities(ctx, domain.FeedFilter{ViewerID: host.ID, StartDate: &start, IsHost: true, PageNumber: page, PageSize: 3}).Value()
		require.True(t, ok)
		require.Len(t, p.Items, want)
		require.Equal(t, 7, p.TotalCount)
		require.Equal(t, 3, p.TotalPages)
	}
	far, ok := svc.ListActivities(ctx, domain.FeedFilter{ViewerID: host.ID, StartDate: &start, IsHost: true, PageNumber: math.MaxInt, PageSize: 3}).Value()
	require.True(t, ok)
	require.Empty(t, far.Items)
	require.Equal(t, 7, far.TotalCount)

	for _, body := range []string{"one", "two", "three"} {
		require.Equal(t, domain.OutcomeSuccess, svc.PostComment(ctx, domain.PostCommentCommand{ActivityID: firstID, AuthorID: host.ID, Body: body}).Outcome())
		time.Sleep(5 * time.Millisecond)
	}
	history, ok := svc.ListComments(ctx, domain.CommentHistoryQuery{ActivityID: firstID}).Value()
	require.True(t, ok)
	require.Len(t, history, 3)
	require.Equal(t, "one", history[0].Body)
	require.Equal(t, "three", history[2].Body)

	rows, err := repo.AppendComment(ctx, domain.Comment{ID: uuid.NewString(), ActivityID: uuid.NewString(), AuthorID: host.ID, Body: "orphan", CreatedAt: time.Now()})
	require.NoError(t, err)
	require.Zero(t, rows)

	hosting, err := repo.ListUserActivities(ctx, host.ID, domain.PredicateHosting, time.Now())
	require.NoError(t, err)
	require.Len(t, hosting, 7)
	past, err := repo.ListUserActivities(ctx, host.ID, domain.PredicatePast, time.Now())
	require.NoError(t, err)
	require.Empty(t, past)
}
