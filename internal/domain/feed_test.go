package domain_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/gatherings/internal/domain"
)

func listPage(t *testing.T, f fixture, filter domain.FeedFilter) domain.Page[domain.ActivityView] {
	t.Helper()
	res := f.svc.ListActivities(context.Background(), filter)
	page, ok := res.Value()
	require.True(t, ok, "list failed: %s", res.Message())
	return page
}

func TestFeedPaginatesSevenActivitiesInPagesOfThree(t *testing.T) {
	f := newFixture(t, "hana")
	for i := 6; i >= 0; i-- {
		f.createActivity(t, "hana", fixedNow.Add(time.Duration(i)*24*time.Hour))
	}
	start := fixedNow

	var seen []time.Time
	for page, want := range map[int]int{1: 3, 2: 3, 3: 1} {
		p := listPage(t, f, domain.FeedFilter{ViewerID: "u-hana", StartDate: &start, PageNumber: page, PageSize: 3})
		require.Len(t, p.Items, want, "page %d", page)
		require.Equal(t, 7, p.TotalCount)
		require.Equal(t, 3, p.TotalPages)
		require.Equal(t, page, p.CurrentPage)
		require.Equal(t, 3, p.PageSize)
		for _, item := range p.Items {
			seen = append(seen, item.Date)
		}
	}
	require.Len(t, seen, 7)

	first := listPage(t, f, domain.FeedFilter{PageNumber: 1, PageSize: 3})
	for i := 1; i < len(first.Items); i++ {
		require.False(t, first.Items[i].Date.Before(first.Items[i-1].Date), "feed must be ordered by date")
	}

	beyond := listPage(t, f, domain.FeedFilter{PageNumber: 4, PageSize: 3})
	require.Empty(t, beyond.Items)
	require.NotNil(t, beyond.Items)
	require.Equal(t, 3, beyond.TotalPages)
}

func TestFeedStartDateLowerBound(t *testing.T) {
	f := newFixture(t, "hana")
	f.createActivity(t, "hana", fixedNow.Add(-48*time.Hour))
	f.createActivity(t, "hana", fixedNow.Add(48*time.Hour))

	start := fixedNow
	p := listPage(t, f, domain.FeedFilter{StartDate: &start})
	require.Len(t, p.Items, 1)
	require.Equal(t, 1, p.TotalCount)

	all := listPage(t, f, domain.FeedFilter{})
	require.Len(t, all.Items, 2)
}

func feedFixture(t *testing.T) (fixture, map[string]string) {
	t.Helper()
	f := newFixture(t, "hana", "ali", "mo")
	ids := map[string]string{
		"hana-hosts": f.createActivity(t, "hana", fixedNow.Add(1*time.Hour)).ID,
		"ali-hosts":  f.createActivity(t, "ali", fixedNow.Add(2*time.Hour)).ID,
		"mo-hosts":   f.createActivity(t, "mo", fixedNow.Add(3*time.Hour)).ID,
	}
	res := f.svc.ToggleAttendance(context.Background(), domain.ToggleAttendanceCommand{ActivityID: ids["ali-hosts"], UserID: "u-hana"})
	require.Equal(t, domain.OutcomeSuccess, res.Outcome())
	return f, ids
}

func TestFeedIsGoingFilter(t *testing.T) {
	f, ids := feedFixture(t)
	p := listPage(t, f, domain.FeedFilter{ViewerID: "u-hana", IsGoing: true})
	require.Equal(t, 2, p.TotalCount)
	for _, item := range p.Items {
		require.True(t, item.IsGoing)
		require.NotEqual(t, ids["mo-hosts"], item.ID)
	}
}

func TestFeedIsHostFilter(t *testing.T) {
	f, ids := feedFixture(t)
	p := listPage(t, f, domain.FeedFilter{ViewerID: "u-hana", IsHost: true})
	require.Len(t, p.Items, 1)
	require.Equal(t, ids["hana-hosts"], p.Items[0].ID)
	require.True(t, p.Items[0].IsHost)
}

// Both flags together currently mean no restriction at all. Changing this is
// a product decision; this test pins the present behaviour.
func TestFeedBothFlagsAppliesNoFilter(t *testing.T) {
	f, _ := feedFixture(t)
	p := listPage(t, f, domain.FeedFilter{ViewerID: "u-hana", IsGoing: true, IsHost: true})
	require.Equal(t, 3, p.TotalCount)
	require.Equal(t, domain.RestrictNone, domain.FeedFilter{IsGoing: true, IsHost: true}.Restriction())
}

func TestFeedViewerRelativeFlags(t *testing.T) {
	f, ids := feedFixture(t)
	p := listPage(t, f, domain.FeedFilter{ViewerID: "u-hana"})
	byID := map[string]domain.ActivityView{}
	for _, item := range p.Items {
		byID[item.ID] = item
	}
	require.True(t, byID[ids["hana-hosts"]].IsHost)
	require.True(t, byID[ids["ali-hosts"]].IsGoing)
	require.False(t, byID[ids["ali-hosts"]].IsHost)
	require.Equal(t, "ali", byID[ids["ali-hosts"]].HostUsername)
	require.False(t, byID[ids["mo-hosts"]].IsGoing)
}

func TestFeedPagingDefaultsAndValidation(t *testing.T) {
	f := newFixture(t, "hana")
	f.createActivity(t, "hana", fixedNow)

	p := listPage(t, f, domain.FeedFilter{})
	require.Equal(t, 1, p.CurrentPage)
	require.Equal(t, domain.DefaultPageSize, p.PageSize)

	p = listPage(t, f, domain.FeedFilter{PageSize: 500})
	require.Equal(t, domain.MaxPageSize, p.PageSize)

	res := f.svc.ListActivities(context.Background(), domain.FeedFilter{PageNumber: -1})
	require.Equal(t, domain.OutcomeFailure, res.Outcome())
	require.ErrorIs(t, res.Err(), domain.ErrValidation)
}

func TestFeedHugePageNumberIsEmpty(t *testing.T) {
	f := newFixture(t, "hana")
	for i := 0; i < 3; i++ {
		f.createActivity(t, "hana", fixedNow.Add(time.Duration(i)*time.Hour))
	}

	for _, size := range []int{1, 10, domain.MaxPageSize} {
		p := listPage(t, f, domain.FeedFilter{PageNumber: math.MaxInt, PageSize: size})
		require.Empty(t, p.Items, "page size %d", size)
		require.Equal(t, 3, p.TotalCount)
		require.Equal(t, domain.TotalPages(3, size), p.TotalPages)
		require.Equal(t, math.MaxInt, p.CurrentPage)
	}
}

func TestTotalPages(t *testing.T) {
	require.Equal(t, 0, domain.TotalPages(0, 3))
	require.Equal(t, 1, domain.TotalPages(3, 3))
	require.Equal(t, 3, domain.TotalPages(7, 3))
	require.Equal(t, 0, domain.TotalPages(7, 0))
}
