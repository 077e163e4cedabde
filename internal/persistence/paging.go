// Package persistence contains helpers shared by store implementations.
package persistence

import (
	"time"

	"example.com/gatherings/internal/domain"
)

// Window returns the [offset, offset+limit) slice of items, empty when the
// offset is past the end.
func Window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) || limit <= 0 {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// MatchesFeed reports whether an activity belongs to the filtered feed.
func MatchesFeed(rec domain.ActivityRecord, q domain.FeedQuery) bool {
	if q.StartDate != nil && rec.Date.Before(*q.StartDate) {
		return false
	}
	switch q.Restriction {
	case domain.RestrictGoing:
		for _, a := range rec.Attendees {
			if a.UserID == q.ViewerID {
				return true
			}
		}
		return false
	case domain.RestrictHosting:
		host, ok := rec.Host()
		return ok && host.UserID == q.ViewerID
	}
	return true
}

// MatchesPredicate reports whether an attendance belongs to a profile listing.
func MatchesPredicate(activityDate time.Time, role domain.AttendeeRole, p domain.UserActivityPredicate, now time.Time) bool {
	switch p {
	case domain.PredicatePast:
		return !activityDate.After(now)
	case domain.PredicateFuture:
		return !activityDate.Before(now)
	case domain.PredicateHosting:
		return role == domain.RoleHost
	}
	return true
}
