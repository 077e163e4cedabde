// Package memory implements domain.Store in process for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/gatherings/internal/domain"
	"example.com/gatherings/internal/persistence"
)

// Store keeps every aggregate in maps guarded by a single RWMutex. Writers
// hold the lock for the whole read-modify-write, which serialises toggles.
type Store struct {
	mu          sync.RWMutex
	activities  map[string]domain.Activity
	order       []string
	attendances map[string][]domain.Attendance
	comments    map[string][]domain.Comment
	users       map[string]domain.User
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		activities:  make(map[string]domain.Activity),
		attendances: make(map[string][]domain.Attendance),
		comments:    make(map[string][]domain.Comment),
		users:       make(map[string]domain.User),
	}
}

var _ domain.Store = (*Store)(nil)

// CreateActivity implements domain.Store.
func (s *Store) CreateActivity(ctx context.Context, activity domain.Activity, host domain.Attendance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activities[activity.ID]; ok {
		return fmt.Errorf("activity %s: %w", activity.ID, domain.ErrConflict)
	}
	if _, ok := s.users[host.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	host.ActivityID = activity.ID
	host.Role = domain.RoleHost
	s.activities[activity.ID] = activity
	s.order = append(s.order, activity.ID)
	s.attendances[activity.ID] = []domain.Attendance{host}
	return nil
}

// GetActivity implements domain.Store.
func (s *Store) GetActivity(ctx context.Context, activityID string) (*domain.ActivityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	activity, ok := s.activities[activityID]
	if !ok {
		return nil, nil
	}
	rec := s.recordLocked(activity)
	return &rec, nil
}

func (s *Store) recordLocked(activity domain.Activity) domain.ActivityRecord {
	rows := s.attendances[activity.ID]
	attendees := make([]domain.Attendee, 0, len(rows))
	for _, row := range rows {
		attendees = append(attendees, domain.Attendee{Attendance: row, User: s.users[row.UserID]})
	}
	return domain.ActivityRecord{Activity: activity, Attendees: attendees}
}

// GetUser implements domain.Store.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// FindUserByUsername implements domain.Store.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Username, username) {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

// UpsertUser implements domain.Store.
func (s *Store) UpsertUser(ctx context.Context, user domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.users {
		if id != user.ID && strings.EqualFold(existing.Username, user.Username) {
			return fmt.Errorf("username %s: %w", user.Username, domain.ErrConflict)
		}
	}
	s.users[user.ID] = user
	return nil
}

// ApplyAttendance implements domain.Store.
func (s *Store) ApplyAttendance(ctx context.Context, activityID, userID string, decide domain.AttendanceDecider) (domain.AttendanceTransition, int64, error) {
	if err := ctx.Err(); err != nil {
		return domain.AttendanceTransition{}, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	activity, ok := s.activities[activityID]
	if !ok {
		return domain.AttendanceTransition{}, 0, domain.ErrActivityNotFound
	}
	actor, ok := s.users[userID]
	if !ok {
		return domain.AttendanceTransition{}, 0, domain.ErrUserNotFound
	}
	rows := s.attendances[activityID]
	snapshot := domain.AttendanceSnapshot{
		Activity:  activity,
		Attendees: append([]domain.Attendance(nil), rows...),
		Actor:     actor,
	}
	transition := decide(snapshot)

	switch transition.Kind {
	case domain.TransitionCancelToggle:
		activity.IsCancelled = transition.Cancelled
		s.activities[activityID] = activity
		return transition, 1, nil
	case domain.TransitionLeave:
		kept := rows[:0:0]
		for _, row := range rows {
			if row.UserID != transition.Row.UserID {
				kept = append(kept, row)
			}
		}
		affected := int64(len(rows) - len(kept))
		s.attendances[activityID] = kept
		return transition, affected, nil
	case domain.TransitionJoin:
		for _, row := range rows {
			if row.UserID == transition.Row.UserID {
				return transition, 0, domain.ErrConflict
			}
		}
		s.attendances[activityID] = append(rows, transition.Row)
		return transition, 1, nil
	}
	return transition, 0, nil
}

// ListActivities implements domain.Store.
func (s *Store) ListActivities(ctx context.Context, q domain.FeedQuery) ([]domain.ActivityRecord, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.ActivityRecord, 0, len(s.order))
	for _, id := range s.order {
		rec := s.recordLocked(s.activities[id])
		if persistence.MatchesFeed(rec, q) {
			matched = append(matched, rec)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Date.Before(matched[j].Date)
	})
	return persistence.Window(matched, q.Offset, q.Limit), len(matched), nil
}

// AppendComment implements domain.Store.
func (s *Store) AppendComment(ctx context.Context, comment domain.Comment) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activities[comment.ActivityID]; !ok {
		return 0, nil
	}
	s.comments[comment.ActivityID] = append(s.comments[comment.ActivityID], comment)
	return 1, nil
}

// ListComments implements domain.Store.
func (s *Store) ListComments(ctx context.Context, activityID string) ([]domain.CommentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	comments := s.comments[activityID]
	out := make([]domain.CommentRecord, 0, len(comments))
	for _, c := range comments {
		out = append(out, domain.CommentRecord{Comment: c, Author: s.users[c.AuthorID]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListUserActivities implements domain.Store.
func (s *Store) ListUserActivities(ctx context.Context, userID string, predicate domain.UserActivityPredicate, now time.Time) ([]domain.UserActivity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.UserActivity
	for _, id := range s.order {
		activity := s.activities[id]
		for _, row := range s.attendances[id] {
			if row.UserID != userID || !persistence.MatchesPredicate(activity.Date, row.Role, predicate, now) {
				continue
			}
			out = append(out, domain.UserActivity{
				ID:       activity.ID,
				Title:    activity.Title,
				Category: activity.Category,
				Date:     activity.Date,
				IsHost:   row.Role == domain.RoleHost,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
