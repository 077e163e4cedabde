// Package domain holds the participation state machine, the feed query engine
// and the comment workflow for activities.
package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is the generic absent-resource error.
	ErrNotFound = errors.New("not found")
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = fmt.Errorf("activity %w", ErrNotFound)
	// ErrUserNotFound is returned when a user profile cannot be located.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrValidation marks malformed input rejected before any state change.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence marks a durable write that did not take effect.
	ErrPersistence = errors.New("persistence failure")
	// ErrConflict is reported by stores when concurrent writers collide on the same row.
	ErrConflict = errors.New("concurrent modification")
)

// Store abstracts durable reads and writes for activities, attendance,
// comments and users. Lookups return (nil, nil) when the row is absent.
type Store interface {
	CreateActivity(ctx context.Context, activity Activity, host Attendance) error
	GetActivity(ctx context.Context, activityID string) (*ActivityRecord, error)
	GetUser(ctx context.Context, userID string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	UpsertUser(ctx context.Context, user User) error
	// ApplyAttendance loads a locked snapshot, asks decide for the transition
	// and writes it in one transaction. It returns the rows affected.
	ApplyAttendance(ctx context.Context, activityID, userID string, decide AttendanceDecider) (AttendanceTransition, int64, error)
	ListActivities(ctx context.Context, query FeedQuery) ([]ActivityRecord, int, error)
	// AppendComment inserts the comment only if its activity still exists.
	AppendComment(ctx context.Context, comment Comment) (int64, error)
	ListComments(ctx context.Context, activityID string) ([]CommentRecord, error)
	ListUserActivities(ctx context.Context, userID string, predicate UserActivityPredicate, now time.Time) ([]UserActivity, error)
}

// HistoryCache keeps shaped comment histories close to the chat path.
type HistoryCache interface {
	Load(ctx context.Context, activityID string) ([]CommentView, bool, error)
	Store(ctx context.Context, activityID string, comments []CommentView) error
	Append(ctx context.Context, activityID string, comment CommentView) error
}

// noopHistory is the default cache: every Load misses.
type noopHistory struct{}

func (noopHistory) Load(context.Context, string) ([]CommentView, bool, error) { return nil, false, nil }
func (noopHistory) Store(context.Context, string, []CommentView) error       { return nil }
func (noopHistory) Append(context.Context, string, CommentView) error        { return nil }

// Service orchestrates the activity workflows.
type Service struct {
	store   Store
	history HistoryCache
	logger  *log.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures the service.
type Option func(*Service)

// WithHistoryCache installs a comment history cache.
func WithHistoryCache(c HistoryCache) Option {
	return func(s *Service) {
		if c != nil {
			s.history = c
		}
	}
}

// WithLogger sets the logger used for non-fatal errors.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		history: noopHistory{},
		logger:  log.New(io.Discard, "", 0),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateActivityCommand captures the payload for a new activity.
type CreateActivityCommand struct {
	HostID      string
	Title       string
	Date        time.Time
	Description string
	Category    string
	City        string
	Venue       string
}

// Validate checks the required fields.
func (c CreateActivityCommand) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"host":        c.HostID,
		"title":       c.Title,
		"description": c.Description,
		"category":    c.Category,
		"city":        c.City,
		"venue":       c.Venue,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if c.Date.IsZero() {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%w: %s required", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// CreateActivity stores a new activity with the creator as its single host.
func (s *Service) CreateActivity(ctx context.Context, cmd CreateActivityCommand) Result[ActivityView] {
	if err := cmd.Validate(); err != nil {
		return FailWith[ActivityView](err)
	}
	host, err := s.store.GetUser(ctx, cmd.HostID)
	if err != nil {
		return FailWith[ActivityView](err)
	}
	if host == nil {
		return Missing[ActivityView](ErrUserNotFound)
	}

	now := s.now()
	activity := Activity{
		ID:          s.newID(),
		Title:       strings.TrimSpace(cmd.Title),
		Date:        cmd.Date.UTC(),
		Description: strings.TrimSpace(cmd.Description),
		Category:    strings.TrimSpace(cmd.Category),
		City:        strings.TrimSpace(cmd.City),
		Venue:       strings.TrimSpace(cmd.Venue),
		CreatedAt:   now,
	}
	hostRow := Attendance{ActivityID: activity.ID, UserID: host.ID, Role: RoleHost, JoinedAt: now}
	if err := s.store.CreateActivity(ctx, activity, hostRow); err != nil {
		return Fail[ActivityView](ErrPersistence, "Failed to create activity")
	}
	rec := ActivityRecord{Activity: activity, Attendees: []Attendee{{Attendance: hostRow, User: *host}}}
	return Succeed(toActivityView(rec, host.ID))
}

// ActivityDetailsQuery loads one activity relative to a viewer.
type ActivityDetailsQuery struct {
	ActivityID string
	ViewerID   string
}

// GetActivity returns the viewer-relative view of one activity.
func (s *Service) GetActivity(ctx context.Context, q ActivityDetailsQuery) Result[ActivityView] {
	rec, err := s.store.GetActivity(ctx, q.ActivityID)
	if err != nil {
		return FailWith[ActivityView](err)
	}
	if rec == nil {
		return Missing[ActivityView](ErrActivityNotFound)
	}
	return Succeed(toActivityView(*rec, q.ViewerID))
}

// UserActivitiesQuery lists a user's activities by predicate.
type UserActivitiesQuery struct {
	Username  string
	Predicate UserActivityPredicate
}

// Validate rejects unknown predicates.
func (q UserActivitiesQuery) Validate() error {
	switch q.Predicate {
	case PredicateAll, PredicatePast, PredicateFuture, PredicateHosting:
	default:
		return fmt.Errorf("%w: unknown predicate %q", ErrValidation, q.Predicate)
	}
	if strings.TrimSpace(q.Username) == "" {
		return fmt.Errorf("%w: username required", ErrValidation)
	}
	return nil
}

// ListUserActivities lists the activities a user attends or hosts.
func (s *Service) ListUserActivities(ctx context.Context, q UserActivitiesQuery) Result[[]UserActivity] {
	user, err := s.store.FindUserByUsername(ctx, q.Username)
	if err != nil {
		return FailWith[[]UserActivity](err)
	}
	if user == nil {
		return Missing[[]UserActivity](ErrUserNotFound)
	}
	items, err := s.store.ListUserActivities(ctx, user.ID, q.Predicate, s.now())
	if err != nil {
		return FailWith[[]UserActivity](err)
	}
	if items == nil {
		items = []UserActivity{}
	}
	return Succeed(items)
}

// SyncProfileCommand stores the caller's profile.
type SyncProfileCommand struct {
	UserID      string
	Username    string
	DisplayName string
	Bio         string
	Image       string
}

// Validate requires the identity fields.
func (c SyncProfileCommand) Validate() error {
	if strings.TrimSpace(c.UserID) == "" || strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: user id and username required", ErrValidation)
	}
	return nil
}

// SyncProfile creates or replaces the local profile for an authenticated identity.
func (s *Service) SyncProfile(ctx context.Context, cmd SyncProfileCommand) Result[User] {
	if err := cmd.Validate(); err != nil {
		return FailWith[User](err)
	}
	user := User{
		ID:          cmd.UserID,
		Username:    cmd.Username,
		DisplayName: strings.TrimSpace(cmd.DisplayName),
		Bio:         cmd.Bio,
		Image:       cmd.Image,
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}
	if err := s.store.UpsertUser(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return Fail[User](ErrConflict, "Username already taken")
		}
		return Fail[User](ErrPersistence, "Failed to save profile")
	}
	return Succeed(user)
}
