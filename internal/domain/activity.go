package domain

import "time"

// AttendeeRole discriminates the relation between a user and an activity.
type AttendeeRole string

const (
	RoleHost     AttendeeRole = "host"
	RoleAttendee AttendeeRole = "attendee"
)

// Activity is a scheduled group event.
type Activity struct {
	ID          string
	Title       string
	Date        time.Time
	Description string
	Category    string
	City        string
	Venue       string
	IsCancelled bool
	CreatedAt   time.Time
}

// Attendance is the (activity, user) relation row.
type Attendance struct {
	ActivityID string
	UserID     string
	Role       AttendeeRole
	JoinedAt   time.Time
}

// User is the locally stored profile of an identity issued elsewhere.
type User struct {
	ID          string
	Username    string
	DisplayName string
	Bio         string
	Image       string
}

// Attendee pairs an attendance row with the attending user's profile.
type Attendee struct {
	Attendance
	User User
}

// ActivityRecord is an activity loaded together with its attendee set.
type ActivityRecord struct {
	Activity
	Attendees []Attendee
}

// Host returns the host attendee, if any.
func (r ActivityRecord) Host() (Attendee, bool) {
	for _, a := range r.Attendees {
		if a.Role == RoleHost {
			return a, true
		}
	}
	return Attendee{}, false
}

// Comment is an append-only discussion entry attached to an activity.
type Comment struct {
	ID         string
	ActivityID string
	AuthorID   string
	Body       string
	CreatedAt  time.Time
}

// CommentRecord is a comment joined with its author's profile.
type CommentRecord struct {
	Comment
	Author User
}

// AttendeeView is the outbound shape of an attendee.
type AttendeeView struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio,omitempty"`
	Image       string `json:"image,omitempty"`
	IsHost      bool   `json:"is_host"`
}

// ActivityView is an activity projected relative to a viewer.
type ActivityView struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Date         time.Time      `json:"date"`
	Description  string         `json:"description"`
	Category     string         `json:"category"`
	City         string         `json:"city"`
	Venue        string         `json:"venue"`
	IsCancelled  bool           `json:"is_cancelled"`
	HostUsername string         `json:"host_username"`
	IsGoing      bool           `json:"is_going"`
	IsHost       bool           `json:"is_host"`
	Attendees    []AttendeeView `json:"attendees"`
}

// CommentView is the fully shaped comment delivered to clients.
type CommentView struct {
	ID          string    `json:"id"`
	ActivityID  string    `json:"activity_id"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Image       string    `json:"image,omitempty"`
}

// UserActivity is a compact activity entry listed on a profile.
type UserActivity struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
	Date     time.Time `json:"date"`
	IsHost   bool      `json:"is_host"`
}

// UserActivityPredicate selects which of a user's activities are listed.
type UserActivityPredicate string

const (
	PredicateAll     UserActivityPredicate = ""
	PredicatePast    UserActivityPredicate = "past"
	PredicateFuture  UserActivityPredicate = "future"
	PredicateHosting UserActivityPredicate = "hosting"
)

func toActivityView(rec ActivityRecord, viewerID string) ActivityView {
	view := ActivityView{
		ID:          rec.ID,
		Title:       rec.Title,
		Date:        rec.Date,
		Description: rec.Description,
		Category:    rec.Category,
		City:        rec.City,
		Venue:       rec.Venue,
		IsCancelled: rec.IsCancelled,
		Attendees:   make([]AttendeeView, 0, len(rec.Attendees)),
	}
	for _, a := range rec.Attendees {
		isHost := a.Role == RoleHost
		if isHost {
			view.HostUsername = a.User.Username
		}
		if a.UserID == viewerID {
			view.IsGoing = true
			view.IsHost = isHost
		}
		view.Attendees = append(view.Attendees, AttendeeView{
			UserID:      a.UserID,
			Username:    a.User.Username,
			DisplayName: a.User.DisplayName,
			Bio:         a.User.Bio,
			Image:       a.User.Image,
			IsHost:      isHost,
		})
	}
	return view
}

func toCommentView(rec CommentRecord) CommentView {
	return CommentView{
		ID:          rec.ID,
		ActivityID:  rec.ActivityID,
		Body:        rec.Body,
		CreatedAt:   rec.CreatedAt,
		Username:    rec.Author.Username,
		DisplayName: rec.Author.DisplayName,
		Image:       rec.Author.Image,
	}
}
