package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TransitionKind names the branch a toggle took.
type TransitionKind string

const (
	TransitionNone         TransitionKind = ""
	TransitionCancelToggle TransitionKind = "cancel_toggle"
	TransitionLeave        TransitionKind = "leave"
	TransitionJoin         TransitionKind = "join"
)

// AttendanceSnapshot is the consistent view a toggle decision is computed from.
type AttendanceSnapshot struct {
	Activity  Activity
	Attendees []Attendance
	Actor     User
	// At stamps rows created by the transition.
	At time.Time
}

// AttendanceTransition is the write a toggle resolves to.
type AttendanceTransition struct {
	Kind TransitionKind
	// Cancelled is the new activity cancellation flag for TransitionCancelToggle.
	Cancelled bool
	// Row is the attendance row being added or removed.
	Row Attendance
}

// AttendanceDecider computes the transition for a locked snapshot.
type AttendanceDecider func(AttendanceSnapshot) AttendanceTransition

// DecideAttendance is the participation state machine. The host toggles the
// activity's cancellation flag, an attendee leaves and anyone else joins.
func DecideAttendance(snap AttendanceSnapshot) AttendanceTransition {
	var existing *Attendance
	for i := range snap.Attendees {
		if snap.Attendees[i].UserID == snap.Actor.ID {
			existing = &snap.Attendees[i]
			break
		}
	}

	switch {
	case existing != nil && existing.Role == RoleHost:
		return AttendanceTransition{Kind: TransitionCancelToggle, Cancelled: !snap.Activity.IsCancelled, Row: *existing}
	case existing != nil:
		return AttendanceTransition{Kind: TransitionLeave, Row: *existing}
	default:
		row := Attendance{ActivityID: snap.Activity.ID, UserID: snap.Actor.ID, Role: RoleAttendee, JoinedAt: snap.At}
		return AttendanceTransition{Kind: TransitionJoin, Row: row}
	}
}

// ToggleAttendanceCommand flips the acting user's participation in an activity.
type ToggleAttendanceCommand struct {
	ActivityID string
	UserID     string
}

// Validate requires both identifiers.
func (c ToggleAttendanceCommand) Validate() error {
	if c.ActivityID == "" || c.UserID == "" {
		return fmt.Errorf("%w: activity id and user id required", ErrValidation)
	}
	return nil
}

const attendanceFailureMessage = "Problem updating attendance"

// ToggleAttendance runs one participation transition. A store conflict is
// retried once against a fresh snapshot.
func (s *Service) ToggleAttendance(ctx context.Context, cmd ToggleAttendanceCommand) Result[Unit] {
	decide := func(snap AttendanceSnapshot) AttendanceTransition {
		snap.At = s.now()
		return DecideAttendance(snap)
	}

	var (
		transition AttendanceTransition
		rows       int64
		err        error
	)
	for attempt := 0; attempt < 2; attempt++ {
		transition, rows, err = s.store.ApplyAttendance(ctx, cmd.ActivityID, cmd.UserID, decide)
		if !errors.Is(err, ErrConflict) {
			break
		}
		s.logger.Printf("attendance conflict on activity %s (attempt %d)", cmd.ActivityID, attempt+1)
	}

	switch {
	case errors.Is(err, ErrActivityNotFound):
		return Missing[Unit](ErrActivityNotFound)
	case errors.Is(err, ErrUserNotFound):
		return Missing[Unit](ErrUserNotFound)
	case errors.Is(err, ErrConflict):
		return Fail[Unit](ErrConflict, attendanceFailureMessage)
	case err != nil:
		s.logger.Printf("toggle attendance on activity %s: %v", cmd.ActivityID, err)
		return Fail[Unit](ErrPersistence, attendanceFailureMessage)
	case rows == 0:
		return Fail[Unit](ErrPersistence, attendanceFailureMessage)
	}

	attendanceTransitions.WithLabelValues(string(transition.Kind)).Inc()
	return Succeed(Unit{})
}
