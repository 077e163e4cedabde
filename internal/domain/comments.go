package domain

import (
	"context"
	"fmt"
	"strings"
)

// PostCommentCommand appends a comment to an activity. ID and timestamp are
// always assigned by the service.
type PostCommentCommand struct {
	ActivityID string
	AuthorID   string
	Body       string
}

// Validate rejects empty bodies before any store access.
func (c PostCommentCommand) Validate() error {
	if strings.TrimSpace(c.Body) == "" {
		return fmt.Errorf("%w: comment body must not be empty", ErrValidation)
	}
	if c.ActivityID == "" || c.AuthorID == "" {
		return fmt.Errorf("%w: activity id and author id required", ErrValidation)
	}
	return nil
}

const commentFailureMessage = "Failed to add comment"

// PostComment persists a comment and returns its shaped view. Broadcasting is
// the caller's job and must only happen on success.
func (s *Service) PostComment(ctx context.Context, cmd PostCommentCommand) Result[CommentView] {
	if err := cmd.Validate(); err != nil {
		return FailWith[CommentView](err)
	}

	activity, err := s.store.GetActivity(ctx, cmd.ActivityID)
	if err != nil {
		return FailWith[CommentView](err)
	}
	if activity == nil {
		return Missing[CommentView](ErrActivityNotFound)
	}
	author, err := s.store.GetUser(ctx, cmd.AuthorID)
	if err != nil {
		return FailWith[CommentView](err)
	}
	if author == nil {
		return Missing[CommentView](ErrUserNotFound)
	}

	comment := Comment{
		ID:         s.newID(),
		ActivityID: activity.ID,
		AuthorID:   author.ID,
		Body:       strings.TrimSpace(cmd.Body),
		CreatedAt:  s.now(),
	}
	rows, err := s.store.AppendComment(ctx, comment)
	if err != nil {
		s.logger.Printf("append comment to activity %s: %v", comment.ActivityID, err)
		return Fail[CommentView](ErrPersistence, commentFailureMessage)
	}
	if rows == 0 {
		return Fail[CommentView](ErrPersistence, commentFailureMessage)
	}
	commentsPosted.Inc()

	view := toCommentView(CommentRecord{Comment: comment, Author: *author})
	if err := s.history.Append(ctx, view.ActivityID, view); err != nil {
		s.logger.Printf("history cache append for activity %s: %v", view.ActivityID, err)
	}
	return Succeed(view)
}

// CommentHistoryQuery loads an activity's comments in creation order.
type CommentHistoryQuery struct {
	ActivityID string
}

// ListComments returns the ordered history, served from the cache when warm.
func (s *Service) ListComments(ctx context.Context, q CommentHistoryQuery) Result[[]CommentView] {
	if cached, ok, err := s.history.Load(ctx, q.ActivityID); err != nil {
		s.logger.Printf("history cache load for activity %s: %v", q.ActivityID, err)
	} else if ok {
		return Succeed(cached)
	}

	activity, err := s.store.GetActivity(ctx, q.ActivityID)
	if err != nil {
		return FailWith[[]CommentView](err)
	}
	if activity == nil {
		return Missing[[]CommentView](ErrActivityNotFound)
	}
	records, err := s.store.ListComments(ctx, q.ActivityID)
	if err != nil {
		return FailWith[[]CommentView](err)
	}
	views := make([]CommentView, 0, len(records))
	for _, rec := range records {
		views = append(views, toCommentView(rec))
	}
	if err := s.history.Store(ctx, q.ActivityID, views); err != nil {
		s.logger.Printf("history cache fill for activity %s: %v", q.ActivityID, err)
	}
	return Succeed(views)
}
