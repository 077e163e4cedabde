package chat

import (
	"context"
	"errors"
	"io"
	"log"

	"example.com/gatherings/internal/domain"
)

// ErrJoinFailed is returned when the join snapshot cannot be delivered.
var ErrJoinFailed = errors.New("join failed")

// SendComment is the client payload of a SendComment frame.
type SendComment struct {
	ActivityID string `json:"activityId"`
	Body       string `json:"body"`
}

// ErrorPayload is the payload of an Error frame.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Service joins subscribers to rooms and fans out posted comments.
type Service struct {
	bus    *domain.Bus
	hub    *Hub
	logger *log.Logger
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs a Service over the command bus and hub.
func NewService(bus *domain.Bus, hub *Hub, opts ...Option) *Service {
	s := &Service{bus: bus, hub: hub, logger: log.New(io.Discard, "", 0)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub exposes the room registry.
func (s *Service) Hub() *Hub { return s.hub }

// Join adds sub to the activity's room and then delivers the ordered history
// to sub alone. Live comments broadcast in between are held by the
// subscriber until the snapshot is primed.
func (s *Service) Join(ctx context.Context, activityID string, sub Subscriber) domain.Result[[]domain.CommentView] {
	s.hub.Join(activityID, sub)

	res := domain.Send[domain.CommentHistoryQuery, []domain.CommentView](ctx, s.bus, domain.CommentHistoryQuery{ActivityID: activityID})
	history, ok := res.Value()
	if !ok {
		s.hub.Leave(activityID, sub)
		return res
	}

	frame, err := NewFrame(FrameLoadComments, history)
	if err != nil {
		s.hub.Leave(activityID, sub)
		return domain.FailWith[[]domain.CommentView](err)
	}
	seen := make(map[string]struct{}, len(history))
	for _, c := range history {
		seen[c.ID] = struct{}{}
	}
	if !sub.Prime(frame, seen) {
		s.hub.LeaveAll(sub)
		return domain.FailWith[[]domain.CommentView](ErrJoinFailed)
	}
	return res
}

// Send persists a comment authored by authorID and, only once it is stored,
// broadcasts it to the activity's room.
func (s *Service) Send(ctx context.Context, authorID string, msg SendComment) domain.Result[domain.CommentView] {
	res := domain.Send[domain.PostCommentCommand, domain.CommentView](ctx, s.bus, domain.PostCommentCommand{
		ActivityID: msg.ActivityID,
		AuthorID:   authorID,
		Body:       msg.Body,
	})
	view, ok := res.Value()
	if !ok {
		return res
	}

	frame, err := NewFrame(FrameReceiveComment, view)
	if err != nil {
		s.logger.Printf("encode comment %s: %v", view.ID, err)
		return res
	}
	frame.commentID = view.ID
	s.hub.Broadcast(view.ActivityID, frame)
	return res
}

// Disconnect removes sub from every room.
func (s *Service) Disconnect(sub Subscriber) {
	s.hub.LeaveAll(sub)
}

func errorFrame(message string) Frame {
	frame, _ := NewFrame(FrameError, ErrorPayload{Message: message})
	return frame
}
