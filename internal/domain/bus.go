package domain

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrNoHandler is returned by Send when nothing is registered for a request type.
var ErrNoHandler = errors.New("no handler registered")

// Validator is implemented by commands and queries that check their own input.
type Validator interface {
	Validate() error
}

// HandlerFunc implements one command or query.
type HandlerFunc[C, R any] func(ctx context.Context, cmd C) Result[R]

// Bus is an explicit registry from request type to handler.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]any
}

// NewBus registers every service operation on a fresh bus.
func NewBus(svc *Service) *Bus {
	b := &Bus{handlers: make(map[reflect.Type]any)}
	Handle(b, svc.CreateActivity)
	Handle(b, svc.GetActivity)
	Handle(b, svc.ToggleAttendance)
	Handle(b, svc.ListActivities)
	Handle(b, svc.PostComment)
	Handle(b, svc.ListComments)
	Handle(b, svc.ListUserActivities)
	Handle(b, svc.SyncProfile)
	return b
}

// Handle registers fn as the handler for requests of type C, replacing any
// previous registration.
func Handle[C, R any](b *Bus, fn HandlerFunc[C, R]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[reflect.Type]any)
	}
	b.handlers[reflect.TypeFor[C]()] = fn
}

// Send validates cmd and dispatches it to its registered handler.
func Send[C, R any](ctx context.Context, b *Bus, cmd C) Result[R] {
	b.mu.RLock()
	h, ok := b.handlers[reflect.TypeFor[C]()]
	b.mu.RUnlock()
	if !ok {
		return Fail[R](ErrNoHandler, fmt.Sprintf("no handler registered for %T", cmd))
	}
	fn, ok := h.(HandlerFunc[C, R])
	if !ok {
		return Fail[R](ErrNoHandler, fmt.Sprintf("handler for %T has a different result type", cmd))
	}
	if v, ok := any(cmd).(Validator); ok {
		if err := v.Validate(); err != nil {
			return FailWith[R](err)
		}
	}
	if err := ctx.Err(); err != nil {
		return FailWith[R](err)
	}
	return fn(ctx, cmd)
}
