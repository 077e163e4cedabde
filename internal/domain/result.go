package domain

import "errors"

// Outcome tags the three shapes a Result can take. NotFound is the zero
// value.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Unit is the value carried by operations that succeed without a payload.
type Unit struct{}

// Result is the envelope every core operation returns. The zero value is a
// NotFound result, so an uninitialised Result never reads as a success.
type Result[T any] struct {
	outcome Outcome
	value   T
	err     error
}

// Succeed wraps a value in a success result.
func Succeed[T any](v T) Result[T] {
	return Result[T]{outcome: OutcomeSuccess, value: v}
}

// Missing reports that the referenced resource does not exist. The cause is optional.
func Missing[T any](cause error) Result[T] {
	return Result[T]{outcome: OutcomeNotFound, err: cause}
}

// Fail returns a failure carrying a human-readable message. The message is
// wrapped around kind, which should be one of the package sentinels.
func Fail[T any](kind error, message string) Result[T] {
	if kind == nil {
		kind = ErrPersistence
	}
	return Result[T]{outcome: OutcomeFailure, err: &failure{kind: kind, message: message}}
}

// FailWith wraps an arbitrary error as a failure; its text becomes the message.
func FailWith[T any](err error) Result[T] {
	if err == nil {
		err = ErrPersistence
	}
	var f *failure
	if errors.As(err, &f) {
		return Result[T]{outcome: OutcomeFailure, err: err}
	}
	return Result[T]{outcome: OutcomeFailure, err: &failure{kind: err, message: err.Error()}}
}

// Outcome returns the tag.
func (r Result[T]) Outcome() Outcome { return r.outcome }

// Value returns the payload; ok is false unless the result is a success.
func (r Result[T]) Value() (v T, ok bool) {
	if r.outcome != OutcomeSuccess {
		return v, false
	}
	return r.value, true
}

// Err returns the underlying error for NotFound and Failure results.
func (r Result[T]) Err() error {
	if r.outcome == OutcomeNotFound && r.err == nil {
		return ErrNotFound
	}
	return r.err
}

// Message is the human-readable failure text, empty for successes.
func (r Result[T]) Message() string {
	switch r.outcome {
	case OutcomeSuccess:
		return ""
	case OutcomeNotFound:
		return r.Err().Error()
	}
	var f *failure
	if errors.As(r.err, &f) {
		return f.message
	}
	if r.err != nil {
		return r.err.Error()
	}
	return ""
}

type failure struct {
	kind    error
	message string
}

func (f *failure) Error() string { return f.message }
func (f *failure) Unwrap() error { return f.kind }
