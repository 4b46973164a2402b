// Package apperror defines the failure kinds raised while resolving references.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a resolution failure.
type Kind string

const (
	KindBadRequest Kind = "bad_request"
	KindNotFound   Kind = "not_found"
)

var (
	ErrBadRequest = errors.New("bad_request")
	ErrNotFound   = errors.New("not_found")
)

// Error carries a failure kind and a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is lets errors.Is match an *Error against ErrBadRequest or ErrNotFound.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.Kind == KindBadRequest
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

func BadRequest(format string, args ...any) error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the failure kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}
