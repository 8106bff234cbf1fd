package session

import (
	"errors"
	"fmt"
)

var (
	// ErrWindowNotFound means no visible window matched the request
	ErrWindowNotFound = errors.New("WindowNotFound")

	// ErrAlreadyCapturing means a session is already running
	ErrAlreadyCapturing = errors.New("AlreadyCapturing")

	// ErrPlatformCaptureUnavailable means the OS refused to attach a capture
	ErrPlatformCaptureUnavailable = errors.New("PlatformCaptureUnavailable")
)

// Error is a failed start. Kind is one of the package sentinels and Err, when
// set, is the underlying platform error.
type Error struct {
	Kind  error
	Title string
	Class string
	Err   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrWindowNotFound:
		return fmt.Sprintf("%v: no visible window matches title=%q class=%q", e.Kind, e.Title, e.Class)
	case ErrAlreadyCapturing:
		return fmt.Sprintf("%v: a capture session is already running", e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

// Is matches the error kind
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}
