// Package capture is the platform capture primitive: attach to one window
// and wait for its frames.
package capture

import (
	"errors"
	"time"

	"github.com/bryanchriswhite/wincap/internal/window"
)

var (
	// ErrFrameTimeout means no frame arrived within the wait, or this one
	// could not be read. The stream is still usable.
	ErrFrameTimeout = errors.New("no frame within wait")

	// ErrWindowClosed means the target window was destroyed.
	// The stream is dead.
	ErrWindowClosed = errors.New("target window closed")

	// ErrUnavailable means the OS refused to attach a capture to the window
	ErrUnavailable = errors.New("platform capture unavailable")
)

// RawFrame is a frame as delivered by the platform. Pixels are BGRA and
// borrowed: they are only valid until the next call to Next or Close.
type RawFrame struct {
	Pixels []byte
	Width  int
	Height int
	// Stride is the distance between rows in bytes; 0 means Width*4
	Stride int
}

// Source opens capture streams on windows
type Source interface {
	// Open attaches a capture to the window. Errors wrap ErrUnavailable.
	Open(target window.Descriptor) (Stream, error)

	// Name returns a human-readable name for this source
	Name() string
}

// Stream is one live OS capture attachment (the platform capture handle)
type Stream interface {
	// Next blocks until the platform signals a new frame or timeout elapses.
	// It returns ErrFrameTimeout on timeout and ErrWindowClosed when the
	// window is gone.
	Next(timeout time.Duration) (RawFrame, error)

	// Close releases every OS resource held by the stream. It is safe to
	// call more than once.
	Close() error
}
