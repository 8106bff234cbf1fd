// Package session runs at most one live window capture and hands its frames
// to consumers.
package session

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/wincap/internal/capture"
	"github.com/bryanchriswhite/wincap/internal/frame"
	"github.com/bryanchriswhite/wincap/internal/logger"
	"github.com/bryanchriswhite/wincap/internal/window"
	"github.com/rs/zerolog"
)

// captureSession is one attachment to one window. Its loop goroutine is the
// only writer of the mailbox and the only user of the stream.
type captureSession struct {
	target    window.Descriptor
	stream    capture.Stream
	frameWait time.Duration

	frameCount atomic.Uint64
	mailbox    frame.Mailbox

	stopping atomic.Bool
	ended    atomic.Bool
	done     chan struct{}

	// onEnd is called from the loop when it exits without being asked to
	onEnd func(error)

	log zerolog.Logger
}

func newCaptureSession(target window.Descriptor, stream capture.Stream, frameWait time.Duration, onEnd func(error)) *captureSession {
	return &captureSession{
		target:    target,
		stream:    stream,
		frameWait: frameWait,
		done:      make(chan struct{}),
		onEnd:     onEnd,
		log: logger.WithComponent("session").With().
			Str("title", target.Title).
			Str("class", target.Class).
			Logger(),
	}
}

func (s *captureSession) start() {
	go s.run()
}

func (s *captureSession) run() {
	var loopErr error
	defer func() {
		s.ended.Store(true)
		if err := s.stream.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close capture stream")
		}
		if loopErr != nil && s.onEnd != nil {
			s.onEnd(loopErr)
		}
		close(s.done)
	}()

	s.log.Info().Dur("frame_wait", s.frameWait).Msg("Capture loop started")

	for !s.stopping.Load() {
		raw, err := s.stream.Next(s.frameWait)
		if errors.Is(err, capture.ErrFrameTimeout) {
			if err != capture.ErrFrameTimeout {
				s.log.Debug().Err(err).Msg("Frame skipped")
			}
			continue
		}
		if err != nil {
			if s.stopping.Load() {
				break
			}
			loopErr = fmt.Errorf("capture loop ended: %w", err)
			s.log.Warn().Err(err).Uint64("frames", s.frameCount.Load()).Msg("Capture loop ended")
			return
		}

		buf, err := frame.Copy(raw.Pixels, raw.Width, raw.Height, raw.Stride)
		if err != nil {
			s.log.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}
		seq := s.frameCount.Add(1)
		s.mailbox.Publish(buf.WithMeta(seq, time.Now()))
	}

	s.log.Info().Uint64("frames", s.frameCount.Load()).Msg("Capture loop stopped")
}

// stop asks the loop to exit and waits until it has closed the stream
func (s *captureSession) stop() {
	s.stopping.Store(true)
	<-s.done
	s.mailbox.Clear()
}

// alive reports whether the loop is still producing frames
func (s *captureSession) alive() bool {
	return !s.ended.Load()
}
