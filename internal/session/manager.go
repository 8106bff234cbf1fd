package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/wincap/internal/capture"
	"github.com/bryanchriswhite/wincap/internal/frame"
	"github.com/bryanchriswhite/wincap/internal/logger"
	"github.com/bryanchriswhite/wincap/internal/window"
)

const (
	// DefaultFrameWait bounds each wait for a frame signal, and so how long
	// StopCapture can take.
	DefaultFrameWait = 100 * time.Millisecond

	waitFramePoll = 10 * time.Millisecond
)

// ErrNotCapturing is returned by WaitFrame when no session is running
var ErrNotCapturing = errors.New("not capturing")

// Status is a point-in-time view of the manager for the API and CLI
type Status struct {
	State      string             `json:"state"`
	Capturing  bool               `json:"capturing"`
	FrameCount uint64             `json:"frame_count"`
	LastError  string             `json:"last_error"`
	Target     *window.Descriptor `json:"target,omitempty"`
	Source     string             `json:"source"`
}

// Manager owns at most one capture session.
//
// StartCapture and StopCapture serialize on a lifecycle lock. GetFrame,
// IsCapturing and GetFrameCount never take it: they read the current
// session through an atomic pointer, and frames move through the session's
// lock-free mailbox.
type Manager struct {
	catalog   *window.Catalog
	source    capture.Source
	frameWait time.Duration

	mu      sync.Mutex
	state   atomic.Int32
	current atomic.Pointer[captureSession]

	errMu     sync.RWMutex
	lastError string
}

// NewManager creates a manager resolving windows through catalog and
// attaching with source. frameWait <= 0 selects DefaultFrameWait.
func NewManager(catalog *window.Catalog, source capture.Source, frameWait time.Duration) *Manager {
	if frameWait <= 0 {
		frameWait = DefaultFrameWait
	}
	return &Manager{
		catalog:   catalog,
		source:    source,
		frameWait: frameWait,
	}
}

// EnumerateWindows lists the windows that can be captured right now
func (m *Manager) EnumerateWindows() []window.Descriptor {
	return m.catalog.Enumerate()
}

// StartCapture starts capturing the window matching title and class. On
// failure it returns false and the reason is available from GetLastError.
func (m *Manager) StartCapture(title, class string) bool {
	return m.Start(title, class) == nil
}

// Start is StartCapture returning the failure as an *Error
func (m *Manager) Start(title, class string) error {
	log := logger.WithComponent("session")

	m.mu.Lock()
	defer m.mu.Unlock()

	m.reap()
	m.setError("")

	if cur := m.current.Load(); cur != nil {
		err := &Error{Kind: ErrAlreadyCapturing, Title: title, Class: class}
		m.setError(err.Error())
		log.Warn().Str("title", title).Str("running", cur.target.Title).Msg("Capture already running")
		return err
	}

	m.state.Store(int32(Starting))

	target, ok := m.catalog.Resolve(title, class)
	if !ok {
		return m.fail(&Error{Kind: ErrWindowNotFound, Title: title, Class: class})
	}

	stream, err := m.source.Open(target)
	if err != nil {
		return m.fail(&Error{Kind: ErrPlatformCaptureUnavailable, Title: title, Class: class, Err: err})
	}

	s := newCaptureSession(target, stream, m.frameWait, m.loopEnded)
	m.current.Store(s)
	m.state.Store(int32(Running))
	s.start()

	log.Info().
		Str("window", target.String()).
		Str("source", m.source.Name()).
		Msg("Capture started")
	return nil
}

// fail records a failed start. The manager passes through Failed and
// settles in Idle holding no resources.
func (m *Manager) fail(err *Error) error {
	m.state.Store(int32(Failed))
	m.setError(err.Error())
	logger.WithComponent("session").Warn().Err(err).Msg("Capture start failed")
	m.state.Store(int32(Idle))
	return err
}

// reap discards a session whose loop ended on its own. Called with mu held.
func (m *Manager) reap() {
	cur := m.current.Load()
	if cur == nil || cur.alive() {
		return
	}
	<-cur.done
	m.current.Store(nil)
	m.state.Store(int32(Idle))
}

func (m *Manager) loopEnded(err error) {
	m.setError(err.Error())
}

// StopCapture ends the session and returns once its capture goroutine has
// exited and released the window. Calling it while idle does nothing.
func (m *Manager) StopCapture() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current.Load()
	if cur == nil {
		m.state.Store(int32(Idle))
		return
	}

	m.state.Store(int32(Stopping))
	cur.stop()
	m.current.Store(nil)
	m.state.Store(int32(Idle))

	logger.WithComponent("session").Info().
		Str("title", cur.target.Title).
		Uint64("frames", cur.frameCount.Load()).
		Msg("Capture stopped")
}

// GetFrame takes the most recent unconsumed frame. It never blocks and
// returns false when idle or when no new frame has arrived. Each frame is
// delivered once; the caller owns it.
func (m *Manager) GetFrame() (*frame.Buffer, bool) {
	cur := m.running()
	if cur == nil {
		return nil, false
	}
	b := cur.mailbox.Take()
	return b, b != nil
}

// WaitFrame polls GetFrame until a frame arrives or ctx ends
func (m *Manager) WaitFrame(ctx context.Context) (*frame.Buffer, error) {
	ticker := time.NewTicker(waitFramePoll)
	defer ticker.Stop()

	for {
		if b, ok := m.GetFrame(); ok {
			return b, nil
		}
		if !m.IsCapturing() {
			return nil, ErrNotCapturing
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// IsCapturing reports whether a session is running. A session whose
// window went away is not.
func (m *Manager) IsCapturing() bool {
	return m.running() != nil
}

// GetFrameCount returns the number of frames the running session has
// produced, or 0 when idle.
func (m *Manager) GetFrameCount() uint64 {
	cur := m.running()
	if cur == nil {
		return 0
	}
	return cur.frameCount.Load()
}

// GetLastError returns the most recent error text, or "" if the last start
// succeeded and nothing has failed since.
func (m *Manager) GetLastError() string {
	m.errMu.RLock()
	defer m.errMu.RUnlock()
	return m.lastError
}

// State returns the lifecycle state
func (m *Manager) State() State {
	s := State(m.state.Load())
	if s == Running && m.running() == nil {
		return Idle
	}
	return s
}

// Target returns the window being captured
func (m *Manager) Target() (window.Descriptor, bool) {
	cur := m.running()
	if cur == nil {
		return window.Descriptor{}, false
	}
	return cur.target, true
}

// Status returns a snapshot of the manager
func (m *Manager) Status() Status {
	st := Status{
		State:     m.State().String(),
		LastError: m.GetLastError(),
		Source:    m.source.Name(),
	}
	if cur := m.running(); cur != nil {
		target := cur.target
		st.Capturing = true
		st.FrameCount = cur.frameCount.Load()
		st.Target = &target
	}
	return st
}

func (m *Manager) running() *captureSession {
	cur := m.current.Load()
	if cur == nil || !cur.alive() {
		return nil
	}
	return cur
}

func (m *Manager) setError(msg string) {
	m.errMu.Lock()
	m.lastError = msg
	m.errMu.Unlock()
}
