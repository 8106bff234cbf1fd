//go:build !windows

package capture

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/damage"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/wincap/internal/logger"
	"github.com/bryanchriswhite/wincap/internal/window"
)

// pumpExitWait bounds how long Close waits for the event goroutine after
// the connection is closed.
const pumpExitWait = time.Second

// X11Source captures windows using X11/XWayland. Each stream gets its own
// connection so closing it tears down every server-side resource at once.
type X11Source struct {
	// fallbackInterval paces frames when the Damage extension is missing
	fallbackInterval time.Duration
}

// NewX11Source creates a new X11 source. fps paces capture only when the
// server lacks the Damage extension.
func NewX11Source(fps int) *X11Source {
	if fps <= 0 {
		fps = 30
	}
	return &X11Source{fallbackInterval: time.Second / time.Duration(fps)}
}

// Name returns the source name
func (s *X11Source) Name() string {
	return "X11"
}

// Open attaches to the target window
func (s *X11Source) Open(target window.Descriptor) (Stream, error) {
	log := logger.WithComponent("x11-capture")

	if target.Handle == 0 || target.Handle > 0xffffffff {
		return nil, fmt.Errorf("%w: invalid X11 window id 0x%x", ErrUnavailable, target.Handle)
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to X server: %v", ErrUnavailable, err)
	}

	st := &x11Stream{
		conn:     conn,
		target:   target,
		signal:   make(chan struct{}, 1),
		gone:     make(chan struct{}),
		lost:     make(chan struct{}),
		stop:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}

	if err := st.attach(xproto.Window(target.Handle)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	go st.pump()
	if !st.damageEnabled {
		log.Warn().Msg("Damage extension not available - pacing capture with a timer")
		go st.tick(s.fallbackInterval)
	}

	// the first frame does not wait for the window to repaint
	st.notify()

	log.Info().
		Uint32("window_id", uint32(st.win)).
		Str("title", target.Title).
		Bool("composite", st.compositeEnabled).
		Bool("damage", st.damageEnabled).
		Msg("Capture attached")

	return st, nil
}

type x11Stream struct {
	conn   *xgb.Conn
	target window.Descriptor
	win    xproto.Window

	compositeEnabled bool
	redirected       bool
	damageEnabled    bool
	damage           damage.Damage

	// pixmap is only touched by the capture loop (Next) and Close
	pixmap  xproto.Pixmap
	resized atomic.Bool

	signal   chan struct{}
	gone     chan struct{}
	goneOnce sync.Once
	lost     chan struct{}
	stop     chan struct{}
	pumpDone chan struct{}

	closeOnce sync.Once
}

// attach resolves a capturable drawable, redirects it offscreen, and
// subscribes to structure and damage events.
func (s *x11Stream) attach(win xproto.Window) error {
	log := logger.WithComponent("x11-capture")

	attrs, err := xproto.GetWindowAttributes(s.conn, win).Reply()
	if err != nil {
		return fmt.Errorf("failed to get window attributes: %w", err)
	}

	// Reparenting window managers can hand us a frame or an input-only
	// wrapper; descend to something that actually has pixels.
	if attrs.Class != xproto.WindowClassInputOutput || attrs.MapState != xproto.MapStateViewable {
		log.Debug().
			Uint32("window_id", uint32(win)).
			Msg("Window not directly capturable, searching for child windows")

		child, err := findCapturableChild(s.conn, win)
		if err != nil {
			return fmt.Errorf("no capturable window found: %w", err)
		}
		win = child
	}
	s.win = win

	geom, err := xproto.GetGeometry(s.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return fmt.Errorf("failed to get window geometry: %w", err)
	}
	if err := checkDepth(int(geom.Depth)); err != nil {
		return err
	}

	if err := xproto.ChangeWindowAttributesChecked(s.conn, win, xproto.CwEventMask,
		[]uint32{xproto.EventMaskStructureNotify}).Check(); err != nil {
		return fmt.Errorf("failed to select structure events: %w", err)
	}

	if err := composite.Init(s.conn); err != nil {
		log.Warn().
			Err(err).
			Msg("Composite extension not available - capture may fail for obscured windows")
	} else {
		s.compositeEnabled = true
		if err := composite.RedirectWindowChecked(s.conn, win, composite.RedirectAutomatic).Check(); err != nil {
			log.Warn().
				Err(err).
				Uint32("window_id", uint32(win)).
				Msg("Failed to redirect window via Composite, falling back to direct capture")
		} else {
			s.redirected = true
		}
	}

	if err := s.initDamage(); err != nil {
		log.Debug().Err(err).Msg("Damage unavailable")
	}

	return nil
}

func (s *x11Stream) initDamage() error {
	if err := xfixes.Init(s.conn); err != nil {
		return fmt.Errorf("xfixes: %w", err)
	}
	if _, err := xfixes.QueryVersion(s.conn, 2, 0).Reply(); err != nil {
		return fmt.Errorf("xfixes version: %w", err)
	}
	if err := damage.Init(s.conn); err != nil {
		return fmt.Errorf("damage: %w", err)
	}
	if _, err := damage.QueryVersion(s.conn, 1, 1).Reply(); err != nil {
		return fmt.Errorf("damage version: %w", err)
	}
	id, err := damage.NewDamageId(s.conn)
	if err != nil {
		return fmt.Errorf("damage id: %w", err)
	}
	if err := damage.CreateChecked(s.conn, id, xproto.Drawable(s.win), damage.ReportLevelNonEmpty).Check(); err != nil {
		return fmt.Errorf("damage create: %w", err)
	}
	s.damage = id
	s.damageEnabled = true
	return nil
}

// pump turns X events into frame signals until the connection closes
func (s *x11Stream) pump() {
	defer close(s.pumpDone)
	log := logger.WithComponent("x11-capture")

	for {
		ev, xerr := s.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			close(s.lost)
			return
		}
		if xerr != nil {
			log.Debug().Err(xerr).Msg("X11 error event")
			continue
		}

		switch e := ev.(type) {
		case damage.NotifyEvent:
			if e.Damage != s.damage {
				continue
			}
			// acknowledge so the server reports the next change
			damage.Subtract(s.conn, s.damage, xfixes.Region(0), xfixes.Region(0))
			s.notify()
		case xproto.ConfigureNotifyEvent:
			if e.Window == s.win {
				s.resized.Store(true)
				s.notify()
			}
		case xproto.DestroyNotifyEvent:
			if e.Window == s.win {
				s.markGone()
			}
		}
	}
}

// tick paces frames when no damage notifications are available
func (s *x11Stream) tick(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.notify()
		}
	}
}

// notify coalesces frame signals; one pending signal is enough
func (s *x11Stream) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *x11Stream) markGone() {
	s.goneOnce.Do(func() { close(s.gone) })
}

// Next waits for the next damage signal and reads the window contents
func (s *x11Stream) Next(timeout time.Duration) (RawFrame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.gone:
		return RawFrame{}, ErrWindowClosed
	case <-s.lost:
		return RawFrame{}, fmt.Errorf("%w: X connection lost", ErrWindowClosed)
	case <-timer.C:
		return RawFrame{}, ErrFrameTimeout
	case <-s.signal:
	}

	return s.grab()
}

// grab reads the current window contents as BGRA
func (s *x11Stream) grab() (RawFrame, error) {
	geom, err := xproto.GetGeometry(s.conn, xproto.Drawable(s.win)).Reply()
	if err != nil {
		// the only way geometry fails for a window we hold is that it's gone
		s.markGone()
		return RawFrame{}, fmt.Errorf("%w: %v", ErrWindowClosed, err)
	}
	if geom.Width == 0 || geom.Height == 0 {
		return RawFrame{}, ErrFrameTimeout
	}

	drawable := xproto.Drawable(s.win)
	if s.redirected {
		if s.resized.Swap(false) || s.pixmap == 0 {
			s.renamePixmap()
		}
		if s.pixmap != 0 {
			drawable = xproto.Drawable(s.pixmap)
		}
	}

	reply, err := xproto.GetImage(
		s.conn,
		xproto.ImageFormatZPixmap,
		drawable,
		0, 0,
		geom.Width, geom.Height,
		0xffffffff,
	).Reply()
	if err != nil {
		// a stale pixmap after a resize race; rename on the next frame
		s.resized.Store(true)
		return RawFrame{}, fmt.Errorf("%w: failed to get image: %v", ErrFrameTimeout, err)
	}

	return imageFrame(reply.Data, int(geom.Width), int(geom.Height), int(reply.Depth))
}

// checkDepth rejects visuals that are not 32 bits per pixel in ZPixmap
func checkDepth(depth int) error {
	if depth != 24 && depth != 32 {
		return fmt.Errorf("unsupported window depth %d", depth)
	}
	return nil
}

// imageFrame turns a ZPixmap reply into an opaque BGRA frame. A reply that
// is shorter than the geometry asked for lost a race with a resize.
func imageFrame(data []byte, w, h, depth int) (RawFrame, error) {
	if err := checkDepth(depth); err != nil {
		return RawFrame{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(data) < w*h*4 {
		return RawFrame{}, fmt.Errorf("%w: short image reply: %d bytes for %dx%d", ErrFrameTimeout, len(data), w, h)
	}

	// ZPixmap at depth 24/32 is B,G,R,X; the pad byte is undefined at 24
	data = data[:w*h*4]
	if depth == 24 {
		for i := 3; i < len(data); i += 4 {
			data[i] = 0xff
		}
	}

	return RawFrame{Pixels: data, Width: w, Height: h, Stride: w * 4}, nil
}

// renamePixmap binds a fresh offscreen pixmap; the old one goes stale on resize
func (s *x11Stream) renamePixmap() {
	log := logger.WithComponent("x11-capture")

	if s.pixmap != 0 {
		xproto.FreePixmap(s.conn, s.pixmap)
		s.pixmap = 0
	}
	pixmap, err := xproto.NewPixmapId(s.conn)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to allocate pixmap id")
		return
	}
	if err := composite.NameWindowPixmapChecked(s.conn, s.win, pixmap).Check(); err != nil {
		log.Debug().Err(err).Uint32("window_id", uint32(s.win)).Msg("Failed to name window pixmap")
		return
	}
	s.pixmap = pixmap
}

// Close releases the damage object, pixmap, redirection and connection
func (s *x11Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		if s.damageEnabled {
			damage.Destroy(s.conn, s.damage)
		}
		if s.pixmap != 0 {
			xproto.FreePixmap(s.conn, s.pixmap)
			s.pixmap = 0
		}
		if s.redirected {
			composite.UnredirectWindow(s.conn, s.win, composite.RedirectAutomatic)
		}
		// round trip so the releases above reach the server before closing
		xproto.GetInputFocus(s.conn).Reply()
		s.conn.Close()

		select {
		case <-s.pumpDone:
		case <-time.After(pumpExitWait):
			logger.WithComponent("x11-capture").Warn().Msg("X11 event pump did not exit after close")
		}

		logger.WithComponent("x11-capture").Info().
			Uint32("window_id", uint32(s.win)).
			Str("title", s.target.Title).
			Msg("Capture released")
	})
	return nil
}

// findCapturableChild recursively searches for a capturable child window
func findCapturableChild(conn *xgb.Conn, parent xproto.Window) (xproto.Window, error) {
	tree, err := xproto.QueryTree(conn, parent).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to query tree: %w", err)
	}

	for _, child := range tree.Children {
		attrs, err := xproto.GetWindowAttributes(conn, child).Reply()
		if err != nil {
			continue
		}
		geom, err := xproto.GetGeometry(conn, xproto.Drawable(child)).Reply()
		if err != nil {
			continue
		}

		if attrs.Class == xproto.WindowClassInputOutput && attrs.MapState == xproto.MapStateViewable {
			if geom.Width > 10 && geom.Height > 10 {
				return child, nil
			}
		}

		if grandchild, err := findCapturableChild(conn, child); err == nil {
			return grandchild, nil
		}
	}

	return 0, fmt.Errorf("no capturable child found")
}
