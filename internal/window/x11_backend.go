//go:build !windows

package window

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/wincap/internal/logger"
)

// X11Backend implements the Backend interface using X11
type X11Backend struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo

	atomMu sync.Mutex
	atoms  map[string]xproto.Atom
}

// NewX11Backend creates a new X11 backend
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	return &X11Backend{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
		atoms:  make(map[string]xproto.Atom),
	}, nil
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.conn.Close()
	return nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// ListWindows returns all visible windows using EWMH _NET_CLIENT_LIST with QueryTree fallback
func (b *X11Backend) ListWindows() ([]Descriptor, error) {
	log := logger.WithComponent("x11-backend")

	ids, err := b.clientList()
	if err != nil || len(ids) == 0 {
		if err != nil {
			log.Debug().Err(err).Msg("ListWindows: EWMH failed, falling back to QueryTree")
		} else {
			log.Debug().Msg("ListWindows: EWMH returned empty, falling back to QueryTree")
		}
		tree, err := xproto.QueryTree(b.conn, b.root).Reply()
		if err != nil {
			return nil, fmt.Errorf("failed to query root window tree: %w", err)
		}
		ids = tree.Children
	}

	windows := make([]Descriptor, 0, len(ids))
	skipped := 0
	for _, win := range ids {
		if !b.isVisible(win) {
			skipped++
			continue
		}
		windows = append(windows, b.describe(win))
	}

	log.Debug().
		Int("found", len(windows)).
		Int("skipped_hidden", skipped).
		Msg("ListWindows: summary")

	return windows, nil
}

// clientList reads _NET_CLIENT_LIST from the root window
func (b *X11Backend) clientList() ([]xproto.Window, error) {
	atom, err := b.getAtom("_NET_CLIENT_LIST")
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST atom: %w", err)
	}

	reply, err := xproto.GetProperty(b.conn, false, b.root, atom,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST property: %w", err)
	}

	values := cardinals(reply.Value)
	ids := make([]xproto.Window, len(values))
	for i, v := range values {
		ids[i] = xproto.Window(v)
	}
	return ids, nil
}

// isVisible follows the X11 notion of "shown to the user": mapped and
// viewable, and not iconified (_NET_WM_STATE_HIDDEN).
func (b *X11Backend) isVisible(win xproto.Window) bool {
	attrs, err := xproto.GetWindowAttributes(b.conn, win).Reply()
	if err != nil {
		return false
	}
	if attrs.MapState != xproto.MapStateViewable || attrs.Class != xproto.WindowClassInputOutput {
		return false
	}

	stateAtom, err := b.getAtom("_NET_WM_STATE")
	if err != nil {
		return true
	}
	hiddenAtom, err := b.getAtom("_NET_WM_STATE_HIDDEN")
	if err != nil {
		return true
	}
	reply, err := xproto.GetProperty(b.conn, false, win, stateAtom,
		xproto.AtomAtom, 0, 64).Reply()
	if err != nil {
		return true
	}
	for _, s := range cardinals(reply.Value) {
		if xproto.Atom(s) == hiddenAtom {
			return false
		}
	}
	return true
}

// describe collects title, class, pid and geometry for a window
func (b *X11Backend) describe(win xproto.Window) Descriptor {
	d := Descriptor{Handle: uint64(win)}

	if geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(win)).Reply(); err == nil {
		d.Geometry = Geometry{
			X:      int(geom.X),
			Y:      int(geom.Y),
			Width:  int(geom.Width),
			Height: int(geom.Height),
		}
	}

	if title, err := b.getStringProperty(win, "_NET_WM_NAME"); err == nil {
		d.Title = title
	}
	if d.Title == "" {
		if title, err := b.getStringProperty(win, "WM_NAME"); err == nil {
			d.Title = title
		}
	}

	if raw, err := b.getStringProperty(win, "WM_CLASS"); err == nil {
		d.Class = parseWMClass(raw)
	}

	if pidAtom, err := b.getAtom("_NET_WM_PID"); err == nil {
		reply, err := xproto.GetProperty(b.conn, false, win, pidAtom,
			xproto.AtomCardinal, 0, 1).Reply()
		if err == nil {
			if v := cardinals(reply.Value); len(v) > 0 {
				d.PID = int(v[0])
			}
		}
	}

	return d
}

// getAtom interns name, caching the result
func (b *X11Backend) getAtom(name string) (xproto.Atom, error) {
	b.atomMu.Lock()
	defer b.atomMu.Unlock()

	if atom, ok := b.atoms[name]; ok {
		return atom, nil
	}
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	b.atoms[name] = reply.Atom
	return reply.Atom, nil
}

// getStringProperty reads a named property as a string
func (b *X11Backend) getStringProperty(win xproto.Window, name string) (string, error) {
	atom, err := b.getAtom(name)
	if err != nil {
		return "", err
	}
	reply, err := xproto.GetProperty(b.conn, false, win, atom,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property %s", name)
	}
	return string(reply.Value), nil
}

// parseWMClass returns the class part of WM_CLASS ("instance\0class\0"),
// falling back to the instance name.
func parseWMClass(raw string) string {
	parts := strings.Split(raw, "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	if len(parts) >= 1 {
		return parts[0]
	}
	return ""
}

// cardinals decodes a format-32 property value
func cardinals(value []byte) []uint32 {
	out := make([]uint32, 0, len(value)/4)
	for i := 0; i+4 <= len(value); i += 4 {
		out = append(out, xgb.Get32(value[i:]))
	}
	return out
}
