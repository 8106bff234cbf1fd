//go:build !windows

package window

import "fmt"

// NewPlatformBackend opens the enumeration backend for this build.
// "auto" and "x11" select X11; "win32" is unavailable here.
func NewPlatformBackend(name string) (Backend, error) {
	switch name {
	case "", "auto", "x11":
		return NewX11Backend()
	}
	return nil, fmt.Errorf("window backend %q is not supported on this platform", name)
}
