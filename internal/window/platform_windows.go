//go:build windows

package window

import "fmt"

// NewPlatformBackend opens the enumeration backend for this build.
// "auto" and "win32" select Win32; "x11" is unavailable here.
func NewPlatformBackend(name string) (Backend, error) {
	switch name {
	case "", "auto", "win32":
		return NewWin32Backend()
	}
	return nil, fmt.Errorf("window backend %q is not supported on this platform", name)
}
