package window

// Backend is the window-system enumeration primitive (X11, Win32)
type Backend interface {
	// ListWindows returns the currently visible top-level windows
	ListWindows() ([]Descriptor, error)

	// Close releases the connection to the window system
	Close() error

	// Name returns the backend name (e.g., "x11", "win32")
	Name() string
}
