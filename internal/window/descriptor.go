package window

import "fmt"

// Descriptor identifies one visible top-level window at enumeration time.
// It is a plain value, produced fresh by every enumeration and never owned
// by a capture session.
type Descriptor struct {
	Title string `json:"title"`
	Class string `json:"class"`
	// Handle is the opaque OS reference (X11 window ID or HWND)
	Handle   uint64   `json:"handle"`
	PID      int      `json:"pid,omitempty"`
	Geometry Geometry `json:"geometry"`
}

// Geometry represents window geometry
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%q [%s] 0x%x", d.Title, d.Class, d.Handle)
}
