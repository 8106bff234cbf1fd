//go:build windows

package capture

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/bryanchriswhite/wincap/internal/logger"
	"github.com/bryanchriswhite/wincap/internal/window"
	"golang.org/x/sys/windows"
)

// Win32 constants
const (
	pwRenderFullContent = 0x00000002
	dibRGBColors        = 0
	biRGB               = 0
)

var (
	user32                 = windows.NewLazySystemDLL("user32.dll")
	gdi32                  = windows.NewLazySystemDLL("gdi32.dll")
	procIsWindow           = user32.NewProc("IsWindow")
	procIsWindowVisible    = user32.NewProc("IsWindowVisible")
	procIsIconic           = user32.NewProc("IsIconic")
	procGetWindowRect      = user32.NewProc("GetWindowRect")
	procPrintWindow        = user32.NewProc("PrintWindow")
	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procDeleteDC           = gdi32.NewProc("DeleteDC")
	procSelectObject       = gdi32.NewProc("SelectObject")
	procCreateDIBSection   = gdi32.NewProc("CreateDIBSection")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
)

type winRect struct {
	Left, Top, Right, Bottom int32
}

// BITMAPINFO structures (Win32 layout).
type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	_      [4]byte // one RGBQUAD placeholder (unused for 32-bit)
}

// GDISource captures windows with PrintWindow into a DIB section. GDI has no
// frame-arrival notification, so frames are paced by a ticker.
type GDISource struct {
	interval time.Duration
}

// NewGDISource creates a GDI source producing at most fps frames per second
func NewGDISource(fps int) *GDISource {
	if fps <= 0 {
		fps = 30
	}
	return &GDISource{interval: time.Second / time.Duration(fps)}
}

// Name returns the source name
func (s *GDISource) Name() string {
	return "GDI"
}

// Open attaches to the target window
func (s *GDISource) Open(target window.Descriptor) (Stream, error) {
	hwnd := uintptr(target.Handle)
	if ok, _, _ := procIsWindow.Call(hwnd); ok == 0 {
		return nil, fmt.Errorf("%w: window 0x%x no longer exists", ErrUnavailable, target.Handle)
	}
	if visible, _, _ := procIsWindowVisible.Call(hwnd); visible == 0 {
		return nil, fmt.Errorf("%w: window not visible", ErrUnavailable)
	}

	memDC, _, callErr := procCreateCompatibleDC.Call(0)
	if memDC == 0 {
		return nil, fmt.Errorf("%w: CreateCompatibleDC failed: %v", ErrUnavailable, callErr)
	}

	st := &gdiStream{
		hwnd:   hwnd,
		title:  target.Title,
		memDC:  memDC,
		ticker: time.NewTicker(s.interval),
		first:  true,
	}

	logger.WithComponent("gdi-capture").Info().
		Uint64("hwnd", target.Handle).
		Str("title", target.Title).
		Dur("interval", s.interval).
		Msg("Capture attached")

	return st, nil
}

type gdiStream struct {
	hwnd   uintptr
	title  string
	memDC  uintptr
	ticker *time.Ticker
	first  bool

	// current DIB section, recreated when the window size changes
	bmp    uintptr
	oldBmp uintptr
	bits   unsafe.Pointer
	width  int
	height int

	closeOnce sync.Once
}

// Next waits for the next tick and renders the window
func (s *gdiStream) Next(timeout time.Duration) (RawFrame, error) {
	if s.first {
		s.first = false
		return s.grab()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ticker.C:
		return s.grab()
	case <-timer.C:
		if ok, _, _ := procIsWindow.Call(s.hwnd); ok == 0 {
			return RawFrame{}, ErrWindowClosed
		}
		return RawFrame{}, ErrFrameTimeout
	}
}

func (s *gdiStream) grab() (RawFrame, error) {
	if ok, _, _ := procIsWindow.Call(s.hwnd); ok == 0 {
		return RawFrame{}, ErrWindowClosed
	}
	// minimized windows render nothing useful; treat as no new frame
	if iconic, _, _ := procIsIconic.Call(s.hwnd); iconic != 0 {
		return RawFrame{}, ErrFrameTimeout
	}

	var r winRect
	if ok, _, callErr := procGetWindowRect.Call(s.hwnd, uintptr(unsafe.Pointer(&r))); ok == 0 {
		return RawFrame{}, fmt.Errorf("%w: GetWindowRect failed: %v", ErrFrameTimeout, callErr)
	}
	w, h := int(r.Right-r.Left), int(r.Bottom-r.Top)
	if w <= 0 || h <= 0 {
		return RawFrame{}, ErrFrameTimeout
	}

	if w != s.width || h != s.height || s.bmp == 0 {
		// GDI allocation can fail transiently under memory pressure
		if err := s.resize(w, h); err != nil {
			return RawFrame{}, fmt.Errorf("%w: %v", ErrFrameTimeout, err)
		}
	}

	if ok, _, callErr := procPrintWindow.Call(s.hwnd, s.memDC, pwRenderFullContent); ok == 0 {
		return RawFrame{}, fmt.Errorf("%w: PrintWindow failed: %v", ErrFrameTimeout, callErr)
	}

	n := w * h * 4
	data := unsafe.Slice((*byte)(s.bits), n)
	// DIB alpha is undefined after PrintWindow
	for i := 3; i < n; i += 4 {
		data[i] = 0xff
	}

	return RawFrame{Pixels: data, Width: w, Height: h, Stride: w * 4}, nil
}

// resize replaces the DIB section with a top-down 32-bit one of w x h
func (s *gdiStream) resize(w, h int) error {
	s.releaseBitmap()

	var bi bitmapInfo
	bi.Header.BiSize = uint32(unsafe.Sizeof(bi.Header))
	bi.Header.BiWidth = int32(w)
	bi.Header.BiHeight = -int32(h) // top-down
	bi.Header.BiPlanes = 1
	bi.Header.BiBitCount = 32
	bi.Header.BiCompression = biRGB
	bi.Header.BiSizeImage = uint32(w * h * 4)

	var bits unsafe.Pointer
	bmp, _, callErr := procCreateDIBSection.Call(s.memDC, uintptr(unsafe.Pointer(&bi)), dibRGBColors, uintptr(unsafe.Pointer(&bits)), 0, 0)
	if bmp == 0 {
		return fmt.Errorf("CreateDIBSection failed: %v", callErr)
	}
	old, _, _ := procSelectObject.Call(s.memDC, bmp)
	if old == 0 || old == ^uintptr(0) {
		procDeleteObject.Call(bmp)
		return fmt.Errorf("SelectObject failed")
	}

	s.bmp, s.oldBmp, s.bits = bmp, old, bits
	s.width, s.height = w, h
	return nil
}

func (s *gdiStream) releaseBitmap() {
	if s.bmp == 0 {
		return
	}
	procSelectObject.Call(s.memDC, s.oldBmp)
	procDeleteObject.Call(s.bmp)
	s.bmp, s.oldBmp, s.bits = 0, 0, nil
	s.width, s.height = 0, 0
}

// Close releases the DIB section and memory DC
func (s *gdiStream) Close() error {
	s.closeOnce.Do(func() {
		s.ticker.Stop()
		s.releaseBitmap()
		procDeleteDC.Call(s.memDC)
		logger.WithComponent("gdi-capture").Info().
			Str("title", s.title).
			Msg("Capture released")
	})
	return nil
}
