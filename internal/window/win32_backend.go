//go:build windows

package window

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/bryanchriswhite/wincap/internal/logger"
	"golang.org/x/sys/windows"
)

const (
	gwlStyle        = -16
	gwlExStyle      = -20
	wsDisabled      = 0x08000000
	wsExToolWindow  = 0x00000080
	gaRoot          = 2
	dwmwaCloaked    = 14
	dwmCloakedShell = 0x2
	classNameMaxLen = 256
	enumContinue    = 1
	coreWindowClass = "Windows.UI.Core.CoreWindow"
	appFrameClass   = "ApplicationFrameWindow"
	popupHostClass  = "Xaml_WindowedPopupClass"
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	dwmapi                   = windows.NewLazySystemDLL("dwmapi.dll")
	procEnumWindows          = user32.NewProc("EnumWindows")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procGetClassNameW        = user32.NewProc("GetClassNameW")
	procIsWindowVisible      = user32.NewProc("IsWindowVisible")
	procGetShellWindow       = user32.NewProc("GetShellWindow")
	procGetAncestor          = user32.NewProc("GetAncestor")
	procGetWindowLongW       = user32.NewProc("GetWindowLongW")
	procGetWindowRect        = user32.NewProc("GetWindowRect")
	procGetWindowThreadPID   = user32.NewProc("GetWindowThreadProcessId")
	procDwmGetWindowAttr     = dwmapi.NewProc("DwmGetWindowAttribute")
)

// enumerations run one at a time; EnumWindows calls back on the calling
// thread and the callback needs somewhere to collect into.
var (
	enumMu      sync.Mutex
	enumResults []Descriptor
	enumProc    = windows.NewCallback(enumWindowsCallback)
)

type rect struct {
	Left, Top, Right, Bottom int32
}

// Win32Backend implements the Backend interface with EnumWindows
type Win32Backend struct{}

// NewWin32Backend creates a new Win32 backend
func NewWin32Backend() (*Win32Backend, error) {
	if err := procEnumWindows.Find(); err != nil {
		return nil, fmt.Errorf("failed to load user32 EnumWindows: %w", err)
	}
	return &Win32Backend{}, nil
}

// Close is a no-op; Win32 enumeration keeps no connection
func (b *Win32Backend) Close() error {
	return nil
}

// Name returns the backend name
func (b *Win32Backend) Name() string {
	return "win32"
}

// ListWindows enumerates capturable top-level windows
func (b *Win32Backend) ListWindows() ([]Descriptor, error) {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumResults = nil
	ret, _, callErr := procEnumWindows.Call(enumProc, 0)
	if ret == 0 {
		return nil, fmt.Errorf("EnumWindows failed: %w", callErr)
	}

	found := make([]Descriptor, len(enumResults))
	copy(found, enumResults)
	enumResults = nil

	logger.WithComponent("win32-backend").Debug().Int("count", len(found)).Msg("ListWindows: summary")
	return found, nil
}

func enumWindowsCallback(hwnd uintptr, _ uintptr) uintptr {
	title := windowText(hwnd)
	if title == "" {
		return enumContinue
	}
	class := className(hwnd)
	if !isCapturable(hwnd, title, class) {
		return enumContinue
	}

	d := Descriptor{
		Title:  title,
		Class:  class,
		Handle: uint64(hwnd),
	}

	var r rect
	if ok, _, _ := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&r))); ok != 0 {
		d.Geometry = Geometry{
			X:      int(r.Left),
			Y:      int(r.Top),
			Width:  int(r.Right - r.Left),
			Height: int(r.Bottom - r.Top),
		}
	}

	var pid uint32
	procGetWindowThreadPID.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	d.PID = int(pid)

	enumResults = append(enumResults, d)
	return enumContinue
}

// isCapturable mirrors what Windows shows on the taskbar/alt-tab: visible
// root windows that are neither disabled, tool windows, nor shell-cloaked
// UWP frames.
func isCapturable(hwnd uintptr, title, class string) bool {
	shell, _, _ := procGetShellWindow.Call()
	if hwnd == shell {
		return false
	}
	if visible, _, _ := procIsWindowVisible.Call(hwnd); visible == 0 {
		return false
	}
	if root, _, _ := procGetAncestor.Call(hwnd, gaRoot); root != hwnd {
		return false
	}

	style := windowLong(hwnd, gwlStyle)
	if style&wsDisabled != 0 {
		return false
	}
	exStyle := windowLong(hwnd, gwlExStyle)
	if exStyle&wsExToolWindow != 0 {
		return false
	}

	if class == coreWindowClass || class == appFrameClass {
		var cloaked uint32
		hr, _, _ := procDwmGetWindowAttr.Call(hwnd, dwmwaCloaked,
			uintptr(unsafe.Pointer(&cloaked)), unsafe.Sizeof(cloaked))
		if hr == 0 && cloaked == dwmCloakedShell {
			return false
		}
	}

	return !isKnownBlocked(title, class)
}

// isKnownBlocked filters shell surfaces that enumerate as visible windows
// but cannot be captured.
func isKnownBlocked(title, class string) bool {
	switch {
	case title == "Task View" && class == coreWindowClass:
		return true
	case title == "DesktopWindowXamlSource" && class == coreWindowClass:
		return true
	case title == "PopupHost" && class == popupHostClass:
		return true
	}
	return false
}

func windowText(hwnd uintptr) string {
	n, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}

func className(hwnd uintptr) string {
	buf := make([]uint16, classNameMaxLen)
	n, _, _ := procGetClassNameW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}

func windowLong(hwnd uintptr, index int32) uint32 {
	v, _, _ := procGetWindowLongW.Call(hwnd, uintptr(index))
	return uint32(v)
}
