//go:build windows

package capture

import (
	"fmt"

	"github.com/bryanchriswhite/wincap/internal/config"
)

// NewPlatformSource returns the capture source for this build
func NewPlatformSource(cfg config.CaptureConfig) (Source, error) {
	switch cfg.Backend {
	case "", config.BackendAuto, config.BackendWin32:
		return NewGDISource(cfg.FPS), nil
	}
	return nil, fmt.Errorf("capture backend %q is not supported on this platform", cfg.Backend)
}
