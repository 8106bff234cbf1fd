package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/wincap/internal/capture"
	"github.com/bryanchriswhite/wincap/internal/config"
	"github.com/bryanchriswhite/wincap/internal/logger"
	"github.com/bryanchriswhite/wincap/internal/session"
	"github.com/bryanchriswhite/wincap/internal/window"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "wincap",
		Short: "wincap - live capture of a single window",
		Long: `wincap attaches to one visible top-level window, chosen by title and
class, and continuously captures its frames in the background.

Features:
  • List capturable windows (X11/XWayland or Win32)
  • Take single snapshots as PNG, JPEG, base64 or raw BGRA
  • Measure capture frame rate
  • REST API, status websocket and MJPEG stream
  • Persistent configuration`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/wincap/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Duration("frame-wait", 0, "max wait per frame signal, bounds stop latency (default is 100ms)")
	rootCmd.PersistentFlags().String("backend", "", "capture backend (auto, x11, win32)")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("capture.frame_wait", rootCmd.PersistentFlags().Lookup("frame-wait"))
	viper.BindPFlag("capture.backend", rootCmd.PersistentFlags().Lookup("backend"))
}

func initConfig() {
	viper.SetEnvPrefix("wincap")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file, applies flag and environment overrides
// and configures logging from the result
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := configMgr.ApplyOverrides(viper.GetViper()); err != nil {
		return nil, err
	}
	logger.Init(configMgr.Get().LogLevel, true)
	return configMgr, nil
}

// newSessionManager wires the platform window backend and capture source
// into a session manager. The returned cleanup stops any capture and closes
// the backend.
func newSessionManager(cfg *config.Config) (*session.Manager, func(), error) {
	backend, err := window.NewPlatformBackend(cfg.Capture.Backend)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open window backend: %w", err)
	}

	source, err := capture.NewPlatformSource(cfg.Capture)
	if err != nil {
		backend.Close()
		return nil, nil, fmt.Errorf("failed to create capture source: %w", err)
	}

	mgr := session.NewManager(window.NewCatalog(backend), source, cfg.Capture.FrameWait)
	cleanup := func() {
		mgr.StopCapture()
		backend.Close()
	}
	return mgr, cleanup, nil
}
