package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/wincap/internal/api"
	"github.com/bryanchriswhite/wincap/internal/config"
	"github.com/bryanchriswhite/wincap/internal/logger"
	"github.com/bryanchriswhite/wincap/internal/output"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the wincap server",
	Long: `Start the wincap HTTP server.

The server exposes the capture session over a REST API: list windows, start
and stop a capture, fetch the latest frame, follow the session status over a
websocket, and watch the capture live as an MJPEG stream at /stream.`,
	Example: `  # Start server on default port (8080)
  wincap serve

  # Start server on custom port
  wincap serve --port 9090

  # Start with specific config file
  wincap serve --config /path/to/config.yaml

  # Start with debug logging
  wincap serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("wincap - live window capture")
	fmt.Println("============================")

	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("serve")

	log.Info().
		Str("path", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Str("backend", cfg.Capture.Backend).
		Dur("frame_wait", cfg.Capture.FrameWait).
		Msg("Configuration loaded")

	// Log level follows edits to the config file
	configMgr.Watch(func(c *config.Config) {
		logger.SetLevel(c.LogLevel)
	})

	mgr, cleanup, err := newSessionManager(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	fps := cfg.Capture.FPS
	if fps <= 0 {
		fps = 30
	}
	stream := output.NewMJPEGStream(cfg.Output.JPEGQuality, cfg.Output.MaxWidth)
	go stream.Run(ctx, mgr, time.Second/time.Duration(fps))

	server := api.NewServer(mgr, configMgr, stream)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(cfg.ServerPort)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	fmt.Println()
	log.Info().Msg("wincap is running")
	log.Info().Msgf("   - API: http://localhost:%d/api", cfg.ServerPort)
	log.Info().Msgf("   - Stream: http://localhost:%d/stream", cfg.ServerPort)
	log.Info().Msg("   - Press Ctrl+C to stop")
	fmt.Println()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-sigChan:
	}

	fmt.Println()
	log.Info().Msg("Shutting down gracefully...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown error")
	}
	return nil
}
