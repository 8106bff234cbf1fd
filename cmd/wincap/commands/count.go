package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var countCmd = &cobra.Command{
	Use:   "count TITLE CLASS",
	Short: "Count frames captured from a window",
	Long: `Capture the window matching TITLE and CLASS for a fixed duration and
report how many frames arrived. Windows that do not redraw produce few or
no frames.`,
	Example: `  # Count frames over three seconds (default)
  wincap count Terminal xterm

  # Count over ten seconds
  wincap count "Untitled - Notepad" Notepad --duration 10s`,
	Args: cobra.ExactArgs(2),
	RunE: runCount,
}

var countDuration time.Duration

func init() {
	rootCmd.AddCommand(countCmd)

	countCmd.Flags().DurationVarP(&countDuration, "duration", "d", 3*time.Second, "how long to capture")
}

func runCount(cmd *cobra.Command, args []string) error {
	title, class := args[0], args[1]
	if countDuration <= 0 {
		return fmt.Errorf("duration must be positive")
	}

	configMgr, err := loadConfig()
	if err != nil {
		return err
	}

	mgr, cleanup, err := newSessionManager(configMgr.Get())
	if err != nil {
		return err
	}
	defer cleanup()

	if err := mgr.Start(title, class); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	start := time.Now()
	select {
	case <-time.After(countDuration):
	case <-sigChan:
	}
	elapsed := time.Since(start)

	frames := mgr.GetFrameCount()
	capturing := mgr.IsCapturing()
	mgr.StopCapture()

	fmt.Printf("Frames:  %d\n", frames)
	fmt.Printf("Elapsed: %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("FPS:     %.2f\n", float64(frames)/elapsed.Seconds())
	if !capturing {
		fmt.Printf("Capture ended early: %s\n", mgr.GetLastError())
	}
	return nil
}
