package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wincap", "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	m := newTestManager(t)

	if _, err := os.Stat(m.GetConfigPath()); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	cfg := m.Get()
	if cfg.ServerPort != 8080 || cfg.Capture.FrameWait != 100*time.Millisecond || cfg.Capture.Backend != BackendAuto {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "server_port: 9090\ncapture:\n  frame_wait: 250ms\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := m.Get()
	if cfg.ServerPort != 9090 {
		t.Errorf("ServerPort = %d, want 9090", cfg.ServerPort)
	}
	if cfg.Capture.FrameWait != 250*time.Millisecond {
		t.Errorf("FrameWait = %v, want 250ms", cfg.Capture.FrameWait)
	}
	if cfg.Capture.FPS != 30 || cfg.Output.JPEGQuality != 90 || cfg.LogLevel != "info" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestSetAndValue(t *testing.T) {
	tests := []struct {
		key, value, want string
		wantErr          bool
	}{
		{key: "server_port", value: "9000", want: "9000"},
		{key: "server_port", value: "70000", wantErr: true},
		{key: "server_port", value: "abc", wantErr: true},
		{key: "log_level", value: "DEBUG", want: "debug"},
		{key: "log_level", value: "loud", wantErr: true},
		{key: "capture.backend", value: "x11", want: "x11"},
		{key: "capture.backend", value: "wayland", wantErr: true},
		{key: "capture.frame_wait", value: "50ms", want: "50ms"},
		{key: "capture.frame_wait", value: "-1s", wantErr: true},
		{key: "capture.fps", value: "60", want: "60"},
		{key: "capture.snapshot_timeout", value: "2s", want: "2s"},
		{key: "output.jpeg_quality", value: "75", want: "75"},
		{key: "output.jpeg_quality", value: "101", wantErr: true},
		{key: "output.max_width", value: "0", want: "0"},
		{key: "nope", value: "1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			m := newTestManager(t)
			err := m.Set(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Set(%q, %q) succeeded, want error", tt.key, tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := m.Value(tt.key)
			if err != nil {
				t.Fatalf("Value: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Value(%q) = %q, want %q", tt.key, got, tt.want)
			}

			// persisted
			reloaded, err := NewManager(m.GetConfigPath())
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if again, _ := reloaded.Value(tt.key); again != tt.want {
				t.Fatalf("persisted %q = %q, want %q", tt.key, again, tt.want)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	m := newTestManager(t)

	v := viper.New()
	v.Set("server_port", 9191)
	v.Set("capture.frame_wait", "20ms")
	v.Set("log_level", "")

	if err := m.ApplyOverrides(v); err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}
	cfg := m.Get()
	if cfg.ServerPort != 9191 {
		t.Errorf("ServerPort = %d, want 9191", cfg.ServerPort)
	}
	if cfg.Capture.FrameWait != 20*time.Millisecond {
		t.Errorf("FrameWait = %v, want 20ms", cfg.Capture.FrameWait)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("empty override changed LogLevel to %q", cfg.LogLevel)
	}

	// overrides are not persisted
	reloaded, err := NewManager(m.GetConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Get().ServerPort != 8080 {
		t.Errorf("override was written to disk")
	}
}

func TestApplyOverridesRejectsBadValue(t *testing.T) {
	m := newTestManager(t)
	v := viper.New()
	v.Set("capture.backend", "bogus")
	if err := m.ApplyOverrides(v); err == nil {
		t.Fatal("expected error for bad backend override")
	}
}

func TestOverridesSurviveReload(t *testing.T) {
	m := newTestManager(t)

	v := viper.New()
	v.Set("log_level", "debug")
	if err := m.ApplyOverrides(v); err != nil {
		t.Fatal(err)
	}

	data := "server_port: 7070\nlog_level: warn\n"
	if err := os.WriteFile(m.GetConfigPath(), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	cfg := m.Get()
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q after reload, want override debug", cfg.LogLevel)
	}
	if cfg.ServerPort != 7070 {
		t.Errorf("ServerPort = %d, want file value 7070", cfg.ServerPort)
	}
}

func TestUpdateDoesNotPersistOverrides(t *testing.T) {
	m := newTestManager(t)

	v := viper.New()
	v.Set("server_port", 9090)
	if err := m.ApplyOverrides(v); err != nil {
		t.Fatal(err)
	}

	cfg := m.Get()
	cfg.Output.JPEGQuality = 70
	if err := m.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := m.Get(); got.ServerPort != 9090 || got.Output.JPEGQuality != 70 {
		t.Fatalf("effective config = %+v", got)
	}

	onDisk, err := NewManager(m.GetConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	if got := onDisk.Get(); got.ServerPort != 8080 || got.Output.JPEGQuality != 70 {
		t.Fatalf("file config = %+v, want port 8080 and quality 70", got)
	}
}

func TestUpdateChangingOverriddenKeyWritesFile(t *testing.T) {
	m := newTestManager(t)

	v := viper.New()
	v.Set("server_port", 9090)
	if err := m.ApplyOverrides(v); err != nil {
		t.Fatal(err)
	}

	cfg := m.Get()
	cfg.ServerPort = 9500
	if err := m.Update(cfg); err != nil {
		t.Fatal(err)
	}
	if m.Get().ServerPort != 9090 {
		t.Errorf("override lost after Update")
	}
	onDisk, err := NewManager(m.GetConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	if onDisk.Get().ServerPort != 9500 {
		t.Errorf("file port = %d, want 9500", onDisk.Get().ServerPort)
	}
}

func TestSetKeepsOverrideAndWritesFile(t *testing.T) {
	m := newTestManager(t)

	v := viper.New()
	v.Set("capture.frame_wait", "20ms")
	if err := m.ApplyOverrides(v); err != nil {
		t.Fatal(err)
	}
	if err := m.Set("capture.frame_wait", "300ms"); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Value("capture.frame_wait"); got != "20ms" {
		t.Errorf("effective frame_wait = %s, want 20ms", got)
	}
	onDisk, err := NewManager(m.GetConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := onDisk.Value("capture.frame_wait"); got != "300ms" {
		t.Errorf("file frame_wait = %s, want 300ms", got)
	}
}
