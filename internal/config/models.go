package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/wincap/internal/logger"
	"gopkg.in/yaml.v3"
)

// Capture backends
const (
	BackendAuto  = "auto"
	BackendX11   = "x11"
	BackendWin32 = "win32"
)

// Config represents the application configuration
type Config struct {
	ServerPort int           `json:"server_port" yaml:"server_port"`
	LogLevel   string        `json:"log_level" yaml:"log_level"`
	Capture    CaptureConfig `json:"capture" yaml:"capture"`
	Output     OutputConfig  `json:"output" yaml:"output"`
}

// CaptureConfig controls the capture session and platform source
type CaptureConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	// FrameWait bounds each wait on the platform frame signal, and therefore
	// how long StopCapture can take.
	FrameWait       time.Duration `json:"frame_wait" yaml:"frame_wait"`
	FPS             int           `json:"fps" yaml:"fps"`
	SnapshotTimeout time.Duration `json:"snapshot_timeout" yaml:"snapshot_timeout"`
}

// OutputConfig controls frame encoding for the CLI and HTTP API
type OutputConfig struct {
	JPEGQuality int `json:"jpeg_quality" yaml:"jpeg_quality"`
	MaxWidth    int `json:"max_width" yaml:"max_width"`
}

// Manager handles configuration. It keeps the values read from the file
// apart from the effective values, which also carry command line and
// environment overrides. Only file values are ever written back.
type Manager struct {
	configPath string
	file       *Config
	config     *Config
	overrides  map[string]string
	mu         sync.RWMutex
}

// DefaultPath returns ~/.config/wincap/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "wincap", "config.yaml"), nil
}

// NewManager creates a new configuration manager. An empty configFile
// selects DefaultPath. A missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.setFile(Defaults())
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Str("backend", m.config.Capture.Backend).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Capture: CaptureConfig{
			Backend:         BackendAuto,
			FrameWait:       100 * time.Millisecond,
			FPS:             30,
			SnapshotTimeout: time.Second,
		},
		Output: OutputConfig{
			JPEGQuality: 90,
			MaxWidth:    0,
		},
	}
}

// normalize fills zero values left by partial config files
func normalize(cfg *Config) {
	d := Defaults()
	if cfg.ServerPort <= 0 {
		cfg.ServerPort = d.ServerPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = d.LogLevel
	}
	if cfg.Capture.Backend == "" {
		cfg.Capture.Backend = d.Capture.Backend
	}
	if cfg.Capture.FrameWait <= 0 {
		cfg.Capture.FrameWait = d.Capture.FrameWait
	}
	if cfg.Capture.FPS <= 0 {
		cfg.Capture.FPS = d.Capture.FPS
	}
	if cfg.Capture.SnapshotTimeout <= 0 {
		cfg.Capture.SnapshotTimeout = d.Capture.SnapshotTimeout
	}
	if cfg.Output.JPEGQuality <= 0 || cfg.Output.JPEGQuality > 100 {
		cfg.Output.JPEGQuality = d.Output.JPEGQuality
	}
	if cfg.Output.MaxWidth < 0 {
		cfg.Output.MaxWidth = 0
	}
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	normalize(&cfg)
	m.setFile(&cfg)

	return nil
}

// setFile replaces the file values and recomputes the effective config
func (m *Manager) setFile(cfg *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.file = cfg
	m.config = m.effectiveLocked()
}

// effectiveLocked returns the file values with overrides applied. Overrides
// were validated when they were recorded.
func (m *Manager) effectiveLocked() *Config {
	cfg := *m.file
	for _, key := range Keys() {
		value, ok := m.overrides[key]
		if !ok {
			continue
		}
		if err := apply(&cfg, key, value); err != nil {
			logger.WithComponent("config").Warn().
				Err(err).
				Str("key", key).
				Msg("Ignoring override")
		}
	}
	return &cfg
}

// Reload re-reads the config file, keeping the current values on failure.
// Overrides stay in effect.
func (m *Manager) Reload() error {
	return m.load()
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	return &cfg
}

// Save writes the file values to disk. Overrides are not persisted.
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := *m.file
	m.mu.RUnlock()

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update replaces the configuration and persists it. cfg is usually an
// edited copy of Get, so an overridden key that still holds its override
// value keeps the file value instead.
func (m *Manager) Update(cfg *Config) error {
	c := *cfg
	normalize(&c)

	m.mu.Lock()
	for key, value := range m.overrides {
		if current, _ := get(&c, key); current != value {
			continue
		}
		prev, _ := get(m.file, key)
		apply(&c, key, prev)
	}
	m.file = &c
	m.config = m.effectiveLocked()
	m.mu.Unlock()

	return m.Save()
}

// Keys lists the settable configuration keys
func Keys() []string {
	return []string{
		"server_port",
		"log_level",
		"capture.backend",
		"capture.frame_wait",
		"capture.fps",
		"capture.snapshot_timeout",
		"output.jpeg_quality",
		"output.max_width",
	}
}

// Set parses value for key, applies it to the file values and saves the
// file. An override for the same key still wins in Get.
func (m *Manager) Set(key, value string) error {
	m.mu.Lock()
	cfg := *m.file
	if err := apply(&cfg, key, value); err != nil {
		m.mu.Unlock()
		return err
	}
	m.file = &cfg
	m.config = m.effectiveLocked()
	m.mu.Unlock()
	return m.Save()
}

// Value returns the string form of key in the effective config
func (m *Manager) Value(key string) (string, error) {
	if v, ok := get(m.Get(), key); ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown config key: %s (valid: %s)", key, strings.Join(Keys(), ", "))
}

func get(cfg *Config, key string) (string, bool) {
	switch key {
	case "server_port":
		return strconv.Itoa(cfg.ServerPort), true
	case "log_level":
		return cfg.LogLevel, true
	case "capture.backend":
		return cfg.Capture.Backend, true
	case "capture.frame_wait":
		return cfg.Capture.FrameWait.String(), true
	case "capture.fps":
		return strconv.Itoa(cfg.Capture.FPS), true
	case "capture.snapshot_timeout":
		return cfg.Capture.SnapshotTimeout.String(), true
	case "output.jpeg_quality":
		return strconv.Itoa(cfg.Output.JPEGQuality), true
	case "output.max_width":
		return strconv.Itoa(cfg.Output.MaxWidth), true
	}
	return "", false
}

func apply(cfg *Config, key, value string) error {
	positive := func(name string) (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid %s: %s", name, value)
		}
		return n, nil
	}
	duration := func(name string) (time.Duration, error) {
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("invalid %s: %s", name, value)
		}
		return d, nil
	}

	var err error
	switch key {
	case "server_port":
		var port int
		if port, err = positive("port number"); err == nil && port > 65535 {
			err = fmt.Errorf("invalid port number: %s", value)
		}
		cfg.ServerPort = port
	case "log_level":
		if !logger.ValidLevel(value) {
			return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", value)
		}
		cfg.LogLevel = strings.ToLower(value)
	case "capture.backend":
		switch value {
		case BackendAuto, BackendX11, BackendWin32:
			cfg.Capture.Backend = value
		default:
			return fmt.Errorf("invalid backend: %s (use: auto, x11, win32)", value)
		}
	case "capture.frame_wait":
		cfg.Capture.FrameWait, err = duration("frame wait")
	case "capture.fps":
		cfg.Capture.FPS, err = positive("fps")
	case "capture.snapshot_timeout":
		cfg.Capture.SnapshotTimeout, err = duration("snapshot timeout")
	case "output.jpeg_quality":
		var q int
		if q, err = positive("jpeg quality"); err == nil && q > 100 {
			err = fmt.Errorf("invalid jpeg quality: %s", value)
		}
		cfg.Output.JPEGQuality = q
	case "output.max_width":
		n, convErr := strconv.Atoi(value)
		if convErr != nil || n < 0 {
			return fmt.Errorf("invalid max width: %s", value)
		}
		cfg.Output.MaxWidth = n
	default:
		return fmt.Errorf("unknown config key: %s (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	return err
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
