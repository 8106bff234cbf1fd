package config

import (
	"fmt"

	"github.com/bryanchriswhite/wincap/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ApplyOverrides records values explicitly set through viper (bound command
// line flags or WINCAP_* environment variables) as overrides of the file
// values. They survive Reload and are never written to the file.
func (m *Manager) ApplyOverrides(v *viper.Viper) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	overrides := make(map[string]string, len(m.overrides))
	for key, value := range m.overrides {
		overrides[key] = value
	}
	for _, key := range Keys() {
		if !v.IsSet(key) {
			continue
		}
		value := v.GetString(key)
		if value == "" || value == "0" || value == "0s" {
			// unset flag defaults
			continue
		}
		cfg := *m.file
		if err := apply(&cfg, key, value); err != nil {
			return fmt.Errorf("invalid override for %s: %w", key, err)
		}
		overrides[key], _ = get(&cfg, key)
	}

	m.overrides = overrides
	m.config = m.effectiveLocked()
	return nil
}

// Watch reloads the file whenever it changes on disk and calls onChange with
// the fresh configuration. It uses its own viper instance so the global one
// bound to flags is untouched.
func (m *Manager) Watch(onChange func(*Config)) {
	v := viper.New()
	v.SetConfigFile(m.configPath)
	v.OnConfigChange(func(e fsnotify.Event) {
		log := logger.WithComponent("config")
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := m.Reload(); err != nil {
			log.Warn().Err(err).Str("path", e.Name).Msg("Failed to reload changed config")
			return
		}
		log.Info().Str("path", e.Name).Msg("Config reloaded")
		if onChange != nil {
			onChange(m.Get())
		}
	})
	v.WatchConfig()
}
