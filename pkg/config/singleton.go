package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	current  atomic.Pointer[Config]
	initOnce sync.Once

	reloadMu        sync.Mutex
	reloadListeners []func(*Config)
)

// Initialize loads configuration from path with environment overrides and
// installs it as the process-wide configuration. Only the first call does
// any work; later calls return nil without reloading.
func Initialize(path string) error {
	var initErr error
	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		current.Store(cfg)
	})
	return initErr
}

// GetConfig returns the installed configuration, or nil before Initialize.
func GetConfig() *Config {
	return current.Load()
}

// MustGetConfig is GetConfig that panics when nothing is installed.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}

// SetConfig installs cfg directly. Intended for tests and for commands that
// build their configuration from flags.
func SetConfig(cfg *Config) {
	current.Store(cfg)
}

// OnReload registers fn to be called with the new configuration after every
// successful ReloadConfig.
func OnReload(fn func(*Config)) {
	reloadMu.Lock()
	defer reloadMu.Unlock()
	reloadListeners = append(reloadListeners, fn)
}

// ReloadConfig loads path again and swaps it in. On failure the installed
// configuration is left untouched.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	current.Store(cfg)

	reloadMu.Lock()
	listeners := append([]func(*Config){}, reloadListeners...)
	reloadMu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// resetForTest clears the installed configuration and the Initialize guard.
func resetForTest() {
	current.Store(nil)
	initOnce = sync.Once{}
	reloadMu.Lock()
	reloadListeners = nil
	reloadMu.Unlock()
}
