// Package paths resolves where larder keeps its configuration, its local
// database and its durable cache.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories.
const AppName = "larder"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "LARDER_CONFIG_DIR"
	EnvDataDir   = "LARDER_DATA_DIR"
)

// File and directory names inside the resolved directories.
const (
	ConfigFileName = "config.yaml"
	EnvFileName    = ".env"
	CacheDirName   = "cache"
)

// platformDir holds platform lookups so tests can replace them.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// xdgOr returns $env/larder or ~/<fallback>/larder on Linux, and the user
// config directory elsewhere.
func xdgOr(env string, fallback ...string) (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv(env); xdg != "" {
			return filepath.Join(xdg, AppName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(append(append([]string{home}, fallback...), AppName)...), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultConfigDir returns the platform configuration directory:
// $XDG_CONFIG_HOME/larder or ~/.config/larder on Linux, the user config
// directory elsewhere.
func DefaultConfigDir() (string, error) {
	return xdgOr("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform data directory:
// $XDG_DATA_HOME/larder or ~/.local/share/larder on Linux, the user config
// directory elsewhere.
func DefaultDataDir() (string, error) {
	return xdgOr("XDG_DATA_HOME", ".local", "share")
}

// ResolveConfigDir applies flag > LARDER_CONFIG_DIR > DefaultConfigDir.
func ResolveConfigDir(flag string) (string, error) {
	return resolve(DefaultConfigDir, flag, os.Getenv(EnvConfigDir))
}

// ResolveDataDir applies flag > config value > LARDER_DATA_DIR >
// DefaultDataDir.
func ResolveDataDir(flag, configValue string) (string, error) {
	return resolve(DefaultDataDir, flag, configValue, os.Getenv(EnvDataDir))
}

func resolve(def func() (string, error), candidates ...string) (string, error) {
	for _, c := range candidates {
		if c != "" {
			return filepath.Abs(c)
		}
	}
	return def()
}

// ConfigFile returns the config.yaml path in configDir.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}

// CacheDir returns the durable cache directory in dataDir.
func CacheDir(dataDir string) string {
	return filepath.Join(dataDir, CacheDirName)
}
