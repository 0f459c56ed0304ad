package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// GetUserConfigDir resolves the per-OS config directory for tim: Windows
// uses %APPDATA%/tim (falling back to ~/AppData/Roaming/tim), everything
// else uses $XDG_CONFIG_HOME/tim or ~/.config/tim.
func GetUserConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "tim"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "AppData", "Roaming", "tim"), nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "tim"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tim"), nil
}

// EnsureConfigDir creates dir (and parents) if it doesn't already exist.
func EnsureConfigDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
