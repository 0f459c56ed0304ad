package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds operator-tunable settings for the timd daemon, persisted as
// YAML in the user config directory.
type Config struct {
	Port                 int    `yaml:"port,omitempty"`
	LogLevel              string `yaml:"log_level,omitempty"`
	LogFile               string `yaml:"log_file,omitempty"`
	RefreshIntervalSecs   int    `yaml:"refresh_interval_secs,omitempty"`
	NotificationsEnabled  bool   `yaml:"notifications_enabled"`
	NtfyTopic             string `yaml:"ntfy_topic,omitempty"`
	NtfyToken             string `yaml:"ntfy_token,omitempty"`
	DBPath                string `yaml:"db_path,omitempty"`
}

// Default returns the built-in settings used when no config file exists or
// a field is left unset.
func Default() Config {
	return Config{
		Port:                 8123,
		LogLevel:             "info",
		RefreshIntervalSecs:  10,
		NotificationsEnabled: true,
	}
}

// RefreshInterval returns RefreshIntervalSecs as a time.Duration, falling
// back to the default when unset.
func (c Config) RefreshInterval() time.Duration {
	if c.RefreshIntervalSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RefreshIntervalSecs) * time.Second
}

// Load reads a YAML config file at path, filling in Default() for any
// unset field. A missing file is not an error — it yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Port == 0 {
		cfg.Port = 8123
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RefreshIntervalSecs == 0 {
		cfg.RefreshIntervalSecs = 10
	}
	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories as needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigFileName is the YAML file's name inside the user config directory.
const ConfigFileName = "timd.yaml"
