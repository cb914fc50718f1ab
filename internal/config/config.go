// Package config loads tubewatch settings from a YAML file under the user's
// config directory. A missing file is not an error; every field has a
// default so a fresh install works with zero configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries all runtime settings.
type Config struct {
	// DatabasePath is where the seen-video store lives.
	DatabasePath string `yaml:"database_path"`
	// IntervalMin is the minimum spacing, in minutes, between check cycles.
	IntervalMin int `yaml:"interval_min"`
	// FetchTimeoutSec bounds a single channel fetch.
	FetchTimeoutSec int `yaml:"fetch_timeout_sec"`
	// Workers bounds concurrent channel checks within one cycle.
	Workers int `yaml:"workers"`
	// MaxItemsPerChannel caps how many feed entries are considered per check.
	MaxItemsPerChannel int `yaml:"max_items_per_channel"`
	// NewChannelPolicy is "baseline" (record the initial listing silently)
	// or "notify" (notify the initial listing in full).
	NewChannelPolicy string `yaml:"new_channel_policy"`
	// ChannelMinIntervalMin throttles per-channel fetch frequency, in
	// minutes. 0 disables the throttle.
	ChannelMinIntervalMin int `yaml:"channel_min_interval_min"`
	// NotificationsEnabled switches the desktop sink on or off; when off,
	// new videos are only logged.
	NotificationsEnabled *bool `yaml:"notifications_enabled"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	Presence PresenceConfig `yaml:"presence"`
	Auth     AuthConfig     `yaml:"auth"`
}

// PresenceConfig tunes the browser-presence wake signal.
type PresenceConfig struct {
	Enabled  bool     `yaml:"enabled"`
	PollSec  int      `yaml:"poll_sec"`
	Browsers []string `yaml:"browsers"`
}

// AuthConfig points at the OAuth relay used for subscription sync.
type AuthConfig struct {
	ServiceURL string `yaml:"service_url"`
}

// DefaultPath returns ~/.config/tubewatch/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tubewatch", "config.yaml"), nil
}

// DefaultDatabasePath picks a platform-appropriate location for the store.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tubewatch.db"
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Tubewatch", "tubewatch.db")
	}
	return filepath.Join(home, ".local", "share", "tubewatch", "tubewatch.db")
}

// TokenPath returns where the OAuth token is persisted.
func TokenPath() (string, error) {
	p, err := DefaultPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(p), "token.json"), nil
}

func defaults() Config {
	return Config{
		DatabasePath:       DefaultDatabasePath(),
		IntervalMin:        15,
		FetchTimeoutSec:    30,
		Workers:            4,
		MaxItemsPerChannel: 15,
		NewChannelPolicy:   "baseline",
		LogLevel:           "info",
		Presence: PresenceConfig{
			Enabled: false,
			PollSec: 10,
		},
	}
}

// Load reads the config at path, applying defaults for anything unset. An
// absent file yields pure defaults.
func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.DatabasePath = ExpandPath(cfg.DatabasePath)
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		cfg.DatabasePath = DefaultDatabasePath()
	}
	if cfg.IntervalMin <= 0 {
		cfg.IntervalMin = 15
	}
	if cfg.FetchTimeoutSec <= 0 {
		cfg.FetchTimeoutSec = 30
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Presence.PollSec <= 0 {
		cfg.Presence.PollSec = 10
	}
	return cfg, nil
}

// Interval returns the cycle spacing as a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMin) * time.Minute
}

// FetchTimeout returns the per-channel fetch bound as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// ChannelMinInterval returns the per-channel fetch throttle as a duration.
func (c Config) ChannelMinInterval() time.Duration {
	return time.Duration(c.ChannelMinIntervalMin) * time.Minute
}

// PresencePoll returns how often the presence signal is consulted.
func (c Config) PresencePoll() time.Duration {
	return time.Duration(c.Presence.PollSec) * time.Second
}

// Notify reports whether desktop notifications are enabled (default true).
func (c Config) Notify() bool {
	return c.NotificationsEnabled == nil || *c.NotificationsEnabled
}

// ExpandPath expands a leading ~ and environment variables in a path.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
		}
	}
	return p
}
