package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IntervalMin != 15 {
		t.Errorf("IntervalMin = %d, want 15", cfg.IntervalMin)
	}
	if cfg.NewChannelPolicy != "baseline" {
		t.Errorf("NewChannelPolicy = %q, want baseline", cfg.NewChannelPolicy)
	}
	if !cfg.Notify() {
		t.Error("Notify() = false, want true by default")
	}
	if cfg.Presence.Enabled {
		t.Error("presence enabled by default, want disabled")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
database_path: /tmp/custom.db
interval_min: 5
new_channel_policy: notify
notifications_enabled: false
presence:
  enabled: true
  poll_sec: 3
  browsers: [firefox]
auth:
  service_url: https://auth.example.com
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePath != "/tmp/custom.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.Interval() != 5*time.Minute {
		t.Errorf("Interval = %v, want 5m", cfg.Interval())
	}
	if cfg.NewChannelPolicy != "notify" {
		t.Errorf("NewChannelPolicy = %q, want notify", cfg.NewChannelPolicy)
	}
	if cfg.Notify() {
		t.Error("Notify() = true, want false")
	}
	if !cfg.Presence.Enabled || cfg.PresencePoll() != 3*time.Second {
		t.Errorf("presence = %+v", cfg.Presence)
	}
	if len(cfg.Presence.Browsers) != 1 || cfg.Presence.Browsers[0] != "firefox" {
		t.Errorf("browsers = %v", cfg.Presence.Browsers)
	}
	if cfg.Auth.ServiceURL != "https://auth.example.com" {
		t.Errorf("ServiceURL = %q", cfg.Auth.ServiceURL)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "interval_min: [not a number")
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted malformed YAML")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	got := ExpandPath("~/videos.db")
	want := filepath.Join(home, "videos.db")
	if got != want {
		t.Errorf("ExpandPath = %q, want %q", got, want)
	}
	if ExpandPath("") != "" {
		t.Error("ExpandPath(empty) changed the value")
	}
}
