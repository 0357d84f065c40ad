package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.BaseURL != "http://localhost:3000" {
		t.Errorf("Expected base URL http://localhost:3000, got %q", cfg.Server.BaseURL)
	}
	if cfg.Server.HealthPath != "/health" {
		t.Errorf("Expected health path /health, got %q", cfg.Server.HealthPath)
	}
	if filepath.Base(cfg.Store.Path) != "tasksync.db" {
		t.Errorf("Unexpected store path %q", cfg.Store.Path)
	}
	if d, err := cfg.PollInterval(); err != nil || d != 5*time.Second {
		t.Errorf("PollInterval() = %v, %v", d, err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_TOMLFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
base_url = "http://tasks.internal:8080"

[monitor]
poll_interval = "30s"

[dashboard]
port = 9001
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.BaseURL != "http://tasks.internal:8080" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Server.HealthPath != "/health" {
		t.Errorf("HealthPath default lost: %q", cfg.Server.HealthPath)
	}
	if d, _ := cfg.PollInterval(); d != 30*time.Second {
		t.Errorf("PollInterval = %v", d)
	}
	if cfg.Dashboard.Port != 9001 {
		t.Errorf("Port = %d", cfg.Dashboard.Port)
	}
	if cfg.Log.MaxBackups != 3 {
		t.Errorf("MaxBackups default lost: %d", cfg.Log.MaxBackups)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "store:\n  path: /tmp/custom.db\nlog:\n  file: /tmp/tasksync.log\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Path != "/tmp/custom.db" || cfg.Log.File != "/tmp/tasksync.log" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nbase_url = \"http://from-file:1\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKSYNC_SERVER_BASE_URL", "http://from-env:2")
	t.Setenv("TASKSYNC_DASHBOARD_PORT", "8123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.BaseURL != "http://from-env:2" {
		t.Errorf("BaseURL = %q, want env value", cfg.Server.BaseURL)
	}
	if cfg.Dashboard.Port != 8123 {
		t.Errorf("Port = %d, want 8123", cfg.Dashboard.Port)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.BaseURL != DefaultConfig().Server.BaseURL {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("Load() of missing explicit file succeeded")
	}

	bad := filepath.Join(dir, "bad.toml")
	os.WriteFile(bad, []byte("[monitor]\npoll_interval = \"soon\"\n"), 0644)
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "poll_interval") {
		t.Errorf("Load() with bad interval = %v", err)
	}

	noURL := filepath.Join(dir, "nourl.toml")
	os.WriteFile(noURL, []byte("[server]\nbase_url = \"not a url\"\n"), 0644)
	if _, err := Load(noURL); err == nil {
		t.Error("Load() with bad base_url succeeded")
	}
}

func TestWriteDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	for _, want := range []string{"[server]", "base_url", "[monitor]", "poll_interval = \"5s\""} {
		if !strings.Contains(string(content), want) {
			t.Errorf("config missing %q:\n%s", want, content)
		}
	}

	// The written file loads back to the defaults.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of written default: %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("round trip = %+v, want %+v", cfg, DefaultConfig())
	}

	if err := WriteDefault(path); err == nil {
		t.Error("WriteDefault over existing file succeeded")
	}
}
