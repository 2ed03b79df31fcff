package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./docdash.db" {
			t.Errorf("expected database path ./docdash.db, got %s", config.Database.Path)
		}
		if config.Server.Port != 5025 {
			t.Errorf("expected server port 5025, got %d", config.Server.Port)
		}
		if config.History.Backend != "file" {
			t.Errorf("expected history backend file, got %s", config.History.Backend)
		}
		if config.History.MaxEntries != 100 {
			t.Errorf("expected 100 history entries, got %d", config.History.MaxEntries)
		}
		if config.Engine.ThrottleInterval.Duration != 500*time.Millisecond {
			t.Errorf("expected throttle interval 500ms, got %s", config.Engine.ThrottleInterval)
		}
		if config.Engine.PublishTimeout.Duration != 2*time.Second {
			t.Errorf("expected publish timeout 2s, got %s", config.Engine.PublishTimeout)
		}
		if config.Retry.MaxAttempts != 5 || config.Retry.BaseDelay.Duration != time.Second || config.Retry.MaxDelay.Duration != time.Minute {
			t.Errorf("unexpected retry defaults: %+v", config.Retry)
		}
		if !config.Retry.Jitter {
			t.Error("expected jitter enabled by default")
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}
		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		testConfig := `[server]
host = "0.0.0.0"
port = 8080

[history]
backend = "sqlite"

[engine]
throttle_interval = "250ms"
grace_period = "1s"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Server.Addr() != "0.0.0.0:8080" {
			t.Errorf("expected addr 0.0.0.0:8080, got %s", config.Server.Addr())
		}
		if config.Server.BaseURL() != "http://127.0.0.1:8080" {
			t.Errorf("expected loopback base URL, got %s", config.Server.BaseURL())
		}
		if config.History.Backend != "sqlite" {
			t.Errorf("expected sqlite backend, got %s", config.History.Backend)
		}
		if config.Engine.ThrottleInterval.Duration != 250*time.Millisecond {
			t.Errorf("expected 250ms, got %s", config.Engine.ThrottleInterval)
		}
		if config.Engine.GracePeriod.Duration != time.Second {
			t.Errorf("expected 1s grace period, got %s", config.Engine.GracePeriod)
		}
		if config.Engine.ThrottleDelta != 5 {
			t.Errorf("missing keys should keep defaults, got throttle delta %d", config.Engine.ThrottleDelta)
		}
	})

	t.Run("LoadConfig Invalid Duration", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[engine]\ngrace_period = \"soon\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected error for invalid duration")
		}
	})

	t.Run("LoadConfigOrDefault Missing", func(t *testing.T) {
		config, err := LoadConfigOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Server.Port != 5025 {
			t.Errorf("expected default port, got %d", config.Server.Port)
		}
	})

	t.Run("LoadConfig Missing File", func(t *testing.T) {
		if _, err := LoadConfig("/nonexistent/config.toml"); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
