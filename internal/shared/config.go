package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	LogLevel  string          `toml:"log_level"`
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	History   HistoryConfig   `toml:"history"`
	Engine    EngineConfig    `toml:"engine"`
	Retry     RetryConfig     `toml:"retry"`
	Downloads DownloadsConfig `toml:"downloads"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port for [http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BaseURL returns the URL clients use to reach the dashboard API.
func (s ServerConfig) BaseURL() string {
	host := s.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	PostgresURL  string `toml:"postgres_url"`
}

// HistoryConfig selects and sizes the task history backend.
type HistoryConfig struct {
	Backend    string `toml:"backend"` // file, sqlite or postgres
	Path       string `toml:"path"`
	MaxEntries int    `toml:"max_entries"`
}

// EngineConfig tunes the task engine.
type EngineConfig struct {
	ThrottleInterval    Duration `toml:"throttle_interval"`
	ThrottleDelta       int      `toml:"throttle_delta"`
	CancelCheckInterval int      `toml:"cancel_check_interval"`
	GracePeriod         Duration `toml:"grace_period"`
	EvictAfter          Duration `toml:"evict_after"`
	CacheMaxAge         Duration `toml:"cache_max_age"`
	SweepInterval       Duration `toml:"sweep_interval"`
	PublishTimeout      Duration `toml:"publish_timeout"`
	SubscriberBuffer    int      `toml:"subscriber_buffer"`
}

// RetryConfig contains the defaults handed to the retry executor.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   Duration `toml:"base_delay"`
	MaxDelay    Duration `toml:"max_delay"`
	Jitter      bool     `toml:"jitter"`
}

// DownloadsConfig contains settings for the download work functions.
type DownloadsConfig struct {
	OutputDir string   `toml:"output_dir"`
	RateLimit float64  `toml:"rate_limit"`
	Timeout   Duration `toml:"timeout"`
	UserAgent string   `toml:"user_agent"`
}

// Duration wraps [time.Duration] so it can be written as "500ms" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

// LoadConfigOrDefault loads path when it exists and falls back to [DefaultConfig] otherwise.
func LoadConfigOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
