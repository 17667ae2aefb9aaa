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
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Jobs        JobsConfig        `toml:"jobs"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Operations  OperationsConfig  `toml:"operations"`
	Cache       CacheConfig       `toml:"cache"`
	Remote      RemoteConfig      `toml:"remote"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and the tokens issued for the owner.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
	UserID       string `toml:"user_id"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// JobsConfig sizes the worker pool and bounds per-owner concurrency.
type JobsConfig struct {
	Workers          int `toml:"workers"`
	MaxActivePerUser int `toml:"max_active_per_user"`
	RetentionDays    int `toml:"retention_days"`
}

// SchedulerConfig controls the recurring schedule loop.
type SchedulerConfig struct {
	Enabled             bool `toml:"enabled"`
	PollIntervalSeconds int  `toml:"poll_interval_seconds"`
	BatchSize           int  `toml:"batch_size"`
}

// OperationsConfig controls how long undo entries stay available.
type OperationsConfig struct {
	RetentionDays int `toml:"retention_days"`
}

// CacheConfig controls the local track cache.
type CacheConfig struct {
	TTLDays int `toml:"ttl_days"`
}

// RemoteConfig contains settings for calls to the remote playlist API.
type RemoteConfig struct {
	BaseURL           string  `toml:"base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	MaxAttempts       int     `toml:"max_attempts"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// PollInterval returns the scheduler tick as a [time.Duration], defaulting to one minute.
func (c SchedulerConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Retention returns how long finished jobs are kept.
func (c JobsConfig) Retention() time.Duration {
	return days(c.RetentionDays, 7)
}

// Retention returns the undo horizon.
func (c OperationsConfig) Retention() time.Duration {
	return days(c.RetentionDays, 7)
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return days(c.TTLDays, 30)
}

func days(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * 24 * time.Hour
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	if c.Jobs.Workers < 0 || c.Jobs.MaxActivePerUser < 0 {
		return fmt.Errorf("%w: jobs values must not be negative", ErrInvalidConfig)
	}
	if c.Remote.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: remote.requests_per_second must not be negative", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
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

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
