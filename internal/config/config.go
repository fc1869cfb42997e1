package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"opsync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Endpoints  EndpointsConfig  `yaml:"endpoints"`
	Sync       SyncConfig       `yaml:"sync"`
	Transport  TransportConfig  `yaml:"transport"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	Debug       bool   `yaml:"debug"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	CacheTTL string `yaml:"cache_ttl"`
}

// EndpointsConfig lists backend base URLs. The active one is resolved at
// replay time, not at enqueue time, so a queued operation survives an
// endpoint switch.
type EndpointsConfig struct {
	Primary  string `yaml:"primary"`
	Fallback string `yaml:"fallback"`
	Health   string `yaml:"health"`
}

type SyncConfig struct {
	MaxRetries    int     `yaml:"max_retries"`
	InitialDelay  string  `yaml:"initial_delay"`
	MaxDelay      string  `yaml:"max_delay"`
	BackoffFactor float64 `yaml:"backoff_factor"`
	Schedule      string  `yaml:"schedule"`
	BatchSize     int     `yaml:"batch_size"`
	ProbeInterval string  `yaml:"probe_interval"`
}

type TransportConfig struct {
	Timeout string `yaml:"timeout"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; missing file is not an error.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Endpoints.Primary == "" {
		return errors.New("endpoints.primary is required")
	}
	if c.Sync.MaxRetries <= 0 {
		return errors.New("sync.max_retries must be positive")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"sync.initial_delay", c.Sync.InitialDelay},
		{"sync.max_delay", c.Sync.MaxDelay},
		{"sync.probe_interval", c.Sync.ProbeInterval},
		{"transport.timeout", c.Transport.Timeout},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", field.name, field.value)
		}
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis.address is required when redis is enabled")
	}
	if c.API.Enabled && c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth.api_keys is required when api auth is enabled")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Sync.MaxRetries == 0 {
		c.Sync.MaxRetries = models.DefaultMaxRetries
	}
	if c.Sync.InitialDelay == "" {
		c.Sync.InitialDelay = models.DefaultInitialDelay
	}
	if c.Sync.MaxDelay == "" {
		c.Sync.MaxDelay = models.DefaultMaxDelay
	}
	if c.Sync.BackoffFactor == 0 {
		c.Sync.BackoffFactor = models.DefaultBackoffFactor
	}
	if c.Sync.Schedule == "" {
		c.Sync.Schedule = models.DefaultSyncSchedule
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = models.DefaultBatchSize
	}
	if c.Sync.ProbeInterval == "" {
		c.Sync.ProbeInterval = models.DefaultProbeInterval
	}
	if c.Transport.Timeout == "" {
		c.Transport.Timeout = models.DefaultTransportTimeout
	}
	if c.Endpoints.Health == "" {
		c.Endpoints.Health = "/health"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Enabled && !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Redis.CacheTTL == "" {
		c.Redis.CacheTTL = "24h"
	}
}

// Duration helpers; values are validated in Validate, so parse errors
// here fall back to the documented defaults.

func (c SyncConfig) InitialDelayDuration() time.Duration {
	return parseDuration(c.InitialDelay, 2*time.Second)
}

func (c SyncConfig) MaxDelayDuration() time.Duration {
	return parseDuration(c.MaxDelay, time.Minute)
}

func (c SyncConfig) ProbeIntervalDuration() time.Duration {
	return parseDuration(c.ProbeInterval, 15*time.Second)
}

func (c TransportConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

func (c RedisConfig) CacheTTLDuration() time.Duration {
	return parseDuration(c.CacheTTL, 24*time.Hour)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
