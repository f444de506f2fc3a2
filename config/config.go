// Package config loads and validates fleetd's configuration from a YAML
// file, and (dynamic_config.go) hot-reloads it when that file changes.
// Environment variables are not read.
package config

import (
	"os"

	"fleetcore/apxerrors"
)

// DefaultConfig is the baseline YAML embedded for `fleetd config init`.
var DefaultConfig = []byte(`
application: "fleetd"

cors:
  allowed_origins:
  - "https://localhost"
  - "https://localhost:3000"

logger:
  level: "info"

listen: ":8080"
monitoring_listen: ":9090"

session_ttl: "1h"
access_token_ttl: "15m"
refresh_token_ttl: "168h"

pool:
  max_size: 20
  default_driver: "playwright"
  health_check_interval: "30s"
  idle_timeout: "5m"
  acquisition_timeout: "30s"
  max_pages_per_browser: 10
  error_cap: 20

redis:
  addr: "localhost:6379"

mongo:
  uri: "mongodb://localhost:27017"
  database: "fleetcore"

artifacts:
  bucket: "fleetcore-artifacts"
  region: "us-east-1"
  inline_threshold_bytes: 262144

rate_limit:
  backend: "memory"
`)

// Config is fleetd's configuration (session TTLs, pool sizing, store
// endpoints). Manager.reload replaces the whole value on a file change;
// components built from it at startup keep the values they were given.
type Config struct {
	Application string `koanf:"application" json:"application"`
	Logger      Logger `koanf:"logger" json:"logger"`
	Listen      string `koanf:"listen" json:"listen"`
	MonitoringListen string `koanf:"monitoring_listen" json:"monitoring_listen"`
	Cors        CORS   `koanf:"cors" json:"cors"`
	Hostname    string `koanf:"hostname" json:"hostname"`

	SessionTTL      string `koanf:"session_ttl" json:"session_ttl"`
	AccessTokenTTL  string `koanf:"access_token_ttl" json:"access_token_ttl"`
	RefreshTokenTTL string `koanf:"refresh_token_ttl" json:"refresh_token_ttl"`
	JWTSecret       string `koanf:"jwt_secret" json:"-"`

	Pool      PoolConfig      `koanf:"pool" json:"pool"`
	Redis     RedisConfig     `koanf:"redis" json:"redis"`
	Mongo     MongoConfig     `koanf:"mongo" json:"mongo"`
	Artifacts ArtifactsConfig `koanf:"artifacts" json:"artifacts"`
	RateLimit RateLimitConfig `koanf:"rate_limit" json:"rate_limit"`
}

type Logger struct {
	Level      string `koanf:"level"`
	HostName   string `koanf:"host_name"`
	Format     string `koanf:"format"`      // console | logfmt
	File       string `koanf:"file"`        // empty means stdout
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

type CORS struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type PoolConfig struct {
	MaxSize             int    `koanf:"max_size"`
	DefaultDriver       string `koanf:"default_driver"`
	HealthCheckInterval string `koanf:"health_check_interval"`
	IdleTimeout         string `koanf:"idle_timeout"`
	AcquisitionTimeout  string `koanf:"acquisition_timeout"`
	// MaxPagesPerBrowser caps concurrent pages per instance
	// (BROWSER_POOL_MAX_PAGES_PER_BROWSER); 0 means unlimited.
	MaxPagesPerBrowser int `koanf:"max_pages_per_browser"`
	// ErrorCap recycles an instance on release once its ErrorCount passes
	// this value, regardless of its combined recycling score.
	ErrorCap uint64 `koanf:"error_cap"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type MongoConfig struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

type ArtifactsConfig struct {
	Bucket                string `koanf:"bucket"`
	Region                string `koanf:"region"`
	InlineThresholdBytes  int64  `koanf:"inline_threshold_bytes"`
}

type RateLimitConfig struct {
	Backend string `koanf:"backend"` // memory | redis
}

// Validate checks required fields are present and fills in values (like
// Hostname) that can only be computed at load time.
func (c *Config) Validate() error {
	ve := apxerrors.NewValidationErrs()

	if c.Application == "" {
		ve.Add("application", "cannot be empty")
	}
	if c.Listen == "" {
		ve.Add("listen", "cannot be empty")
	}
	if c.Logger.Level == "" {
		ve.Add("logger.level", "cannot be empty")
	}
	if c.Pool.MaxSize <= 0 {
		ve.Add("pool.max_size", "must be positive")
	}
	if c.JWTSecret == "" || c.JWTSecret == "change-me-in-production" {
		ve.Add("jwt_secret", "must be set to a real secret")
	}

	if host, err := os.Hostname(); err != nil {
		ve.Add("hostname", "could not determine hostname")
	} else {
		c.Hostname = host
	}

	return ve.Err()
}
