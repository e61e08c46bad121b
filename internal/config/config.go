package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// UnlimitedLimit is the sentinel limit value meaning no quota is enforced.
const UnlimitedLimit = -1

// Default rate limits per tier, in requests per window.
const (
	DefaultFreeLimit       = 50
	DefaultProLimit        = 1000
	DefaultEnterpriseLimit = UnlimitedLimit
	DefaultWindowSeconds   = 3600
)

// Config holds the full gateway configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig holds the analytics/policy store connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds the quota store connection settings.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// UpstreamConfig holds the completion provider settings.
type UpstreamConfig struct {
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api-key"`
	ConnectTimeout time.Duration `yaml:"connect-timeout"`
	TotalTimeout   time.Duration `yaml:"total-timeout"`
}

// RateLimitConfig holds admission-control settings.
type RateLimitConfig struct {
	WindowSeconds   int  `yaml:"window-seconds"`
	FreeLimit       int  `yaml:"free-limit"`
	ProLimit        int  `yaml:"pro-limit"`
	EnterpriseLimit int  `yaml:"enterprise-limit"`
	FailOpen        bool `yaml:"fail-open"`
}

// AuthConfig holds identity verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt-secret"`
}

// LoggingConfig holds process logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
}

// Default returns a configuration populated with built-in defaults.
func Default() Config {
	return Config{
		Listen: ":8080",
		Redis:  RedisConfig{URL: "redis://localhost:6379/0"},
		Upstream: UpstreamConfig{
			URL:            "https://api.groq.com/openai/v1/chat/completions",
			ConnectTimeout: 10 * time.Second,
			TotalTimeout:   30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			WindowSeconds:   DefaultWindowSeconds,
			FreeLimit:       DefaultFreeLimit,
			ProLimit:        DefaultProLimit,
			EnterpriseLimit: DefaultEnterpriseLimit,
			FailOpen:        true,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads an optional YAML file, applies environment overrides, and validates.
// Keys absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, errRead := os.ReadFile(path)
		if errRead != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
		}
		if errDecode := yaml.Unmarshal(data, &cfg); errDecode != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, errDecode)
		}
	}

	applyEnv(&cfg)

	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("config: window-seconds must be positive, got %d", c.RateLimit.WindowSeconds)
	}
	for tier, limit := range map[string]int{
		"free":       c.RateLimit.FreeLimit,
		"pro":        c.RateLimit.ProLimit,
		"enterprise": c.RateLimit.EnterpriseLimit,
	} {
		if limit == 0 || limit < UnlimitedLimit {
			return fmt.Errorf("config: %s limit must be positive or %d (unlimited), got %d", tier, UnlimitedLimit, limit)
		}
	}
	if strings.TrimSpace(c.Upstream.URL) == "" {
		return fmt.Errorf("config: upstream url is required")
	}
	if c.Upstream.ConnectTimeout <= 0 || c.Upstream.TotalTimeout <= 0 {
		return fmt.Errorf("config: upstream timeouts must be positive")
	}
	return nil
}

// Window returns the configured window length as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// applyEnv overrides configuration values from environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.Listen, "GATEWAY_LISTEN")
	setString(&cfg.Database.DSN, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Upstream.URL, "UPSTREAM_API_URL")
	setString(&cfg.Upstream.APIKey, "UPSTREAM_API_KEY")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Logging.Level, "LOG_LEVEL")

	setInt(&cfg.RateLimit.WindowSeconds, "RATE_LIMIT_WINDOW_SECONDS")
	setInt(&cfg.RateLimit.FreeLimit, "RATE_LIMIT_FREE")
	setInt(&cfg.RateLimit.ProLimit, "RATE_LIMIT_PRO")
	setInt(&cfg.RateLimit.EnterpriseLimit, "RATE_LIMIT_ENTERPRISE")
	setBool(&cfg.RateLimit.FailOpen, "RATE_LIMIT_FAIL_OPEN")

	setDuration(&cfg.Upstream.ConnectTimeout, "UPSTREAM_CONNECT_TIMEOUT")
	setDuration(&cfg.Upstream.TotalTimeout, "UPSTREAM_TOTAL_TIMEOUT")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	parsed, errParse := strconv.Atoi(v)
	if errParse != nil {
		return
	}
	*dst = parsed
}

func setBool(dst *bool, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	parsed, errParse := strconv.ParseBool(v)
	if errParse != nil {
		return
	}
	*dst = parsed
}

func setDuration(dst *time.Duration, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	parsed, errParse := time.ParseDuration(v)
	if errParse != nil {
		return
	}
	*dst = parsed
}
