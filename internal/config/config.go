// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	SecretKey   string
	DatabaseURL string
	CreateDB    bool   // Run schema migrations at startup.
	Env         string // "development" disables HTTPS enforcement and secure cookies.
	BaseURL     string // External URL used for absolute links; empty means derive from the request.
	SessionTTL  time.Duration
	RateLimit   RateLimitConfig
}

// RateLimitConfig controls the per-client request budget.
type RateLimitConfig struct {
	PerDay  int
	PerHour int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		SecretKey:   getEnv("SECRET_KEY", ""),
		DatabaseURL: getEnv("DATABASE_URL", "sqlite://./data/kkoala.db"),
		CreateDB:    getEnvBool("CREATE_DB", false),
		Env:         getEnv("APP_ENV", "production"),
		BaseURL:     strings.TrimRight(getEnv("BASE_URL", ""), "/"),
		SessionTTL:  getEnvDuration("SESSION_TTL", 30*24*time.Hour),
		RateLimit: RateLimitConfig{
			PerDay:  getEnvInt("RATE_LIMIT_PER_DAY", 200),
			PerHour: getEnvInt("RATE_LIMIT_PER_HOUR", 50),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY cannot be empty")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL cannot be empty")
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("BASE_URL must be an absolute URL")
		}
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.RateLimit.PerDay <= 0 || c.RateLimit.PerHour <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_DAY and RATE_LIMIT_PER_HOUR must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
