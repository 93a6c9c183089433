package common

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the platform client stack needs at startup.
type Config struct {
	BaseURL     string        `env:"PLATFORM_API_BASE_URL" envDefault:"http://localhost:8080/api/"`
	UserAgent   string        `env:"PLATFORM_USER_AGENT" envDefault:"platformapi/1.0"`
	HTTPTimeout time.Duration `env:"PLATFORM_HTTP_TIMEOUT" envDefault:"10s"`
	AccessToken string        `env:"PLATFORM_ACCESS_TOKEN"`

	// CacheVersion tags durable envelopes; bumping it on deploy makes
	// entries written by older builds read as absent.
	CacheVersion    string        `env:"PLATFORM_CACHE_VERSION" envDefault:"dev"`
	DefaultCacheTTL time.Duration `env:"PLATFORM_CACHE_TTL" envDefault:"5m"`
	PersistentPath  string        `env:"PLATFORM_CACHE_PATH"`
	SessionRedisURL string        `env:"PLATFORM_SESSION_REDIS_URL"`

	LogLevel  string `env:"PLATFORM_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PLATFORM_LOG_FORMAT" envDefault:"text"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.BaseURL == "" {
		return Config{}, fmt.Errorf("PLATFORM_API_BASE_URL is required")
	}
	if cfg.CacheVersion == "" {
		return Config{}, fmt.Errorf("PLATFORM_CACHE_VERSION must not be empty")
	}
	if cfg.DefaultCacheTTL <= 0 {
		return Config{}, fmt.Errorf("PLATFORM_CACHE_TTL must be positive, got %s", cfg.DefaultCacheTTL)
	}
	return cfg, nil
}
