package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings for the verification service.
type Config struct {
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`
	JWTSecret   string `env:"JWT_SECRET" envDefault:"dev-secret"`
	JWTAudience string `env:"JWT_AUDIENCE"`

	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"host=postgres user=postgres password=postgres dbname=idverify port=5432 sslmode=disable"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"redis:6379"`

	// Inspection provider (multimodal vision model endpoint).
	InspectionURL     string        `env:"INSPECTION_URL" envDefault:"http://inspection:9090/v1/analyze"`
	InspectionAPIKey  string        `env:"INSPECTION_API_KEY"`
	InspectionTimeout time.Duration `env:"INSPECTION_TIMEOUT" envDefault:"30s"`

	ImageDir      string `env:"IMAGE_DIR" envDefault:"/var/lib/idverify/images"`
	MaxImageBytes int64  `env:"MAX_IMAGE_BYTES" envDefault:"10485760"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Per-operator request rate for the analysis endpoints.
	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" envDefault:"5"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.MaxImageBytes <= 0 {
		return nil, fmt.Errorf("config: MAX_IMAGE_BYTES must be positive, got %d", cfg.MaxImageBytes)
	}
	return cfg, nil
}
