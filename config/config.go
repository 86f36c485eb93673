package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the peerlink service.
type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	Environment    string   `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
	JWTSecret      string   `env:"JWT_SECRET" envDefault:"change-me-in-production"`

	// DatabaseDSN points at the chat store; the default keeps local
	// development self-contained.
	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"peerlink.db"`

	// An empty Redis address selects the in-memory meeting store.
	Redis RedisConfig `envPrefix:"REDIS_"`

	MeetingTTL           time.Duration `env:"MEETING_TTL" envDefault:"1h"`
	MeetingSweepInterval time.Duration `env:"MEETING_SWEEP_INTERVAL" envDefault:"5m"`
}

// RedisConfig configures the optional Redis meeting store.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}
