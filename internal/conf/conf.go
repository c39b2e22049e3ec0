package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config represents application configuration
type Config struct {
	// Store database path; defaults to ~/.support-console/console.db
	DBPath string `env:"CONSOLE_DB_PATH"`

	// Operator API port
	APIPort int `env:"CONSOLE_API_PORT" envDefault:"9180"`

	// Base URL of the external automated-reply process; empty disables the
	// side channel
	SideChannelURL string `env:"SIDE_CHANNEL_URL"`

	// Number of messages fetched per conversation preview
	PreviewLimit int `env:"PREVIEW_LIMIT" envDefault:"20"`

	// Composer silence before the typing signal is withdrawn
	TypingIdle time.Duration `env:"TYPING_IDLE" envDefault:"1500ms"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Graceful shutdown budget
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses environment variables into Config
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if cfg.DBPath == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.DBPath = filepath.Join(homeDir, ".support-console", "console.db")
	}
	if cfg.PreviewLimit <= 0 {
		return nil, fmt.Errorf("PREVIEW_LIMIT must be positive")
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return nil, fmt.Errorf("CONSOLE_API_PORT out of range")
	}

	return cfg, nil
}

// Addr returns the API server address
func (c *Config) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.APIPort)
}
