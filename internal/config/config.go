// Package config provides configuration for the chat server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort int `env:"HTTP_PORT,default=43816" validate:"min=1,max=65535"`
	RPCPort  int `env:"RPC_PORT,default=0" validate:"min=0,max=65535"` // 0 disables the admin RPC listener

	// Storage
	StoreDriver string `env:"STORE_DRIVER,default=sqlite" validate:"oneof=sqlite badger"`
	DatabaseURL string `env:"DATABASE_URL,default=chat.db"`
	BadgerPath  string `env:"BADGER_PATH,default=data/messages"`

	// Identity
	NamesFile string `env:"NAMES_FILE,default=names.txt" validate:"required"`

	// WebSocket settings
	PingInterval   time.Duration `env:"WS_PING_INTERVAL,default=30s" validate:"gt=0"`
	WriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	ReadTimeout    time.Duration `env:"WS_READ_TIMEOUT,default=60s" validate:"gtfield=PingInterval"`
	MaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE,default=65536" validate:"min=1024"`
	SendBufferSize int           `env:"WS_SEND_BUFFER,default=256" validate:"min=2"`

	// Send an error event back to the sender when a message is dropped
	NotifyRejected bool `env:"NOTIFY_REJECTED,default=false"`

	// Logging
	LogLevel      string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	LogBufferSize int    `env:"LOG_BUFFER_SIZE,default=1048576" validate:"min=0"`
}

// Load loads configuration from a .env file, when present, and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
