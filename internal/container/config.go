// Package container provides dependency injection and lifecycle management
// for the approval workflow service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/infrastructure/directory"
)

// Config holds all configuration for the Container.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Engine behaviour
	Engine EngineConfig

	// Users, roles and permissions
	Directory []directory.UserEntry

	// Lark API configuration
	Lark LarkConfig

	// Notification channels, by name
	Channels []string

	// Redelivery of failed notifications
	Retry RetryConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file, or ":memory:"
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// MigrationsDir replaces the embedded migrations when set
	MigrationsDir string
}

// EngineConfig holds workflow engine settings.
type EngineConfig struct {
	AutoSkipSelfApproval bool
	ModelTypes           []string
	ModelDisplayNames    map[string]string

	// HandlerTimeout bounds each asynchronous event handler
	HandlerTimeout time.Duration
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	Enabled    bool
	AppID      string
	AppSecret  string
	BaseURL    string
	APITimeout time.Duration
}

// RetryConfig holds the notification retry worker settings.
type RetryConfig struct {
	Enabled     bool
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns host:port for the listener
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/approvalflow.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Engine: EngineConfig{
			HandlerTimeout: 30 * time.Second,
		},
		Lark: LarkConfig{
			APITimeout: 30 * time.Second,
		},
		Channels: []string{entity.ChannelLog, entity.ChannelDatabase},
		Retry: RetryConfig{
			Enabled:     true,
			Interval:    time.Minute,
			BatchSize:   20,
			MaxAttempts: 5,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Lark.Enabled && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return fmt.Errorf("lark credentials are required when lark is enabled")
	}

	for _, ch := range c.Channels {
		switch ch {
		case entity.ChannelLog, entity.ChannelDatabase:
		case entity.ChannelLark:
			if !c.Lark.Enabled {
				return fmt.Errorf("channel %q requires lark to be enabled", ch)
			}
		default:
			return fmt.Errorf("unknown notification channel %q", ch)
		}
	}

	return nil
}
