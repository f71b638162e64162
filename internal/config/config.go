package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/infrastructure/directory"
	"github.com/garyjia/approvalflow/pkg/utils"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Directory    DirectoryConfig    `mapstructure:"directory"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// MigrationsDir overrides the embedded schema when set
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// EngineConfig holds workflow engine behaviour switches
type EngineConfig struct {
	AutoSkipSelfApproval bool              `mapstructure:"auto_skip_self_approval"`
	ModelTypes           []string          `mapstructure:"model_types"`
	ModelDisplayNames    map[string]string `mapstructure:"model_display_names"`
	HandlerTimeout       time.Duration     `mapstructure:"handler_timeout"`
}

// DirectoryConfig lists the people the engine knows about
type DirectoryConfig struct {
	Users []directory.UserEntry `mapstructure:"users"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	AppID      string        `mapstructure:"app_id"`
	AppSecret  string        `mapstructure:"app_secret"`
	BaseURL    string        `mapstructure:"base_url"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// NotificationConfig selects the delivery channels and the retry policy
// for deliveries that fail
type NotificationConfig struct {
	Channels []string `mapstructure:"channels"`

	RetryEnabled   bool          `mapstructure:"retry_enabled"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	RetryBatchSize int           `mapstructure:"retry_batch_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
}

// Load reads a .env file if one exists, then the YAML file at configPath,
// then environment overrides. An empty configPath uses defaults and env only.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile exports the variables of a dotenv file. Variables already set
// in the process environment win. A missing file is not an error.
func loadEnvFile(path string) error {
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/approvalflow.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Engine defaults
	v.SetDefault("engine.auto_skip_self_approval", false)
	v.SetDefault("engine.handler_timeout", 30*time.Second)
	v.SetDefault("engine.model_types", []string{"payment_request"})

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.api_timeout", 30*time.Second)

	v.SetDefault("notification.channels", []string{entity.ChannelLog, entity.ChannelDatabase})
	v.SetDefault("notification.retry_enabled", true)
	v.SetDefault("notification.retry_interval", time.Minute)
	v.SetDefault("notification.retry_batch_size", 20)
	v.SetDefault("notification.max_attempts", 5)
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("APPROVALFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Sensitive credentials keep their conventional names
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark is enabled")
		}
	}

	for _, ch := range c.Notification.Channels {
		switch ch {
		case entity.ChannelLog, entity.ChannelDatabase:
		case entity.ChannelLark:
			if !c.Lark.Enabled {
				return fmt.Errorf("notification channel %q requires lark.enabled", ch)
			}
		default:
			return fmt.Errorf("unknown notification channel %q", ch)
		}
	}

	if c.Notification.RetryEnabled {
		if c.Notification.RetryInterval <= 0 {
			return fmt.Errorf("notification.retry_interval must be positive")
		}
		if c.Notification.MaxAttempts < 2 {
			return fmt.Errorf("notification.max_attempts must be at least 2, got %d", c.Notification.MaxAttempts)
		}
	}

	seen := make(map[string]bool, len(c.Directory.Users))
	for i, u := range c.Directory.Users {
		if u.ID == "" {
			return fmt.Errorf("directory.users[%d].id is required", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("directory.users[%d]: duplicate id %q", i, u.ID)
		}
		seen[u.ID] = true
		if u.Email != "" {
			if err := utils.ValidateEmail(u.Email); err != nil {
				return fmt.Errorf("directory.users[%d]: %w", i, err)
			}
		}
	}

	if len(c.Engine.ModelTypes) == 0 {
		return fmt.Errorf("engine.model_types must list at least one model type")
	}
	for _, mt := range c.Engine.ModelTypes {
		if err := utils.ValidateKey(mt); err != nil {
			return fmt.Errorf("engine.model_types: %w", err)
		}
	}

	return nil
}
