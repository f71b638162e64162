package config

import (
	"github.com/garyjia/approvalflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Engine: container.EngineConfig{
			AutoSkipSelfApproval: c.Engine.AutoSkipSelfApproval,
			ModelTypes:           append([]string(nil), c.Engine.ModelTypes...),
			ModelDisplayNames:    c.Engine.ModelDisplayNames,
			HandlerTimeout:       c.Engine.HandlerTimeout,
		},
		Directory: c.Directory.Users,
		Lark: container.LarkConfig{
			Enabled:    c.Lark.Enabled,
			AppID:      c.Lark.AppID,
			AppSecret:  c.Lark.AppSecret,
			BaseURL:    c.Lark.BaseURL,
			APITimeout: c.Lark.APITimeout,
		},
		Channels: append([]string(nil), c.Notification.Channels...),
		Retry: container.RetryConfig{
			Enabled:     c.Notification.RetryEnabled,
			Interval:    c.Notification.RetryInterval,
			BatchSize:   c.Notification.RetryBatchSize,
			MaxAttempts: c.Notification.MaxAttempts,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
	}
}
