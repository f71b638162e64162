package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/infrastructure/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
  read_timeout: 15s
database:
  path: ":memory:"
engine:
  auto_skip_self_approval: true
  model_types: [payment_request]
  model_display_names:
    payment_request: Payment Request
directory:
  users:
    - id: ana
      name: Ana
      email: ana@example.com
      lark_open_id: ou_ana
      roles: [finance_manager]
    - id: ben
      permissions: [approve_payments]
notification:
  channels: [log]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "defaults fill unset keys")
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "json", cfg.Logger.Format)

	assert.True(t, cfg.Engine.AutoSkipSelfApproval)
	assert.Equal(t, []string{"payment_request"}, cfg.Engine.ModelTypes)
	assert.Equal(t, "Payment Request", cfg.Engine.ModelDisplayNames["payment_request"])

	require.Len(t, cfg.Directory.Users, 2)
	assert.Equal(t, directory.UserEntry{
		ID:         "ana",
		Name:       "Ana",
		Email:      "ana@example.com",
		LarkOpenID: "ou_ana",
		Roles:      []string{"finance_manager"},
	}, cfg.Directory.Users[0])
	assert.Equal(t, []string{"approve_payments"}, cfg.Directory.Users[1].Permissions)

	assert.Equal(t, []string{entity.ChannelLog}, cfg.Notification.Channels)
	assert.False(t, cfg.Lark.Enabled)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/approvalflow.db", cfg.Database.Path)
	assert.Equal(t, []string{entity.ChannelLog, entity.ChannelDatabase}, cfg.Notification.Channels)
	assert.Equal(t, 30*time.Second, cfg.Engine.HandlerTimeout)
	assert.Equal(t, []string{"payment_request"}, cfg.Engine.ModelTypes)
	assert.True(t, cfg.Notification.RetryEnabled)
	assert.Equal(t, time.Minute, cfg.Notification.RetryInterval)
	assert.Equal(t, 5, cfg.Notification.MaxAttempts)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("APPROVALFLOW_SERVER_PORT", "7070")
	t.Setenv("LARK_APP_ID", "cli_test")
	t.Setenv("LARK_APP_SECRET", "secret")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "cli_test", cfg.Lark.AppID)
	assert.Equal(t, "secret", cfg.Lark.AppSecret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	_, err := Load(writeConfig(t, "notification:\n  channels: [lark]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires lark.enabled")
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), ".env")), "missing file is ignored")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("APPROVALFLOW_TEST_DOTENV=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("APPROVALFLOW_TEST_DOTENV") })

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("APPROVALFLOW_TEST_DOTENV"))
}

func validConfig() *Config {
	return &Config{
		Server:       ServerConfig{Port: 8080},
		Database:     DatabaseConfig{Path: ":memory:"},
		Logger:       LoggerConfig{Format: "console"},
		Engine:       EngineConfig{ModelTypes: []string{"payment_request"}},
		Notification: NotificationConfig{Channels: []string{entity.ChannelLog}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"lark without credentials", func(c *Config) { c.Lark.Enabled = true }, "lark.app_id"},
		{"lark without secret", func(c *Config) {
			c.Lark.Enabled = true
			c.Lark.AppID = "cli"
		}, "lark.app_secret"},
		{"unknown channel", func(c *Config) { c.Notification.Channels = []string{"sms"} }, "unknown notification channel"},
		{"lark channel enabled", func(c *Config) {
			c.Lark = LarkConfig{Enabled: true, AppID: "cli", AppSecret: "s"}
			c.Notification.Channels = []string{entity.ChannelLark}
		}, ""},
		{"user without id", func(c *Config) {
			c.Directory.Users = []directory.UserEntry{{Name: "nobody"}}
		}, "directory.users[0].id"},
		{"duplicate user", func(c *Config) {
			c.Directory.Users = []directory.UserEntry{{ID: "ana"}, {ID: "ana"}}
		}, "duplicate id"},
		{"bad email", func(c *Config) {
			c.Directory.Users = []directory.UserEntry{{ID: "ana", Email: "ana@"}}
		}, "invalid email"},
		{"bad model type", func(c *Config) { c.Engine.ModelTypes = []string{"Payment Request"} }, "engine.model_types"},
		{"no model types", func(c *Config) { c.Engine.ModelTypes = nil }, "engine.model_types"},
		{"retry without interval", func(c *Config) {
			c.Notification.RetryEnabled = true
			c.Notification.MaxAttempts = 3
		}, "notification.retry_interval"},
		{"retry with one attempt", func(c *Config) {
			c.Notification.RetryEnabled = true
			c.Notification.RetryInterval = time.Second
			c.Notification.MaxAttempts = 1
		}, "notification.max_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	cc := cfg.ToContainerConfig()
	require.NoError(t, cc.Validate())

	assert.Equal(t, ":memory:", cc.Database.Path)
	assert.True(t, cc.Engine.AutoSkipSelfApproval)
	assert.Equal(t, []string{"payment_request"}, cc.Engine.ModelTypes)
	assert.Len(t, cc.Directory, 2)
	assert.Equal(t, []string{entity.ChannelLog}, cc.Channels)
	assert.Equal(t, "0.0.0.0:9090", cc.Server.Addr())
	assert.True(t, cc.Retry.Enabled)
	assert.Equal(t, 20, cc.Retry.BatchSize)
}
