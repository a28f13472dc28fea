package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoad_Success(t *testing.T) {
	content := `
storage:
  type: "SQLite"
  path: "/var/data/gateway.db"
  sqlite:
    walMode: true
gateway:
  host: "127.0.0.1"
  port: 9000
  quota: 20s
  mailboxPollInterval: 50ms
  eventPollInterval: 1s
  heartbeatInterval: 10s
events:
  retention: 48h
  defaultLookback: 30m
logging:
  level: "DEBUG"
  format: text
`
	cfg, err := Load(writeConfig(t, content))

	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "/var/data/gateway.db", cfg.Storage.Path)
	assert.True(t, cfg.Storage.Sqlite.WALMode)
	assert.Equal(t, "127.0.0.1:9000", cfg.Address())
	assert.Equal(t, 20*time.Second, cfg.Gateway.Quota)
	assert.Equal(t, 50*time.Millisecond, cfg.Gateway.MailboxPollInterval)
	assert.Equal(t, time.Second, cfg.Gateway.EventPollInterval)
	assert.Equal(t, 10*time.Second, cfg.Gateway.HeartbeatInterval)
	assert.Equal(t, DefaultMailboxTTL, cfg.Gateway.MailboxTTL)
	assert.Equal(t, 48*time.Hour, cfg.Events.Retention)
	assert.Equal(t, 30*time.Minute, cfg.Events.DefaultLookback)
	assert.Equal(t, logging.LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, logging.LogFormatText, cfg.Logging.Format)
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))

	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, DefaultQuota, cfg.Gateway.Quota)
	assert.Equal(t, DefaultMailboxPollInterval, cfg.Gateway.MailboxPollInterval)
	assert.Equal(t, DefaultEventPollInterval, cfg.Gateway.EventPollInterval)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.Gateway.HeartbeatInterval)
	assert.Equal(t, DefaultRetention, cfg.Events.Retention)
	assert.Equal(t, DefaultLookback, cfg.Events.DefaultLookback)
	assert.True(t, cfg.Notify.Enabled)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("non_existent_file.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, `[invalid yaml - unclosed bracket`))
	assert.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{
			name:    "unknown storage type",
			mutate:  func(s *Settings) { s.Storage.Type = "redis" },
			wantErr: "storage.type must be one of [memory, sqlite], got 'redis'",
		},
		{
			name:    "sqlite without path",
			mutate:  func(s *Settings) { s.Storage.Type = "sqlite"; s.Storage.Path = "  " },
			wantErr: "storage.path cannot be empty when storage.type is sqlite",
		},
		{
			name:    "port too high",
			mutate:  func(s *Settings) { s.Gateway.Port = 65536 },
			wantErr: "gateway.port must be between 0 and 65535, got 65536",
		},
		{
			name:    "quota too short",
			mutate:  func(s *Settings) { s.Gateway.Quota = 500 * time.Millisecond },
			wantErr: "gateway.quota must be between",
		},
		{
			name:    "quota too long",
			mutate:  func(s *Settings) { s.Gateway.Quota = time.Hour },
			wantErr: "gateway.quota must be between",
		},
		{
			name: "event poll faster than mailbox poll",
			mutate: func(s *Settings) {
				s.Gateway.MailboxPollInterval = time.Second
				s.Gateway.EventPollInterval = 100 * time.Millisecond
			},
			wantErr: "gateway.eventPollInterval",
		},
		{
			name:    "lookback beyond retention",
			mutate:  func(s *Settings) { s.Events.DefaultLookback = 8 * 24 * time.Hour },
			wantErr: "events.defaultLookback",
		},
		{
			name:    "bad log level",
			mutate:  func(s *Settings) { s.Logging.Level = "verbose" },
			wantErr: "logging: invalid log level: verbose",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_NormalizesStorageType(t *testing.T) {
	for _, in := range []string{"", "MEMORY", " Memory "} {
		s := Defaults()
		s.Storage.Type = in
		require.NoError(t, s.Validate())
		assert.Equal(t, "memory", s.Storage.Type)
	}
}

func TestValidate_NilLoggingGetsDefaults(t *testing.T) {
	s := Defaults()
	s.Logging = nil
	require.NoError(t, s.Validate())
	require.NotNil(t, s.Logging)
	assert.Equal(t, logging.LogLevelInfo, s.Logging.Level)
}
