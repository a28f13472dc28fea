package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

type Settings struct {
	Storage StorageSettings `yaml:"storage"`
	Gateway GatewaySettings `yaml:"gateway"`
	Events  EventSettings   `yaml:"events"`
	Notify  NotifySettings  `yaml:"notify"`
	// Optional JSON file of registry records loaded at startup
	SeedPath string          `yaml:"seedPath"`
	Logging  *logging.Config `yaml:"logging"`
}

type StorageSettings struct {
	Type   string         `yaml:"type"`
	Path   string         `yaml:"path"`
	Sqlite SqliteSettings `yaml:"sqlite"`
}

type SqliteSettings struct {
	WALMode bool `yaml:"walMode"`
	// How often expired rows are purged
	PurgeInterval time.Duration `yaml:"purgeInterval"`
}

// GatewaySettings govern the HTTP listener and the push-channel session loop
type GatewaySettings struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Hard connection age; the session emits close at this point
	Quota               time.Duration `yaml:"quota"`
	MailboxPollInterval time.Duration `yaml:"mailboxPollInterval"`
	EventPollInterval   time.Duration `yaml:"eventPollInterval"`
	HeartbeatInterval   time.Duration `yaml:"heartbeatInterval"`
	MailboxTTL          time.Duration `yaml:"mailboxTTL"`
	MaxBodyBytes        int64         `yaml:"maxBodyBytes"`

	EnableCORS bool `yaml:"enableCORS"`
}

type EventSettings struct {
	Retention       time.Duration `yaml:"retention"`
	DefaultLookback time.Duration `yaml:"defaultLookback"`
}

// NotifySettings toggle in-process wakeups on top of polling
type NotifySettings struct {
	Enabled    bool  `yaml:"enabled"`
	BufferSize int64 `yaml:"bufferSize"`
}

const (
	DefaultQuota               = 25 * time.Second
	DefaultMailboxPollInterval = 100 * time.Millisecond
	DefaultEventPollInterval   = 2 * time.Second
	DefaultHeartbeatInterval   = 15 * time.Second
	DefaultMailboxTTL          = 60 * time.Second
	DefaultRetention           = 7 * 24 * time.Hour
	DefaultLookback            = time.Hour
	DefaultMaxBodyBytes        = 1 << 20

	MinQuota = time.Second
	MaxQuota = 5 * time.Minute
)

// Defaults returns settings for an in-memory gateway on :8080
func Defaults() *Settings {
	return &Settings{
		Storage: StorageSettings{
			Type:   "memory",
			Sqlite: SqliteSettings{WALMode: true, PurgeInterval: time.Minute},
		},
		Gateway: GatewaySettings{
			Port:                8080,
			Quota:               DefaultQuota,
			MailboxPollInterval: DefaultMailboxPollInterval,
			EventPollInterval:   DefaultEventPollInterval,
			HeartbeatInterval:   DefaultHeartbeatInterval,
			MailboxTTL:          DefaultMailboxTTL,
			MaxBodyBytes:        DefaultMaxBodyBytes,
			EnableCORS:          true,
		},
		Events: EventSettings{
			Retention:       DefaultRetention,
			DefaultLookback: DefaultLookback,
		},
		Notify: NotifySettings{
			Enabled:    true,
			BufferSize: 64,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Address is the listen address of the gateway
func (s *Settings) Address() string {
	return fmt.Sprintf("%s:%d", s.Gateway.Host, s.Gateway.Port)
}

// Validate normalizes the settings and fills zero durations with defaults
func (s *Settings) Validate() error {
	normalizedStorageType := strings.ToLower(strings.TrimSpace(s.Storage.Type))
	switch normalizedStorageType {
	case "":
		normalizedStorageType = "memory"
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage.type must be one of [memory, sqlite], got '%s'", s.Storage.Type)
	}
	s.Storage.Type = normalizedStorageType

	if normalizedStorageType == "sqlite" && strings.TrimSpace(s.Storage.Path) == "" {
		return fmt.Errorf("storage.path cannot be empty when storage.type is sqlite")
	}
	if s.Storage.Sqlite.PurgeInterval <= 0 {
		s.Storage.Sqlite.PurgeInterval = time.Minute
	}

	g := &s.Gateway
	if g.Port < 0 || g.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 0 and 65535, got %d", g.Port)
	}
	setDefault(&g.Quota, DefaultQuota)
	setDefault(&g.MailboxPollInterval, DefaultMailboxPollInterval)
	setDefault(&g.EventPollInterval, DefaultEventPollInterval)
	setDefault(&g.HeartbeatInterval, DefaultHeartbeatInterval)
	setDefault(&g.MailboxTTL, DefaultMailboxTTL)
	if g.MaxBodyBytes <= 0 {
		g.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if g.Quota < MinQuota || g.Quota > MaxQuota {
		return fmt.Errorf("gateway.quota must be between %s and %s, got %s", MinQuota, MaxQuota, g.Quota)
	}
	if g.MailboxPollInterval >= g.Quota {
		return fmt.Errorf("gateway.mailboxPollInterval (%s) must be shorter than gateway.quota (%s)", g.MailboxPollInterval, g.Quota)
	}
	if g.EventPollInterval < g.MailboxPollInterval {
		return fmt.Errorf("gateway.eventPollInterval (%s) must not be shorter than gateway.mailboxPollInterval (%s)", g.EventPollInterval, g.MailboxPollInterval)
	}

	setDefault(&s.Events.Retention, DefaultRetention)
	setDefault(&s.Events.DefaultLookback, DefaultLookback)
	if s.Events.DefaultLookback > s.Events.Retention {
		return fmt.Errorf("events.defaultLookback (%s) exceeds events.retention (%s)", s.Events.DefaultLookback, s.Events.Retention)
	}

	if s.Notify.BufferSize < 0 {
		return fmt.Errorf("notify.bufferSize must be non-negative, got %d", s.Notify.BufferSize)
	}

	if s.Logging == nil {
		s.Logging = logging.DefaultConfig()
	}
	if err := s.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	return nil
}

func setDefault(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

// Load reads a YAML file over Defaults and validates the result
func Load(path string) (*Settings, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	settings := Defaults()
	if err := yaml.Unmarshal(bytes, settings); err != nil {
		return nil, err
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}
