package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// LogOutput represents the destination for logs
type LogOutput string

const (
	LogOutputStdout LogOutput = "stdout"
	LogOutputStderr LogOutput = "stderr"
	LogOutputFile   LogOutput = "file"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config is the logging block of the gateway configuration
type Config struct {
	Level  LogLevel  `yaml:"level" json:"level"`
	Format LogFormat `yaml:"format" json:"format"`
	Output LogOutput `yaml:"output" json:"output"`

	FilePath string `yaml:"filePath,omitempty" json:"filePath,omitempty"`

	// Per-component overrides, e.g. "transport.session": debug
	ComponentLevels map[string]LogLevel `yaml:"componentLevels,omitempty" json:"componentLevels,omitempty"`

	Masking MaskingConfig `yaml:"masking,omitempty" json:"masking,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`

	EnableCaller bool `yaml:"enableCaller" json:"enableCaller"`
}

// MaskingConfig defines which attributes are redacted before they reach the handler
type MaskingConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Fields   []string `yaml:"fields" json:"fields"`
	Patterns []string `yaml:"patterns" json:"patterns"`

	MaskEmails      bool `yaml:"maskEmails" json:"maskEmails"`
	MaskBearerToken bool `yaml:"maskBearerTokens" json:"maskBearerTokens"`
	MaskAPIKeys     bool `yaml:"maskApiKeys" json:"maskApiKeys"`
}

// DefaultConfig returns a default logging configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LogLevelInfo,
		Format: LogFormatJSON,
		Output: LogOutputStderr,
		Masking: MaskingConfig{
			Enabled:         true,
			MaskEmails:      true,
			MaskBearerToken: true,
			MaskAPIKeys:     true,
		},
		Metrics: DefaultMetricsConfig(),
	}
}

// DevelopmentConfig returns a configuration suitable for local runs
func DevelopmentConfig() *Config {
	config := DefaultConfig()
	config.Level = LogLevelDebug
	config.Format = LogFormatText
	config.EnableCaller = true
	config.Masking.Enabled = false
	return config
}

var validLevels = map[LogLevel]bool{
	LogLevelDebug: true,
	LogLevelInfo:  true,
	LogLevelWarn:  true,
	LogLevelError: true,
}

// ParseLevel normalizes a user supplied level name
func ParseLevel(s string) (LogLevel, error) {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if !validLevels[level] {
		return "", fmt.Errorf("invalid log level: %s", s)
	}
	return level, nil
}

// Validate normalizes and validates the configuration
func (c *Config) Validate() error {
	if c.Level == "" {
		c.Level = LogLevelInfo
	}
	level, err := ParseLevel(string(c.Level))
	if err != nil {
		return err
	}
	c.Level = level

	for component, lvl := range c.ComponentLevels {
		parsed, err := ParseLevel(string(lvl))
		if err != nil {
			return fmt.Errorf("invalid log level for component %s: %s", component, lvl)
		}
		c.ComponentLevels[component] = parsed
	}

	switch c.Format {
	case "":
		c.Format = LogFormatJSON
	case LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}

	switch c.Output {
	case "":
		c.Output = LogOutputStderr
	case LogOutputStdout, LogOutputStderr:
	case LogOutputFile:
		if strings.TrimSpace(c.FilePath) == "" {
			return fmt.Errorf("filePath required when output is 'file'")
		}
	default:
		return fmt.Errorf("invalid log output: %s", c.Output)
	}

	return nil
}

// GetLevelForComponent returns the log level for a specific component
func (c *Config) GetLevelForComponent(component string) LogLevel {
	if level, ok := c.ComponentLevels[component]; ok {
		return level
	}
	return c.Level
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
