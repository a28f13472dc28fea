package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

const maskedValue = "***MASKED***"

// sensitiveFields are attribute keys whose values are always redacted
var sensitiveFields = []string{
	"password", "secret", "token", "authorization", "api_key", "apikey", "credential", "cookie",
}

// Masker redacts secrets from log attributes
type Masker struct {
	config   MaskingConfig
	patterns []*regexp.Regexp
}

// NewMasker compiles the configured patterns; invalid patterns are skipped
func NewMasker(config MaskingConfig) *Masker {
	m := &Masker{config: config}

	for _, pattern := range config.Patterns {
		if re, err := regexp.Compile(pattern); err == nil {
			m.patterns = append(m.patterns, re)
		}
	}
	if config.MaskEmails {
		m.patterns = append(m.patterns, regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`))
	}
	if config.MaskBearerToken {
		m.patterns = append(m.patterns, regexp.MustCompile(`(?i)bearer\s+[a-z0-9._~+/=-]+`))
	}
	if config.MaskAPIKeys {
		m.patterns = append(m.patterns, regexp.MustCompile(`\b(sk|pk|ghp|gho|xox[bap])[-_][A-Za-z0-9_-]{16,}\b`))
	}
	return m
}

// MaskAttr has the slog.HandlerOptions.ReplaceAttr signature
func (m *Masker) MaskAttr(groups []string, attr slog.Attr) slog.Attr {
	if !m.config.Enabled || len(groups) == 0 && isBuiltinKey(attr.Key) {
		return attr
	}
	if m.shouldMaskField(attr.Key) {
		return slog.String(attr.Key, maskedValue)
	}
	if attr.Value.Kind() == slog.KindString {
		return slog.String(attr.Key, m.MaskString(attr.Value.String()))
	}
	return attr
}

func (m *Masker) shouldMaskField(field string) bool {
	fieldLower := strings.ToLower(field)
	for _, maskField := range m.config.Fields {
		if strings.EqualFold(maskField, field) {
			return true
		}
	}
	for _, sensitive := range sensitiveFields {
		if strings.Contains(fieldLower, sensitive) {
			return true
		}
	}
	return false
}

// MaskString replaces pattern matches, keeping the first and last two characters
func (m *Masker) MaskString(s string) string {
	for _, pattern := range m.patterns {
		s = pattern.ReplaceAllStringFunc(s, func(match string) string {
			if len(match) <= 4 {
				return "***"
			}
			return match[:2] + strings.Repeat("*", len(match)-4) + match[len(match)-2:]
		})
	}
	return s
}

func isBuiltinKey(key string) bool {
	return key == slog.TimeKey || key == slog.LevelKey || key == slog.MessageKey || key == slog.SourceKey
}
