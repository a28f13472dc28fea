package transport

import (
	"fmt"
	"strings"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/config"
)

// Factory creates transport instances
type Factory struct {
	settings *config.Settings
	deps     Dependencies
}

// NewFactory creates a new transport factory
func NewFactory(settings *config.Settings, deps Dependencies) *Factory {
	return &Factory{settings: settings, deps: deps}
}

// CreateTransport creates a transport by name: "http" (the SSE gateway) or "stdio"
func (f *Factory) CreateTransport(kind string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "stdio":
		return NewStdioTransport(), nil

	case "http", "sse", "":
		if f.deps.Events == nil || f.deps.Mailbox == nil {
			return nil, fmt.Errorf("transport %q requires an event source and a mailbox", kind)
		}
		return NewHTTPTransport(f.settings, f.deps), nil

	default:
		return nil, fmt.Errorf("unsupported transport type: %s", kind)
	}
}
