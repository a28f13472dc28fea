package storage

import (
	"fmt"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/config"
)

// NewBackend creates a new storage backend based on the configuration
func NewBackend(cfg *config.Settings) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	switch cfg.Storage.Type {
	case "sqlite":
		if cfg.Storage.Path == "" {
			return nil, fmt.Errorf("storage path is required for SQLite backend")
		}
		return NewSqliteBackend(cfg.Storage.Path, cfg.Storage.Sqlite.WALMode, cfg.Storage.Sqlite.PurgeInterval)
	case "memory", "":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}
