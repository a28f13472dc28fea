package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/config"
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(cfg *config.Settings, dir string)
		wantType interface{}
		wantErr  string
	}{
		{
			name:     "memory",
			mutate:   func(cfg *config.Settings, _ string) { cfg.Storage.Type = "memory" },
			wantType: &MemoryBackend{},
		},
		{
			name:     "empty type defaults to memory",
			mutate:   func(cfg *config.Settings, _ string) { cfg.Storage.Type = "" },
			wantType: &MemoryBackend{},
		},
		{
			name: "sqlite",
			mutate: func(cfg *config.Settings, dir string) {
				cfg.Storage.Type = "sqlite"
				cfg.Storage.Path = filepath.Join(dir, "gateway.db")
			},
			wantType: &SqliteBackend{},
		},
		{
			name:    "sqlite without path",
			mutate:  func(cfg *config.Settings, _ string) { cfg.Storage.Type = "sqlite" },
			wantErr: "storage path is required",
		},
		{
			name:    "unknown type",
			mutate:  func(cfg *config.Settings, _ string) { cfg.Storage.Type = "etcd" },
			wantErr: "unsupported storage type: etcd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(cfg, t.TempDir())

			backend, err := NewBackend(cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer backend.Close()
			assert.IsType(t, tt.wantType, backend)
		})
	}
}

func TestNewBackend_NilConfig(t *testing.T) {
	_, err := NewBackend(nil)
	assert.Error(t, err)
}
