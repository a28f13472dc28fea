package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesPrial/mcp-registry-gateway/internal/eventlog"
	"github.com/JamesPrial/mcp-registry-gateway/internal/registry"
	"github.com/JamesPrial/mcp-registry-gateway/internal/storage"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/mcp"
)

func newRegistryAdmin(t *testing.T) (*AdminServer, *eventlog.Log) {
	t.Helper()
	store := storage.NewMemoryBackend()
	t.Cleanup(func() { store.Close() })
	log := eventlog.New(store)
	a := NewAdminServer(store, nil, "dev").WithRegistrar(registry.NewStoreRegistry(store, log))
	return a, log
}

func replayTypes(t *testing.T, log *eventlog.Log) []mcp.EventType {
	t.Helper()
	events, err := log.Replay(context.Background(), time.Now().Add(-time.Hour), nil)
	require.NoError(t, err)
	types := make([]mcp.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestRegisterServer(t *testing.T) {
	a, log := newRegistryAdmin(t)

	rr := do(t, a, http.MethodPost, "/admin/servers", `{"name":"weather","description":"Forecasts","status":"active"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var saved mcp.ServerRecord
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&saved))
	assert.Equal(t, "weather", saved.Name)
	assert.NotEmpty(t, saved.ID)

	rr = do(t, a, http.MethodPost, "/admin/servers", `{"name":"weather","description":"Hourly forecasts"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, []mcp.EventType{mcp.EventRegistered, mcp.EventUpdated}, replayTypes(t, log))
}

func TestRegisterServer_Rejected(t *testing.T) {
	a, log := newRegistryAdmin(t)

	tests := []struct {
		name string
		body string
		code errors.ErrorCode
	}{
		{"malformed json", `{"name":`, errors.ErrCodeValidationFormat},
		{"missing name", `{"description":"x"}`, errors.ErrCodeValidationRequired},
		{"bad status", `{"name":"x","status":"exploded"}`, errors.ErrCodeValidationInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, a, http.MethodPost, "/admin/servers", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			var body errors.HTTPError
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Code)
		})
	}
	assert.Empty(t, replayTypes(t, log))
}

func TestUpdateServerStatus(t *testing.T) {
	a, log := newRegistryAdmin(t)
	require.Equal(t, http.StatusOK,
		do(t, a, http.MethodPost, "/admin/servers", `{"name":"weather","status":"active"}`).Code)

	t.Run("transition publishes", func(t *testing.T) {
		rr := do(t, a, http.MethodPost, "/admin/servers/weather/status", `{"status":"degraded"}`)
		require.Equal(t, http.StatusOK, rr.Code)
		var resp StatusResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.True(t, resp.Changed)
		assert.NotEmpty(t, resp.EventID)
	})

	t.Run("same status is silent", func(t *testing.T) {
		rr := do(t, a, http.MethodPost, "/admin/servers/weather/status", `{"status":"degraded"}`)
		require.Equal(t, http.StatusOK, rr.Code)
		var resp StatusResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.False(t, resp.Changed)
		assert.Empty(t, resp.EventID)
	})

	t.Run("unknown server", func(t *testing.T) {
		rr := do(t, a, http.MethodPost, "/admin/servers/missing/status", `{"status":"active"}`)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	assert.Equal(t, []mcp.EventType{mcp.EventRegistered, mcp.EventStatusChanged}, replayTypes(t, log))
}

func TestRegistryWritesDisabled(t *testing.T) {
	a := NewAdminServer(nil, nil, "dev")

	rr := do(t, a, http.MethodPost, "/admin/servers", `{"name":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	rr = do(t, a, http.MethodPost, "/admin/servers/x/status", `{"status":"active"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
