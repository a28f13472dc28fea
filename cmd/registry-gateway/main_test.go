package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesPrial/mcp-registry-gateway/internal/transport"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/client"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/config"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/mcp"
)

func TestLoadSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		settings, err := loadSettings(newViper())
		require.NoError(t, err)
		assert.Equal(t, "memory", settings.Storage.Type)
		assert.Equal(t, ":8080", settings.Address())
		assert.Equal(t, config.DefaultQuota, settings.Gateway.Quota)
	})

	t.Run("address and debug overrides", func(t *testing.T) {
		v := newViper()
		v.Set("address", "127.0.0.1:9090")
		v.Set("debug", true)

		settings, err := loadSettings(v)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9090", settings.Address())
		assert.Equal(t, logging.LogLevelDebug, settings.Logging.Level)
	})

	t.Run("environment overrides", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "gateway.db")
		t.Setenv("REGISTRY_GATEWAY_STORAGE_TYPE", "sqlite")
		t.Setenv("REGISTRY_GATEWAY_STORAGE_PATH", dbPath)

		v := newViper()
		settings, err := loadSettings(v)
		require.NoError(t, err)
		assert.Equal(t, "sqlite", settings.Storage.Type)
		assert.Equal(t, dbPath, settings.Storage.Path)
	})

	t.Run("config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("gateway:\n  port: 7070\n  quota: 10s\n"), 0o600))

		v := newViper()
		v.Set("config", path)
		settings, err := loadSettings(v)
		require.NoError(t, err)
		assert.Equal(t, 7070, settings.Gateway.Port)
		assert.Equal(t, 10*time.Second, settings.Gateway.Quota)
	})

	invalid := []struct {
		name string
		key  string
		val  string
	}{
		{"bad address", "address", "nope"},
		{"bad port", "address", ":http-alt"},
		{"missing config file", "config", "/does/not/exist.yaml"},
		{"sqlite without path", "storage.type", "sqlite"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.val)
			_, err := loadSettings(v)
			assert.Error(t, err)
		})
	}
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "registry-gateway dev\n", out.String())
}

const seedRecords = `[
	{"id": "1", "name": "weather", "description": "Forecasts", "tags": ["weather"], "type": "tools", "status": "active", "stars": 40},
	{"id": "2", "name": "github", "description": "Repositories", "tags": ["git", "code"], "type": "tools", "status": "active", "stars": 90}
]`

func newTestGateway(t *testing.T) (*gateway, *httptest.Server) {
	t.Helper()
	seed := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(seedRecords), 0o600))

	settings := config.Defaults()
	settings.SeedPath = seed
	settings.Gateway.Quota = 2 * time.Second
	settings.Gateway.MailboxPollInterval = 20 * time.Millisecond
	settings.Gateway.EventPollInterval = 50 * time.Millisecond
	require.NoError(t, settings.Validate())

	g, err := newGateway(context.Background(), settings)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	tr, err := newHTTPGateway(g)
	require.NoError(t, err)
	server := httptest.NewServer(tr.Routes(g.dispatcher))
	t.Cleanup(server.Close)
	return g, server
}

func TestGateway_EchoThroughPushChannel(t *testing.T) {
	_, server := newTestGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		events []mcp.ChangeEvent
	)
	responses := make(chan *transport.JSONRPCResponse, 4)
	sub, err := client.NewSubscriber(client.Options{
		BaseURL:       server.URL,
		CorrelationID: "abc",
		OnMessage: func(_ context.Context, resp *transport.JSONRPCResponse) {
			responses <- resp
		},
		OnEvent: func(_ context.Context, e mcp.ChangeEvent) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, sub.Submit(ctx, []byte(
		`{"jsonrpc":"2.0","id":"42","method":"tools/call","params":{"name":"test_echo","arguments":{"message":"hi"}}}`)))

	go func() { _ = sub.Run(ctx) }()

	select {
	case resp := <-responses:
		assert.Equal(t, `"42"`, string(resp.ID))
		require.Nil(t, resp.Error)
		raw, err := json.Marshal(resp.Result)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"hi"`)
	case <-time.After(3 * time.Second):
		t.Fatal("no response on the push channel")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, 3*time.Second, 20*time.Millisecond, "seeded records are replayed as registered events")

	mu.Lock()
	defer mu.Unlock()
	for _, e := range events {
		assert.Equal(t, mcp.EventRegistered, e.Type)
	}
}

func TestGateway_AdminRoutes(t *testing.T) {
	_, server := newTestGateway(t)
	httpClient := &http.Client{Timeout: 3 * time.Second}

	resp, err := httpClient.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, version, health.Version)
}

func TestGateway_SeedFailure(t *testing.T) {
	settings := config.Defaults()
	settings.SeedPath = filepath.Join(t.TempDir(), "missing.json")
	require.NoError(t, settings.Validate())

	_, err := newGateway(context.Background(), settings)
	assert.Error(t, err)
}

func TestGateway_UnknownToolThroughPushChannel(t *testing.T) {
	_, server := newTestGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	responses := make(chan *transport.JSONRPCResponse, 4)
	sub, err := client.NewSubscriber(client.Options{
		BaseURL:       server.URL,
		CorrelationID: "missing-tool",
		Types:         []mcp.EventType{mcp.EventStatusChanged},
		OnMessage: func(_ context.Context, resp *transport.JSONRPCResponse) {
			responses <- resp
		},
	})
	require.NoError(t, err)

	require.NoError(t, sub.Submit(ctx, []byte(
		`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"does_not_exist","arguments":{}}}`)))

	go func() { _ = sub.Run(ctx) }()

	select {
	case resp := <-responses:
		assert.Equal(t, "7", string(resp.ID))
		assert.Nil(t, resp.Result)
		require.NotNil(t, resp.Error)
		assert.Equal(t, transport.MethodNotFound, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "does_not_exist")
	case <-time.After(3 * time.Second):
		t.Fatal("no response on the push channel")
	}
}

func TestGateway_StatusChangeReachesLiveSession(t *testing.T) {
	_, server := newTestGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		events []mcp.ChangeEvent
	)
	sub, err := client.NewSubscriber(client.Options{
		BaseURL: server.URL,
		OnEvent: func(_ context.Context, e mcp.ChangeEvent) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
			return nil
		},
	})
	require.NoError(t, err)
	go func() { _ = sub.Run(ctx) }()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(events)
	}
	require.Eventually(t, func() bool { return count() == 2 }, 3*time.Second, 20*time.Millisecond,
		"seeded records are replayed first")

	httpClient := &http.Client{Timeout: 3 * time.Second}
	resp, err := httpClient.Post(server.URL+"/admin/servers/weather/status", "application/json",
		bytes.NewReader([]byte(`{"status":"degraded"}`)))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return count() == 3 }, 3*time.Second, 20*time.Millisecond,
		"the live session tails the new event")

	mu.Lock()
	defer mu.Unlock()
	last := events[2]
	assert.Equal(t, mcp.EventStatusChanged, last.Type)
	assert.Equal(t, "weather", last.Data.Name)
	assert.Equal(t, mcp.StatusActive, last.Data.PreviousStatus)
	assert.Equal(t, mcp.StatusDegraded, last.Data.CurrentStatus)
}
