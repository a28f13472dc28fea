package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JamesPrial/mcp-registry-gateway/internal/mailbox"
	"github.com/JamesPrial/mcp-registry-gateway/internal/notify"
	"github.com/JamesPrial/mcp-registry-gateway/internal/storage"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/config"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
)

func postMessage(t *testing.T, handler http.Handler, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHTTPTransport_HandleMessage(t *testing.T) {
	fx := newGatewayFixture(t, methodHandler())
	router := fx.transport.Routes(methodHandler())

	tests := []struct {
		name       string
		target     string
		body       string
		header     http.Header
		wantStatus int
		wantCode   errors.ErrorCode
		wantQueued string
	}{
		{
			name:       "queued by query parameter",
			target:     "/message?correlationId=abc",
			body:       `{"jsonrpc":"2.0","id":"42","method":"ping"}`,
			wantStatus: http.StatusAccepted,
			wantQueued: "abc",
		},
		{
			name:       "queued by header",
			target:     "/message",
			body:       `{"jsonrpc":"2.0","id":1,"method":"ping"}`,
			header:     http.Header{CorrelationHeader: []string{"from-header"}},
			wantStatus: http.StatusAccepted,
			wantQueued: "from-header",
		},
		{
			name:       "malformed json is still queued",
			target:     "/message?correlationId=broken",
			body:       `{"id":`,
			wantStatus: http.StatusAccepted,
			wantQueued: "broken",
		},
		{
			name:       "missing correlation id",
			target:     "/message",
			body:       `{"jsonrpc":"2.0","id":1,"method":"ping"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.ErrCodeValidationRequired,
		},
		{
			name:       "empty body",
			target:     "/message?correlationId=abc",
			body:       "  ",
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.ErrCodeValidationRequired,
		},
		{
			name:       "body too large",
			target:     "/message?correlationId=abc",
			body:       `{"pad":"` + strings.Repeat("x", 2048) + `"}`,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   errors.ErrCodeValidationSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postMessage(t, router, tt.target, tt.body, tt.header)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			if tt.wantQueued != "" {
				var ack submitResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&ack))
				assert.True(t, ack.Success)
				assert.Equal(t, tt.wantQueued, ack.CorrelationID)

				raw, err := fx.mailbox.Take(context.Background(), tt.wantQueued)
				require.NoError(t, err)
				assert.Equal(t, tt.body, string(raw))
				return
			}

			var body errors.HTTPError
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestHTTPTransport_LastWriteWins(t *testing.T) {
	fx := newGatewayFixture(t, methodHandler())
	router := fx.transport.Routes(methodHandler())

	first := postMessage(t, router, "/message?correlationId=abc", `{"id":1,"method":"ping"}`, nil)
	second := postMessage(t, router, "/message?correlationId=abc", `{"id":2,"method":"ping"}`, nil)
	require.Equal(t, http.StatusAccepted, first.Code)
	require.Equal(t, http.StatusAccepted, second.Code)

	raw, err := fx.mailbox.Take(context.Background(), "abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2,"method":"ping"}`, string(raw))
}

func TestHTTPTransport_StoreFailureIs503(t *testing.T) {
	store := new(storage.MockBackend)
	store.On("Put", mock.Anything, mailbox.Key("abc"), mock.Anything, mock.Anything).
		Return(errors.New(errors.ErrCodeStorageQuery, "disk I/O error"))

	settings := config.Defaults()
	tr := NewHTTPTransport(settings, Dependencies{
		Events:  &failingSource{},
		Mailbox: mailbox.NewStoreMailbox(store, notify.NopBus{}, mailbox.DefaultTTL),
	})

	rr := postMessage(t, tr.Routes(methodHandler()), "/message?correlationId=abc", `{"id":1,"method":"ping"}`, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body errors.HTTPError
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, errors.ErrCodeServiceUnavailable, body.Code)
	assert.NotContains(t, rr.Body.String(), "disk I/O error")
	store.AssertExpectations(t)
}

func TestHTTPTransport_CORS(t *testing.T) {
	fx := newGatewayFixture(t, methodHandler())
	router := fx.transport.Routes(methodHandler())

	req := httptest.NewRequest(http.MethodOptions, "/message", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), CorrelationHeader)
}

func TestHTTPTransport_MountedRoutes(t *testing.T) {
	fx := newGatewayFixture(t, methodHandler())
	fx.transport.Mount(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
	})
	router := fx.transport.Routes(methodHandler())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestHTTPTransport_StartRequiresDependencies(t *testing.T) {
	tr := NewHTTPTransport(config.Defaults(), Dependencies{})
	err := tr.Start(context.Background(), methodHandler())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
}

func TestHTTPTransport_StartAndStop(t *testing.T) {
	settings := config.Defaults()
	settings.Gateway.Host = "127.0.0.1"
	settings.Gateway.Port = 0
	store := storage.NewMemoryBackend()
	tr := NewHTTPTransport(settings, Dependencies{
		Events:  &failingSource{},
		Mailbox: mailbox.NewStoreMailbox(store, notify.NopBus{}, mailbox.DefaultTTL),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Start(ctx, methodHandler()) }()

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, "http", tr.Name())
}

func TestFactory_CreateTransport(t *testing.T) {
	store := storage.NewMemoryBackend()
	deps := Dependencies{
		Events:  &failingSource{},
		Mailbox: mailbox.NewStoreMailbox(store, notify.NopBus{}, mailbox.DefaultTTL),
	}
	factory := NewFactory(config.Defaults(), deps)

	tests := []struct {
		kind     string
		wantName string
		wantErr  bool
	}{
		{kind: "http", wantName: "http"},
		{kind: "SSE", wantName: "http"},
		{kind: "", wantName: "http"},
		{kind: "stdio", wantName: "stdio"},
		{kind: "websocket", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			tr, err := factory.CreateTransport(tt.kind)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, tr.Name())
		})
	}

	_, err := NewFactory(config.Defaults(), Dependencies{}).CreateTransport("http")
	assert.Error(t, err)
}
