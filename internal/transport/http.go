package transport

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JamesPrial/mcp-registry-gateway/internal/eventlog"
	"github.com/JamesPrial/mcp-registry-gateway/internal/mailbox"
	"github.com/JamesPrial/mcp-registry-gateway/internal/notify"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/config"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

// CorrelationHeader may carry the correlation id instead of the query string
const CorrelationHeader = "X-Correlation-ID"

// Dependencies are the collaborators of the HTTP gateway
type Dependencies struct {
	Events  eventlog.Source
	Mailbox mailbox.Mailbox
	// Bus is optional; nil disables wakeups
	Bus notify.Bus
	// Now is optional; it resolves the default since cursor
	Now func() time.Time
}

// HTTPTransport is the SSE gateway: push streams on GET /sse and /events and the
// side channel on POST /message
type HTTPTransport struct {
	address  string
	settings config.GatewaySettings
	lookback time.Duration
	deps     Dependencies
	handler  Handler
	sessions *SessionManager
	routes   []func(chi.Router)

	server       *http.Server
	shutdown     chan struct{}
	shutdownOnce sync.Once

	logger      *slog.Logger
	errLogger   *errors.Logger
	interceptor *logging.RequestInterceptor
	mu          sync.Mutex
}

// NewHTTPTransport creates a new HTTP gateway
func NewHTTPTransport(settings *config.Settings, deps Dependencies) *HTTPTransport {
	if deps.Bus == nil {
		deps.Bus = notify.NopBus{}
	}
	logger := logging.GetGlobalLogger("transport.http")
	return &HTTPTransport{
		address:     settings.Address(),
		settings:    settings.Gateway,
		lookback:    settings.Events.DefaultLookback,
		deps:        deps,
		sessions:    NewSessionManager(),
		shutdown:    make(chan struct{}),
		logger:      logger,
		errLogger:   errors.NewLoggerWithSlog(logger, "transport.http"),
		interceptor: logging.NewRequestInterceptor(logger),
	}
}

// Mount adds routes, such as the admin endpoints, to the router built by Routes
func (t *HTTPTransport) Mount(fn func(chi.Router)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = append(t.routes, fn)
}

// Sessions exposes the open sessions
func (t *HTTPTransport) Sessions() *SessionManager {
	return t.sessions
}

func (t *HTTPTransport) now() time.Time {
	if t.deps.Now != nil {
		return t.deps.Now()
	}
	return time.Now()
}

// Routes binds handler and returns the gateway router
func (t *HTTPTransport) Routes(handler Handler) http.Handler {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestIDBridge)
	r.Use(t.interceptor.HTTPMiddleware)
	r.Use(middleware.Recoverer)
	if t.settings.EnableCORS {
		r.Use(corsMiddleware)
	}

	r.Get("/sse", t.handleGateway)
	r.Get("/events", t.handleEvents)
	r.Post("/message", t.handleMessage)
	for _, fn := range t.routes {
		fn(r)
	}
	return r
}

// Start serves until ctx is cancelled or the listener fails
func (t *HTTPTransport) Start(ctx context.Context, handler Handler) error {
	if t.deps.Events == nil || t.deps.Mailbox == nil {
		return errors.New(errors.ErrCodeConfiguration, "http transport requires an event source and a mailbox")
	}

	t.logger.InfoContext(ctx, "HTTP transport starting",
		slog.String("transport", t.Name()),
		slog.String("address", t.address),
		slog.Duration("quota", t.settings.Quota),
	)

	listener, err := net.Listen("tcp", t.address)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeConfiguration, "failed to listen on %s", t.address)
	}

	server := &http.Server{
		Handler:           t.Routes(handler),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	t.mu.Lock()
	t.server = server
	t.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			t.logger.ErrorContext(ctx, "HTTP server error", slog.String("error", err.Error()))
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		t.logger.InfoContext(ctx, "HTTP transport context cancelled")
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.settings.Quota+5*time.Second)
		defer cancel()
		return t.Stop(stopCtx)
	case err := <-errChan:
		return err
	}
}

// Stop sends close to every open session, then shuts the server down
func (t *HTTPTransport) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "HTTP transport stopping", slog.Int("open_sessions", t.sessions.Count()))
	t.shutdownOnce.Do(func() { close(t.shutdown) })

	t.mu.Lock()
	server := t.server
	t.mu.Unlock()
	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		t.logger.ErrorContext(ctx, "Error during HTTP server shutdown", slog.String("error", err.Error()))
		return err
	}
	t.logger.InfoContext(ctx, "HTTP transport stopped successfully")
	return nil
}

// Name returns the name of the transport
func (t *HTTPTransport) Name() string {
	return "http"
}

type submitResponse struct {
	Success       bool   `json:"success"`
	CorrelationID string `json:"correlationId"`
}

// handleMessage queues a raw request for the session holding the correlation id. The body is
// stored unparsed; malformed JSON is answered on the push channel.
func (t *HTTPTransport) handleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	correlationID := r.URL.Query().Get("correlationId")
	if correlationID == "" {
		correlationID = r.Header.Get(CorrelationHeader)
	}
	if err := mailbox.ValidateCorrelationID(correlationID); err != nil {
		t.writeHTTPError(ctx, w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, t.settings.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			t.writeHTTPError(ctx, w, errors.Newf(errors.ErrCodeValidationSize,
				"request body exceeds %d bytes", maxErr.Limit))
			return
		}
		t.writeHTTPError(ctx, w, errors.Wrap(err, errors.ErrCodeValidationInvalid, "failed to read request body"))
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		t.writeHTTPError(ctx, w, errors.ValidationRequired("body"))
		return
	}

	if err := t.deps.Mailbox.Submit(ctx, correlationID, body); err != nil {
		if !errors.IsClientError(err) {
			err = errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to queue request")
		}
		t.writeHTTPError(ctx, w, err)
		return
	}

	t.logger.DebugContext(ctx, "Request queued",
		slog.String("correlation_id", correlationID),
		slog.Int("size", len(body)),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(submitResponse{Success: true, CorrelationID: correlationID}); err != nil {
		t.logger.ErrorContext(ctx, "Failed to encode response", slog.String("error", err.Error()))
	}
}

// requestIDBridge carries chi's request id into the logging context
func requestIDBridge(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(logging.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID, "+CorrelationHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
