package logging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
)

// UnmatchedRoute labels requests no route pattern matched
const UnmatchedRoute = "unmatched"

// RequestInterceptor provides request lifecycle logging capabilities
type RequestInterceptor struct {
	logger  *slog.Logger
	metrics *MetricsCollector
}

// NewRequestInterceptor creates a new request interceptor with the specified logger
func NewRequestInterceptor(logger *slog.Logger) *RequestInterceptor {
	return &RequestInterceptor{
		logger:  logger,
		metrics: GetGlobalMetricsCollector(),
	}
}

// WithMetrics overrides the collector HTTP requests are recorded in
func (r *RequestInterceptor) WithMetrics(mc *MetricsCollector) *RequestInterceptor {
	r.metrics = mc
	return r
}

// InterceptRequest wraps fn with start/finish logging; panics are logged and re-raised
func (r *RequestInterceptor) InterceptRequest(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx = NewRequestContext(ctx, operation)
	startTime := time.Now()
	requestID := GetRequestID(ctx)

	r.logger.DebugContext(ctx, "Request started",
		slog.String("operation", operation),
		slog.String("request_id", requestID),
	)

	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.ErrorContext(ctx, "Request panicked",
				slog.String("operation", operation),
				slog.String("request_id", requestID),
				slog.Duration("duration", time.Since(startTime)),
				slog.Any("panic", recovered),
				slog.String("stack_trace", stackTrace()),
			)
			panic(recovered)
		}
	}()

	err := fn(ctx)
	LogLatency(ctx, r.logger, operation, time.Since(startTime), err)
	return err
}

// HTTPMiddleware returns an HTTP middleware that logs request lifecycle
func (r *RequestInterceptor) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		startTime := time.Now()

		ctx := req.Context()
		if id := req.Header.Get("X-Request-ID"); id != "" && GetRequestID(ctx) == "" {
			ctx = WithRequestID(ctx, id)
		}
		ctx = NewRequestContext(ctx, fmt.Sprintf("%s %s", req.Method, req.URL.Path))
		req = req.WithContext(ctx)
		requestID := GetRequestID(ctx)

		r.logger.InfoContext(ctx, "HTTP request started",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("remote_addr", req.RemoteAddr),
			slog.String("request_id", requestID),
		)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		defer func() {
			if recovered := recover(); recovered != nil {
				r.logger.ErrorContext(ctx, "HTTP request panicked",
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.String("request_id", requestID),
					slog.Any("panic", recovered),
					slog.String("stack_trace", stackTrace()),
				)
				if !wrapped.headerWritten {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}
		}()

		next.ServeHTTP(wrapped, req)

		duration := time.Since(startTime)
		if r.metrics != nil {
			r.metrics.RecordHTTPRequest(req.Method, routePattern(req), wrapped.statusCode, duration)
		}

		level := slog.LevelInfo
		if wrapped.statusCode >= 400 {
			level = slog.LevelWarn
		}
		r.logger.Log(ctx, level, "HTTP request completed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("request_id", requestID),
			slog.Int("status_code", wrapped.statusCode),
			slog.Duration("duration", duration),
		)
	})
}

// routePattern is the matched chi pattern, or UnmatchedRoute
func routePattern(req *http.Request) string {
	if rctx := chi.RouteContext(req.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return UnmatchedRoute
}

// responseWriter captures the status code and keeps streaming working
type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	headerWritten bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.headerWritten {
		return
	}
	rw.statusCode = statusCode
	rw.headerWritten = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.headerWritten = true
	return rw.ResponseWriter.Write(b)
}

// Flush lets SSE handlers push through the wrapper
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		rw.headerWritten = true
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// OperationTimer helps track operation latencies
type OperationTimer struct {
	logger    *slog.Logger
	operation string
	startTime time.Time
	ctx       context.Context
}

// StartTimer begins timing an operation; the start is logged at debug
func StartTimer(ctx context.Context, logger *slog.Logger, operation string) *OperationTimer {
	logger.DebugContext(ctx, "Operation started", slog.String("operation", operation))
	return &OperationTimer{
		logger:    logger,
		operation: operation,
		startTime: time.Now(),
		ctx:       ctx,
	}
}

// End completes the timer and logs the duration at debug
func (t *OperationTimer) End() time.Duration {
	duration := time.Since(t.startTime)
	t.logger.DebugContext(t.ctx, "Operation completed",
		slog.String("operation", t.operation),
		slog.Duration("duration", duration),
	)
	return duration
}

// EndWithError completes the timer, logging a warning when err is set
func (t *OperationTimer) EndWithError(err error) time.Duration {
	duration := time.Since(t.startTime)
	LogLatency(t.ctx, t.logger, t.operation, duration, err)
	return duration
}

// LogLatency logs an operation outcome with its duration
func LogLatency(ctx context.Context, logger *slog.Logger, operation string, duration time.Duration, err error) {
	if err != nil {
		logger.WarnContext(ctx, "Operation completed with error",
			slog.String("operation", operation),
			slog.String("request_id", GetRequestID(ctx)),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.DebugContext(ctx, "Operation completed",
		slog.String("operation", operation),
		slog.String("request_id", GetRequestID(ctx)),
		slog.Duration("duration", duration),
	)
}

func stackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
