package errors

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

// Logger logs AppErrors with their code and records them as metrics
type Logger struct {
	logger    *slog.Logger
	component string
}

// NewLogger creates an error logger bound to a component logger from the global factory
func NewLogger(component string) *Logger {
	return &Logger{
		logger:    logging.GetGlobalLogger(component),
		component: component,
	}
}

// NewLoggerWithSlog wraps an existing slog logger
func NewLoggerWithSlog(logger *slog.Logger, component string) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger, component: component}
}

// LogError logs err at a level derived from its code and returns it unchanged
func (l *Logger) LogError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	code := GetCode(err)
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("error_code", string(code)),
		slog.String("error", err.Error()),
	}
	if requestID := logging.GetRequestID(ctx); requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}
	if sessionID := logging.GetSessionID(ctx); sessionID != "" {
		attrs = append(attrs, slog.String("session_id", sessionID))
	}
	if correlationID := logging.GetCorrelationID(ctx); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}
	if appErr, ok := As(err); ok && appErr.Details != nil {
		attrs = append(attrs, slog.Any("details", appErr.Details))
	}
	attrs = append(attrs, logging.TraceAttrs(ctx)...)

	l.logger.LogAttrs(ctx, levelForCode(code), "Operation failed", attrs...)

	if mc := logging.GetGlobalMetricsCollector(); mc != nil {
		mc.RecordError(l.component, string(code))
	}
	return err
}

// LogAndWrap wraps err with code and logs the result
func (l *Logger) LogAndWrap(ctx context.Context, err error, code ErrorCode, message, operation string) *AppError {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, code, message)
	l.LogError(ctx, wrapped, operation)
	return wrapped
}

// LogPanic converts a recovered panic into an AppError and logs it with the stack
func (l *Logger) LogPanic(ctx context.Context, recovered interface{}, operation string) *AppError {
	appErr := Newf(ErrCodePanic, "%v", recovered)

	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	stack := strings.Split(strings.TrimSpace(string(buf[:n])), "\n")

	l.logger.ErrorContext(ctx, "Recovered from panic",
		slog.String("operation", operation),
		slog.String("panic", fmt.Sprint(recovered)),
		slog.Any("stack", stack),
	)
	if mc := logging.GetGlobalMetricsCollector(); mc != nil {
		mc.RecordError(l.component, string(ErrCodePanic))
	}
	return appErr
}

func levelForCode(code ErrorCode) slog.Level {
	switch {
	case code == ErrCodeContextCanceled:
		return slog.LevelDebug
	case strings.HasPrefix(string(code), "VALIDATION_"),
		strings.HasPrefix(string(code), "PROTOCOL_"),
		code == ErrCodeServerNotFound,
		code == ErrCodeEventType:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
