package logging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	contextKeyRequestID     contextKey = "request_id"
	contextKeySessionID     contextKey = "session_id"
	contextKeyCorrelationID contextKey = "correlation_id"
	contextKeyOperation     contextKey = "operation"
	contextKeyComponent     contextKey = "component"
	contextKeyStartTime     contextKey = "start_time"
)

// RequestContext holds request-scoped metadata
type RequestContext struct {
	RequestID     string
	SessionID     string
	CorrelationID string
	Operation     string
	Component     string
	StartTime     time.Time
}

func stringValue(ctx context.Context, key contextKey) string {
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, contextKeyRequestID)
}

// WithSessionID tags the context with a push-channel session
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKeySessionID, sessionID)
}

func GetSessionID(ctx context.Context) string {
	return stringValue(ctx, contextKeySessionID)
}

// WithCorrelationID tags the context with the mailbox correlation id
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, contextKeyCorrelationID, correlationID)
}

func GetCorrelationID(ctx context.Context) string {
	return stringValue(ctx, contextKeyCorrelationID)
}

func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, contextKeyOperation, operation)
}

func GetOperation(ctx context.Context) string {
	return stringValue(ctx, contextKeyOperation)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, contextKeyComponent, component)
}

func GetComponent(ctx context.Context) string {
	return stringValue(ctx, contextKeyComponent)
}

func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, contextKeyStartTime, startTime)
}

func GetStartTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextKeyStartTime).(time.Time); ok {
		return t
	}
	return time.Time{}
}

// GetDuration returns the time elapsed since the context's start time, zero if unset
func GetDuration(ctx context.Context) time.Duration {
	startTime := GetStartTime(ctx)
	if startTime.IsZero() {
		return 0
	}
	return time.Since(startTime)
}

// NewRequestContext ensures ctx carries a request ID, the operation and a start time
func NewRequestContext(ctx context.Context, operation string) context.Context {
	if GetRequestID(ctx) == "" {
		ctx = WithRequestID(ctx, GenerateID())
	}
	if operation != "" {
		ctx = WithOperation(ctx, operation)
	}
	return WithStartTime(ctx, time.Now())
}

// ExtractRequestContext collects the logging metadata of ctx
func ExtractRequestContext(ctx context.Context) *RequestContext {
	return &RequestContext{
		RequestID:     GetRequestID(ctx),
		SessionID:     GetSessionID(ctx),
		CorrelationID: GetCorrelationID(ctx),
		Operation:     GetOperation(ctx),
		Component:     GetComponent(ctx),
		StartTime:     GetStartTime(ctx),
	}
}

// Attrs returns the non-empty fields as slog arguments
func (rc *RequestContext) Attrs() []any {
	var args []any
	if rc.RequestID != "" {
		args = append(args, "request_id", rc.RequestID)
	}
	if rc.SessionID != "" {
		args = append(args, "session_id", rc.SessionID)
	}
	if rc.CorrelationID != "" {
		args = append(args, "correlation_id", rc.CorrelationID)
	}
	if rc.Operation != "" {
		args = append(args, "operation", rc.Operation)
	}
	return args
}

// GenerateID returns a random request identifier
func GenerateID() string {
	return uuid.NewString()
}
