package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/JamesPrial/mcp-registry-gateway"

// Span attribute keys shared by the dispatcher, event log and session loop
const (
	AttrRPCMethod     = attribute.Key("rpc.method")
	AttrToolName      = attribute.Key("mcp.tool.name")
	AttrEventType     = attribute.Key("event.type")
	AttrResultCount   = attribute.Key("result.count")
	AttrSessionID     = attribute.Key("session.id")
	AttrCorrelationID = attribute.Key("mailbox.correlation_id")
)

// StartSpan starts a span on the global tracer provider. With no provider
// installed this is otel's no-op tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks span as failed; nil errors are ignored
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}

// TraceAttrs returns trace and span ids for log correlation when ctx carries a sampled span
func TraceAttrs(ctx context.Context) []slog.Attr {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []slog.Attr{
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	}
}
