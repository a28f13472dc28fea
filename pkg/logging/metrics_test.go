package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace"
)

func TestNewMetricsCollector_Disabled(t *testing.T) {
	cfg := DefaultMetricsConfig()
	cfg.Enabled = false
	mc := NewMetricsCollector(cfg)
	if mc != nil {
		t.Fatal("expected nil collector")
	}

	// every method is safe on nil
	mc.SessionOpened("events")
	mc.SessionClosed("quota_exceeded")
	mc.RecordRPC("ping", "ok", time.Millisecond)
	mc.RecordStoreFault("replay")
	if mc.Registry() != nil {
		t.Error("expected nil registry")
	}

	rr := httptest.NewRecorder()
	mc.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestMetricsCollector_Records(t *testing.T) {
	cfg := DefaultMetricsConfig()
	cfg.EnableRuntime = false
	mc := NewMetricsCollector(cfg)

	mc.SessionOpened("gateway")
	mc.SessionOpened("events")
	mc.SessionClosed("quota_exceeded")
	mc.RecordEventPublished("registered")
	mc.RecordEventDelivered("registered")
	mc.RecordEventDelivered("registered")
	mc.RecordRPC("tools/call", "ok", 5*time.Millisecond)
	mc.RecordMailbox("take", "hit")
	mc.RecordStoreFault("replay")
	mc.RecordError("mailbox", "STORAGE_QUERY")
	mc.RecordHTTPRequest(http.MethodPost, "/message", http.StatusAccepted, time.Millisecond)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"active sessions", testutil.ToFloat64(mc.sessionsActive), 1},
		{"gateway opened", testutil.ToFloat64(mc.sessionsOpened.WithLabelValues("gateway")), 1},
		{"quota closes", testutil.ToFloat64(mc.sessionCloses.WithLabelValues("quota_exceeded")), 1},
		{"published", testutil.ToFloat64(mc.eventsPublished.WithLabelValues("registered")), 1},
		{"delivered", testutil.ToFloat64(mc.eventsDelivered.WithLabelValues("registered")), 2},
		{"rpc", testutil.ToFloat64(mc.rpcRequests.WithLabelValues("tools/call", "ok")), 1},
		{"mailbox", testutil.ToFloat64(mc.mailboxOps.WithLabelValues("take", "hit")), 1},
		{"store faults", testutil.ToFloat64(mc.storeFaults.WithLabelValues("replay")), 1},
		{"errors", testutil.ToFloat64(mc.errors.WithLabelValues("mailbox", "STORAGE_QUERY")), 1},
		{"http", testutil.ToFloat64(mc.httpRequests.WithLabelValues("POST", "/message", "202")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	rr := httptest.NewRecorder()
	mc.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "registry_gateway_events_delivered_total") {
		t.Errorf("exposition missing metric:\n%s", rr.Body.String())
	}
}

func TestStartSpan_NoopProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "eventlog.replay", AttrEventType.String("registered"))
	defer span.End()

	RecordError(span, nil)
	RecordError(nil, context.Canceled)
	if TraceAttrs(ctx) != nil {
		t.Error("expected no trace attrs without a sampled span")
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{2},
		TraceFlags: trace.FlagsSampled,
	})
	attrs := TraceAttrs(trace.ContextWithSpanContext(context.Background(), sc))
	if len(attrs) != 2 || attrs[0].Key != "trace_id" || attrs[1].Key != "span_id" {
		t.Errorf("unexpected attrs: %v", attrs)
	}
}
