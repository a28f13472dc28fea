package logging

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig defines configuration for metrics collection
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Path          string `yaml:"path,omitempty" json:"path,omitempty"`
	Namespace     string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Subsystem     string `yaml:"subsystem,omitempty" json:"subsystem,omitempty"`
	EnableRuntime bool   `yaml:"enableRuntime" json:"enableRuntime"`
}

// DefaultMetricsConfig returns default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:       true,
		Path:          "/metrics",
		Namespace:     "registry",
		Subsystem:     "gateway",
		EnableRuntime: true,
	}
}

// MetricsCollector holds the gateway's prometheus metrics on a private registry.
// All methods are no-ops on a nil collector.
type MetricsCollector struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	sessionsActive prometheus.Gauge
	sessionsOpened *prometheus.CounterVec
	sessionCloses  *prometheus.CounterVec

	eventsPublished *prometheus.CounterVec
	eventsDelivered *prometheus.CounterVec

	rpcRequests *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec

	mailboxOps  *prometheus.CounterVec
	storeFaults *prometheus.CounterVec
	errors      *prometheus.CounterVec

	registry *prometheus.Registry
	config   MetricsConfig
}

// NewMetricsCollector creates a new metrics collector, nil when disabled
func NewMetricsCollector(config MetricsConfig) *MetricsCollector {
	if !config.Enabled {
		return nil
	}

	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		config:   config,
	}
	mc.initializeMetrics()

	mc.registry.MustRegister(
		mc.httpRequests, mc.httpDuration,
		mc.sessionsActive, mc.sessionsOpened, mc.sessionCloses,
		mc.eventsPublished, mc.eventsDelivered,
		mc.rpcRequests, mc.rpcDuration,
		mc.mailboxOps, mc.storeFaults, mc.errors,
	)
	if config.EnableRuntime {
		mc.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return mc
}

func (mc *MetricsCollector) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: mc.config.Namespace,
		Subsystem: mc.config.Subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (mc *MetricsCollector) initializeMetrics() {
	mc.httpRequests = mc.counter("http_requests_total", "Total number of HTTP requests", "method", "path", "status_code")
	mc.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: mc.config.Namespace,
		Subsystem: mc.config.Subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds, push channels included",
		Buckets:   []float64{0.005, 0.05, 0.5, 5, 15, 30, 60},
	}, []string{"method", "path"})

	mc.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: mc.config.Namespace,
		Subsystem: mc.config.Subsystem,
		Name:      "sessions_active",
		Help:      "Number of open push-channel sessions",
	})
	mc.sessionsOpened = mc.counter("sessions_opened_total", "Push-channel sessions opened", "kind")
	mc.sessionCloses = mc.counter("session_closes_total", "Push-channel sessions closed by reason", "reason")

	mc.eventsPublished = mc.counter("events_published_total", "Change events appended to the event log", "type")
	mc.eventsDelivered = mc.counter("events_delivered_total", "Change events pushed to subscribers", "type")

	mc.rpcRequests = mc.counter("rpc_requests_total", "JSON-RPC messages dispatched", "method", "outcome")
	mc.rpcDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: mc.config.Namespace,
		Subsystem: mc.config.Subsystem,
		Name:      "rpc_duration_seconds",
		Help:      "Duration of JSON-RPC dispatch in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	mc.mailboxOps = mc.counter("mailbox_operations_total", "Mailbox submissions and takes", "operation", "result")
	mc.storeFaults = mc.counter("store_faults_total", "Record store failures observed by poll loops", "operation")
	mc.errors = mc.counter("errors_total", "Errors logged by component and code", "component", "code")
}

func (mc *MetricsCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	mc.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SessionOpened increments the active gauge; pair with SessionClosed
func (mc *MetricsCollector) SessionOpened(kind string) {
	if mc == nil {
		return
	}
	mc.sessionsActive.Inc()
	mc.sessionsOpened.WithLabelValues(kind).Inc()
}

func (mc *MetricsCollector) SessionClosed(reason string) {
	if mc == nil {
		return
	}
	mc.sessionsActive.Dec()
	mc.sessionCloses.WithLabelValues(reason).Inc()
}

func (mc *MetricsCollector) RecordEventPublished(eventType string) {
	if mc == nil {
		return
	}
	mc.eventsPublished.WithLabelValues(eventType).Inc()
}

func (mc *MetricsCollector) RecordEventDelivered(eventType string) {
	if mc == nil {
		return
	}
	mc.eventsDelivered.WithLabelValues(eventType).Inc()
}

func (mc *MetricsCollector) RecordRPC(method, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.rpcRequests.WithLabelValues(method, outcome).Inc()
	mc.rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (mc *MetricsCollector) RecordMailbox(operation, result string) {
	if mc == nil {
		return
	}
	mc.mailboxOps.WithLabelValues(operation, result).Inc()
}

func (mc *MetricsCollector) RecordStoreFault(operation string) {
	if mc == nil {
		return
	}
	mc.storeFaults.WithLabelValues(operation).Inc()
}

func (mc *MetricsCollector) RecordError(component, code string) {
	if mc == nil {
		return
	}
	mc.errors.WithLabelValues(component, code).Inc()
}

// Registry exposes the private registry, mainly for tests
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}

// Handler serves the collector in the prometheus text format
func (mc *MetricsCollector) Handler() http.Handler {
	if mc == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics disabled", http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{Registry: mc.registry})
}
