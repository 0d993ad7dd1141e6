// Package metrics provides Prometheus metrics collection for the monitor.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nodewatch/storj-node-monitor/infrastructure/runtime"
)

// Metrics holds all Prometheus metrics exposed by the monitor.
type Metrics struct {
	// HTTP / WebSocket management API metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Ingestion pipeline metrics
	EventsIngestedTotal *prometheus.CounterVec
	LinesParsedTotal    *prometheus.CounterVec
	ParseErrorsTotal    *prometheus.CounterVec

	// DB writer metrics
	DBBatchesTotal       *prometheus.CounterVec
	DBBatchSize          *prometheus.HistogramVec
	DBQueueDepth         prometheus.Gauge
	DBQueriesTotal       *prometheus.CounterVec
	DBQueryDuration      *prometheus.HistogramVec
	DBConnectionsOpen    prometheus.Gauge
	DBRetriesTotal       *prometheus.CounterVec

	// Broadcaster metrics
	WebSocketClients      prometheus.Gauge
	BroadcastsTotal       *prometheus.CounterVec
	BroadcastFailuresTotal *prometheus.CounterVec

	// Alerting metrics
	AlertsGeneratedTotal  *prometheus.CounterVec
	AlertsSuppressedTotal *prometheus.CounterVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),

		EventsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_ingested_total",
				Help: "Total number of traffic events ingested, by node and category",
			},
			[]string{"node", "category", "status"},
		),
		LinesParsedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "log_lines_parsed_total",
				Help: "Total number of log lines successfully parsed, by node",
			},
			[]string{"node"},
		),
		ParseErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "log_parse_errors_total",
				Help: "Total number of log lines dropped due to parse errors, by node",
			},
			[]string{"node"},
		),

		DBBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_batches_total",
				Help: "Total number of event batches committed to the database",
			},
			[]string{"status"},
		),
		DBBatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_batch_size",
				Help:    "Number of events committed per batch",
				Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 50000},
			},
			[]string{"status"},
		),
		DBQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_queue_depth",
				Help: "Current depth of the pending event queue",
			},
		),
		DBQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "status"},
		),
		DBQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
			},
			[]string{"operation"},
		),
		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_open",
				Help: "Current number of open database connections",
			},
		),
		DBRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_retries_total",
				Help: "Total number of retried database operations",
			},
			[]string{"operation"},
		),

		WebSocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "websocket_clients",
				Help: "Current number of connected WebSocket clients",
			},
		),
		BroadcastsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcasts_total",
				Help: "Total number of broadcast frames sent",
			},
			[]string{"frame_type"},
		),
		BroadcastFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_failures_total",
				Help: "Total number of per-client broadcast send failures",
			},
			[]string{"frame_type"},
		),

		AlertsGeneratedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_generated_total",
				Help: "Total number of alerts generated, by type and severity",
			},
			[]string{"alert_type", "severity"},
		),
		AlertsSuppressedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_suppressed_total",
				Help: "Total number of alerts suppressed by cooldown",
			},
			[]string{"alert_type"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.EventsIngestedTotal,
			m.LinesParsedTotal,
			m.ParseErrorsTotal,
			m.DBBatchesTotal,
			m.DBBatchSize,
			m.DBQueueDepth,
			m.DBQueriesTotal,
			m.DBQueryDuration,
			m.DBConnectionsOpen,
			m.DBRetriesTotal,
			m.WebSocketClients,
			m.BroadcastsTotal,
			m.BroadcastFailuresTotal,
			m.AlertsGeneratedTotal,
			m.AlertsSuppressedTotal,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error.
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// RecordDBQuery records a database query.
func (m *Metrics) RecordDBQuery(operation, status string, duration time.Duration) {
	m.DBQueriesTotal.WithLabelValues(operation, status).Inc()
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDBBatch records a committed event batch.
func (m *Metrics) RecordDBBatch(status string, size int) {
	m.DBBatchesTotal.WithLabelValues(status).Inc()
	m.DBBatchSize.WithLabelValues(status).Observe(float64(size))
}

// SetDBConnections sets the number of open database connections.
func (m *Metrics) SetDBConnections(count int) {
	m.DBConnectionsOpen.Set(float64(count))
}

// SetDBQueueDepth sets the current pending event queue depth.
func (m *Metrics) SetDBQueueDepth(depth int) {
	m.DBQueueDepth.Set(float64(depth))
}

// UpdateUptime updates the service uptime.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight requests counter.
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests counter.
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

// RecordLineParsed records one successfully parsed log line for node.
func (m *Metrics) RecordLineParsed(node string) {
	m.LinesParsedTotal.WithLabelValues(node).Inc()
}

// RecordParseError records one log line dropped for a parse error.
func (m *Metrics) RecordParseError(node string) {
	m.ParseErrorsTotal.WithLabelValues(node).Inc()
}

// RecordEventIngested records one domain event routed to the sink, by
// category (traffic, compaction_begin, compaction_end) and outcome.
func (m *Metrics) RecordEventIngested(node, category, status string) {
	m.EventsIngestedTotal.WithLabelValues(node, category, status).Inc()
}

// SetWebSocketClients sets the current connected WebSocket client count.
func (m *Metrics) SetWebSocketClients(count int) {
	m.WebSocketClients.Set(float64(count))
}

// RecordBroadcast records a broadcast frame send, and how many per-client
// deliveries within it failed.
func (m *Metrics) RecordBroadcast(frameType string, failures int) {
	m.BroadcastsTotal.WithLabelValues(frameType).Inc()
	if failures > 0 {
		m.BroadcastFailuresTotal.WithLabelValues(frameType).Add(float64(failures))
	}
}

// RecordAlertGenerated records a newly generated alert.
func (m *Metrics) RecordAlertGenerated(alertType string, severity string) {
	m.AlertsGeneratedTotal.WithLabelValues(alertType, severity).Inc()
}

// RecordAlertSuppressed records an alert candidate suppressed by cooldown.
func (m *Metrics) RecordAlertSuppressed(alertType string) {
	m.AlertsSuppressedTotal.WithLabelValues(alertType).Inc()
}

// Helper functions

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
