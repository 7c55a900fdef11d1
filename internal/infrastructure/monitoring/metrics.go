package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can run without instrumentation in tests.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSHandshakes  *prometheus.CounterVec
	WSMessages    *prometheus.CounterVec

	// Broadcast metrics
	BroadcastsTotal   prometheus.Counter
	BroadcastDeliver  prometheus.Counter
	BroadcastFailures prometheus.Counter

	// Store metrics
	StoreOps      *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec

	// Maintenance metrics
	BackupsTotal   *prometheus.CounterVec
	RemindersTotal *prometheus.CounterVec

	startTime time.Time

	// Snapshot for the JSON health API
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON health API
type Snapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveConnections int64   `json:"active_connections"`
	MessagesIn        int64   `json:"messages_in"`
	Broadcasts        int64   `json:"broadcasts"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics registers every collector with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{startTime: time.Now()}

	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "todosync_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	m.WSConnections = factory.NewGauge(prometheus.GaugeOpts{
		Name: "todosync_ws_connections",
		Help: "Number of open WebSocket connections",
	})
	m.WSHandshakes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_ws_handshakes_total",
			Help: "WebSocket handshakes by outcome",
		},
		[]string{"result"},
	)
	m.WSMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_ws_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction", "type"},
	)

	m.BroadcastsTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "todosync_broadcasts_total",
		Help: "Number of broadcast operations",
	})
	m.BroadcastDeliver = factory.NewCounter(prometheus.CounterOpts{
		Name: "todosync_broadcast_deliveries_total",
		Help: "Frames delivered by broadcasts",
	})
	m.BroadcastFailures = factory.NewCounter(prometheus.CounterOpts{
		Name: "todosync_broadcast_failures_total",
		Help: "Connections pruned after a failed broadcast write",
	})

	m.StoreOps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_store_operations_total",
			Help: "Task store operations by outcome",
		},
		[]string{"op", "status"},
	)
	m.StoreDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "todosync_store_duration_seconds",
			Help:    "Task store operation duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"op"},
	)

	m.BackupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_backups_total",
			Help: "Backup runs by outcome",
		},
		[]string{"status"},
	)
	m.RemindersTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todosync_reminders_total",
			Help: "Reminder digests by outcome",
		},
		[]string{"status"},
	)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "todosync_uptime_seconds",
		Help: "Process uptime in seconds",
	}, func() float64 { return time.Since(m.startTime).Seconds() })

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordHandshake records the outcome of an opening handshake
func (m *Metrics) RecordHandshake(result string) {
	if m == nil {
		return
	}
	m.WSHandshakes.WithLabelValues(result).Inc()
}

// RecordWSMessage records a WebSocket message. direction is "in" or "out".
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
	if direction == "in" {
		m.mu.Lock()
		m.snapshot.MessagesIn++
		m.mu.Unlock()
	}
}

// IncWSConnections increments open connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements open connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// RecordBroadcast records one fan-out
func (m *Metrics) RecordBroadcast(delivered, failed int) {
	if m == nil {
		return
	}
	m.BroadcastsTotal.Inc()
	m.BroadcastDeliver.Add(float64(delivered))
	m.BroadcastFailures.Add(float64(failed))
	m.mu.Lock()
	m.snapshot.Broadcasts++
	m.mu.Unlock()
}

// RecordStoreOp records a store call
func (m *Metrics) RecordStoreOp(op, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StoreOps.WithLabelValues(op, status).Inc()
	m.StoreDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordBackup records a backup run
func (m *Metrics) RecordBackup(status string) {
	if m == nil {
		return
	}
	m.BackupsTotal.WithLabelValues(status).Inc()
}

// RecordReminder records a reminder attempt
func (m *Metrics) RecordReminder(status string) {
	if m == nil {
		return
	}
	m.RemindersTotal.WithLabelValues(status).Inc()
}

// Snapshot returns a copy of the current values
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
