package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the userbot relay service
type Metrics struct {
	// Dispatch metrics
	SendsTotal       *prometheus.CounterVec
	JoinsTotal       *prometheus.CounterVec
	SendDuration     prometheus.Histogram
	CooldownWaits    prometheus.Counter
	CooldownWaitTime prometheus.Counter
	FloodWaits       prometheus.Counter
	FloodWaitTime    prometheus.Counter

	// Connection metrics
	ActiveConnections prometheus.Gauge
	ConnectionDials   prometheus.Counter
	ConnectionErrors  prometheus.Counter

	// Login flow metrics
	LoginFlowsStarted   prometheus.Counter
	LoginFlowsCompleted prometheus.Counter
	LoginFlowsFailed    prometheus.Counter
}

var (
	// DefaultMetrics is the default metrics instance
	DefaultMetrics *Metrics
	once           sync.Once
)

// GetDefaultMetrics returns the singleton metrics instance
func GetDefaultMetrics() *Metrics {
	once.Do(func() {
		DefaultMetrics = NewMetrics()
	})
	return DefaultMetrics
}

func init() {
	// Initialize DefaultMetrics on package import
	GetDefaultMetrics()
}

// NewMetrics creates a new Metrics instance with all counters and gauges
func NewMetrics() *Metrics {
	return &Metrics{
		SendsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "userbot_relay_sends_total",
			Help: "Total number of outbound message sends by result",
		}, []string{"result"}),
		JoinsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "userbot_relay_joins_total",
			Help: "Total number of chat join attempts by result",
		}, []string{"result"}),
		SendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "userbot_relay_send_duration_seconds",
			Help:    "Duration of dispatch operations including pacing and backoff",
			Buckets: []float64{1, 3, 5, 10, 30, 60, 120, 300},
		}),
		CooldownWaits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "userbot_relay_cooldown_waits_total",
			Help: "Number of sends that had to wait out a chat cooldown window",
		}),
		CooldownWaitTime: promauto.NewCounter(prometheus.CounterOpts{
			Name: "userbot_relay_cooldown_wait_seconds_total",
			Help: "Cumulative seconds spent waiting out cooldown windows",
		}),
		FloodWaits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "userbot_relay_flood_waits_total",
			Help: "Number of flood-wait signals received from Telegram",
		}),
		FloodWaitTime: promauto.NewCounter(prometheus.CounterOpts{
			Name: "userbot_relay_flood_wait_seconds_total",
			Help: "Cumulative seconds spent in flood-wait backoff",
		}),
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "userbot_relay_active_connections",
			Help: "Number of live cached userbot connections",
		}),
		ConnectionDials: promauto.NewCounter(prometheus.CounterOpts{
			Name: "userbot_relay_connection_dials_total",
			Help: "Number of new connection attempts",
		}),
		ConnectionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "userbot_relay_connection_errors_total",
			Help: "Number of failed connection attempts",
		}),
		LoginFlowsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "userbot_relay_login_flows_started_total",
			Help: "Number of login flows started",
		}),
		LoginFlowsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "userbot_relay_login_flows_completed_total",
			Help: "Number of login flows completed successfully",
		}),
		LoginFlowsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "userbot_relay_login_flows_failed_total",
			Help: "Number of login flows discarded on failure",
		}),
	}
}

// RecordSend records a send outcome
func (m *Metrics) RecordSend(ok bool, duration time.Duration) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.SendsTotal.WithLabelValues(result).Inc()
	m.SendDuration.Observe(duration.Seconds())
}

// RecordJoin records a join outcome
func (m *Metrics) RecordJoin(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.JoinsTotal.WithLabelValues(result).Inc()
}

// RecordFloodWait records one flood-wait backoff
func (m *Metrics) RecordFloodWait(wait time.Duration) {
	m.FloodWaits.Inc()
	m.FloodWaitTime.Add(wait.Seconds())
}

// RecordCooldownWait records one cooldown wait
func (m *Metrics) RecordCooldownWait(wait time.Duration) {
	m.CooldownWaits.Inc()
	m.CooldownWaitTime.Add(wait.Seconds())
}

// UpdateActiveConnections sets the live connection gauge
func (m *Metrics) UpdateActiveConnections(n int) {
	m.ActiveConnections.Set(float64(n))
}
