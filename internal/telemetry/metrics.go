package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the gateway.
type Metrics struct {
	stageDuration  *prometheus.HistogramVec
	messages       *prometheus.CounterVec
	connections    prometheus.Gauge
	proxyRequests  *prometheus.CounterVec
	collectedChunk prometheus.Counter
}

// MustNewMetrics constructs Metrics registered with reg. A nil registerer
// uses the default one. Registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "session",
				Name:      "stage_duration_seconds",
				Help:      "Duration spent in each user message pipeline stage.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage", "status"},
		),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "session",
				Name:      "messages_total",
				Help:      "Client messages handled, by type and result.",
			},
			[]string{"type", "result"},
		),
		connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "ws",
				Name:      "connections_active",
				Help:      "Number of open duplex connections.",
			},
		),
		proxyRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Proxied upstream requests, by target and mode.",
			},
			[]string{"target", "mode", "status"},
		),
		collectedChunk: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "proxy",
				Name:      "collected_streams_total",
				Help:      "Upstream streams aggregated into a single response.",
			},
		),
	}
	reg.MustRegister(m.stageDuration, m.messages, m.connections, m.proxyRequests, m.collectedChunk)
	return m
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// IncMessage counts a handled client message.
func (m *Metrics) IncMessage(msgType, result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(msgType, result).Inc()
}

// ConnectionOpened increments the open connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed decrements the open connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// IncProxyRequest counts a proxied request.
func (m *Metrics) IncProxyRequest(target, mode, status string) {
	if m == nil {
		return
	}
	m.proxyRequests.WithLabelValues(target, mode, status).Inc()
}

// IncCollected counts a stream aggregated by the collector.
func (m *Metrics) IncCollected() {
	if m == nil {
		return
	}
	m.collectedChunk.Inc()
}
