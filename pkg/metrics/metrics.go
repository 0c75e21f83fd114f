// Package metrics exports call and webhook counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the support agent.
type Metrics struct {
	registry *prometheus.Registry

	// Live session metrics
	LiveSessionsActive  prometheus.Gauge
	LiveSessionsTotal   *prometheus.CounterVec
	LiveSessionDuration prometheus.Histogram
	LiveAudioBytesTotal *prometheus.CounterVec

	// Tool metrics
	ToolCallsTotal *prometheus.CounterVec

	// Chat metrics
	ChatTurnsTotal *prometheus.CounterVec

	// Webhook metrics
	WebhookUpdatesTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "whalespump"
	}

	registry := prometheus.NewRegistry()

	liveSessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of calls currently connected",
		},
	)

	liveSessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_total",
			Help:      "Total number of calls by teardown reason",
		},
		[]string{"outcome"},
	)

	liveSessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_session_duration_seconds",
			Help:      "Call duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	liveAudioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_audio_bytes_total",
			Help:      "Total PCM bytes sent and received during calls",
		},
		[]string{"direction"},
	)

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total tool invocations by tool and result",
		},
		[]string{"tool", "status"},
	)

	chatTurnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Total text chat turns by result",
		},
		[]string{"status"},
	)

	webhookUpdatesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_updates_total",
			Help:      "Total Telegram updates by kind",
		},
		[]string{"kind"},
	)

	registry.MustRegister(
		liveSessionsActive,
		liveSessionsTotal,
		liveSessionDuration,
		liveAudioBytesTotal,
		toolCallsTotal,
		chatTurnsTotal,
		webhookUpdatesTotal,
	)

	return &Metrics{
		registry:            registry,
		LiveSessionsActive:  liveSessionsActive,
		LiveSessionsTotal:   liveSessionsTotal,
		LiveSessionDuration: liveSessionDuration,
		LiveAudioBytesTotal: liveAudioBytesTotal,
		ToolCallsTotal:      toolCallsTotal,
		ChatTurnsTotal:      chatTurnsTotal,
		WebhookUpdatesTotal: webhookUpdatesTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CallStarted records a call attempt.
func (m *Metrics) CallStarted() {
	m.LiveSessionsActive.Inc()
}

// CallEnded records a call teardown.
func (m *Metrics) CallEnded(duration time.Duration, outcome string) {
	m.LiveSessionsActive.Dec()
	m.LiveSessionsTotal.WithLabelValues(outcome).Inc()
	m.LiveSessionDuration.Observe(duration.Seconds())
}

// AudioBytes records PCM bytes in one direction ("inbound" or "outbound").
func (m *Metrics) AudioBytes(direction string, n int) {
	if n > 0 {
		m.LiveAudioBytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

// ToolInvoked records a tool call result.
func (m *Metrics) ToolInvoked(name string, ok bool) {
	m.ToolCallsTotal.WithLabelValues(name, status(ok)).Inc()
}

func (m *Metrics) ChatTurn(ok bool) {
	m.ChatTurnsTotal.WithLabelValues(status(ok)).Inc()
}

// WebhookUpdate records a Telegram update by kind (start, text, relay, ignored, error).
func (m *Metrics) WebhookUpdate(kind string) {
	m.WebhookUpdatesTotal.WithLabelValues(kind).Inc()
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
