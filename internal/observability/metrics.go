// Package observability bundles Prometheus metrics and OpenTelemetry tracing
// for the daemon.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the counters and histograms exposed on /metrics.
type Metrics struct {
	// MessageCounter tracks chat messages by channel and direction.
	// Labels: channel (web|discord|collector), direction (inbound|outbound)
	MessageCounter *prometheus.CounterVec

	// LLMRequestDuration measures model API latency in seconds.
	// Labels: endpoint (chat|generate|embed), model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts model requests.
	// Labels: endpoint, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// SkillExecutionCounter counts skill invocations.
	// Labels: skill, status (success|error)
	SkillExecutionCounter *prometheus.CounterVec

	// SkillExecutionDuration measures skill execution time in seconds.
	// Labels: skill
	SkillExecutionDuration *prometheus.HistogramVec

	// DelegationCounter counts sub-agent delegations.
	// Labels: agent, status (success|denied|error)
	DelegationCounter *prometheus.CounterVec

	// EventCounter counts bus events by type.
	EventCounter *prometheus.CounterVec

	// AutomationCounter counts automation rule firings.
	// Labels: rule, status (ok|error)
	AutomationCounter *prometheus.CounterVec

	// ScheduledRunCounter counts cron job executions by job name.
	ScheduledRunCounter *prometheus.CounterVec

	// NotificationCounter counts notification deliveries.
	// Labels: channel (web|discord), status (sent|failed)
	NotificationCounter *prometheus.CounterVec

	// ActiveWebsockets gauges currently connected chat sockets.
	ActiveWebsockets prometheus.Gauge
}

// NewMetrics registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics on the given registerer. Tests pass a
// fresh registry to avoid duplicate-registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessageCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frieda_messages_total",
				Help: "Chat messages processed by channel and direction",
			},
			[]string{"channel", "direction"},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frieda_llm_request_duration_seconds",
				Help:    "Duration of model API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint", "model"},
		),
		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frieda_llm_requests_total",
				Help: "Model API requests by endpoint, model, and status",
			},
			[]string{"endpoint", "model", "status"},
		),
		SkillExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frieda_skill_executions_total",
				Help: "Skill invocations by skill and status",
			},
			[]string{"skill", "status"},
		),
		SkillExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frieda_skill_execution_duration_seconds",
				Help:    "Duration of skill executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"skill"},
		),
		DelegationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frieda_delegations_total",
				Help: "Sub-agent delegations by agent and status",
			},
			[]string{"agent", "status"},
		),
		EventCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frieda_events_total",
				Help: "Bus events emitted by type",
			},
			[]string{"type"},
		),
		AutomationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frieda_automation_triggers_total",
				Help: "Automation rule firings by rule and status",
			},
			[]string{"rule", "status"},
		),
		ScheduledRunCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frieda_scheduled_runs_total",
				Help: "Cron job executions by job name",
			},
			[]string{"job"},
		),
		NotificationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frieda_notifications_total",
				Help: "Notification deliveries by channel and status",
			},
			[]string{"channel", "status"},
		),
		ActiveWebsockets: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "frieda_active_websockets",
				Help: "Currently connected chat websockets",
			},
		),
	}
}

// MessageReceived counts one inbound message on a channel.
func (m *Metrics) MessageReceived(channel string) {
	m.MessageCounter.WithLabelValues(channel, "inbound").Inc()
}

// MessageSent counts one outbound message on a channel.
func (m *Metrics) MessageSent(channel string) {
	m.MessageCounter.WithLabelValues(channel, "outbound").Inc()
}

// ObserveLLMRequest records one model API call.
func (m *Metrics) ObserveLLMRequest(endpoint, model string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.LLMRequestCounter.WithLabelValues(endpoint, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(endpoint, model).Observe(d.Seconds())
}

// ObserveSkillExecution records one skill invocation.
func (m *Metrics) ObserveSkillExecution(skill string, d time.Duration, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	m.SkillExecutionCounter.WithLabelValues(skill, status).Inc()
	m.SkillExecutionDuration.WithLabelValues(skill).Observe(d.Seconds())
}
