package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sensor_link"

// Metrics holds the Prometheus instruments for the command/telemetry session.
type Metrics struct {
	connectionStatus prometheus.Gauge
	connectionLost   prometheus.Counter
	stateTransitions *prometheus.CounterVec
	messagesTotal    *prometheus.CounterVec
	commandsTotal    *prometheus.CounterVec
	publishTotal     *prometheus.CounterVec
	pendingHandles   prometheus.Gauge
	messageRate      prometheus.Gauge
	uptimeSeconds    prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg.
// A nil registerer leaves the instruments unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "Transport connection status (1 connected, 0 disconnected)",
		}),
		connectionLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_lost_total",
			Help:      "Number of connection-lost events reported by the transport",
		}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Session state transitions by target state",
		}, []string{"state"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Delivered messages by outcome",
		}, []string{"status"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Decoded commands by decode strategy",
		}, []string{"strategy"}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Publish attempts by outcome",
		}, []string{"status"}),
		pendingHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_completion_handles",
			Help:      "Completion handles retained for in-flight connect/subscribe requests",
		}),
		messageRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "message_rate",
			Help:      "Average delivered messages per second since start",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the process started",
		}),
	}

	if reg == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{
		m.connectionStatus,
		m.connectionLost,
		m.stateTransitions,
		m.messagesTotal,
		m.commandsTotal,
		m.publishTotal,
		m.pendingHandles,
		m.messageRate,
		m.uptimeSeconds,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) SetConnectionStatus(connected bool) {
	if connected {
		m.connectionStatus.Set(1)
	} else {
		m.connectionStatus.Set(0)
	}
}

func (m *Metrics) IncConnectionLost() {
	m.connectionLost.Inc()
}

func (m *Metrics) IncStateTransition(state string) {
	m.stateTransitions.WithLabelValues(state).Inc()
}

// IncMessagesTotal counts delivered messages; status is one of
// received, ignored, decoded, dropped.
func (m *Metrics) IncMessagesTotal(status string) {
	m.messagesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncCommandsTotal(strategy string) {
	m.commandsTotal.WithLabelValues(strategy).Inc()
}

func (m *Metrics) IncPublishTotal(status string) {
	m.publishTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) SetPendingHandles(n int) {
	m.pendingHandles.Set(float64(n))
}

func (m *Metrics) SetMessageRate(rate float64) {
	m.messageRate.Set(rate)
}

func (m *Metrics) SetUptime(seconds float64) {
	m.uptimeSeconds.Set(seconds)
}
