package chat

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tyrowin/linechat/internal/moderation"
)

// Metrics exports hub counters. A nil *Metrics records nothing.
type Metrics struct {
	sessions prometheus.Gauge
	pending  prometheus.Gauge
	messages *prometheus.CounterVec
	commands *prometheus.CounterVec
}

// NewMetrics creates the hub collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "linechat",
			Name:      "sessions",
			Help:      "Number of live chat sessions.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "linechat",
			Name:      "delayed_broadcasts_pending",
			Help:      "Number of /delay broadcasts waiting for their timer.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linechat",
			Name:      "chat_messages_total",
			Help:      "Ordinary chat messages by moderation outcome.",
		}, []string{"outcome"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linechat",
			Name:      "commands_total",
			Help:      "Slash commands by keyword.",
		}, []string{"command"}),
	}
	reg.MustRegister(m.sessions, m.pending, m.messages, m.commands)
	return m
}

func (m *Metrics) setSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) message(r moderation.Restriction) {
	if m == nil {
		return
	}
	outcome := "broadcast"
	if r != moderation.None {
		outcome = r.String()
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) command(name string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name).Inc()
}
