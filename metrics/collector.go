// Package metrics exports the FIX engine's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tradewire/gofix/fix"
)

const (
	namespace = "fix"
	subsystem = "engine"
)

// Label names for engine metrics.
const (
	labelSession = "session"
	labelState   = "state"
)

// Collector holds all engine Prometheus metrics and implements
// fix.MetricsReporter.
type Collector struct {
	// SessionState tracks each session's current state as a one-hot
	// gauge over the state label.
	SessionState *prometheus.GaugeVec

	// MessagesSent counts outbound messages per session.
	MessagesSent *prometheus.CounterVec

	// MessagesReceived counts inbound messages per session.
	MessagesReceived *prometheus.CounterVec

	// Rejects counts session-level and business-level rejects emitted.
	Rejects *prometheus.CounterVec

	// ResendRequests counts gap-recovery requests emitted.
	ResendRequests *prometheus.CounterVec

	// Disconnects counts transport losses per session.
	Disconnects *prometheus.CounterVec
}

// interface compliance.
var _ fix.MetricsReporter = (*Collector)(nil)

// NewCollector creates a Collector with all engine metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := newMetrics()
	reg.MustRegister(
		c.SessionState,
		c.MessagesSent,
		c.MessagesReceived,
		c.Rejects,
		c.ResendRequests,
		c.Disconnects,
	)
	return c
}

func newMetrics() *Collector {
	sessionLabels := []string{labelSession}
	return &Collector{
		SessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_state",
			Help:      "Current session state, one-hot over the state label.",
		}, []string{labelSession, labelState}),

		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_sent_total",
			Help:      "Total messages sent per session.",
		}, sessionLabels),

		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_received_total",
			Help:      "Total messages received per session.",
		}, sessionLabels),

		Rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejects_total",
			Help:      "Total Reject and BusinessMessageReject messages emitted per session.",
		}, sessionLabels),

		ResendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resend_requests_total",
			Help:      "Total ResendRequest messages emitted per session.",
		}, sessionLabels),

		Disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "disconnects_total",
			Help:      "Total transport losses per session.",
		}, sessionLabels),
	}
}

// sessionStates enumerates every state for the one-hot gauge.
var sessionStates = []fix.SessionState{
	fix.StateDisconnected,
	fix.StateLogonSent,
	fix.StateLogonReceived,
	fix.StateLoggedOn,
	fix.StateLogoutSent,
	fix.StateResendRequested,
}

// SessionStateChanged implements fix.MetricsReporter.
func (c *Collector) SessionStateChanged(id fix.SessionID, state fix.SessionState) {
	for _, st := range sessionStates {
		v := 0.0
		if st == state {
			v = 1.0
		}
		c.SessionState.WithLabelValues(id.String(), st.String()).Set(v)
	}
}

// IncMessagesSent implements fix.MetricsReporter.
func (c *Collector) IncMessagesSent(id fix.SessionID) {
	c.MessagesSent.WithLabelValues(id.String()).Inc()
}

// IncMessagesReceived implements fix.MetricsReporter.
func (c *Collector) IncMessagesReceived(id fix.SessionID) {
	c.MessagesReceived.WithLabelValues(id.String()).Inc()
}

// IncRejects implements fix.MetricsReporter.
func (c *Collector) IncRejects(id fix.SessionID) {
	c.Rejects.WithLabelValues(id.String()).Inc()
}

// IncResendRequests implements fix.MetricsReporter.
func (c *Collector) IncResendRequests(id fix.SessionID) {
	c.ResendRequests.WithLabelValues(id.String()).Inc()
}

// IncDisconnects implements fix.MetricsReporter.
func (c *Collector) IncDisconnects(id fix.SessionID) {
	c.Disconnects.WithLabelValues(id.String()).Inc()
}
