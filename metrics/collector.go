// Package metrics exposes Prometheus metrics for the secure link.
//
// The Collector is optional: every pipeline call site goes through nil-safe
// helper methods, so a pipeline constructed without metrics pays only a nil
// check.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "navlink"
	subsystem = "link"
)

// labelReason classifies why a command was rejected.
const labelReason = "reason"

// Collector holds all secure-link Prometheus metrics.
type Collector struct {
	// CommandsAccepted counts commands that passed the full inbound
	// pipeline.
	CommandsAccepted prometheus.Counter

	// CommandsRejected counts rejected commands, labeled by reason
	// (rate_limited, auth_failed, checksum_failed, version_mismatch,
	// not_ready, replay_dropped).
	CommandsRejected *prometheus.CounterVec

	// TelemetrySent counts telemetry packets built for transmission.
	TelemetrySent prometheus.Counter

	// HandshakesCompleted counts successful key exchanges.
	HandshakesCompleted prometheus.Counter

	// HandshakesExpired counts key exchanges torn down on timeout.
	HandshakesExpired prometheus.Counter

	// LinkState exports the supervisor state as a gauge
	// (0 idle, 1 armed, 2 signal loss, 3 emergency).
	LinkState prometheus.Gauge

	// TokensAvailable exports the rate limiter's current token count.
	TokensAvailable prometheus.Gauge
}

// NewCollector creates a Collector with all metrics registered against the
// provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		CommandsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_accepted_total",
			Help:      "Total commands that passed the secure inbound pipeline.",
		}),
		CommandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_rejected_total",
			Help:      "Total rejected commands by reason.",
		}, []string{labelReason}),
		TelemetrySent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "telemetry_sent_total",
			Help:      "Total telemetry packets built for transmission.",
		}),
		HandshakesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handshakes_completed_total",
			Help:      "Total key exchanges that established session keys.",
		}),
		HandshakesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handshakes_expired_total",
			Help:      "Total key exchanges torn down after the handshake timeout.",
		}),
		LinkState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state",
			Help:      "Link supervisor state (0 idle, 1 armed, 2 signal loss, 3 emergency).",
		}),
		TokensAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tokens_available",
			Help:      "Current token count of the global rate-limit bucket.",
		}),
	}

	reg.MustRegister(
		c.CommandsAccepted,
		c.CommandsRejected,
		c.TelemetrySent,
		c.HandshakesCompleted,
		c.HandshakesExpired,
		c.LinkState,
		c.TokensAvailable,
	)

	return c
}

// IncAccepted increments the accepted-command counter.
func (c *Collector) IncAccepted() {
	if c == nil {
		return
	}
	c.CommandsAccepted.Inc()
}

// IncRejected increments the rejected-command counter for a reason.
func (c *Collector) IncRejected(reason string) {
	if c == nil {
		return
	}
	c.CommandsRejected.WithLabelValues(reason).Inc()
}

// IncTelemetrySent increments the telemetry counter.
func (c *Collector) IncTelemetrySent() {
	if c == nil {
		return
	}
	c.TelemetrySent.Inc()
}

// IncHandshakeCompleted increments the completed-handshake counter.
func (c *Collector) IncHandshakeCompleted() {
	if c == nil {
		return
	}
	c.HandshakesCompleted.Inc()
}

// IncHandshakeExpired increments the expired-handshake counter.
func (c *Collector) IncHandshakeExpired() {
	if c == nil {
		return
	}
	c.HandshakesExpired.Inc()
}

// SetLinkState records the supervisor state ordinal.
func (c *Collector) SetLinkState(state int) {
	if c == nil {
		return
	}
	c.LinkState.Set(float64(state))
}

// SetTokensAvailable records the limiter's current token count.
func (c *Collector) SetTokensAvailable(tokens int) {
	if c == nil {
		return
	}
	c.TokensAvailable.Set(float64(tokens))
}
