// Package metrics exposes Prometheus collectors for debug sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mictl"

// Collector records command and event traffic. It satisfies the command
// observer interface of the mi package, and sessions report decoded events
// and decode failures to it. A Collector is safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	commandsIssued    *prometheus.CounterVec
	commandsCompleted *prometheus.CounterVec
	commandLatency    *prometheus.HistogramVec
	pending           prometheus.Gauge
	resultsDropped    *prometheus.CounterVec
	events            *prometheus.CounterVec
	decodeErrors      prometheus.Counter
	sessions          *prometheus.CounterVec
}

// New creates a Collector registered on its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		commandsIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_issued_total",
				Help:      "MI commands written to the debugger.",
			},
			[]string{"operation"},
		),
		commandsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_completed_total",
				Help:      "MI commands completed, by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		commandLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Time from writing a command to its completion.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"operation"},
		),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "commands_pending",
			Help:      "Commands awaiting a result record.",
		}),
		resultsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_dropped_total",
				Help:      "Result records that matched no pending command.",
			},
			[]string{"reason"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Events published to subscribers, by reason.",
			},
			[]string{"reason"},
		),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Malformed lines dropped by the decoder.",
		}),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_transitions_total",
				Help:      "Session lifecycle transitions, by resulting state.",
			},
			[]string{"state"},
		),
	}

	c.registry.MustRegister(
		c.commandsIssued,
		c.commandsCompleted,
		c.commandLatency,
		c.pending,
		c.resultsDropped,
		c.events,
		c.decodeErrors,
		c.sessions,
	)
	return c
}

// Registry returns the registry holding the collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// CommandIssued counts a written command.
func (c *Collector) CommandIssued(operation string) {
	c.commandsIssued.WithLabelValues(operation).Inc()
	c.pending.Inc()
}

// CommandCompleted counts a completed command and records its latency.
func (c *Collector) CommandCompleted(operation, outcome string, elapsed time.Duration) {
	c.commandsCompleted.WithLabelValues(operation, outcome).Inc()
	c.commandLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
	c.pending.Dec()
}

// ResultDropped counts an uncorrelated result record.
func (c *Collector) ResultDropped(reason string) {
	c.resultsDropped.WithLabelValues(reason).Inc()
}

// EventPublished counts an event by reason.
func (c *Collector) EventPublished(reason string) {
	c.events.WithLabelValues(reason).Inc()
}

// DecodeFailed counts a malformed line.
func (c *Collector) DecodeFailed() {
	c.decodeErrors.Inc()
}

// SessionState counts a session state transition.
func (c *Collector) SessionState(state string) {
	c.sessions.WithLabelValues(state).Inc()
}
