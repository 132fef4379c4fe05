// Package metrics exposes Prometheus counters for dialogue activity.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/rolesim/internal/dialogue"
	"github.com/ashureev/rolesim/internal/domain"
	"github.com/ashureev/rolesim/internal/learning"
)

const namespace = "rolesim"

// Metrics owns a private registry so tests can create many instances.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted prometheus.Counter
	sessionsClosed  *prometheus.CounterVec
	turns           *prometheus.CounterVec
	turnErrors      *prometheus.CounterVec
	scores          *prometheus.HistogramVec
	evalDuration    prometheus.Histogram
	liveConnections prometheus.Gauge
}

// New registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Practice sessions started.",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Practice sessions closed, by reason.",
		}, []string{"reason"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Evaluated trainee turns.",
		}, []string{"phase", "outcome"}),
		turnErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_errors_total",
			Help:      "Failed turn evaluations, by error kind.",
		}, []string{"kind"}),
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_score",
			Help:      "Distribution of trainee scores.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}, []string{"phase"}),
		evalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_evaluation_seconds",
			Help:      "Time spent evaluating one turn.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		liveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Open WebSocket conversation channels.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsStarted,
		m.sessionsClosed,
		m.turns,
		m.turnErrors,
		m.scores,
		m.evalDuration,
		m.liveConnections,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) SessionStarted() { m.sessionsStarted.Inc() }

func (m *Metrics) SessionClosed(reason string) { m.sessionsClosed.WithLabelValues(reason).Inc() }

func (m *Metrics) TurnEvaluated(resp domain.ScoredResponse, elapsed time.Duration) {
	outcome := "unsuccessful"
	if resp.Successful {
		outcome = "successful"
	}
	phase := resp.Phase.String()
	m.turns.WithLabelValues(phase, outcome).Inc()
	m.scores.WithLabelValues(phase).Observe(float64(resp.Score))
	m.evalDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) TurnFailed(err error) { m.turnErrors.WithLabelValues(ErrorKind(err)).Inc() }

// LiveConnected and LiveDisconnected track WebSocket channels.
func (m *Metrics) LiveConnected()    { m.liveConnections.Inc() }
func (m *Metrics) LiveDisconnected() { m.liveConnections.Dec() }

// ErrorKind classifies an evaluation error for labelling.
func ErrorKind(err error) string {
	var invalid *dialogue.InvalidInputError
	var config *dialogue.ConfigurationError
	var persist *learning.PersistenceError
	switch {
	case errors.As(err, &invalid):
		return "invalid_input"
	case errors.As(err, &config):
		return "configuration"
	case errors.As(err, &persist):
		return "persistence"
	default:
		return "other"
	}
}
