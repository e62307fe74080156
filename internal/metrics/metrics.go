// Package metrics holds the Prometheus collectors for client and server
// sessions. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pingpong"

// Side labels which end of the connection recorded a sample.
const (
	SideClient = "client"
	SideServer = "server"
)

type Metrics struct {
	registry *prometheus.Registry

	roundTrips        *prometheus.CounterVec
	roundTripDuration *prometheus.HistogramVec
	connectAttempts   *prometheus.CounterVec
	activeSessions    prometheus.Gauge
	sessionsTotal     prometheus.Counter
	handlerErrors     *prometheus.CounterVec
	ignoredMessages   prometheus.Counter
	adminRequests     *prometheus.CounterVec
}

// constructor for Metrics, registering on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		roundTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "round_trips_total",
			Help:      "Completed request/response exchanges",
		}, []string{"side", "mode"}),
		roundTripDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "round_trip_duration_seconds",
			Help:      "Time from sending a request to receiving its response",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"mode"}),
		connectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "connect_attempts_total",
			Help:      "Connection attempts by outcome",
		}, []string{"result"}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_sessions",
			Help:      "Connections currently being served",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "sessions_total",
			Help:      "Connections accepted since start",
		}),
		handlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "handler_errors_total",
			Help:      "Session handler failures",
		}, []string{"side", "mode"}),
		ignoredMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "ignored_messages_total",
			Help:      "Non-request messages received and dropped by the server",
		}),
		adminRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Admin API requests",
		}, []string{"method", "path", "status"}),
	}
}

func (m *Metrics) RoundTrip(side, mode string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.roundTrips.WithLabelValues(side, mode).Inc()
	if side == SideClient {
		m.roundTripDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ConnectAttempt(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.connectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) HandlerError(side, mode string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(side, mode).Inc()
}

func (m *Metrics) IgnoredMessage() {
	if m == nil {
		return
	}
	m.ignoredMessages.Inc()
}

func (m *Metrics) AdminRequest(method, path string, status int) {
	if m == nil {
		return
	}
	m.adminRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
