// Package metrics exposes Prometheus metrics for the AMI client, the
// dispatcher and the call tracker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/asterisk-popup/internal/tracker"
)

const namespace = "asterisk_popup"

// Connect attempt results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connected         prometheus.Gauge
	reconnectAttempts prometheus.Gauge
	connectAttempts   *prometheus.CounterVec
	connectFailures   *prometheus.CounterVec
	events            *prometheus.CounterVec
	dispatchPanics    prometheus.Counter
	queueDepth        prometheus.Gauge
	activeCalls       prometheus.Gauge
	calls             *prometheus.CounterVec
}

// New creates and registers the metrics, along with the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ami_connected",
			Help:      "Whether the AMI session is authenticated (1) or not (0)",
		}),
		reconnectAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ami_reconnect_attempts",
			Help:      "Current value of the reconnect backoff counter",
		}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ami_connect_attempts_total",
			Help:      "Handshake attempts by result",
		}, []string{"result"}),
		connectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ami_connect_failures_total",
			Help:      "Failed handshakes by failure reason",
		}, []string{"reason"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ami_events_total",
			Help:      "Events dispatched by event type",
		}, []string{"event"}),
		dispatchPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_panics_total",
			Help:      "Events whose handling panicked and was skipped",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_queue_depth",
			Help:      "Events waiting to be dispatched",
		}),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Calls currently held by the tracker, including hung-up calls in their grace period",
		}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Call transitions by status",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.connected,
		m.reconnectAttempts,
		m.connectAttempts,
		m.connectFailures,
		m.events,
		m.dispatchPanics,
		m.queueDepth,
		m.activeCalls,
		m.calls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) SetReconnectAttempts(n int) {
	if m == nil {
		return
	}
	m.reconnectAttempts.Set(float64(n))
}

// ConnectSucceeded counts a successful handshake.
func (m *Metrics) ConnectSucceeded() {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(ResultSuccess).Inc()
}

// ConnectFailed counts a failed handshake under its failure reason.
func (m *Metrics) ConnectFailed(reason string) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(ResultFailure).Inc()
	m.connectFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) EventDispatched(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

func (m *Metrics) DispatchPanicked() {
	if m == nil {
		return
	}
	m.dispatchPanics.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetActiveCalls(n int) {
	if m == nil {
		return
	}
	m.activeCalls.Set(float64(n))
}

// OnIncomingCall implements tracker.Notifier.
func (m *Metrics) OnIncomingCall(tracker.Call) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(string(tracker.StatusRinging)).Inc()
}

// OnCallStatusChange implements tracker.Notifier.
func (m *Metrics) OnCallStatusChange(_ string, status tracker.Status) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(string(status)).Inc()
}
