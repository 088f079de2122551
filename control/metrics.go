// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for sockets and servers. A nil *Metrics is valid
// and records nothing, so components can take one unconditionally.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/momentics/evsock/api"
)

// MetricsConfig configures the collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "evsock").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry receives the collectors. Default: a fresh registry, so
	// several servers in one process never collide.
	Registry *prometheus.Registry
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics holds the evsock collectors.
type Metrics struct {
	registry *prometheus.Registry

	connectionsAccepted prometheus.Counter
	activeConnections   prometheus.Gauge
	listeningSockets    prometheus.Gauge
	bytesReceived       prometheus.Counter
	bytesSent           prometheus.Counter
	events              *prometheus.CounterVec
	errors              *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := MetricsConfig{Namespace: "evsock"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(cfg.Registry)

	m := &Metrics{
		registry: cfg.Registry,

		connectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "connections_accepted_total",
			Help:        "Total number of connections accepted by servers",
			ConstLabels: cfg.ConstLabels,
		}),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "active_connections",
			Help:        "Number of sockets with a running receive loop",
			ConstLabels: cfg.ConstLabels,
		}),

		listeningSockets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "listening_sockets",
			Help:        "Number of open listening descriptors",
			ConstLabels: cfg.ConstLabels,
		}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "bytes_received_total",
			Help:        "Total payload bytes read by receive loops",
			ConstLabels: cfg.ConstLabels,
		}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "bytes_sent_total",
			Help:        "Total payload bytes written by sockets",
			ConstLabels: cfg.ConstLabels,
		}),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "events_total",
			Help:        "Total number of dispatched events by kind",
			ConstLabels: cfg.ConstLabels,
		}, []string{"event"}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "errors_total",
			Help:        "Total number of ERROR events by originating component",
			ConstLabels: cfg.ConstLabels,
		}, []string{"component"}),
	}

	// Every event series exists from the start so rates work before the first event.
	for _, kinds := range [][]api.EventKind{api.SocketEvents, api.ServerEvents} {
		for _, k := range kinds {
			m.events.WithLabelValues(k.String())
		}
	}
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ConnectionAccepted counts one accepted connection.
func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

// ConnectionOpened marks a receive loop as started.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
}

// ConnectionClosed marks a receive loop as finished.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

// ListenerOpened counts one listening descriptor.
func (m *Metrics) ListenerOpened() {
	if m == nil {
		return
	}
	m.listeningSockets.Inc()
}

// ListenerClosed drops one listening descriptor.
func (m *Metrics) ListenerClosed() {
	if m == nil {
		return
	}
	m.listeningSockets.Dec()
}

// BytesReceived adds n received bytes.
func (m *Metrics) BytesReceived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesReceived.Add(float64(n))
}

// BytesSent adds n written bytes.
func (m *Metrics) BytesSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesSent.Add(float64(n))
}

// Event counts one dispatched event.
func (m *Metrics) Event(kind api.EventKind) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind.String()).Inc()
}

// Error counts one fault raised by component ("socket", "server" or "accept").
func (m *Metrics) Error(component string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(component).Inc()
}
