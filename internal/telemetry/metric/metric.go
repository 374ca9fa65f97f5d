// Package metric provides Prometheus metrics for rediskv.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus instruments. A nil *Metrics is
// valid and records nothing, so metrics stay optional.
type Metrics struct {
	registry *prometheus.Registry

	ConnectedClients  prometheus.Gauge
	CommandsTotal     *prometheus.CounterVec
	ErrorRepliesTotal prometheus.Counter
}

// Option configures New.
type Option func(*options)

type options struct {
	keyspaceLen  func() float64
	expiredTotal func() float64
}

// WithKeyspaceSize registers a gauge fed by the given callback,
// typically the keyspace store's Len.
func WithKeyspaceSize(fn func() float64) Option {
	return func(o *options) { o.keyspaceLen = fn }
}

// WithExpiredTotal registers a counter fed by the given callback,
// typically the keyspace store's ExpiredTotal.
func WithExpiredTotal(fn func() float64) Option {
	return func(o *options) { o.expiredTotal = fn }
}

// New creates and registers the server metrics on a fresh registry.
func New(opts ...Option) *Metrics {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rediskv",
			Name:      "connected_clients",
			Help:      "Number of currently connected clients.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rediskv",
			Name:      "commands_total",
			Help:      "Commands processed, by command name.",
		}, []string{"cmd"}),
		ErrorRepliesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rediskv",
			Name:      "error_replies_total",
			Help:      "Error replies sent to clients.",
		}),
	}
	reg.MustRegister(m.ConnectedClients, m.CommandsTotal, m.ErrorRepliesTotal)

	if o.keyspaceLen != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "rediskv",
			Name:      "keyspace_keys",
			Help:      "Entries in the keyspace, including not-yet-purged expired entries.",
		}, o.keyspaceLen))
	}
	if o.expiredTotal != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "rediskv",
			Name:      "expired_keys_total",
			Help:      "Keys removed because their expiry passed.",
		}, o.expiredTotal))
	}

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConnOpened records a new client connection.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.ConnectedClients.Inc()
}

// ConnClosed records a finished client connection.
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.ConnectedClients.Dec()
}

// Command records one dispatched command.
func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(name).Inc()
}

// ErrorReply records one error reply.
func (m *Metrics) ErrorReply() {
	if m == nil {
		return
	}
	m.ErrorRepliesTotal.Inc()
}
