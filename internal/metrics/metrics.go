// Package metrics exposes Prometheus metrics for event dispatch and
// connection counts.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/remote-agent-terminal/iohub/internal/pipeline"
)

const metricsNamespace = "iohub"

// Metrics owns a Prometheus registry with the dispatch collectors.
type Metrics struct {
	registry *prometheus.Registry

	events   *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates the collectors and registers them together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Inbound events dispatched to handlers.",
		}, []string{"namespace", "event"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handler_errors_total",
			Help:      "Handler and middleware failures, panics included.",
		}, []string{"namespace"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent in the pipeline per handler invocation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"namespace"}),
	}

	m.registry.MustRegister(
		m.events,
		m.errors,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware counts and times every handler invocation of a namespace.
// Register it first so it wraps the rest of the chain.
func (m *Metrics) Middleware(namespace string) pipeline.Middleware {
	label := namespaceLabel(namespace)
	return func(ctx *pipeline.Context, next pipeline.Next) error {
		start := time.Now()
		err := next()
		m.events.WithLabelValues(label, ctx.Event).Inc()
		m.duration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		return err
	}
}

// ObserveError counts one failed dispatch.
func (m *Metrics) ObserveError(namespace string) {
	m.errors.WithLabelValues(namespaceLabel(namespace)).Inc()
}

// ErrorHandler returns a registry error hook that counts failures.
func (m *Metrics) ErrorHandler(namespace string) func(*pipeline.Context, error) {
	return func(*pipeline.Context, error) {
		m.ObserveError(namespace)
	}
}

// TrackConnections exports size as the namespace's open connection gauge.
func (m *Metrics) TrackConnections(namespace string, size func() int) error {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Name:        "connections",
		Help:        "Open connections tracked by a namespace registry.",
		ConstLabels: prometheus.Labels{"namespace": namespaceLabel(namespace)},
	}, func() float64 {
		return float64(size())
	})

	if err := m.registry.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return fmt.Errorf("connections gauge for %s already registered: %w", namespaceLabel(namespace), err)
		}
		return fmt.Errorf("register connections gauge: %w", err)
	}
	return nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func namespaceLabel(namespace string) string {
	if namespace == "" || namespace == "/" {
		return "/"
	}
	if namespace[0] != '/' {
		return "/" + namespace
	}
	return namespace
}
