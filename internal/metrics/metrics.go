// Package metrics exposes Prometheus collectors for the pipeline and serves
// them with a health endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rmqmeta/internal/extract"
	"rmqmeta/internal/pipeline"
)

const namespace = "rmqmeta"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	messages        *prometheus.CounterVec
	backends        *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	messageDuration prometheus.Histogram
	entities        prometheus.Counter
	redeliveries    prometheus.Counter
	consumers       *prometheus.GaugeVec
}

// New registers the collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages processed, by terminal state and routing key.",
		}, []string{"state", "routing_key"}),
		backends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_backend_total",
			Help:      "Text extraction backend runs, by backend and result.",
		}, []string{"backend", "result"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		messageDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_duration_seconds",
			Help:      "End to end processing time per message.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		entities: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_stored_total",
			Help:      "Distinct entity phrases written to the document store.",
		}),
		redeliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redeliveries_total",
			Help:      "Messages the broker delivered more than once.",
		}),
		consumers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_up",
			Help:      "1 when the queue has an active consumer.",
		}, []string{"queue"}),
	}
	for _, state := range pipeline.TerminalStates {
		m.messages.WithLabelValues(string(state), "")
	}
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe records a finished pipeline outcome. It is safe to pass as a
// pipeline observer; a nil receiver ignores the call.
func (m *Metrics) Observe(out *pipeline.Outcome) {
	if m == nil || out == nil {
		return
	}
	m.messages.WithLabelValues(string(out.State), out.RoutingKey).Inc()
	m.messageDuration.Observe(out.Duration.Seconds())
	for stage, d := range out.Stages {
		m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
	if out.Redelivered {
		m.redeliveries.Inc()
	}
	if out.State.Succeeded() && out.Record != nil {
		m.entities.Add(float64(out.Record.EntityCount()))
	}
}

// ObserveBackend records one extraction backend result.
func (m *Metrics) ObserveBackend(r extract.Result) {
	if m == nil {
		return
	}
	result := "failure"
	if r.Success {
		result = "success"
	}
	m.backends.WithLabelValues(r.Backend, result).Inc()
}

// SetConsumerUp flags whether queue currently has a consumer.
func (m *Metrics) SetConsumerUp(queue string, up bool) {
	if m == nil {
		return
	}
	value := 0.0
	if up {
		value = 1
	}
	m.consumers.WithLabelValues(queue).Set(value)
}
