// Package prometrics adapts a Prometheus registry to the observability
// metric ports.
package prometrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tradeyard/tradeyard/internal/observability"
)

// Registry registers metric vectors once and hands out port-shaped handles.
type Registry interface {
	Counter(name, help string, labelKeys ...string) observability.Counter
	Histogram(name, help string, buckets []float64, labelKeys ...string) observability.Histogram
}

func New(namespace, subsystem string) Registry {
	return &registry{
		namespace:  namespace,
		subsystem:  subsystem,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
}

type registry struct {
	namespace string
	subsystem string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

func (r *registry) Counter(name, help string, labelKeys ...string) observability.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	cv, ok := r.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help,
		}, labelKeys)
		prometheus.MustRegister(cv)
		r.counters[name] = cv
	}
	return counter{cv}
}

func (r *registry) Histogram(name, help string, buckets []float64, labelKeys ...string) observability.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	hv, ok := r.histograms[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help, Buckets: buckets,
		}, labelKeys)
		prometheus.MustRegister(hv)
		r.histograms[name] = hv
	}
	return histogram{hv}
}

type counter struct{ vec *prometheus.CounterVec }

func (c counter) Add(delta float64, labels ...observability.Label) {
	c.vec.With(toPromLabels(labels)).Add(delta)
}

func (c counter) Bind(labels ...observability.Label) observability.BoundCounter {
	return boundCounter{c.vec.With(toPromLabels(labels))}
}

type boundCounter struct{ c prometheus.Counter }

func (b boundCounter) Add(delta float64) { b.c.Add(delta) }

type histogram struct{ vec *prometheus.HistogramVec }

func (h histogram) Observe(value float64, labels ...observability.Label) {
	h.vec.With(toPromLabels(labels)).Observe(value)
}

func (h histogram) Bind(labels ...observability.Label) observability.BoundHistogram {
	return boundHistogram{h.vec.With(toPromLabels(labels))}
}

type boundHistogram struct{ o prometheus.Observer }

func (b boundHistogram) Observe(value float64) { b.o.Observe(value) }

func toPromLabels(ls []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		m[l.Key] = l.Value
	}
	return m
}
