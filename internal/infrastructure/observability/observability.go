// Package observability assembles concrete telemetry adapters into the
// provider the application layers consume.
package observability

import (
	"github.com/tradeyard/tradeyard/internal/observability"
)

// New builds a provider from a tracer, a logger, and the metric instruments
// registered at startup. Nil pieces degrade to nops, so a test can pass only
// what it asserts on.
func New(
	tracer observability.Tracer,
	logger observability.Logger,
	counters map[observability.MetricKey]observability.Counter,
	histograms map[observability.MetricKey]observability.Histogram,
) observability.Observability {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &provider{
		tracer: tracer,
		logger: logger,
		metrics: keyedMetrics{
			counters:   counters,
			histograms: histograms,
		},
	}
}

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

func (p *provider) Tracer() observability.Tracer   { return p.tracer }
func (p *provider) Logger() observability.Logger   { return p.logger }
func (p *provider) Metrics() observability.Metrics { return p.metrics }

// keyedMetrics resolves MetricKeys against the instruments registered in
// main. An unregistered key resolves to a nop so a missing registration
// degrades telemetry, not the request path.
type keyedMetrics struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (m keyedMetrics) Counter(name observability.MetricKey) observability.Counter {
	if c := m.counters[name]; c != nil {
		return c
	}
	return observability.NopCounter()
}

func (m keyedMetrics) Histogram(name observability.MetricKey) observability.Histogram {
	if h := m.histograms[name]; h != nil {
		return h
	}
	return observability.NopHistogram()
}
