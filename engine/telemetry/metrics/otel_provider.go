package metrics

// OpenTelemetry bridge implementing the Provider interface, so deployments
// already exporting OTLP can point the throttle's instruments at their
// collector instead of scraping Prometheus. Gauges map onto UpDownCounters
// by applying deltas against the last observed value.

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelOpts configures the bridge provider.
type OTelOpts struct {
	MeterName string // defaults to "traction"
}

type otelProvider struct {
	mp    *sdkmetric.MeterProvider
	meter metric.Meter
}

// NewOTelProvider returns a Provider backed by an OTEL MeterProvider.
// Exporters and views are layered on by the caller; zero-config here.
func NewOTelProvider(opts OTelOpts) Provider {
	name := opts.MeterName
	if name == "" {
		name = "traction"
	}
	mp := sdkmetric.NewMeterProvider()
	return &otelProvider{mp: mp, meter: mp.Meter(name)}
}

func otelName(c CommonOpts) string {
	if c.Namespace != "" {
		return c.Namespace + "." + c.Name
	}
	return c.Name
}

func (p *otelProvider) NewCounter(opts CounterOpts) Counter {
	inst, err := p.meter.Float64Counter(otelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopCounter{}
	}
	return &otelCounter{c: inst, keys: opts.Labels}
}

func (p *otelProvider) NewGauge(opts GaugeOpts) Gauge {
	inst, err := p.meter.Float64UpDownCounter(otelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopGauge{}
	}
	return &otelGauge{g: inst, keys: opts.Labels, last: map[string]float64{}}
}

func (p *otelProvider) NewHistogram(opts HistogramOpts) Histogram {
	inst, err := p.meter.Float64Histogram(otelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopHistogram{}
	}
	return &otelHistogram{h: inst, keys: opts.Labels}
}

func (p *otelProvider) Health(context.Context) error { return nil }

func attrs(keys, values []string) ([]attribute.KeyValue, string) {
	n := len(keys)
	if len(values) < n {
		n = len(values)
	}
	kv := make([]attribute.KeyValue, 0, n)
	id := ""
	for i := 0; i < n; i++ {
		kv = append(kv, attribute.String(keys[i], values[i]))
		id += keys[i] + "=" + values[i] + ";"
	}
	return kv, id
}

type otelCounter struct {
	c    metric.Float64Counter
	keys []string
}

func (c *otelCounter) Inc(delta float64, labels ...string) {
	kv, _ := attrs(c.keys, labels)
	c.c.Add(context.Background(), delta, metric.WithAttributes(kv...))
}

type otelGauge struct {
	g    metric.Float64UpDownCounter
	keys []string

	mu   sync.Mutex
	last map[string]float64
}

func (g *otelGauge) Set(value float64, labels ...string) {
	kv, id := attrs(g.keys, labels)
	g.mu.Lock()
	delta := value - g.last[id]
	g.last[id] = value
	g.mu.Unlock()
	g.g.Add(context.Background(), delta, metric.WithAttributes(kv...))
}

type otelHistogram struct {
	h    metric.Float64Histogram
	keys []string
}

func (h *otelHistogram) Observe(value float64, labels ...string) {
	kv, _ := attrs(h.keys, labels)
	h.h.Record(context.Background(), value, metric.WithAttributes(kv...))
}
