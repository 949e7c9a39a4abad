package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusProvider implements Provider on a dedicated Prometheus
// registry. Registration failures do not panic; they accumulate and
// surface through Health while the failed instrument degrades to noop.
type PrometheusProvider struct {
	reg     *prom.Registry
	handler http.Handler

	mu       sync.Mutex
	problems []error
}

// PrometheusOpts configures the provider.
type PrometheusOpts struct {
	Registry *prom.Registry // optional; a fresh registry when nil
}

func NewPrometheusProvider(opts PrometheusOpts) *PrometheusProvider {
	reg := opts.Registry
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return &PrometheusProvider{
		reg:     reg,
		handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
}

// Handler exposes the registry for the daemon's /metrics endpoint.
func (p *PrometheusProvider) Handler() http.Handler { return p.handler }

func (p *PrometheusProvider) problem(err error) {
	p.mu.Lock()
	p.problems = append(p.problems, err)
	p.mu.Unlock()
}

func fqName(c CommonOpts) string {
	if c.Namespace != "" {
		return c.Namespace + "_" + c.Name
	}
	return c.Name
}

func (p *PrometheusProvider) NewCounter(opts CounterOpts) Counter {
	vec := prom.NewCounterVec(prom.CounterOpts{Name: fqName(opts.CommonOpts), Help: opts.Help}, opts.Labels)
	if err := p.reg.Register(vec); err != nil {
		p.problem(fmt.Errorf("register counter %s: %w", opts.Name, err))
		return noopCounter{}
	}
	return promCounter{vec: vec}
}

func (p *PrometheusProvider) NewGauge(opts GaugeOpts) Gauge {
	vec := prom.NewGaugeVec(prom.GaugeOpts{Name: fqName(opts.CommonOpts), Help: opts.Help}, opts.Labels)
	if err := p.reg.Register(vec); err != nil {
		p.problem(fmt.Errorf("register gauge %s: %w", opts.Name, err))
		return noopGauge{}
	}
	return promGauge{vec: vec}
}

func (p *PrometheusProvider) NewHistogram(opts HistogramOpts) Histogram {
	vec := prom.NewHistogramVec(prom.HistogramOpts{Name: fqName(opts.CommonOpts), Help: opts.Help, Buckets: opts.Buckets}, opts.Labels)
	if err := p.reg.Register(vec); err != nil {
		p.problem(fmt.Errorf("register histogram %s: %w", opts.Name, err))
		return noopHistogram{}
	}
	return promHistogram{vec: vec}
}

func (p *PrometheusProvider) Health(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.problems) == 0 {
		return nil
	}
	return fmt.Errorf("prometheus provider: %d registration problems (first: %v)", len(p.problems), p.problems[0])
}

type promCounter struct{ vec *prom.CounterVec }

func (c promCounter) Inc(delta float64, labels ...string) {
	c.vec.WithLabelValues(labels...).Add(delta)
}

type promGauge struct{ vec *prom.GaugeVec }

func (g promGauge) Set(value float64, labels ...string) {
	g.vec.WithLabelValues(labels...).Set(value)
}

type promHistogram struct{ vec *prom.HistogramVec }

func (h promHistogram) Observe(value float64, labels ...string) {
	h.vec.WithLabelValues(labels...).Observe(value)
}
