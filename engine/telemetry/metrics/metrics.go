// Package metrics is the provider abstraction the engine instruments
// against. Two backends ship: Prometheus (pull, /metrics) and an
// OpenTelemetry bridge. The engine never sees a backend type.
package metrics

import "context"

// Counter is a monotonically increasing value.
type Counter interface {
	Inc(delta float64, labels ...string)
}

// Gauge is a value that can move both ways.
type Gauge interface {
	Set(value float64, labels ...string)
}

// Histogram records observations into buckets.
type Histogram interface {
	Observe(value float64, labels ...string)
}

// CommonOpts are the option fields shared by every metric kind. Labels
// ordering defines the variadic value ordering at observation sites.
type CommonOpts struct {
	Namespace string
	Name      string
	Help      string
	Labels    []string
}

type CounterOpts struct{ CommonOpts }

type GaugeOpts struct{ CommonOpts }

type HistogramOpts struct {
	CommonOpts
	Buckets []float64
}

// Provider constructs metric instruments.
type Provider interface {
	NewCounter(opts CounterOpts) Counter
	NewGauge(opts GaugeOpts) Gauge
	NewHistogram(opts HistogramOpts) Histogram
	// Health reports registration problems accumulated so far.
	Health(ctx context.Context) error
}

type noopProvider struct{}

type noopCounter struct{}

type noopGauge struct{}

type noopHistogram struct{}

// NewNoopProvider returns a provider that records nothing; the default
// when metrics are disabled.
func NewNoopProvider() Provider { return noopProvider{} }

func (noopProvider) NewCounter(CounterOpts) Counter       { return noopCounter{} }
func (noopProvider) NewGauge(GaugeOpts) Gauge             { return noopGauge{} }
func (noopProvider) NewHistogram(HistogramOpts) Histogram { return noopHistogram{} }
func (noopProvider) Health(context.Context) error         { return nil }

func (noopCounter) Inc(float64, ...string)       {}
func (noopGauge) Set(float64, ...string)         {}
func (noopHistogram) Observe(float64, ...string) {}
