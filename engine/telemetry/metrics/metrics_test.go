package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusProviderRegistersAndServes(t *testing.T) {
	p := NewPrometheusProvider(PrometheusOpts{})
	c := p.NewCounter(CounterOpts{CommonOpts{Namespace: "traction", Name: "commands_total", Help: "commands", Labels: []string{"source", "outcome"}}})
	g := p.NewGauge(GaugeOpts{CommonOpts{Namespace: "traction", Name: "speed", Help: "signed speed"}})
	c.Inc(1, "physical", "accepted")
	c.Inc(2, "mqtt", "rejected")
	g.Set(0.5)

	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body := rr.Body.String()
	if !strings.Contains(body, "traction_commands_total") || !strings.Contains(body, "traction_speed 0.5") {
		t.Fatalf("exposition missing instruments:\n%s", body)
	}
	if err := p.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestPrometheusDuplicateRegistrationDegrades(t *testing.T) {
	p := NewPrometheusProvider(PrometheusOpts{})
	opts := CounterOpts{CommonOpts{Name: "dup_total", Help: "x"}}
	_ = p.NewCounter(opts)
	dup := p.NewCounter(opts)
	dup.Inc(1) // must not panic
	if err := p.Health(context.Background()); err == nil {
		t.Fatalf("expected health to report duplicate registration")
	}
}

func TestOTelGaugeSetSemantics(t *testing.T) {
	p := NewOTelProvider(OTelOpts{})
	g := p.NewGauge(GaugeOpts{CommonOpts{Name: "speed"}})
	// Set the gauge twice without labels; the delta application must not
	// panic. The counter is exercised with a label value.
	g.Set(0.4)
	g.Set(-0.2)
	c := p.NewCounter(CounterOpts{CommonOpts{Name: "ticks", Labels: []string{"kind"}}})
	c.Inc(1, "update")
	if err := p.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestNoopProviderIsSilent(t *testing.T) {
	p := NewNoopProvider()
	p.NewCounter(CounterOpts{}).Inc(1)
	p.NewGauge(GaugeOpts{}).Set(1)
	p.NewHistogram(HistogramOpts{}).Observe(1)
	if err := p.Health(context.Background()); err != nil {
		t.Fatalf("noop health: %v", err)
	}
}
