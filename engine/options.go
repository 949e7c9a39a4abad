package engine

import (
	"traction/engine/clock"
	"traction/engine/device"
	"traction/engine/telemetry/events"
	"traction/engine/telemetry/logging"
	"traction/engine/telemetry/metrics"
)

// Options follow the functional-option shape; New applies them over the
// defaults (wall clock, Prometheus metrics when Config.MetricsEnabled and
// noop metrics otherwise, fresh event bus).
type optionFn func(*Engine)

// WithClock overrides the monotonic clock (tests use a manual clock).
func WithClock(c clock.Clock) optionFn {
	return func(e *Engine) { e.clk = c }
}

// WithMotor installs the motor handle. Required: New fails without one.
func WithMotor(m device.MotorController) optionFn {
	return func(e *Engine) { e.motor = m }
}

// WithMetricsProvider overrides the metrics backend.
func WithMetricsProvider(p metrics.Provider) optionFn {
	return func(e *Engine) { e.metricsProvider = p }
}

// WithLogger overrides the correlated logger.
func WithLogger(l logging.Logger) optionFn {
	return func(e *Engine) { e.log = l }
}

// WithEventBus shares an externally owned bus with the engine.
func WithEventBus(b events.Bus) optionFn {
	return func(e *Engine) { e.bus = b }
}
