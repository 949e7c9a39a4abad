// Package engine is the throttle controller: it owns the motor handle,
// the transition manager and the source-lockout arbiter, and exposes the
// three operations hosts build on — ApplyCommand, Update, State.
//
// The engine is single-owner. It never suspends, performs no I/O beyond
// the motor handle, and must be entered by one caller at a time; the
// runtime loop provides that serialisation for the daemon.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"traction/engine/clock"
	"traction/engine/command"
	"traction/engine/device"
	"traction/engine/lockout"
	"traction/engine/strategy"
	"traction/engine/telemetry/events"
	"traction/engine/telemetry/health"
	"traction/engine/telemetry/logging"
	"traction/engine/telemetry/metrics"
	"traction/engine/transition"
)

// ThrottleState is the read-only snapshot hosts and adapters consume.
// Stable: fields may be added; existing fields retain semantics.
type ThrottleState struct {
	CurrentSpeed       float64 `json:"current_speed"`
	TargetSpeed        float64 `json:"target_speed"`
	Direction          string  `json:"direction"`
	IsTransitioning    bool    `json:"is_transitioning"`
	TransitionProgress float64 `json:"transition_progress"`
	MaxSpeed           float64 `json:"max_speed"`
	LockoutRemainingMS uint64  `json:"lockout_remaining_ms"`
	CurrentSource      string  `json:"current_source"`
}

// Snapshot extends ThrottleState with host diagnostics.
type Snapshot struct {
	ThrottleState
	QueueDepth int          `json:"queue_depth"`
	Events     events.Stats `json:"events"`
}

type instruments struct {
	commands    metrics.Counter // labels: source, outcome
	rejections  metrics.Counter // labels: reason
	completions metrics.Counter
	estops      metrics.Counter
	speed       metrics.Gauge
	queueDepth  metrics.Gauge
	currentMA   metrics.Gauge
}

// Engine composes the core behind a single facade.
type Engine struct {
	cfg   Config
	clk   clock.Clock
	motor device.MotorController

	manager *transition.Manager
	arbiter *lockout.Arbiter

	maxSpeed   float64
	direction  command.Direction
	pushedDir  command.Direction
	dirPushed  bool
	lastSource command.Source
	sourceSet  bool

	tickCount     int
	lastMotorErr  error
	lastSampleErr error

	bus             events.Bus
	log             logging.Logger
	metricsProvider metrics.Provider
	prom            *metrics.PrometheusProvider
	inst            instruments
	healthEval      *health.Evaluator
}

// New builds an engine. A motor handle is required; everything else
// defaults (wall clock, Prometheus metrics when enabled, fresh bus).
func New(cfg Config, opts ...optionFn) (*Engine, error) {
	cfg.normalize()
	e := &Engine{
		cfg:       cfg,
		manager:   transition.NewManager(cfg.QueueCapacity),
		arbiter:   lockout.New(),
		maxSpeed:  cfg.MaxSpeed,
		direction: command.DirectionStopped,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.motor == nil {
		return nil, errors.New("engine: motor handle required (WithMotor)")
	}
	if e.clk == nil {
		e.clk = clock.NewWall()
	}
	if e.bus == nil {
		e.bus = events.NewBus()
	}
	if e.log == nil {
		e.log = logging.New(nil)
	}
	if e.metricsProvider == nil {
		if cfg.MetricsEnabled {
			prom := metrics.NewPrometheusProvider(metrics.PrometheusOpts{})
			e.prom = prom
			e.metricsProvider = prom
		} else {
			e.metricsProvider = metrics.NewNoopProvider()
		}
	}
	e.initInstruments()
	e.healthEval = health.NewEvaluator(500*time.Millisecond, e.healthProbes()...)
	return e, nil
}

func (e *Engine) initInstruments() {
	p := e.metricsProvider
	ns := "traction"
	e.inst = instruments{
		commands:    p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: ns, Name: "commands_total", Help: "commands evaluated", Labels: []string{"source", "outcome"}}}),
		rejections:  p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: ns, Name: "rejections_total", Help: "commands rejected", Labels: []string{"reason"}}}),
		completions: p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: ns, Name: "transitions_completed_total", Help: "transitions that reached their target"}}),
		estops:      p.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: ns, Name: "estops_total", Help: "emergency stops accepted"}}),
		speed:       p.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{Namespace: ns, Name: "speed", Help: "signed commanded speed"}}),
		queueDepth:  p.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{Namespace: ns, Name: "queue_depth", Help: "waiting follow-up commands"}}),
		currentMA:   p.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{Namespace: ns, Name: "motor_current_ma", Help: "sampled motor current draw"}}),
	}
}

// Clock exposes the engine's timebase so hosts stamp commands coherently.
func (e *Engine) Clock() clock.Clock { return e.clk }

// Bus exposes the telemetry event bus for adapters to subscribe.
func (e *Engine) Bus() events.Bus { return e.bus }

// ApplyCommand evaluates one prioritized command at now. The returned Ack
// reports how the command was absorbed; typed errors carry the rejection
// reason. EStop never fails.
func (e *Engine) ApplyCommand(cmd command.Command, src command.Source, nowMillis uint64) (Ack, error) {
	p := command.Prioritize(cmd, src, nowMillis)

	if p.Source == command.SourceEmergency {
		return e.emergencyStop(p), nil
	}

	if e.arbiter.IsBlocked(p.Source, nowMillis) {
		remaining := e.arbiter.Remaining(nowMillis)
		e.inst.rejections.Inc(1, "lockout")
		e.publish(events.Event{AtMillis: nowMillis, Category: events.CategoryLockout, Type: "rejected", Severity: "info",
			Labels: map[string]string{"source": p.Source.String()}})
		return Ack{}, &LockoutError{RemainingMillis: remaining}
	}

	switch p.Command.Kind {
	case command.KindSetSpeed:
		return e.applySpeed(p, p.Command.Target, p.Command.EffectiveStrategy())
	case command.KindSetDirection:
		var target float64
		switch p.Command.Direction {
		case command.DirectionForward:
			target = e.maxSpeed
		case command.DirectionReverse:
			target = -e.maxSpeed
		}
		return e.applySpeed(p, target, p.Command.EffectiveStrategy())
	case command.KindSetMaxSpeed:
		return e.applyMaxSpeed(p), nil
	default:
		// Unreachable: EStop promoted above.
		return Ack{}, errors.New("engine: unknown command kind")
	}
}

func (e *Engine) applySpeed(p command.Prioritized, target float64, strat strategy.Strategy) (Ack, error) {
	now := p.SubmittedAt
	var clamped *float64
	if target > e.maxSpeed {
		target = e.maxSpeed
		clamped = &target
	} else if target < -e.maxSpeed {
		target = -e.maxSpeed
		clamped = &target
	}

	out, err := e.manager.Install(target, strat, p.Source, now)
	if err != nil {
		reason := "locked"
		if errors.Is(err, transition.ErrQueueFull) {
			reason = "queue_full"
		}
		e.inst.rejections.Inc(1, reason)
		e.publish(events.Event{AtMillis: now, Category: events.CategoryCommand, Type: "rejected", Severity: "info",
			Labels: map[string]string{"source": p.Source.String(), "reason": reason}})
		return Ack{}, err
	}

	ack := Ack{ClampedTo: clamped}
	switch out {
	case transition.OutcomeInstalled:
		ack.Outcome = OutcomeInstalled
		e.lastSource = p.Source
		e.sourceSet = true
		// Lockout refreshes only when the transition actually installed.
		if p.Source >= command.SourcePhysical {
			e.arbiter.Install(p.Source, now, e.cfg.DefaultLockoutMillis)
		}
	case transition.OutcomeQueued:
		ack.Outcome = OutcomeQueued
	}
	e.inst.commands.Inc(1, p.Source.String(), ack.Outcome.String())
	e.inst.queueDepth.Set(float64(e.manager.QueueLen()))
	e.publish(events.Event{AtMillis: now, Category: events.CategoryCommand, Type: "accepted",
		Labels: map[string]string{"source": p.Source.String(), "outcome": ack.Outcome.String()},
		Fields: map[string]any{"target": target}})
	return ack, nil
}

func (e *Engine) applyMaxSpeed(p command.Prioritized) Ack {
	now := p.SubmittedAt
	limit := p.Command.Limit
	var clamped *float64
	if limit < 0 {
		limit = 0
		clamped = &limit
	} else if limit > 1 {
		limit = 1
		clamped = &limit
	}
	e.maxSpeed = limit

	// The speed bound outranks lock discipline: a target now out of range
	// is retargeted immediately to the clamped value.
	retarget, needed := e.overLimitTarget(now, limit)
	if needed {
		e.manager.Cancel(now)
		_, _ = e.manager.Install(retarget, strategy.Immediate(), p.Source, now)
		e.lastSource = p.Source
		e.sourceSet = true
	}
	e.inst.commands.Inc(1, p.Source.String(), OutcomeApplied.String())
	e.publish(events.Event{AtMillis: now, Category: events.CategoryCommand, Type: "max_speed",
		Labels: map[string]string{"source": p.Source.String()},
		Fields: map[string]any{"limit": limit, "retargeted": needed}})
	return Ack{Outcome: OutcomeApplied, ClampedTo: clamped}
}

// overLimitTarget reports the clamped retarget value when the in-flight
// target or the committed speed exceeds the new limit.
func (e *Engine) overLimitTarget(nowMillis uint64, limit float64) (float64, bool) {
	ref := e.manager.CurrentSpeed(nowMillis)
	if a, ok := e.manager.Active(); ok {
		ref = a.TargetSpeed
	}
	if math.Abs(ref) <= limit {
		return 0, false
	}
	if ref < 0 {
		return -limit, true
	}
	return limit, true
}

func (e *Engine) emergencyStop(p command.Prioritized) Ack {
	now := p.SubmittedAt
	e.arbiter.Clear()
	e.manager.Cancel(now)
	_, _ = e.manager.Install(0, strategy.Immediate(), command.SourceEmergency, now)
	e.lastSource = command.SourceEmergency
	e.sourceSet = true
	e.direction = command.DirectionStopped

	// Best effort immediate push; Update retries on the next tick if the
	// driver is unhappy. EStop itself never fails.
	if err := e.motor.SetSpeed(0); err != nil {
		e.lastMotorErr = err
		e.log.ErrorCtx(context.Background(), "estop motor push failed", slog.Any("error", err))
	} else {
		e.lastMotorErr = nil
	}
	if err := e.motor.SetDirection(command.DirectionStopped); err == nil {
		e.pushedDir = command.DirectionStopped
		e.dirPushed = true
	}

	e.inst.estops.Inc(1)
	e.inst.speed.Set(0)
	e.publish(events.Event{AtMillis: now, Category: events.CategoryFault, Type: "estop", Severity: "warn"})
	return Ack{Outcome: OutcomeApplied}
}

// Update is the tick: progress the transition, push the interpolated
// speed to the motor, reconcile direction. The motor sees at most one
// SetSpeed and one SetDirection per call.
func (e *Engine) Update(nowMillis uint64) error {
	if comp := e.manager.Tick(nowMillis); comp != nil {
		e.inst.completions.Inc(1)
		e.inst.queueDepth.Set(float64(e.manager.QueueLen()))
		e.publish(events.Event{AtMillis: nowMillis, Category: events.CategoryTransition, Type: "completed",
			Labels: map[string]string{"source": comp.Source.String()},
			Fields: map[string]any{"target": comp.TargetSpeed, "synthetic": comp.Synthetic}})
		if a, ok := e.manager.Active(); ok {
			// A drained follow-up took over.
			e.lastSource = a.Source
			e.sourceSet = true
		}
	}

	speed := e.clampSpeed(e.manager.CurrentSpeed(nowMillis))
	e.inst.speed.Set(speed)
	e.tickCount++
	e.sampleCurrent()

	if err := e.motor.SetSpeed(speed); err != nil {
		e.lastMotorErr = err
		return &MotorError{Op: "set_speed", Err: err}
	}
	e.lastMotorErr = nil

	dir := command.DirectionOf(speed)
	e.direction = dir
	if !e.dirPushed || dir != e.pushedDir {
		if err := e.motor.SetDirection(dir); err != nil {
			e.lastMotorErr = err
			return &MotorError{Op: "set_direction", Err: err}
		}
		e.pushedDir = dir
		e.dirPushed = true
	}
	return nil
}

func (e *Engine) clampSpeed(v float64) float64 {
	if v > e.maxSpeed {
		return e.maxSpeed
	}
	if v < -e.maxSpeed {
		return -e.maxSpeed
	}
	return v
}

func (e *Engine) sampleCurrent() {
	if e.cfg.CurrentSampleEvery <= 0 || e.tickCount%e.cfg.CurrentSampleEvery != 0 {
		return
	}
	ma, err := e.motor.ReadCurrentMA()
	if err != nil {
		e.lastSampleErr = err
		return
	}
	e.lastSampleErr = nil
	e.inst.currentMA.Set(float64(ma))
}

// State returns a read-only snapshot at now. Pure: no internal state
// advances.
func (e *Engine) State(nowMillis uint64) ThrottleState {
	speed := e.clampSpeed(e.manager.CurrentSpeed(nowMillis))
	target := speed
	source := ""
	if a, ok := e.manager.Active(); ok {
		target = a.TargetSpeed
		source = a.Source.String()
	} else if e.sourceSet {
		source = e.lastSource.String()
	}
	return ThrottleState{
		CurrentSpeed:       speed,
		TargetSpeed:        target,
		Direction:          command.DirectionOf(speed).String(),
		IsTransitioning:    e.manager.IsActive(nowMillis),
		TransitionProgress: e.manager.Progress(nowMillis),
		MaxSpeed:           e.maxSpeed,
		LockoutRemainingMS: e.arbiter.Remaining(nowMillis),
		CurrentSource:      source,
	}
}

// Snapshot is State plus host diagnostics.
func (e *Engine) Snapshot(nowMillis uint64) Snapshot {
	return Snapshot{
		ThrottleState: e.State(nowMillis),
		QueueDepth:    e.manager.QueueLen(),
		Events:        e.bus.Stats(),
	}
}

// SetMaxSpeedLimit applies a config-driven limit change; semantics match
// an accepted SetMaxSpeed from the given source.
func (e *Engine) SetMaxSpeedLimit(limit float64, src command.Source, nowMillis uint64) {
	_ = e.applyMaxSpeed(command.Prioritize(command.SetMaxSpeed(limit), src, nowMillis))
}

// SetDefaultLockout applies a config-driven lockout duration change.
func (e *Engine) SetDefaultLockout(durationMillis uint64) {
	if durationMillis > 0 {
		e.cfg.DefaultLockoutMillis = durationMillis
	}
}

// LastMotorError reports the most recent motor failure, nil when healthy.
func (e *Engine) LastMotorError() error { return e.lastMotorErr }

func (e *Engine) healthProbes() []health.Probe {
	motor := health.ProbeFunc(func(context.Context) health.ProbeResult {
		if err := e.lastMotorErr; err != nil {
			return health.Unhealthy("motor", err.Error())
		}
		return health.Healthy("motor")
	})
	sampling := health.ProbeFunc(func(context.Context) health.ProbeResult {
		if err := e.lastSampleErr; err != nil {
			return health.Degraded("current_sampling", err.Error())
		}
		return health.Healthy("current_sampling")
	})
	provider := health.ProbeFunc(func(ctx context.Context) health.ProbeResult {
		if err := e.metricsProvider.Health(ctx); err != nil {
			return health.Degraded("metrics", err.Error())
		}
		return health.Healthy("metrics")
	})
	return []health.Probe{motor, sampling, provider}
}

// HealthSnapshot evaluates (or serves the cached) health rollup.
func (e *Engine) HealthSnapshot(ctx context.Context) health.Snapshot {
	return e.healthEval.Evaluate(ctx)
}

// PrometheusHandler returns the engine's Prometheus provider, whose Handler
// serves the exposition, when the engine owns one; nil otherwise.
func (e *Engine) PrometheusHandler() *metrics.PrometheusProvider { return e.prom }

func (e *Engine) publish(ev events.Event) { e.bus.Publish(ev) }
