// Package runtime hosts the engine: one goroutine owns the tick cadence,
// polls the physical inputs, and serialises every external command into
// the single-owner core.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"traction/engine"
	"traction/engine/command"
	"traction/engine/device"
	"traction/engine/strategy"
	"traction/engine/telemetry/logging"
)

// Options configure the loop around an engine.
type Options struct {
	Engine         *engine.Engine
	Encoder        device.EncoderInput  // optional
	Faults         device.FaultDetector // optional
	Logger         logging.Logger
	TickInterval   time.Duration
	EncoderDetents int // detents for full throttle; default 20
}

// Loop drives the engine. External adapters submit through Submit, which
// serialises against the tick under one mutex — the core itself stays
// unsynchronised, per its single-owner contract.
type Loop struct {
	mu  sync.Mutex
	eng *engine.Engine

	encoder device.EncoderInput
	faults  device.FaultDetector
	log     logging.Logger

	tick    time.Duration
	detents float64

	stopTarget float64 // last non-zero target, for button resume
	stopped    bool
	faulted    bool
}

func NewLoop(opts Options) *Loop {
	tick := opts.TickInterval
	if tick <= 0 {
		tick = 20 * time.Millisecond
	}
	detents := opts.EncoderDetents
	if detents <= 0 {
		detents = 20
	}
	log := opts.Logger
	if log == nil {
		log = logging.New(nil)
	}
	return &Loop{
		eng:     opts.Engine,
		encoder: opts.Encoder,
		faults:  opts.Faults,
		log:     log,
		tick:    tick,
		detents: float64(detents),
	}
}

// Submit applies a command from a host adapter, stamped with the engine
// clock on entry.
func (l *Loop) Submit(cmd command.Command, src command.Source) (engine.Ack, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eng.ApplyCommand(cmd, src, l.eng.Clock().NowMillis())
}

// State reads a snapshot under the same serialisation as commands.
func (l *Loop) State() engine.ThrottleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eng.State(l.eng.Clock().NowMillis())
}

// Snapshot reads the extended snapshot.
func (l *Loop) Snapshot() engine.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eng.Snapshot(l.eng.Clock().NowMillis())
}

// ApplyConfig applies the hot-reloadable settings between ticks. The max
// speed change carries WebLocal authority: the config file lives next to
// the daemon.
func (l *Loop) ApplyConfig(lockoutMillis uint64, maxSpeed float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.eng.SetDefaultLockout(lockoutMillis)
	l.eng.SetMaxSpeedLimit(maxSpeed, command.SourceWebLocal, l.eng.Clock().NowMillis())
}

// Run ticks until the context ends. Blocking; the daemon runs it as its
// main loop.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick performs one host cycle: fault scan, encoder poll, engine update.
// Exported so tests drive the loop with a manual clock and no ticker.
func (l *Loop) Tick(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.eng.Clock().NowMillis()

	l.scanFaults(ctx, now)
	l.pollEncoder(ctx, now)

	if err := l.eng.Update(now); err != nil {
		l.log.ErrorCtx(ctx, "motor update failed", slog.Any("error", err))
	}
}

// scanFaults synthesises an emergency stop tagged Fault on the rising
// edge of a detector signal. The core never reads the detector itself.
func (l *Loop) scanFaults(ctx context.Context, now uint64) {
	if l.faults == nil {
		return
	}
	active := l.faults.IsShortCircuit() || l.faults.IsOvercurrent()
	if active && !l.faulted {
		l.log.WarnCtx(ctx, "fault detected, stopping",
			slog.Bool("short_circuit", l.faults.IsShortCircuit()),
			slog.Bool("overcurrent", l.faults.IsOvercurrent()))
		_, _ = l.eng.ApplyCommand(command.EStop(), command.SourceFault, now)
	}
	l.faulted = active
}

// pollEncoder turns accumulated detents into physical speed commands and
// the button into a stop/resume toggle.
func (l *Loop) pollEncoder(ctx context.Context, now uint64) {
	if l.encoder == nil {
		return
	}
	st := l.eng.State(now)

	if l.encoder.ButtonPressed() {
		if l.stopped {
			l.stopped = false
			_, _ = l.eng.ApplyCommand(command.SetSpeed(l.stopTarget, strategy.Gentle(1200)), command.SourcePhysical, now)
		} else {
			l.stopped = true
			if st.TargetSpeed != 0 {
				l.stopTarget = st.TargetSpeed
			}
			_, _ = l.eng.ApplyCommand(command.SetSpeed(0, strategy.Responsive(400)), command.SourcePhysical, now)
		}
		return
	}

	delta := l.encoder.ReadDelta()
	if delta == 0 {
		return
	}
	target := st.TargetSpeed + float64(delta)/l.detents
	if target > 1 {
		target = 1
	} else if target < -1 {
		target = -1
	}
	l.stopped = false
	if _, err := l.eng.ApplyCommand(command.SetSpeed(target, nil), command.SourcePhysical, now); err != nil {
		l.log.WarnCtx(ctx, "encoder command rejected", slog.Any("error", err))
	}
}
