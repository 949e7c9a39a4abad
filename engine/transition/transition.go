// Package transition owns the in-flight speed transition: the accept /
// replace / queue / reject decision on incoming commands, the interpolated
// read model, and the tick that pins completed transitions and drains the
// bounded follow-up queue.
package transition

import (
	"errors"
	"fmt"

	"traction/engine/command"
	"traction/engine/strategy"
)

// DefaultQueueCapacity bounds the follow-up FIFO. Overflow is an error,
// never a stall.
const DefaultQueueCapacity = 4

// ErrQueueFull rejects a would-queue follow-up when the FIFO is at
// capacity.
var ErrQueueFull = errors.New("follow-up queue full")

// LockedError rejects an interrupt forbidden by the active transition's
// lock level.
type LockedError struct {
	Lock strategy.Lock
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("transition locked (%s)", e.Lock)
}

// Outcome reports how an accepted command was absorbed.
type Outcome uint8

const (
	// OutcomeInstalled means the command became the active transition.
	OutcomeInstalled Outcome = iota
	// OutcomeQueued means the command waits on the follow-up queue.
	OutcomeQueued
)

// Active is the in-flight transition record. The lock level is frozen at
// install time; mutating the strategy afterwards cannot weaken it.
type Active struct {
	StartSpeed  float64
	TargetSpeed float64
	StartedAt   uint64
	Strategy    strategy.Strategy
	Source      command.Source
	Lock        strategy.Lock
}

// Completed records a transition that reached its target, for
// observability only. Synthetic is set for zero-duration transitions whose
// completion fires on the tick after install.
type Completed struct {
	TargetSpeed float64
	Source      command.Source
	StartedAt   uint64
	CompletedAt uint64
	Synthetic   bool
}

type pending struct {
	target      float64
	strat       strategy.Strategy
	source      command.Source
	submittedAt uint64
}

// Manager is single-owner: the controller is the only caller, so there is
// no internal synchronisation.
type Manager struct {
	committed float64 // last committed interpolated value
	active    *Active
	queue     []pending
	capacity  int
}

func NewManager(queueCapacity int) *Manager {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	return &Manager{capacity: queueCapacity}
}

// CurrentSpeed is the interpolated value at now. Pure read; it never
// advances internal state.
func (m *Manager) CurrentSpeed(nowMillis uint64) float64 {
	a := m.active
	if a == nil {
		return m.committed
	}
	elapsed := uint64(0)
	if nowMillis > a.StartedAt {
		elapsed = nowMillis - a.StartedAt
	}
	return a.StartSpeed + (a.TargetSpeed-a.StartSpeed)*a.Strategy.Progress(elapsed)
}

// IsActive reports whether a transition is still progressing at now. A
// finished-but-unticked transition reads as inactive; Tick pins it.
func (m *Manager) IsActive(nowMillis uint64) bool {
	a := m.active
	if a == nil {
		return false
	}
	return nowMillis-a.StartedAt < a.Strategy.DurationMillis() || nowMillis < a.StartedAt
}

// Progress reports interpolation progress in [0,1]; 1 when idle.
func (m *Manager) Progress(nowMillis uint64) float64 {
	a := m.active
	if a == nil {
		return 1
	}
	if nowMillis < a.StartedAt {
		return 0
	}
	return a.Strategy.Progress(nowMillis - a.StartedAt)
}

// Active returns a copy of the in-flight record, ok=false when idle.
func (m *Manager) Active() (Active, bool) {
	if m.active == nil {
		return Active{}, false
	}
	return *m.active, true
}

// QueueLen is the number of waiting follow-ups.
func (m *Manager) QueueLen() int { return len(m.queue) }

// Install evaluates an incoming command against the active transition.
//
// No active transition: accept unconditionally, rooted at the current
// committed speed. Otherwise the active lock decides:
//
//	none   — replace.
//	source — same-or-higher priority than the owner replaces (two knob
//	         twists compose); lower priority falls through to the active
//	         strategy's interrupt behaviour.
//	hard   — only Emergency replaces; everything else falls through to
//	         the interrupt behaviour, where Replace is demoted to Reject.
func (m *Manager) Install(target float64, strat strategy.Strategy, src command.Source, nowMillis uint64) (Outcome, error) {
	a := m.active
	if a == nil {
		m.start(target, strat, src, nowMillis)
		return OutcomeInstalled, nil
	}

	replace := false
	switch a.Lock {
	case strategy.LockNone:
		replace = true
	case strategy.LockSource:
		replace = src == a.Source || src.Outranks(a.Source)
	case strategy.LockHard:
		replace = src == command.SourceEmergency
	}
	if replace {
		m.committed = m.CurrentSpeed(nowMillis)
		m.start(target, strat, src, nowMillis)
		return OutcomeInstalled, nil
	}

	switch a.Strategy.OnInterrupt() {
	case strategy.InterruptReplace:
		if a.Lock == strategy.LockHard {
			return 0, &LockedError{Lock: a.Lock}
		}
		m.committed = m.CurrentSpeed(nowMillis)
		m.start(target, strat, src, nowMillis)
		return OutcomeInstalled, nil
	case strategy.InterruptQueue:
		if len(m.queue) >= m.capacity {
			return 0, ErrQueueFull
		}
		m.queue = append(m.queue, pending{target: target, strat: strat, source: src, submittedAt: nowMillis})
		return OutcomeQueued, nil
	default:
		return 0, &LockedError{Lock: a.Lock}
	}
}

func (m *Manager) start(target float64, strat strategy.Strategy, src command.Source, nowMillis uint64) {
	start := m.committed
	if strat.DurationMillis() == 0 {
		// Instantaneous: the target is reached atomically at install.
		start = target
		m.committed = target
	}
	m.active = &Active{
		StartSpeed:  start,
		TargetSpeed: target,
		StartedAt:   nowMillis,
		Strategy:    strat,
		Source:      src,
		Lock:        strat.Lock(),
	}
}

// Cancel discards the active transition and any queued follow-ups,
// committing the interpolated value at now. No completion is emitted.
func (m *Manager) Cancel(nowMillis uint64) {
	if m.active != nil {
		m.committed = m.CurrentSpeed(nowMillis)
		m.active = nil
	}
	m.queue = m.queue[:0]
}

// Tick pins a finished transition to its target, installs at most one
// queued follow-up (single step, so per-tick work stays bounded), and
// returns the completion record. No-op otherwise.
func (m *Manager) Tick(nowMillis uint64) *Completed {
	a := m.active
	if a == nil {
		return nil
	}
	if nowMillis >= a.StartedAt && nowMillis-a.StartedAt >= a.Strategy.DurationMillis() {
		m.committed = a.TargetSpeed
		comp := &Completed{
			TargetSpeed: a.TargetSpeed,
			Source:      a.Source,
			StartedAt:   a.StartedAt,
			CompletedAt: nowMillis,
			Synthetic:   a.Strategy.DurationMillis() == 0,
		}
		m.active = nil
		if len(m.queue) > 0 {
			next := m.queue[0]
			m.queue = m.queue[1:]
			// Queue is only populated while a transition is active, so
			// this install cannot recurse into another drain.
			_, _ = m.Install(next.target, next.strat, next.source, nowMillis)
		}
		return comp
	}
	return nil
}
