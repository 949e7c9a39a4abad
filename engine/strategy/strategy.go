package strategy

import "math"

// Lock is the protection level a strategy attaches to the transition it
// drives. Stronger locks restrict who may interrupt the transition while it
// is in flight.
type Lock uint8

const (
	LockNone Lock = iota
	LockSource
	LockHard
)

func (l Lock) String() string {
	switch l {
	case LockSource:
		return "source"
	case LockHard:
		return "hard"
	default:
		return "none"
	}
}

// InterruptBehaviour is what happens to a lower-priority command that
// arrives while a locked transition is active.
type InterruptBehaviour uint8

const (
	InterruptReplace InterruptBehaviour = iota
	InterruptQueue
	InterruptReject
)

func (b InterruptBehaviour) String() string {
	switch b {
	case InterruptQueue:
		return "queue"
	case InterruptReject:
		return "reject"
	default:
		return "replace"
	}
}

// Strategy maps elapsed time onto interpolation progress and declares its
// own lock level and interrupt behaviour. Strategies are pure values: no
// mutable state, no knowledge of commands or sources.
// Stable: the transition manager depends on exactly these four accessors.
type Strategy interface {
	// DurationMillis is the total transition length; 0 means instantaneous.
	DurationMillis() uint64
	// Progress maps elapsed milliseconds to [0,1]. It is 0 at elapsed=0,
	// exactly 1 for elapsed >= duration, and monotone non-decreasing.
	Progress(elapsedMillis uint64) float64
	Lock() Lock
	OnInterrupt() InterruptBehaviour
}

// Kind discriminates the built-in curve families, primarily for the wire
// codec and telemetry labels.
type Kind string

const (
	KindImmediate Kind = "immediate"
	KindLinear    Kind = "linear"
	KindEaseInOut Kind = "ease_in_out"
	KindMomentum  Kind = "momentum"
)

// Role names the semantic configuration applied by the factory helpers.
// Roles only set lock and interrupt behaviour; the curve shape is untouched.
type Role string

const (
	RoleNone      Role = ""
	RoleDeparture Role = "departure"
	RoleArrival   Role = "arrival"
)

// profile is the single concrete Strategy implementation: a curve function
// plus fixed configuration. Value-typed so transitions embed it without
// allocation on the control path.
type profile struct {
	kind      Kind
	role      Role
	duration  uint64
	lock      Lock
	interrupt InterruptBehaviour
	stiffness float64
	curve     func(t, stiffness float64) float64
}

func (p profile) DurationMillis() uint64 { return p.duration }

func (p profile) Lock() Lock { return p.lock }

func (p profile) OnInterrupt() InterruptBehaviour { return p.interrupt }

func (p profile) Progress(elapsedMillis uint64) float64 {
	if p.duration == 0 || elapsedMillis >= p.duration {
		return 1
	}
	t := float64(elapsedMillis) / float64(p.duration)
	return p.curve(t, p.stiffness)
}

// KindOf reports the curve family of a built-in strategy, KindImmediate
// for any zero-duration strategy from another package.
func KindOf(s Strategy) Kind {
	if p, ok := s.(profile); ok {
		return p.kind
	}
	if s.DurationMillis() == 0 {
		return KindImmediate
	}
	return KindLinear
}

// RoleOf reports the semantic role a factory helper applied, RoleNone for
// plain constructors and foreign strategies.
func RoleOf(s Strategy) Role {
	if p, ok := s.(profile); ok {
		return p.role
	}
	return RoleNone
}

// StiffnessOf reports the momentum stiffness parameter, 0 for non-momentum
// strategies.
func StiffnessOf(s Strategy) float64 {
	if p, ok := s.(profile); ok && p.kind == KindMomentum {
		return p.stiffness
	}
	return 0
}

func identity(t, _ float64) float64 { return t }

// smoothstep is the classic 3t^2 - 2t^3 ease curve.
func smoothstep(t, _ float64) float64 { return t * t * (3 - 2*t) }

// logisticS is a normalised logistic S-curve. Low stiffness stays close to
// a steady ramp; high stiffness lingers near both endpoints and snaps
// through the midpoint. Normalisation pins the endpoints to exactly 0 and 1.
func logisticS(t, stiffness float64) float64 {
	sig := func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
	lo := sig(-stiffness)
	hi := sig(stiffness)
	return (sig(stiffness*(2*t-1)) - lo) / (hi - lo)
}

// Immediate reaches the target atomically at install time.
func Immediate() Strategy {
	return profile{kind: KindImmediate, lock: LockNone, interrupt: InterruptReplace, curve: identity}
}

// Linear interpolates at constant rate over durationMillis.
func Linear(durationMillis uint64) Strategy {
	return profile{kind: KindLinear, duration: durationMillis, lock: LockNone, interrupt: InterruptReplace, curve: identity}
}

// EaseInOut applies smoothstep easing over durationMillis.
func EaseInOut(durationMillis uint64) Strategy {
	return profile{kind: KindEaseInOut, duration: durationMillis, lock: LockNone, interrupt: InterruptReplace, curve: smoothstep}
}

// Momentum applies a logistic S-curve whose shoulder width is controlled by
// stiffness. Stiffness is clamped to [1, 12]: below 1 the normalisation
// degenerates toward linear, above 12 the curve is indistinguishable from a
// step at t=0.5.
func Momentum(durationMillis uint64, stiffness float64) Strategy {
	if stiffness < 1 {
		stiffness = 1
	}
	if stiffness > 12 {
		stiffness = 12
	}
	return profile{kind: KindMomentum, duration: durationMillis, lock: LockNone, interrupt: InterruptReplace, stiffness: stiffness, curve: logisticS}
}

// Departure is an eased pull-away that must not be disturbed: hard lock,
// rejecting interrupts. Only an emergency command can cut it short.
func Departure(durationMillis uint64) Strategy {
	return profile{kind: KindEaseInOut, role: RoleDeparture, duration: durationMillis, lock: LockHard, interrupt: InterruptReject, curve: smoothstep}
}

// Arrival is an eased run-in owned by its source: same-or-higher priority
// replaces it, anything else queues behind it.
func Arrival(durationMillis uint64) Strategy {
	return profile{kind: KindEaseInOut, role: RoleArrival, duration: durationMillis, lock: LockSource, interrupt: InterruptQueue, curve: smoothstep}
}

// Gentle is a long weighty momentum ramp for scale-speed running.
func Gentle(durationMillis uint64) Strategy {
	return profile{kind: KindMomentum, duration: durationMillis, lock: LockNone, interrupt: InterruptReplace, stiffness: 3, curve: logisticS}
}

// Responsive is a short snappy momentum ramp for cab-style control.
func Responsive(durationMillis uint64) Strategy {
	return profile{kind: KindMomentum, duration: durationMillis, lock: LockNone, interrupt: InterruptReplace, stiffness: 9, curve: logisticS}
}

// WithLock returns a copy of a built-in strategy with the lock level
// overridden. Foreign strategies are returned unchanged.
func WithLock(s Strategy, l Lock) Strategy {
	if p, ok := s.(profile); ok {
		p.lock = l
		return p
	}
	return s
}

// WithInterrupt returns a copy of a built-in strategy with the interrupt
// behaviour overridden. Foreign strategies are returned unchanged.
func WithInterrupt(s Strategy, b InterruptBehaviour) Strategy {
	if p, ok := s.(profile); ok {
		p.interrupt = b
		return p
	}
	return s
}
