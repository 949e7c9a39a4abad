package command

import (
	"fmt"

	"traction/engine/strategy"
)

// Source identifies where a command originated. Sources are totally
// ordered; a larger value outranks a smaller one everywhere the core makes
// a priority decision.
type Source uint8

const (
	SourceMqtt Source = iota
	SourceWebAPI
	SourceWebLocal
	SourcePhysical
	SourceFault
	SourceEmergency
)

func (s Source) String() string {
	switch s {
	case SourceMqtt:
		return "mqtt"
	case SourceWebAPI:
		return "web_api"
	case SourceWebLocal:
		return "web_local"
	case SourcePhysical:
		return "physical"
	case SourceFault:
		return "fault"
	case SourceEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// Outranks reports whether s strictly outranks other.
func (s Source) Outranks(other Source) bool { return s > other }

// Direction is the external-surface travel direction. The authoritative
// drive value is the signed speed; Direction exists for clarity on the
// wire and the display.
type Direction uint8

const (
	DirectionStopped Direction = iota
	DirectionForward
	DirectionReverse
)

func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionReverse:
		return "reverse"
	default:
		return "stopped"
	}
}

// DirectionOf derives the Direction from a signed speed.
func DirectionOf(speed float64) Direction {
	switch {
	case speed > 0:
		return DirectionForward
	case speed < 0:
		return DirectionReverse
	default:
		return DirectionStopped
	}
}

// Kind discriminates the command union.
type Kind uint8

const (
	KindSetSpeed Kind = iota
	KindSetDirection
	KindSetMaxSpeed
	KindEStop
)

func (k Kind) String() string {
	switch k {
	case KindSetSpeed:
		return "set_speed"
	case KindSetDirection:
		return "set_direction"
	case KindSetMaxSpeed:
		return "set_max_speed"
	default:
		return "estop"
	}
}

// Command is the throttle command union. Only the fields relevant to Kind
// are meaningful; the zero Strategy is treated as Immediate by consumers.
type Command struct {
	Kind      Kind
	Target    float64   // KindSetSpeed: signed target in [-1,1]
	Direction Direction // KindSetDirection
	Limit     float64   // KindSetMaxSpeed: in [0,1]
	Strategy  strategy.Strategy
}

func SetSpeed(target float64, s strategy.Strategy) Command {
	return Command{Kind: KindSetSpeed, Target: target, Strategy: s}
}

func SetDirection(d Direction, s strategy.Strategy) Command {
	return Command{Kind: KindSetDirection, Direction: d, Strategy: s}
}

func SetMaxSpeed(limit float64) Command {
	return Command{Kind: KindSetMaxSpeed, Limit: limit}
}

func EStop() Command { return Command{Kind: KindEStop} }

// EffectiveStrategy returns the command's strategy, defaulting to Immediate.
func (c Command) EffectiveStrategy() strategy.Strategy {
	if c.Strategy == nil {
		return strategy.Immediate()
	}
	return c.Strategy
}

// Prioritized is the immutable envelope the controller evaluates: the
// command, its effective source and the monotonic submission time.
type Prioritized struct {
	Command     Command
	Source      Source
	SubmittedAt uint64
}

// Prioritize stamps a submitted command. The one promotion rule lives
// here: an emergency stop carries SourceEmergency no matter who sent it.
// SourceFault is never produced from user input; the fault scanner is the
// only producer.
func Prioritize(cmd Command, src Source, nowMillis uint64) Prioritized {
	if cmd.Kind == KindEStop {
		src = SourceEmergency
	}
	return Prioritized{Command: cmd, Source: src, SubmittedAt: nowMillis}
}
