package command

import (
	"encoding/json"
	"fmt"
	"math"

	"traction/engine/strategy"
)

// Wire representation shared by the REST, web-UI and station-bus
// adapters. Speeds carry at most 3 decimal digits; directions are the
// strings "forward" | "reverse" | "stopped"; strategies are discriminated
// objects keyed by "kind".

type wireStrategy struct {
	Kind       strategy.Kind `json:"kind"`
	DurationMS uint64        `json:"duration_ms,omitempty"`
	Role       *string       `json:"role,omitempty"`
	Stiffness  float64       `json:"stiffness,omitempty"`
}

type wireCommand struct {
	Type      string        `json:"type"`
	Target    *float64      `json:"target,omitempty"`
	Direction string        `json:"direction,omitempty"`
	Limit     *float64      `json:"limit,omitempty"`
	Strategy  *wireStrategy `json:"strategy,omitempty"`
}

// round3 rounds a speed to the wire precision of 3 decimal digits.
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func encodeStrategy(s strategy.Strategy) *wireStrategy {
	if s == nil {
		return nil
	}
	w := &wireStrategy{Kind: strategy.KindOf(s), DurationMS: s.DurationMillis()}
	switch w.Kind {
	case strategy.KindEaseInOut:
		if r := strategy.RoleOf(s); r != strategy.RoleNone {
			role := string(r)
			w.Role = &role
		}
	case strategy.KindMomentum:
		w.Stiffness = strategy.StiffnessOf(s)
	case strategy.KindImmediate:
		w.DurationMS = 0
	}
	return w
}

func decodeStrategy(w *wireStrategy) (strategy.Strategy, error) {
	if w == nil {
		return nil, nil
	}
	switch w.Kind {
	case strategy.KindImmediate:
		return strategy.Immediate(), nil
	case strategy.KindLinear:
		return strategy.Linear(w.DurationMS), nil
	case strategy.KindEaseInOut:
		if w.Role != nil {
			switch strategy.Role(*w.Role) {
			case strategy.RoleDeparture:
				return strategy.Departure(w.DurationMS), nil
			case strategy.RoleArrival:
				return strategy.Arrival(w.DurationMS), nil
			default:
				return nil, fmt.Errorf("unknown ease_in_out role %q", *w.Role)
			}
		}
		return strategy.EaseInOut(w.DurationMS), nil
	case strategy.KindMomentum:
		return strategy.Momentum(w.DurationMS, w.Stiffness), nil
	default:
		return nil, fmt.Errorf("unknown strategy kind %q", w.Kind)
	}
}

func parseDirection(s string) (Direction, error) {
	switch s {
	case "forward":
		return DirectionForward, nil
	case "reverse":
		return DirectionReverse, nil
	case "stopped":
		return DirectionStopped, nil
	default:
		return DirectionStopped, fmt.Errorf("unknown direction %q", s)
	}
}

// Marshal encodes a command into its wire JSON form.
func Marshal(c Command) ([]byte, error) {
	w := wireCommand{Type: c.Kind.String()}
	switch c.Kind {
	case KindSetSpeed:
		t := round3(c.Target)
		w.Target = &t
		w.Strategy = encodeStrategy(c.Strategy)
	case KindSetDirection:
		w.Direction = c.Direction.String()
		w.Strategy = encodeStrategy(c.Strategy)
	case KindSetMaxSpeed:
		l := round3(c.Limit)
		w.Limit = &l
	case KindEStop:
		// type alone
	default:
		return nil, fmt.Errorf("unknown command kind %d", c.Kind)
	}
	return json.Marshal(w)
}

// Unmarshal decodes wire JSON into a command. A missing strategy decodes
// to nil, which consumers treat as Immediate.
func Unmarshal(data []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	switch w.Type {
	case "set_speed":
		if w.Target == nil {
			return Command{}, fmt.Errorf("set_speed missing target")
		}
		s, err := decodeStrategy(w.Strategy)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindSetSpeed, Target: *w.Target, Strategy: s}, nil
	case "set_direction":
		d, err := parseDirection(w.Direction)
		if err != nil {
			return Command{}, err
		}
		s, err := decodeStrategy(w.Strategy)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindSetDirection, Direction: d, Strategy: s}, nil
	case "set_max_speed":
		if w.Limit == nil {
			return Command{}, fmt.Errorf("set_max_speed missing limit")
		}
		return Command{Kind: KindSetMaxSpeed, Limit: *w.Limit}, nil
	case "estop":
		return Command{Kind: KindEStop}, nil
	default:
		return Command{}, fmt.Errorf("unknown command type %q", w.Type)
	}
}
