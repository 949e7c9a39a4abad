package device

import (
	"traction/engine/clock"
	"traction/engine/command"
)

// Recording mocks for tests. Every invocation is recorded with the
// timestamp of the test-owned clock; nothing here sleeps or blocks.

// MotorCall is one recorded motor invocation.
type MotorCall struct {
	At        uint64
	Op        string // "set_speed" | "set_direction" | "read_current"
	Speed     float64
	Direction command.Direction
}

// MockMotor records every call and returns the scripted error, if any.
type MockMotor struct {
	clk       clock.Clock
	Calls     []MotorCall
	FailWith  error  // returned by SetSpeed/SetDirection when set
	CurrentMA uint16 // returned by ReadCurrentMA
	ReadErr   error
}

func NewMockMotor(clk clock.Clock) *MockMotor { return &MockMotor{clk: clk} }

func (m *MockMotor) SetSpeed(speed float64) error {
	m.Calls = append(m.Calls, MotorCall{At: m.clk.NowMillis(), Op: "set_speed", Speed: speed})
	return m.FailWith
}

func (m *MockMotor) SetDirection(dir command.Direction) error {
	m.Calls = append(m.Calls, MotorCall{At: m.clk.NowMillis(), Op: "set_direction", Direction: dir})
	return m.FailWith
}

func (m *MockMotor) ReadCurrentMA() (uint16, error) {
	m.Calls = append(m.Calls, MotorCall{At: m.clk.NowMillis(), Op: "read_current"})
	return m.CurrentMA, m.ReadErr
}

// LastSpeed returns the most recent set_speed value, ok=false when none.
func (m *MockMotor) LastSpeed() (float64, bool) {
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Op == "set_speed" {
			return m.Calls[i].Speed, true
		}
	}
	return 0, false
}

// LastDirection returns the most recent set_direction value.
func (m *MockMotor) LastDirection() (command.Direction, bool) {
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Op == "set_direction" {
			return m.Calls[i].Direction, true
		}
	}
	return command.DirectionStopped, false
}

// CallsSince counts invocations of op at or after t.
func (m *MockMotor) CallsSince(op string, t uint64) int {
	n := 0
	for _, c := range m.Calls {
		if c.Op == op && c.At >= t {
			n++
		}
	}
	return n
}

// MockEncoder replays scripted deltas and button presses in order,
// returning zero/false once the script is exhausted.
type MockEncoder struct {
	Deltas  []int16
	Presses []bool
	di, pi  int
}

func (e *MockEncoder) ReadDelta() int16 {
	if e.di >= len(e.Deltas) {
		return 0
	}
	d := e.Deltas[e.di]
	e.di++
	return d
}

func (e *MockEncoder) ButtonPressed() bool {
	if e.pi >= len(e.Presses) {
		return false
	}
	p := e.Presses[e.pi]
	e.pi++
	return p
}

// MockFaultDetector is a settable fault source.
type MockFaultDetector struct {
	Short       bool
	Overcurrent bool
}

func (f *MockFaultDetector) IsShortCircuit() bool { return f.Short }
func (f *MockFaultDetector) IsOvercurrent() bool  { return f.Overcurrent }
