package device

import (
	"testing"

	"traction/engine/clock"
	"traction/engine/command"
)

func TestMockMotorRecordsTimestampedCalls(t *testing.T) {
	clk := clock.NewManual(100)
	m := NewMockMotor(clk)

	_ = m.SetSpeed(0.5)
	clk.Advance(20)
	_ = m.SetDirection(command.DirectionReverse)

	if len(m.Calls) != 2 {
		t.Fatalf("recorded %d calls", len(m.Calls))
	}
	if m.Calls[0].At != 100 || m.Calls[1].At != 120 {
		t.Fatalf("timestamps %d, %d", m.Calls[0].At, m.Calls[1].At)
	}
	if got, ok := m.LastSpeed(); !ok || got != 0.5 {
		t.Fatalf("last speed %v %v", got, ok)
	}
	if dir, ok := m.LastDirection(); !ok || dir != command.DirectionReverse {
		t.Fatalf("last direction %v", dir)
	}
	if m.CallsSince("set_speed", 0) != 1 || m.CallsSince("set_direction", 110) != 1 {
		t.Fatalf("call counting wrong")
	}
}

func TestMockEncoderReplaysScript(t *testing.T) {
	e := &MockEncoder{Deltas: []int16{3, -1}, Presses: []bool{true}}
	if e.ReadDelta() != 3 || e.ReadDelta() != -1 || e.ReadDelta() != 0 {
		t.Fatalf("delta script wrong")
	}
	if !e.ButtonPressed() || e.ButtonPressed() {
		t.Fatalf("press script wrong")
	}
}

func TestSimMotorCurrentTracksSpeed(t *testing.T) {
	s := NewSimMotor(1000)
	_ = s.SetSpeed(-0.5)
	ma, err := s.ReadCurrentMA()
	if err != nil || ma != 500 {
		t.Fatalf("current %d, %v", ma, err)
	}
	if s.Speed() != -0.5 {
		t.Fatalf("speed %v", s.Speed())
	}
}
