package runtime

import (
	"context"
	"math"
	"testing"

	"traction/engine"
	"traction/engine/clock"
	"traction/engine/command"
	"traction/engine/device"
	"traction/engine/strategy"
)

func newLoop(t *testing.T, enc *device.MockEncoder, faults *device.MockFaultDetector) (*Loop, *clock.Manual, *device.MockMotor) {
	t.Helper()
	clk := clock.NewManual(0)
	motor := device.NewMockMotor(clk)
	cfg := engine.Defaults()
	cfg.MetricsEnabled = false
	eng, err := engine.New(cfg, engine.WithClock(clk), engine.WithMotor(motor))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	var encIn device.EncoderInput
	if enc != nil {
		encIn = enc
	}
	var fd device.FaultDetector
	if faults != nil {
		fd = faults
	}
	return NewLoop(Options{Engine: eng, Encoder: encIn, Faults: fd}), clk, motor
}

func TestEncoderDeltaBecomesPhysicalCommand(t *testing.T) {
	enc := &device.MockEncoder{Deltas: []int16{5}}
	l, clk, motor := newLoop(t, enc, nil)

	l.Tick(context.Background())
	if got, ok := motor.LastSpeed(); !ok || math.Abs(got-0.25) > 1e-9 {
		t.Fatalf("5 detents of 20 should command 0.25, got %v", got)
	}
	// The physical command locks out the bus.
	clk.Advance(100)
	if _, err := l.Submit(command.SetSpeed(0.1, strategy.Immediate()), command.SourceMqtt); err == nil {
		t.Fatalf("expected lockout rejection for bus command")
	}
}

func TestEncoderAccumulatesAcrossTicks(t *testing.T) {
	enc := &device.MockEncoder{Deltas: []int16{4, 4, -2}}
	l, clk, motor := newLoop(t, enc, nil)
	for i := 0; i < 3; i++ {
		l.Tick(context.Background())
		clk.Advance(20)
	}
	if got, _ := motor.LastSpeed(); math.Abs(got-0.3) > 1e-9 {
		t.Fatalf("expected net 6 detents = 0.3, got %v", got)
	}
}

func TestButtonTogglesStopAndResume(t *testing.T) {
	enc := &device.MockEncoder{
		Deltas:  []int16{10},
		Presses: []bool{false, true, false, true},
	}
	l, clk, motor := newLoop(t, enc, nil)

	l.Tick(context.Background()) // delta 10 -> target 0.5
	clk.Advance(1000)
	l.Tick(context.Background()) // press -> stop
	clk.Advance(2000)            // let the responsive stop finish
	l.Tick(context.Background())
	if got, _ := motor.LastSpeed(); math.Abs(got) > 1e-9 {
		t.Fatalf("expected stop at 0, got %v", got)
	}
	clk.Advance(100)
	l.Tick(context.Background()) // press -> resume toward 0.5
	clk.Advance(5000)
	l.Tick(context.Background())
	if got, _ := motor.LastSpeed(); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected resume to 0.5, got %v", got)
	}
}

func TestFaultSynthesisesEmergencyStop(t *testing.T) {
	faults := &device.MockFaultDetector{}
	l, clk, motor := newLoop(t, nil, faults)

	if _, err := l.Submit(command.SetSpeed(0.8, strategy.Immediate()), command.SourceWebAPI); err != nil {
		t.Fatalf("submit: %v", err)
	}
	l.Tick(context.Background())
	if got, _ := motor.LastSpeed(); math.Abs(got-0.8) > 1e-9 {
		t.Fatalf("precondition speed %v", got)
	}

	faults.Short = true
	clk.Advance(20)
	l.Tick(context.Background())
	if got, _ := motor.LastSpeed(); math.Abs(got) > 1e-9 {
		t.Fatalf("fault should stop the motor, got %v", got)
	}
	st := l.State()
	if st.CurrentSpeed != 0 || st.Direction != "stopped" {
		t.Fatalf("post-fault state %+v", st)
	}
}

func TestFaultFiresOnRisingEdgeOnly(t *testing.T) {
	faults := &device.MockFaultDetector{Short: true}
	l, clk, _ := newLoop(t, nil, faults)
	l.Tick(context.Background())
	snap1 := l.Snapshot()
	clk.Advance(20)
	l.Tick(context.Background())
	snap2 := l.Snapshot()
	// Still faulted: no second estop event published.
	if snap2.Events.Published != snap1.Events.Published {
		t.Fatalf("estop republished while fault held: %d -> %d",
			snap1.Events.Published, snap2.Events.Published)
	}
}

func TestApplyConfigTightensLimit(t *testing.T) {
	l, clk, motor := newLoop(t, nil, nil)
	if _, err := l.Submit(command.SetSpeed(0.9, strategy.Immediate()), command.SourceWebAPI); err != nil {
		t.Fatalf("submit: %v", err)
	}
	l.Tick(context.Background())
	l.ApplyConfig(5000, 0.5)
	clk.Advance(20)
	l.Tick(context.Background())
	if got, _ := motor.LastSpeed(); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("config clamp not applied: %v", got)
	}
}
