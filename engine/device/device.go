// Package device declares the hardware collaborator capabilities the
// controller consumes, plus in-memory implementations for tests and
// hardware-free host runs. Real drivers (motor bridge, encoder, fault
// sensing) live outside this repository.
package device

import "traction/engine/command"

// MotorController drives the DC bridge. Errors are opaque to the core;
// the controller surfaces them verbatim and retries on the next tick.
type MotorController interface {
	SetSpeed(speed float64) error
	SetDirection(dir command.Direction) error
	ReadCurrentMA() (uint16, error)
}

// EncoderInput is the physical rotary encoder. Infallible: a dead encoder
// reads as zero delta.
type EncoderInput interface {
	// ReadDelta returns detents turned since the previous read.
	ReadDelta() int16
	ButtonPressed() bool
}

// FaultDetector reports electrical fault conditions. The core never polls
// it directly; the host loop translates faults into emergency stops.
type FaultDetector interface {
	IsShortCircuit() bool
	IsOvercurrent() bool
}
