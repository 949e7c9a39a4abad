package device

import (
	"math"
	"sync"

	"traction/engine/command"
)

// SimMotor is a hardware-free motor for host runs of the daemon. It
// models current draw as roughly proportional to commanded speed so the
// current gauge and fault probes have something to show. Safe for
// concurrent reads because the HTTP adapters may sample it.
type SimMotor struct {
	mu        sync.Mutex
	speed     float64
	direction command.Direction
	stallMA   uint16
}

// NewSimMotor creates a simulator; stallMA is the full-throttle draw.
func NewSimMotor(stallMA uint16) *SimMotor {
	if stallMA == 0 {
		stallMA = 900
	}
	return &SimMotor{stallMA: stallMA}
}

func (s *SimMotor) SetSpeed(speed float64) error {
	s.mu.Lock()
	s.speed = speed
	s.mu.Unlock()
	return nil
}

func (s *SimMotor) SetDirection(dir command.Direction) error {
	s.mu.Lock()
	s.direction = dir
	s.mu.Unlock()
	return nil
}

func (s *SimMotor) ReadCurrentMA() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint16(math.Abs(s.speed) * float64(s.stallMA)), nil
}

// Speed reports the last commanded speed, for display.
func (s *SimMotor) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}
