package strategy

import (
	"math"
	"testing"
)

func TestSmoothstepBoundaryValues(t *testing.T) {
	s := EaseInOut(1000)
	cases := []struct {
		elapsed uint64
		want    float64
	}{
		{0, 0},
		{250, 0.15625},
		{500, 0.5},
		{750, 0.84375},
		{1000, 1},
		{1500, 1},
	}
	for _, c := range cases {
		got := s.Progress(c.elapsed)
		if math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("smoothstep(%d) = %v want %v", c.elapsed, got, c.want)
		}
	}
}

func TestLinearProgress(t *testing.T) {
	s := Linear(2000)
	if got := s.Progress(500); math.Abs(got-0.25) > 1e-9 {
		t.Fatalf("linear quarter = %v", got)
	}
	if got := s.Progress(2000); got != 1 {
		t.Fatalf("linear endpoint = %v", got)
	}
}

func TestImmediateIsInstant(t *testing.T) {
	s := Immediate()
	if s.DurationMillis() != 0 {
		t.Fatalf("immediate duration %d", s.DurationMillis())
	}
	if got := s.Progress(0); got != 1 {
		t.Fatalf("immediate progress at 0 = %v", got)
	}
	if s.Lock() != LockNone || s.OnInterrupt() != InterruptReplace {
		t.Fatalf("immediate config %v/%v", s.Lock(), s.OnInterrupt())
	}
}

// The momentum curve is only pinned to monotonicity and exact endpoints;
// the interior shape is free.
func TestMomentumMonotoneWithExactEndpoints(t *testing.T) {
	for _, stiffness := range []float64{0.1, 1, 3, 6, 9, 12, 50} {
		s := Momentum(1000, stiffness)
		if got := s.Progress(0); got != 0 {
			t.Fatalf("stiffness %v: progress(0) = %v", stiffness, got)
		}
		if got := s.Progress(1000); got != 1 {
			t.Fatalf("stiffness %v: progress(duration) = %v", stiffness, got)
		}
		prev := -1.0
		for e := uint64(0); e <= 1000; e += 10 {
			cur := s.Progress(e)
			if cur < prev {
				t.Fatalf("stiffness %v: not monotone at %d: %v < %v", stiffness, e, cur, prev)
			}
			if cur < 0 || cur > 1 {
				t.Fatalf("stiffness %v: out of range at %d: %v", stiffness, e, cur)
			}
			prev = cur
		}
	}
}

func TestMomentumStiffnessOrdersShoulders(t *testing.T) {
	// A stiffer curve lingers lower early on (sharper midpoint ramp).
	weighty := Momentum(1000, 2)
	snappy := Momentum(1000, 11)
	if snappy.Progress(150) >= weighty.Progress(150) {
		t.Fatalf("expected snappy shoulder below weighty: %v vs %v",
			snappy.Progress(150), weighty.Progress(150))
	}
}

func TestRoleFactoriesSetConfigOnly(t *testing.T) {
	dep := Departure(3000)
	if dep.Lock() != LockHard || dep.OnInterrupt() != InterruptReject {
		t.Fatalf("departure config %v/%v", dep.Lock(), dep.OnInterrupt())
	}
	arr := Arrival(3000)
	if arr.Lock() != LockSource || arr.OnInterrupt() != InterruptQueue {
		t.Fatalf("arrival config %v/%v", arr.Lock(), arr.OnInterrupt())
	}
	// Same curve as the plain constructor.
	plain := EaseInOut(3000)
	for e := uint64(0); e <= 3000; e += 300 {
		if dep.Progress(e) != plain.Progress(e) || arr.Progress(e) != plain.Progress(e) {
			t.Fatalf("role factory changed curve shape at %d", e)
		}
	}
	if RoleOf(dep) != RoleDeparture || RoleOf(arr) != RoleArrival || RoleOf(plain) != RoleNone {
		t.Fatalf("role reporting wrong")
	}
}

func TestKindOfAndStiffnessOf(t *testing.T) {
	if KindOf(Momentum(100, 5)) != KindMomentum {
		t.Fatalf("kind of momentum")
	}
	if got := StiffnessOf(Momentum(100, 5)); got != 5 {
		t.Fatalf("stiffness reported %v", got)
	}
	if got := StiffnessOf(Linear(100)); got != 0 {
		t.Fatalf("stiffness of linear %v", got)
	}
}

func TestOverrides(t *testing.T) {
	s := WithInterrupt(WithLock(Linear(500), LockHard), InterruptQueue)
	if s.Lock() != LockHard || s.OnInterrupt() != InterruptQueue {
		t.Fatalf("override lost: %v/%v", s.Lock(), s.OnInterrupt())
	}
	if s.DurationMillis() != 500 {
		t.Fatalf("override changed duration")
	}
}
