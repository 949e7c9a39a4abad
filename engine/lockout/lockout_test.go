package lockout

import (
	"testing"

	"traction/engine/command"
)

func TestLowerPriorityBlockedUntilExpiry(t *testing.T) {
	a := New()
	a.Install(command.SourcePhysical, 0, 3000)

	if !a.IsBlocked(command.SourceMqtt, 1000) {
		t.Fatalf("mqtt should be blocked at 1000")
	}
	if !a.IsBlocked(command.SourceWebAPI, 2999) {
		t.Fatalf("web_api should be blocked at 2999")
	}
	if a.IsBlocked(command.SourceMqtt, 3000) {
		t.Fatalf("lockout should have lapsed at 3000")
	}
}

func TestEqualOrHigherPriorityPasses(t *testing.T) {
	a := New()
	a.Install(command.SourcePhysical, 0, 3000)

	if a.IsBlocked(command.SourcePhysical, 100) {
		t.Fatalf("equal priority must pass")
	}
	if a.IsBlocked(command.SourceFault, 100) {
		t.Fatalf("higher priority must pass")
	}
}

func TestEmergencyNeverBlocked(t *testing.T) {
	a := New()
	a.Install(command.SourceFault, 0, 10000)
	if a.IsBlocked(command.SourceEmergency, 1) {
		t.Fatalf("emergency must never be blocked")
	}
}

func TestRemaining(t *testing.T) {
	a := New()
	if a.Remaining(0) != 0 {
		t.Fatalf("fresh arbiter should report zero remaining")
	}
	a.Install(command.SourceWebLocal, 100, 3000)
	if got := a.Remaining(600); got != 2500 {
		t.Fatalf("remaining = %d want 2500", got)
	}
	if got := a.Remaining(5000); got != 0 {
		t.Fatalf("remaining after expiry = %d", got)
	}
}

func TestZeroDurationStillExpiresAfterInstall(t *testing.T) {
	a := New()
	a.Install(command.SourcePhysical, 50, 0)
	if !a.IsBlocked(command.SourceMqtt, 50) {
		t.Fatalf("expiry must be strictly after install time")
	}
	if a.IsBlocked(command.SourceMqtt, 51) {
		t.Fatalf("coerced 1ms window should have lapsed")
	}
}

func TestClear(t *testing.T) {
	a := New()
	a.Install(command.SourcePhysical, 0, 3000)
	a.Clear()
	if a.IsBlocked(command.SourceMqtt, 1) {
		t.Fatalf("cleared arbiter must not block")
	}
	if _, ok := a.Owner(1); ok {
		t.Fatalf("cleared arbiter must not report an owner")
	}
}
