// Package lockout implements the time-bounded source arbiter: once a
// high-priority source acts, lower-priority sources are rejected until the
// window lapses. Expiry is lazy; every question is answered against the
// caller's monotonic now.
package lockout

import "traction/engine/command"

// Arbiter holds at most one active lockout. Single-owner, like the rest of
// the core; the controller is the only caller.
type Arbiter struct {
	owner     command.Source
	expiresAt uint64
	active    bool
}

func New() *Arbiter { return &Arbiter{} }

// Install grants src the lockout for durationMillis starting at now. A
// zero duration is coerced to 1ms so the expiry is strictly after install.
func (a *Arbiter) Install(src command.Source, nowMillis, durationMillis uint64) {
	if durationMillis == 0 {
		durationMillis = 1
	}
	a.owner = src
	a.expiresAt = nowMillis + durationMillis
	a.active = true
}

// IsBlocked reports whether src is rejected at now: a lockout is live and
// src ranks strictly below the owner. Equal or higher priority passes, and
// Emergency is never blocked.
func (a *Arbiter) IsBlocked(src command.Source, nowMillis uint64) bool {
	if src == command.SourceEmergency {
		return false
	}
	if !a.active || nowMillis >= a.expiresAt {
		return false
	}
	return a.owner.Outranks(src)
}

// Remaining returns the milliseconds left on the active lockout, 0 when
// none is live.
func (a *Arbiter) Remaining(nowMillis uint64) uint64 {
	if !a.active || nowMillis >= a.expiresAt {
		return 0
	}
	return a.expiresAt - nowMillis
}

// Owner returns the holding source and whether a lockout is live at now.
func (a *Arbiter) Owner(nowMillis uint64) (command.Source, bool) {
	if !a.active || nowMillis >= a.expiresAt {
		return 0, false
	}
	return a.owner, true
}

func (a *Arbiter) Clear() { a.active = false }
