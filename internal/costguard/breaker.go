package costguard

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker tracks consecutive failures for a single provider. Transitions:
// closed -> open after the failure threshold, open -> half-open after the
// open timeout (exactly one probe allowed through), half-open -> closed on
// success or -> open again on failure.
type breaker struct {
	lastFailure   time.Time
	openedAt      time.Time
	probeStarted  time.Time
	state         breakerState
	failures      int
	probeInFlight bool
	mu            sync.Mutex
}

// allow reports whether a call may proceed. When the breaker is open it
// returns the remaining wait; when the open timeout has elapsed it admits a
// single half-open probe.
func (b *breaker) allow(now time.Time, openTimeout time.Duration) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true, 0
	case breakerOpen:
		elapsed := now.Sub(b.openedAt)
		if elapsed < openTimeout {
			return false, openTimeout - elapsed
		}
		b.state = breakerHalfOpen
		b.probeInFlight = true
		b.probeStarted = now
		return true, 0
	case breakerHalfOpen:
		// A probe that never reported back should not wedge the breaker.
		if b.probeInFlight && now.Sub(b.probeStarted) < openTimeout {
			return false, openTimeout - now.Sub(b.probeStarted)
		}
		b.probeInFlight = true
		b.probeStarted = now
		return true, 0
	}
	return true, 0
}

// recordSuccess resets the breaker to closed.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = breakerClosed
	b.failures = 0
	b.probeInFlight = false
}

// recordFailure bumps the consecutive-failure count and flips to open when
// the threshold is reached. A failed half-open probe reopens immediately.
func (b *breaker) recordFailure(now time.Time, threshold int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = now

	if b.state == breakerHalfOpen || b.failures >= threshold {
		b.state = breakerOpen
		b.openedAt = now
		b.probeInFlight = false
		return true
	}
	return false
}

func (b *breaker) snapshot() (breakerState, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failures
}
