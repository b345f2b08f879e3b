package logic

import (
	"time"

	"github.com/sweeney/co2-monitor/internal/clock"
)

// Buzzer pattern defaults.
const (
	DefaultBuzzerOn  = 500 * time.Millisecond
	DefaultBuzzerOff = 50 * time.Millisecond
)

// BuzzerPattern is a non-blocking on/off pattern generator. The caller polls
// Tick and drives the buzzer output whenever changed is true.
type BuzzerPattern struct {
	onFor  clock.Millis
	offFor clock.Millis

	active bool
	on     bool
	since  clock.Millis
}

// NewBuzzerPattern creates a pattern with the given on and off phases.
func NewBuzzerPattern(on, off time.Duration) *BuzzerPattern {
	if on <= 0 {
		on = DefaultBuzzerOn
	}
	if off <= 0 {
		off = DefaultBuzzerOff
	}
	return &BuzzerPattern{onFor: clock.Duration(on), offFor: clock.Duration(off)}
}

// Start begins the pattern in the on phase.
func (b *BuzzerPattern) Start(now clock.Millis) {
	b.active = true
	b.on = true
	b.since = now
}

// Stop ends the pattern. The output should be driven off.
func (b *BuzzerPattern) Stop() {
	b.active = false
	b.on = false
}

// Active reports whether the pattern is running.
func (b *BuzzerPattern) Active() bool {
	return b.active
}

// On reports the current desired output.
func (b *BuzzerPattern) On() bool {
	return b.on
}

// Tick advances the pattern and returns the desired output and whether it
// changed since the previous call.
func (b *BuzzerPattern) Tick(now clock.Millis) (on bool, changed bool) {
	if !b.active {
		return false, false
	}
	elapsed := clock.Since(now, b.since)
	if b.on && elapsed >= b.onFor {
		b.on = false
		b.since = now
		return false, true
	}
	if !b.on && elapsed >= b.offFor {
		b.on = true
		b.since = now
		return true, true
	}
	return b.on, false
}
