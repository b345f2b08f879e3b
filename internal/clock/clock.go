// Package clock provides the monotonic millisecond clock and the blocking
// sleep primitive the monitor is scheduled by. Both are injected so that
// control logic can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Millis is a monotonic millisecond counter since boot. It wraps around at
// its integer width, like a microcontroller's millis().
type Millis uint32

// Since returns the time elapsed from then to now. Unsigned subtraction
// keeps the result correct across a single wraparound.
func Since(now, then Millis) Millis {
	return now - then
}

// Duration converts a time.Duration to Millis, truncating sub-millisecond parts.
func Duration(d time.Duration) Millis {
	return Millis(d / time.Millisecond)
}

// Std converts Millis back to a time.Duration.
func (m Millis) Std() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// Clock returns the current monotonic time.
type Clock interface {
	Now() Millis
}

// Sleeper blocks the caller for d. Startup and calibration sequences use it;
// nothing else in the control path blocks.
type Sleeper interface {
	Sleep(d time.Duration)
}

// System is the real clock, counting from the moment it was created.
type System struct {
	start time.Time
}

// NewSystem creates a System clock whose zero is now.
func NewSystem() *System {
	return &System{start: time.Now()}
}

// Now returns milliseconds since the clock was created, truncated to 32 bits.
func (s *System) Now() Millis {
	return Millis(uint64(time.Since(s.start) / time.Millisecond))
}

// Sleep blocks for d.
func (s *System) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Fake is a manually advanced clock. Sleep advances the clock instead of
// blocking, so blocking sequences complete instantly in tests.
type Fake struct {
	mu    sync.Mutex
	now   Millis
	slept time.Duration
}

// NewFake creates a Fake clock starting at start.
func NewFake(start Millis) *Fake {
	return &Fake{now: start}
}

// Now returns the current fake time.
func (f *Fake) Now() Millis {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now += Duration(d)
	f.mu.Unlock()
}

// Set jumps the clock to m. Used to simulate wraparound.
func (f *Fake) Set(m Millis) {
	f.mu.Lock()
	f.now = m
	f.mu.Unlock()
}

// Sleep advances the clock by d and records the total time slept.
func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	f.now += Duration(d)
	f.slept += d
	f.mu.Unlock()
}

// Slept returns the total duration passed to Sleep.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}
