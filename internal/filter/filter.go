// Package filter implements the moving-average filter over per-sample PPM
// estimates.
package filter

import (
	"github.com/sweeney/co2-monitor/internal/sensor"
)

// DefaultSize is the number of samples averaged (one second at 50 Hz).
const DefaultSize = 50

// Filter is a fixed-size circular buffer of PPM estimates.
// Slots hold 0 until first written; zero is treated as "empty", never as a
// real reading. Not safe for concurrent use.
type Filter struct {
	buf     []float64
	index   int // next write position
	written int
	skipped int
}

// New creates a Filter with size slots. Sizes below 1 use DefaultSize.
func New(size int) *Filter {
	if size < 1 {
		size = DefaultSize
	}
	return &Filter{buf: make([]float64, size)}
}

// Sample converts voltage to PPM with the given baseline and stores it.
// Invalid samples are dropped without advancing the index; the return value
// reports whether the sample was stored.
func (f *Filter) Sample(voltage, r0 float64) bool {
	ppm, err := sensor.PPM(voltage, r0)
	if err != nil {
		f.skipped++
		return false
	}
	f.Add(ppm)
	return true
}

// Add writes ppm at the current index, overwriting the oldest entry once
// the buffer is full.
func (f *Filter) Add(ppm float64) {
	f.buf[f.index] = ppm
	f.index = (f.index + 1) % len(f.buf)
	f.written++
}

// Average returns the mean of all entries greater than zero, or 0 if there
// are none.
func (f *Filter) Average() float64 {
	var sum float64
	valid := 0
	for _, v := range f.buf {
		if v > 0 {
			sum += v
			valid++
		}
	}
	if valid == 0 {
		return 0
	}
	return sum / float64(valid)
}

// Len returns the fixed buffer size.
func (f *Filter) Len() int {
	return len(f.buf)
}

// Filled reports whether every slot has been written at least once.
func (f *Filter) Filled() bool {
	return f.written >= len(f.buf)
}

// Skipped returns the number of samples rejected as invalid.
func (f *Filter) Skipped() int {
	return f.skipped
}

// Values returns a copy of the buffer in slot order.
func (f *Filter) Values() []float64 {
	out := make([]float64, len(f.buf))
	copy(out, f.buf)
	return out
}

// Reset clears all slots back to the empty sentinel.
func (f *Filter) Reset() {
	for i := range f.buf {
		f.buf[i] = 0
	}
	f.index = 0
	f.written = 0
}
