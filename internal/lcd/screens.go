// Package lcd builds the fixed-width screens shown on the 16x2 display.
// Every line is padded to the full width so a shorter text fully replaces
// a longer one without clearing the display.
package lcd

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sweeney/co2-monitor/internal/hal"
	"github.com/sweeney/co2-monitor/internal/logic"
)

// Screen is the content of both display rows.
type Screen [hal.DisplayRows]string

// New builds a Screen, padding or clipping each line to the display width.
func New(top, bottom string) Screen {
	return Screen{pad(top), pad(bottom)}
}

func pad(s string) string {
	if len(s) >= hal.DisplayCols {
		return s[:hal.DisplayCols]
	}
	return s + strings.Repeat(" ", hal.DisplayCols-len(s))
}

var spinner = [...]byte{'|', '/', '-', '\\'}

// Splash returns the boot pages.
func Splash() []Screen {
	return []Screen{
		New(" CO2 Detection", "     System"),
		New("  MQ-135 Air", "    Monitor"),
	}
}

// Preheat shows the warm-up countdown with a spinner in the last column.
func Preheat(remaining time.Duration, frame int) Screen {
	secs := int(remaining / time.Second)
	if secs < 0 {
		secs = 0
	}
	bottom := []byte(pad(fmt.Sprintf("Time: %02d s", secs)))
	bottom[hal.DisplayCols-1] = spinner[frame%len(spinner)]
	return New("SensorPreheating", string(bottom))
}

// CleanAir asks for the sensor to be placed in clean air.
func CleanAir() Screen {
	return New("Place in clean", "air (5 seconds)")
}

// Calibrating is shown before the calibration samples start.
func Calibrating() Screen {
	return New("     Sensor", "   Calibrating")
}

// Progress shows calibration sample progress.
func Progress(done, total int) Screen {
	return New("Calibrating...", fmt.Sprintf("%02d/%d samples", done, total))
}

// TestReading shows the check reading taken with the new baseline.
func TestReading(ppm float64) Screen {
	return New("Testing cal...", fmt.Sprintf("Test: %s ppm", wholePPM(ppm)))
}

// CalibrationFailed is shown when no usable sample was collected.
func CalibrationFailed() Screen {
	return New("Calib FAILED", "Check sensor")
}

// RecalibrationPrompt announces a scheduled recalibration.
func RecalibrationPrompt() Screen {
	return New(" Rglr Recalib", "Place clean air")
}

// Countdown is shown for each second before a recalibration starts.
func Countdown(seconds int) Screen {
	return New("Starting in...", fmt.Sprintf("%d seconds", seconds))
}

// RecalibrationDone shows the new baseline.
func RecalibrationDone(r0 float64) Screen {
	return New("Recalib Done!", fmt.Sprintf("R0: %.1fk", r0))
}

// Ready is shown once startup has finished.
func Ready() Screen {
	return New("System Ready!", "")
}

// Normal shows the live reading and quality tier.
func Normal(ppm float64, tier logic.Tier) Screen {
	return New(fmt.Sprintf("CO2: %s ppm", wholePPM(ppm)), "Quality: "+tier.Label())
}

// WarningBanner is shown during the attention window of a warning.
func WarningBanner() Screen {
	return New("    WARNING!", "HIGH CO2 LEVEL!")
}

// WarningLive shows the live reading after the attention window.
func WarningLive(ppm, threshold float64) Screen {
	return New(fmt.Sprintf("CO2: %s ppm", wholePPM(ppm)), fmt.Sprintf(">%s ppm!", wholePPM(threshold)))
}

// wholePPM truncates like an integer cast and caps absurd values so the line
// still fits.
func wholePPM(ppm float64) string {
	switch {
	case math.IsNaN(ppm) || ppm < 0:
		return "0"
	case ppm > 99999:
		return "99999+"
	}
	return fmt.Sprintf("%d", int(ppm))
}

// Renderer writes screens to a display, skipping writes when the content is
// unchanged.
type Renderer struct {
	display hal.Display
	last    Screen
	shown   bool
}

// NewRenderer creates a Renderer for d.
func NewRenderer(d hal.Display) *Renderer {
	return &Renderer{display: d}
}

// Show writes s unless it is already on the display.
func (r *Renderer) Show(s Screen) error {
	if r.shown && s == r.last {
		return nil
	}
	for row, line := range s {
		if err := r.display.WriteAt(0, row, line); err != nil {
			r.shown = false
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}
	r.last = s
	r.shown = true
	return nil
}

// Clear blanks the display and forgets the last screen.
func (r *Renderer) Clear() error {
	r.shown = false
	return r.display.Clear()
}
