package logic

import (
	"time"

	"github.com/sweeney/co2-monitor/internal/clock"
)

// Response defaults.
const (
	// DefaultVoltageFailsafe is the raw sensor voltage above which the warning
	// is forced regardless of R0. It bounds the damage of a miscalibrated
	// baseline.
	DefaultVoltageFailsafe = 1.0

	// DefaultWarningDisplayTime is the attention window at the start of a
	// warning during which the banner is shown instead of live readings.
	DefaultWarningDisplayTime = 3 * time.Second
)

// Input is the data available at a decision tick.
type Input struct {
	PPM     float64 // filtered average
	Voltage float64 // latest raw voltage
	Now     clock.Millis
}

// Outcome is the result of a decision tick.
type Outcome struct {
	Mode       Mode
	Transition Transition
	Trigger    Trigger
	Tier       Tier
	// Banner is true inside the attention window of an active warning.
	Banner bool
	// WarningFor is the time since the warning was entered (warning only).
	WarningFor clock.Millis
}

// Responder is the Normal/Warning state machine.
type Responder struct {
	classifier      Classifier
	voltageFailsafe float64
	bannerTime      clock.Millis

	active       bool
	warningStart clock.Millis
	warnings     int
}

// NewResponder creates a Responder. Non-positive values fall back to defaults.
func NewResponder(threshold, voltageFailsafe float64, bannerTime time.Duration) *Responder {
	if voltageFailsafe <= 0 {
		voltageFailsafe = DefaultVoltageFailsafe
	}
	if bannerTime <= 0 {
		bannerTime = DefaultWarningDisplayTime
	}
	return &Responder{
		classifier:      NewClassifier(threshold),
		voltageFailsafe: voltageFailsafe,
		bannerTime:      clock.Duration(bannerTime),
	}
}

// Decide evaluates one decision tick. Transitions are edge-triggered: Entered
// is reported once per entry into Warning, not on every warning tick.
func (r *Responder) Decide(in Input) Outcome {
	trigger := r.trigger(in)
	out := Outcome{Tier: r.classifier.Classify(in.PPM)}

	switch {
	case trigger != TriggerNone && !r.active:
		r.active = true
		r.warningStart = in.Now
		r.warnings++
		out.Transition = TransitionEntered
	case trigger == TriggerNone && r.active:
		r.active = false
		out.Transition = TransitionCleared
	}

	out.Trigger = trigger
	if r.active {
		out.Mode = ModeWarning
		out.WarningFor = clock.Since(in.Now, r.warningStart)
		out.Banner = out.WarningFor < r.bannerTime
	} else {
		out.Mode = ModeNormal
	}
	return out
}

func (r *Responder) trigger(in Input) Trigger {
	overPPM := in.PPM > r.classifier.Threshold
	overVoltage := in.Voltage > r.voltageFailsafe
	switch {
	case overPPM && overVoltage:
		return TriggerBoth
	case overPPM:
		return TriggerPPM
	case overVoltage:
		return TriggerVoltage
	default:
		return TriggerNone
	}
}

// Active reports whether the warning is active.
func (r *Responder) Active() bool {
	return r.active
}

// WarningStart returns when the current warning began. Only meaningful while
// Active is true.
func (r *Responder) WarningStart() clock.Millis {
	return r.warningStart
}

// Warnings returns the number of warning entries since startup.
func (r *Responder) Warnings() int {
	return r.warnings
}

// Threshold returns the configured alarm threshold.
func (r *Responder) Threshold() float64 {
	return r.classifier.Threshold
}

// Classifier returns the classifier used for tiering.
func (r *Responder) Classifier() Classifier {
	return r.classifier
}
