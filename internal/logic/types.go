// Package logic contains pure decision logic for air-quality classification
// and the warning state machine.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via clock.Millis or time.Time parameters.
package logic

import "time"

// Tier is an air-quality classification, ordered from best to worst.
type Tier int

const (
	TierGood Tier = iota
	TierFair
	TierPoor
	TierDangerous
)

// String returns the tier name used in logs and payloads.
func (t Tier) String() string {
	switch t {
	case TierGood:
		return "GOOD"
	case TierFair:
		return "FAIR"
	case TierPoor:
		return "POOR"
	case TierDangerous:
		return "DANGEROUS"
	default:
		return "UNKNOWN"
	}
}

// Label returns the fixed-width label shown after "Quality: " on the LCD.
func (t Tier) Label() string {
	switch t {
	case TierGood:
		return "Good   "
	case TierFair:
		return "Fair   "
	case TierPoor:
		return "Poor   "
	case TierDangerous:
		return "DANGER "
	default:
		return "Unknown"
	}
}

// Mode is the response state.
type Mode string

const (
	ModeNormal  Mode = "NORMAL"
	ModeWarning Mode = "WARNING"
)

// Transition describes a mode change produced by a decision tick.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionEntered
	TransitionCleared
)

// Trigger identifies which condition holds the warning active.
type Trigger string

const (
	TriggerNone    Trigger = ""
	TriggerPPM     Trigger = "PPM"
	TriggerVoltage Trigger = "VOLTAGE"
	TriggerBoth    Trigger = "PPM+VOLTAGE"
)

// EventType is a notable occurrence to be published.
type EventType string

const (
	EventWarningOn    EventType = "WARNING_ON"
	EventWarningOff   EventType = "WARNING_OFF"
	EventRecalibrated EventType = "RECALIBRATED"
	EventDrift        EventType = "DRIFT"
)

// Event is published on warning transitions and calibration milestones.
type Event struct {
	Timestamp time.Time
	Type      EventType
	PPM       float64
	Tier      Tier
	Trigger   Trigger
	R0        float64
	// Deviation is the relative R0 drift (drift events only).
	Deviation float64
}

// Reading is the result of one decision tick.
type Reading struct {
	Timestamp  time.Time
	PPM        float64 // filtered average
	Voltage    float64 // most recent raw voltage
	Resistance float64
	Ratio      float64
	R0         float64
	Tier       Tier
	Mode       Mode
	Digital    bool
}

// Counts tracks event totals since startup.
type Counts struct {
	Warnings       int
	Recalibrations int
	DriftWarnings  int
	InvalidSamples int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
