// Package calibration owns the sensor baseline resistance R0: the initial
// clean-air calibration, the recalibration schedule and the drift check.
//
// Calibration assumes the sensor is in clean air (about 400 ppm). That is an
// operating procedure; nothing here can verify it.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sweeney/co2-monitor/internal/clock"
	"github.com/sweeney/co2-monitor/internal/hal"
	"github.com/sweeney/co2-monitor/internal/sensor"
)

// ErrNoValidSamples is returned when a calibration run could not collect a
// single usable sample. R0 is left unchanged.
var ErrNoValidSamples = errors.New("calibration: no valid samples")

// ErrNotCalibrated is returned by operations that need a reference R0.
var ErrNotCalibrated = errors.New("calibration: not calibrated")

// State is the calibration lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateCalibrated
	StateRecalibrationDue
	StateRecalibrating
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateCalibrated:
		return "CALIBRATED"
	case StateRecalibrationDue:
		return "RECALIBRATION_DUE"
	case StateRecalibrating:
		return "RECALIBRATING"
	default:
		return "UNKNOWN"
	}
}

// Kind distinguishes the boot calibration from scheduled ones.
type Kind int

const (
	KindInitial Kind = iota
	KindRecalibration
)

func (k Kind) String() string {
	if k == KindRecalibration {
		return "recalibration"
	}
	return "initial"
}

// Config holds the calibration parameters.
type Config struct {
	Samples        int           // samples averaged per calibration
	SampleInterval time.Duration // delay between samples
	Settle         time.Duration // delay before the first sample
	Interval       time.Duration // time between scheduled recalibrations
	SafePPM        float64       // recalibration only runs below this
	DriftSamples   int
	DriftTolerance float64 // relative R0 deviation that counts as drift
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		Samples:        50,
		SampleInterval: 100 * time.Millisecond,
		Settle:         2 * time.Second,
		Interval:       5 * time.Minute,
		SafePPM:        700,
		DriftSamples:   10,
		DriftTolerance: 0.10,
	}
}

// Result describes a completed calibration run.
type Result struct {
	Kind       Kind
	R0         float64
	PreviousR0 float64
	AverageRs  float64
	Samples    int // valid samples averaged
	Skipped    int
	// TestPPM is a single reading taken with the new R0. It should be close
	// to sensor.BaselinePPM.
	TestPPM float64
	At      clock.Millis
}

// DriftReport is the outcome of QuickDriftCheck.
type DriftReport struct {
	CandidateR0 float64
	ReferenceR0 float64
	Deviation   float64 // candidate/reference - 1
	Drifted     bool
	Samples     int
}

// Observer is notified as a calibration run progresses. The monitor uses it
// to drive the display.
type Observer interface {
	CalibrationStarted(kind Kind)
	CalibrationProgress(kind Kind, done, total int)
	CalibrationFinished(kind Kind, res Result, err error)
}

// Manager owns R0 and the recalibration schedule. Not safe for concurrent use.
type Manager struct {
	cfg   Config
	adc   hal.AnalogInput
	clock clock.Clock
	sleep clock.Sleeper
	obs   Observer

	r0          float64
	referenceR0 float64
	last        clock.Millis
	due         bool
	state       State
	count       int
	lastResult  Result
}

// New creates a Manager. R0 starts at sensor.DefaultR0 until the first
// calibration completes.
func New(cfg Config, adc hal.AnalogInput, clk clock.Clock, sleep clock.Sleeper) *Manager {
	def := DefaultConfig()
	if cfg.Samples < 1 {
		cfg.Samples = def.Samples
	}
	if cfg.DriftSamples < 1 {
		cfg.DriftSamples = def.DriftSamples
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.SafePPM <= 0 {
		cfg.SafePPM = def.SafePPM
	}
	if cfg.DriftTolerance <= 0 {
		cfg.DriftTolerance = def.DriftTolerance
	}
	return &Manager{
		cfg:         cfg,
		adc:         adc,
		clock:       clk,
		sleep:       sleep,
		r0:          sensor.DefaultR0,
		referenceR0: sensor.DefaultR0,
	}
}

// SetObserver registers o for progress notifications. nil disables them.
func (m *Manager) SetObserver(o Observer) {
	m.obs = o
}

// Calibrate runs a blocking calibration: settle, then collect Samples
// readings SampleInterval apart, and set R0 = average Rs / CleanAirRatio.
// Unreadable or out-of-range samples are skipped.
func (m *Manager) Calibrate(kind Kind) (Result, error) {
	prev := m.state
	m.state = StateRecalibrating
	if m.obs != nil {
		m.obs.CalibrationStarted(kind)
	}

	res := Result{Kind: kind, PreviousR0: m.r0}
	m.sleep.Sleep(m.cfg.Settle)

	var sum float64
	for i := 0; i < m.cfg.Samples; i++ {
		if rs, ok := m.readRs(); ok {
			sum += rs
			res.Samples++
		} else {
			res.Skipped++
		}
		if m.obs != nil {
			m.obs.CalibrationProgress(kind, i+1, m.cfg.Samples)
		}
		m.sleep.Sleep(m.cfg.SampleInterval)
	}

	var err error
	if res.Samples == 0 {
		err = fmt.Errorf("%w (%d skipped)", ErrNoValidSamples, res.Skipped)
	} else {
		res.AverageRs = sum / float64(res.Samples)
		res.R0 = res.AverageRs / sensor.CleanAirRatio
		if !(res.R0 > 0) || math.IsInf(res.R0, 0) {
			err = fmt.Errorf("calibration: computed R0 %v is not usable", res.R0)
		}
	}

	if err != nil {
		res.R0 = m.r0
		m.state = prev
		if m.obs != nil {
			m.obs.CalibrationFinished(kind, res, err)
		}
		return res, err
	}

	m.r0 = res.R0
	m.referenceR0 = res.R0
	m.due = false
	m.last = m.clock.Now()
	m.state = StateCalibrated
	m.count++

	res.At = m.last
	if count, err := m.adc.Read(); err == nil {
		if ppm, err := sensor.PPM(sensor.Voltage(count), m.r0); err == nil {
			res.TestPPM = ppm
		}
	}
	m.lastResult = res

	if m.obs != nil {
		m.obs.CalibrationFinished(kind, res, nil)
	}
	return res, nil
}

func (m *Manager) readRs() (float64, bool) {
	count, err := m.adc.Read()
	if err != nil {
		return 0, false
	}
	rs, err := sensor.Resistance(sensor.Voltage(count))
	if err != nil {
		return 0, false
	}
	return rs, true
}

// CheckDue marks recalibration as due once Interval has elapsed since the
// last calibration. If the clock has gone backwards (wrapped), the reference
// time is reset to now and the interval starts over.
func (m *Manager) CheckDue(now clock.Millis) bool {
	if m.state == StateUninitialized {
		return false
	}
	if now < m.last {
		m.last = now
	}
	if !m.due && clock.Since(now, m.last) >= clock.Duration(m.cfg.Interval) {
		m.due = true
		m.state = StateRecalibrationDue
	}
	return m.due
}

// PerformDueRecalibration recalibrates if one is due, the air is below
// SafePPM and no warning is active. Otherwise nothing changes. It reports
// whether a recalibration completed.
func (m *Manager) PerformDueRecalibration(currentPPM float64, warningActive bool) (bool, error) {
	if !m.ReadyToRecalibrate(currentPPM, warningActive) {
		return false, nil
	}
	if _, err := m.Calibrate(KindRecalibration); err != nil {
		return false, err
	}
	return true, nil
}

// ReadyToRecalibrate reports whether PerformDueRecalibration would run.
func (m *Manager) ReadyToRecalibrate(currentPPM float64, warningActive bool) bool {
	return m.due && currentPPM < m.cfg.SafePPM && !warningActive
}

// QuickDriftCheck estimates R0 from a few samples and compares it with the
// reference from the last calibration. It never changes R0.
func (m *Manager) QuickDriftCheck() (DriftReport, error) {
	if m.state == StateUninitialized {
		return DriftReport{}, ErrNotCalibrated
	}

	rep := DriftReport{ReferenceR0: m.referenceR0}
	var sum float64
	for i := 0; i < m.cfg.DriftSamples; i++ {
		if rs, ok := m.readRs(); ok {
			sum += rs
			rep.Samples++
		}
		m.sleep.Sleep(m.cfg.SampleInterval)
	}
	if rep.Samples == 0 {
		return rep, ErrNoValidSamples
	}

	rep.CandidateR0 = sum / float64(rep.Samples) / sensor.CleanAirRatio
	rep.Deviation = rep.CandidateR0/m.referenceR0 - 1
	rep.Drifted = math.Abs(rep.Deviation) > m.cfg.DriftTolerance
	return rep, nil
}

// R0 returns the current baseline resistance in kΩ.
func (m *Manager) R0() float64 { return m.r0 }

// ReferenceR0 returns the R0 established by the last completed calibration.
func (m *Manager) ReferenceR0() float64 { return m.referenceR0 }

// State returns the lifecycle state.
func (m *Manager) State() State { return m.state }

// Due reports whether a recalibration is pending.
func (m *Manager) Due() bool { return m.due }

// Calibrated reports whether at least one calibration has completed.
func (m *Manager) Calibrated() bool { return m.count > 0 }

// LastCalibration returns when the last calibration completed.
func (m *Manager) LastCalibration() clock.Millis { return m.last }

// Count returns the number of completed calibrations, including the first.
func (m *Manager) Count() int { return m.count }

// LastResult returns the most recent successful calibration.
func (m *Manager) LastResult() Result { return m.lastResult }

// Config returns the active parameters.
func (m *Manager) Config() Config { return m.cfg }
