// Package sensor converts raw MQ-135 readings into resistance and an estimated
// CO2-equivalent concentration. Everything here is a pure function of its
// inputs; the baseline resistance R0 is owned by the calibration package.
package sensor

import (
	"errors"
	"math"
)

// ADC and divider constants.
const (
	MaxADCCount = 1023 // 10-bit converter
	VRef        = 5.0  // ADC reference voltage (V)
	Vcc         = 5.0  // sensor supply voltage (V)

	// LoadResistance is the module's load resistor RL in kΩ.
	LoadResistance = 20.0
)

// Transfer function constants. These are empirically tuned against the
// sensor on the bench and are calibration-critical: changing any of them
// invalidates every R0 computed with the old values.
const (
	BaselinePPM   = 400.0 // ambient CO2 assumed during clean-air calibration
	CleanAirRatio = 1.8   // Rs/R0 at BaselinePPM
	CurveExponent = 10.0
)

// DefaultR0 is the nominal datasheet baseline in kΩ, used until the first
// calibration overwrites it.
const DefaultR0 = 76.63

var (
	// ErrInvalidVoltage is returned for voltages outside (0, Vcc), which would
	// yield an infinite or non-positive sensor resistance.
	ErrInvalidVoltage = errors.New("sensor: voltage outside divider range")

	// ErrInvalidSample is returned when a reading cannot produce a finite,
	// non-negative concentration (bad R0 or overflow).
	ErrInvalidSample = errors.New("sensor: reading produced no finite estimate")
)

// Sample is a single raw read from the sensor module.
type Sample struct {
	Count   int     // ADC count in [0, MaxADCCount]
	Digital bool    // comparator output (D0); diagnostics only
	Voltage float64 // derived from Count
}

// NewSample builds a Sample, deriving the voltage from count.
func NewSample(count int, digital bool) Sample {
	return Sample{Count: clampCount(count), Digital: digital, Voltage: Voltage(count)}
}

// Voltage converts an ADC count to volts. Counts outside the converter's
// range are clamped.
func Voltage(count int) float64 {
	return float64(clampCount(count)) * (VRef / MaxADCCount)
}

func clampCount(count int) int {
	if count < 0 {
		return 0
	}
	if count > MaxADCCount {
		return MaxADCCount
	}
	return count
}

// Resistance returns the sensor resistance Rs in kΩ from the voltage across
// the load resistor.
func Resistance(voltage float64) (float64, error) {
	if math.IsNaN(voltage) || voltage <= 0 || voltage >= Vcc {
		return 0, ErrInvalidVoltage
	}
	return LoadResistance * (Vcc/voltage - 1), nil
}

// Ratio returns Rs/R0 for the given voltage.
func Ratio(voltage, r0 float64) (float64, error) {
	if !(r0 > 0) || math.IsInf(r0, 0) {
		return 0, ErrInvalidSample
	}
	rs, err := Resistance(voltage)
	if err != nil {
		return 0, err
	}
	return rs / r0, nil
}

// PPMFromRatio applies the transfer function to an Rs/R0 ratio. A ratio of
// exactly CleanAirRatio yields BaselinePPM. Non-positive ratios return +Inf.
func PPMFromRatio(ratio float64) float64 {
	if !(ratio > 0) {
		return math.Inf(1)
	}
	return BaselinePPM * math.Pow(CleanAirRatio/ratio, CurveExponent)
}

// PPM estimates the CO2-equivalent concentration for a voltage and baseline R0.
func PPM(voltage, r0 float64) (float64, error) {
	ratio, err := Ratio(voltage, r0)
	if err != nil {
		return 0, err
	}
	ppm := PPMFromRatio(ratio)
	if math.IsInf(ppm, 0) || math.IsNaN(ppm) {
		return 0, ErrInvalidSample
	}
	return ppm, nil
}

// Reading is a fully derived view of one sample, used for diagnostics.
type Reading struct {
	Sample
	Resistance float64
	Ratio      float64
	PPM        float64
}

// Derive computes resistance, ratio and PPM for s.
func Derive(s Sample, r0 float64) (Reading, error) {
	rs, err := Resistance(s.Voltage)
	if err != nil {
		return Reading{Sample: s}, err
	}
	ppm, err := PPM(s.Voltage, r0)
	if err != nil {
		return Reading{Sample: s, Resistance: rs}, err
	}
	return Reading{Sample: s, Resistance: rs, Ratio: rs / r0, PPM: ppm}, nil
}
