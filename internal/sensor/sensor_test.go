package sensor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoltage(t *testing.T) {
	tests := []struct {
		count int
		want  float64
	}{
		{0, 0},
		{1023, 5.0},
		{512, 512 * 5.0 / 1023},
		{-5, 0},     // clamped
		{4096, 5.0}, // clamped
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Voltage(tt.count), 1e-12, "count %d", tt.count)
	}
}

func TestNewSample(t *testing.T) {
	s := NewSample(2000, true)
	assert.Equal(t, MaxADCCount, s.Count)
	assert.True(t, s.Digital)
	assert.InDelta(t, 5.0, s.Voltage, 1e-12)
}

func TestResistanceAtHalfSupply(t *testing.T) {
	rs, err := Resistance(2.5)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, rs, 1e-12)
}

func TestResistanceInvalidVoltage(t *testing.T) {
	for _, v := range []float64{0, -1, 5.0, 7.2, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Resistance(v)
		assert.True(t, errors.Is(err, ErrInvalidVoltage), "voltage %v should be rejected", v)
	}
}

func TestPPMFromRatioCleanAir(t *testing.T) {
	assert.Equal(t, 400.0, PPMFromRatio(CleanAirRatio))
}

func TestPPMFromRatioNonPositive(t *testing.T) {
	assert.True(t, math.IsInf(PPMFromRatio(0), 1))
	assert.True(t, math.IsInf(PPMFromRatio(-2), 1))
}

func TestPPMSelfConsistency(t *testing.T) {
	// Rs at 2.5V is 20kΩ, so this R0 puts the reading exactly at the clean-air ratio.
	r0 := 20.0 / CleanAirRatio
	ppm, err := PPM(2.5, r0)
	require.NoError(t, err)
	assert.InDelta(t, 400.0, ppm, 1e-9)
}

func TestPPMMonotonicInRatio(t *testing.T) {
	prev := math.Inf(1)
	for ratio := 0.2; ratio <= 6.0; ratio += 0.1 {
		ppm := PPMFromRatio(ratio)
		assert.Less(t, ppm, prev, "ppm should strictly decrease as ratio rises (ratio %.2f)", ratio)
		prev = ppm
	}
}

func TestPPMMonotonicInVoltage(t *testing.T) {
	prev := -1.0
	for count := 100; count < MaxADCCount; count += 50 {
		ppm, err := PPM(Voltage(count), DefaultR0)
		require.NoError(t, err)
		assert.Greater(t, ppm, prev, "higher divider voltage means lower Rs and higher ppm (count %d)", count)
		prev = ppm
	}
}

func TestPPMInvalidInputs(t *testing.T) {
	_, err := PPM(0, DefaultR0)
	assert.ErrorIs(t, err, ErrInvalidVoltage)

	_, err = PPM(2.5, 0)
	assert.ErrorIs(t, err, ErrInvalidSample)

	_, err = PPM(2.5, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidSample)
}

func TestDerive(t *testing.T) {
	r, err := Derive(Sample{Count: 512, Voltage: 2.5}, 10)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, r.Resistance, 1e-12)
	assert.InDelta(t, 2.0, r.Ratio, 1e-12)
	assert.InDelta(t, 400*math.Pow(1.8/2.0, 10), r.PPM, 1e-9)

	_, err = Derive(Sample{Count: 0, Voltage: 0}, 10)
	assert.ErrorIs(t, err, ErrInvalidVoltage)
}
