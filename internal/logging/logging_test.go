package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sweeney/co2-monitor/internal/logic"
)

func TestSummary(t *testing.T) {
	assert.Equal(t, "PPM: 523.4 | Quality: FAIR", Summary(523.44, logic.TierFair, false))
	assert.Equal(t, "PPM: 2400.0 | Quality: DANGEROUS | WARNING ACTIVE", Summary(2400, logic.TierDangerous, true))
	assert.Equal(t, "PPM: 300.0 | Quality: GOOD | WARNING ACTIVE", Summary(300, logic.TierGood, true),
		"voltage failsafe can hold a warning at a good tier")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("info"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		log, err := New("warn", format)
		require.NoError(t, err, format)
		assert.False(t, log.Core().Enabled(zapcore.InfoLevel), format)
		assert.True(t, log.Core().Enabled(zapcore.WarnLevel), format)
	}
}

func TestReadingFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	r := logic.Reading{PPM: 812.5, Tier: logic.TierPoor, Mode: logic.ModeNormal, R0: 11.2}
	log.Info(Summary(r.PPM, r.Tier, false), ReadingFields(r)...)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "PPM: 812.5 | Quality: POOR", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, 812.5, fields["ppm"])
	assert.Equal(t, "POOR", fields["tier"])
	assert.Equal(t, "NORMAL", fields["mode"])
}
