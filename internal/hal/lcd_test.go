package hal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nibble struct {
	rs    int
	value byte
}

// lcdBus latches D4..D7 and RS on each rising edge of EN.
type lcdBus struct {
	rs      int
	data    [4]int
	nibbles []nibble
}

type busLine struct {
	bus *lcdBus
	id  int // 0..3 data, 4 rs, 5 en
}

func (l busLine) SetValue(v int) error {
	switch {
	case l.id < 4:
		l.bus.data[l.id] = v
	case l.id == 4:
		l.bus.rs = v
	case v == 1:
		var n byte
		for i, bit := range l.bus.data {
			n |= byte(bit) << uint(i)
		}
		l.bus.nibbles = append(l.bus.nibbles, nibble{rs: l.bus.rs, value: n})
	}
	return nil
}

// bytes pairs nibbles into (rs, byte) transfers.
func (b *lcdBus) bytes(from int) []nibble {
	var out []nibble
	for i := from; i+1 < len(b.nibbles); i += 2 {
		out = append(out, nibble{rs: b.nibbles[i].rs, value: b.nibbles[i].value<<4 | b.nibbles[i+1].value})
	}
	return out
}

func newTestLCD(t *testing.T) (*LCD, *lcdBus, *time.Duration) {
	t.Helper()
	bus := &lcdBus{}
	var slept time.Duration
	l, err := NewLCD(busLine{bus, 4}, busLine{bus, 5},
		busLine{bus, 0}, busLine{bus, 1}, busLine{bus, 2}, busLine{bus, 3},
		func(d time.Duration) { slept += d })
	require.NoError(t, err)
	return l, bus, &slept
}

func TestLCDInitSequence(t *testing.T) {
	_, bus, slept := newTestLCD(t)

	require.GreaterOrEqual(t, len(bus.nibbles), 4)
	for i, want := range []byte{0x3, 0x3, 0x3, 0x2} {
		assert.Equal(t, nibble{rs: 0, value: want}, bus.nibbles[i], "init nibble %d", i)
	}

	cmds := bus.bytes(4)
	assert.Equal(t, []nibble{
		{0, lcdFunctionSet},
		{0, lcdDisplayOn},
		{0, lcdEntryMode},
		{0, lcdClear},
	}, cmds)
	assert.Greater(t, *slept, 50*time.Millisecond)
}

func TestLCDWriteAt(t *testing.T) {
	l, bus, _ := newTestLCD(t)
	start := len(bus.nibbles)

	require.NoError(t, l.WriteAt(3, 1, "Hi"))

	assert.Equal(t, []nibble{
		{0, 0xC3}, // DDRAM address 0x40 + 3
		{1, 'H'},
		{1, 'i'},
	}, bus.bytes(start))
}

func TestLCDWriteAtClips(t *testing.T) {
	l, bus, _ := newTestLCD(t)
	start := len(bus.nibbles)

	require.NoError(t, l.WriteAt(14, 0, "abcd"))
	out := bus.bytes(start)
	require.Len(t, out, 3, "address + two characters")
	assert.Equal(t, byte('b'), out[2].value)
}

func TestLCDWriteAtOutOfRange(t *testing.T) {
	l, _, _ := newTestLCD(t)
	assert.Error(t, l.WriteAt(0, 2, "x"))
	assert.Error(t, l.WriteAt(-1, 0, "x"))
}
