package hal

import (
	"fmt"
	"time"
)

// HD44780 commands.
const (
	lcdClear        = 0x01
	lcdEntryMode    = 0x06 // increment, no shift
	lcdDisplayOn    = 0x0C // display on, cursor off, blink off
	lcdFunctionSet  = 0x28 // 4-bit bus, 2 lines, 5x8 font
	lcdSetDDRAMAddr = 0x80
)

var lcdRowOffsets = [DisplayRows]byte{0x00, 0x40}

// LCD drives an HD44780-compatible character display over a 4-bit bus.
type LCD struct {
	rs, en OutputLine
	data   [4]OutputLine // D4..D7
	sleep  func(time.Duration)

	closers []func() error
}

// NewLCD creates a driver from already-requested output lines and runs the
// 4-bit initialisation sequence. sleep may be nil to use time.Sleep.
func NewLCD(rs, en OutputLine, d4, d5, d6, d7 OutputLine, sleep func(time.Duration)) (*LCD, error) {
	if sleep == nil {
		sleep = time.Sleep
	}
	l := &LCD{rs: rs, en: en, data: [4]OutputLine{d4, d5, d6, d7}, sleep: sleep}
	if err := l.init(); err != nil {
		return nil, fmt.Errorf("lcd init: %w", err)
	}
	return l, nil
}

func (l *LCD) init() error {
	l.sleep(50 * time.Millisecond)
	if err := l.rs.SetValue(0); err != nil {
		return err
	}
	// Force 8-bit mode three times, then switch to 4-bit.
	for _, wait := range []time.Duration{4500 * time.Microsecond, 4500 * time.Microsecond, 150 * time.Microsecond} {
		if err := l.write4(0x03); err != nil {
			return err
		}
		l.sleep(wait)
	}
	if err := l.write4(0x02); err != nil {
		return err
	}
	for _, cmd := range []byte{lcdFunctionSet, lcdDisplayOn, lcdEntryMode} {
		if err := l.command(cmd); err != nil {
			return err
		}
	}
	return l.Clear()
}

// Clear blanks the display and homes the cursor.
func (l *LCD) Clear() error {
	if err := l.command(lcdClear); err != nil {
		return err
	}
	l.sleep(2 * time.Millisecond)
	return nil
}

// WriteAt writes text at (col, row). Text past the last column is clipped.
func (l *LCD) WriteAt(col, row int, text string) error {
	if row < 0 || row >= DisplayRows || col < 0 || col >= DisplayCols {
		return fmt.Errorf("lcd: position (%d,%d) out of range", col, row)
	}
	if err := l.command(lcdSetDDRAMAddr | (byte(col) + lcdRowOffsets[row])); err != nil {
		return err
	}
	for i := 0; i < len(text) && col+i < DisplayCols; i++ {
		if err := l.send(text[i], 1); err != nil {
			return err
		}
	}
	return nil
}

func (l *LCD) command(b byte) error {
	return l.send(b, 0)
}

func (l *LCD) send(b byte, rs int) error {
	if err := l.rs.SetValue(rs); err != nil {
		return err
	}
	if err := l.write4(b >> 4); err != nil {
		return err
	}
	return l.write4(b & 0x0F)
}

func (l *LCD) write4(nibble byte) error {
	for i, line := range l.data {
		if err := line.SetValue(int(nibble>>uint(i)) & 1); err != nil {
			return err
		}
	}
	return l.pulse()
}

func (l *LCD) pulse() error {
	if err := l.en.SetValue(1); err != nil {
		return err
	}
	l.sleep(time.Microsecond)
	if err := l.en.SetValue(0); err != nil {
		return err
	}
	l.sleep(100 * time.Microsecond)
	return nil
}

// Close releases the GPIO lines.
func (l *LCD) Close() error {
	var errs []error
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
