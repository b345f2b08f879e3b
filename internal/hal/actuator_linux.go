//go:build linux

package hal

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// OpenActuator requests the LED and buzzer lines as outputs (driven low) and
// opens the vent servo on sysfs PWM.
func OpenActuator(cfg GPIOConfig) (*LineActuator, error) {
	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	led, err := chip.RequestLine(cfg.LED, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request LED pin %d: %w", cfg.LED, err)
	}

	buzzer, err := chip.RequestLine(cfg.Buzzer, gpiocdev.AsOutput(0))
	if err != nil {
		led.Close()
		chip.Close()
		return nil, fmt.Errorf("request buzzer pin %d: %w", cfg.Buzzer, err)
	}

	servo, err := OpenPWMServo(cfg.PWMRoot, cfg.PWMChip, cfg.PWMChannel)
	if err != nil {
		buzzer.Close()
		led.Close()
		chip.Close()
		return nil, fmt.Errorf("open servo: %w", err)
	}

	a := NewLineActuator(led, buzzer, servo)
	a.closers = []func() error{
		chip.Close,
		releaseLine(led),
		releaseLine(buzzer),
		servo.Close,
	}
	return a, nil
}

// OpenLCD requests the six bus lines and initialises the display.
func OpenLCD(chipName string, pins LCDPins) (*LCD, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	closers := []func() error{chip.Close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	offsets := []int{pins.RS, pins.EN, pins.D4, pins.D5, pins.D6, pins.D7}
	lines := make([]*gpiocdev.Line, len(offsets))
	for i, offset := range offsets {
		l, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("request LCD pin %d: %w", offset, err)
		}
		lines[i] = l
		closers = append(closers, releaseLine(l))
	}

	lcd, err := NewLCD(lines[0], lines[1], lines[2], lines[3], lines[4], lines[5], nil)
	if err != nil {
		cleanup()
		return nil, err
	}
	lcd.closers = closers
	return lcd, nil
}

// releaseLine drives an output low and returns it to an input with pull-down
// (matching Pi boot defaults) before closing, so nothing is left energised.
func releaseLine(l *gpiocdev.Line) func() error {
	return func() error {
		var errs []error
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive low: %w", err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure: %w", err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
		if len(errs) > 0 {
			return fmt.Errorf("release line %d: %v", l.Offset(), errs)
		}
		return nil
	}
}
