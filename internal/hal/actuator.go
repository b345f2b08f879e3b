package hal

import "fmt"

// GPIOConfig selects the chip, line offsets and PWM channel for the outputs.
type GPIOConfig struct {
	Chip       string
	LED        int
	Buzzer     int
	PWMRoot    string
	PWMChip    int
	PWMChannel int
}

// LCDPins are the line offsets of the HD44780 4-bit bus.
type LCDPins struct {
	RS, EN, D4, D5, D6, D7 int
}

// DefaultGPIOConfig returns the default wiring.
func DefaultGPIOConfig() GPIOConfig {
	return GPIOConfig{
		Chip:    DefaultChip,
		LED:     DefaultPinLED,
		Buzzer:  DefaultPinBuzzer,
		PWMRoot: DefaultPWMRoot,
	}
}

// DefaultLCDPins returns the default LCD wiring.
func DefaultLCDPins() LCDPins {
	return LCDPins{
		RS: DefaultPinLCDRS, EN: DefaultPinLCDEN,
		D4: DefaultPinLCDD4, D5: DefaultPinLCDD5, D6: DefaultPinLCDD6, D7: DefaultPinLCDD7,
	}
}

// OutputLine is a single digital output. *gpiocdev.Line satisfies it.
type OutputLine interface {
	SetValue(value int) error
}

// Servo positions the vent.
type Servo interface {
	SetAngle(degrees int) error
}

// LineActuator drives the LED and buzzer from digital output lines and the
// vent through a Servo.
type LineActuator struct {
	led    OutputLine
	buzzer OutputLine
	servo  Servo

	closers []func() error
}

// NewLineActuator creates an actuator from already-requested lines.
func NewLineActuator(led, buzzer OutputLine, servo Servo) *LineActuator {
	return &LineActuator{led: led, buzzer: buzzer, servo: servo}
}

// SetLED drives the warning LED.
func (a *LineActuator) SetLED(on bool) error {
	if err := a.led.SetValue(boolInt(on)); err != nil {
		return fmt.Errorf("set led: %w", err)
	}
	return nil
}

// SetBuzzer drives the buzzer.
func (a *LineActuator) SetBuzzer(on bool) error {
	if err := a.buzzer.SetValue(boolInt(on)); err != nil {
		return fmt.Errorf("set buzzer: %w", err)
	}
	return nil
}

// SetServoAngle moves the vent servo.
func (a *LineActuator) SetServoAngle(degrees int) error {
	if a.servo == nil {
		return nil
	}
	if err := a.servo.SetAngle(degrees); err != nil {
		return fmt.Errorf("set servo: %w", err)
	}
	return nil
}

// Close releases the underlying resources in reverse order of acquisition.
func (a *LineActuator) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
