// Package hal provides the hardware collaborators of the monitor behind
// small interfaces.
// The real implementations use a serial ADC bridge, the Linux GPIO character
// device and sysfs PWM. The fake implementations allow testing without hardware.
package hal

import "errors"

// AnalogInput reads the sensor's analog output as an ADC count in
// [0, sensor.MaxADCCount].
type AnalogInput interface {
	Read() (int, error)
}

// DigitalInput reads the sensor module's threshold comparator (D0).
// It is used for diagnostics only.
type DigitalInput interface {
	Read() (bool, error)
}

// Actuator drives the warning outputs. Writes are fire-and-forget on the
// hardware side; errors only report that the host could not issue them.
type Actuator interface {
	SetLED(on bool) error
	SetServoAngle(degrees int) error
	SetBuzzer(on bool) error
}

// Display is a character display addressed by column and row.
type Display interface {
	Clear() error
	WriteAt(col, row int, text string) error
}

// Display geometry (1602A module).
const (
	DisplayCols = 16
	DisplayRows = 2
)

// Vent servo positions in degrees.
const (
	ServoClosed = 0
	ServoOpen   = 90
)

// Default wiring (BCM numbering on gpiochip0).
const (
	DefaultChip      = "gpiochip0"
	DefaultPinLED    = 27
	DefaultPinBuzzer = 22
	DefaultPinLCDRS  = 5
	DefaultPinLCDEN  = 6
	DefaultPinLCDD4  = 13
	DefaultPinLCDD5  = 19
	DefaultPinLCDD6  = 26
	DefaultPinLCDD7  = 21
)

var (
	// ErrNoSample is returned by inputs that have not yet received data.
	ErrNoSample = errors.New("hal: no sample available")

	// ErrUnsupported is returned on platforms without the required drivers.
	ErrUnsupported = errors.New("hal: not supported on this platform (requires Linux)")
)

// NopDisplay discards all output. Used when no LCD is fitted.
type NopDisplay struct{}

// Clear does nothing.
func (NopDisplay) Clear() error { return nil }

// WriteAt does nothing.
func (NopDisplay) WriteAt(col, row int, text string) error { return nil }
