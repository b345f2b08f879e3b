//go:build !linux

package hal

// OpenActuator is not available on non-Linux platforms.
func OpenActuator(cfg GPIOConfig) (*LineActuator, error) {
	return nil, ErrUnsupported
}

// OpenLCD is not available on non-Linux platforms.
func OpenLCD(chipName string, pins LCDPins) (*LCD, error) {
	return nil, ErrUnsupported
}
