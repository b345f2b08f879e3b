package hal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Hobby servo timing. The pulse range matches the common Arduino Servo
// library defaults for SG90-class servos.
const (
	ServoPeriod   = 20 * time.Millisecond
	ServoMinPulse = 544 * time.Microsecond
	ServoMaxPulse = 2400 * time.Microsecond

	DefaultPWMRoot = "/sys/class/pwm"
)

// PWMServo drives a servo through the Linux sysfs PWM interface.
type PWMServo struct {
	chipDir  string
	dir      string
	channel  int
	exported bool
}

// OpenPWMServo exports the PWM channel if needed, configures a 50 Hz period
// and enables the output. root is normally DefaultPWMRoot.
func OpenPWMServo(root string, chip, channel int) (*PWMServo, error) {
	chipDir := filepath.Join(root, fmt.Sprintf("pwmchip%d", chip))
	s := &PWMServo{
		chipDir: chipDir,
		dir:     filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel)),
		channel: channel,
	}

	if _, err := os.Stat(s.dir); errors.Is(err, os.ErrNotExist) {
		if err := writeSysfs(filepath.Join(chipDir, "export"), strconv.Itoa(channel)); err != nil {
			return nil, fmt.Errorf("export pwm channel %d: %w", channel, err)
		}
		s.exported = true
		// udev creates the channel directory asynchronously.
		if err := waitForDir(s.dir, 20, 10*time.Millisecond); err != nil {
			return nil, err
		}
	}

	if err := s.write("period", strconv.FormatInt(ServoPeriod.Nanoseconds(), 10)); err != nil {
		return nil, err
	}
	if err := s.write("enable", "1"); err != nil {
		return nil, err
	}
	return s, nil
}

// PulseWidth maps an angle in [0, 180] degrees to a pulse width. Angles
// outside the range are clamped.
func PulseWidth(degrees int) time.Duration {
	if degrees < 0 {
		degrees = 0
	}
	if degrees > 180 {
		degrees = 180
	}
	span := ServoMaxPulse - ServoMinPulse
	return ServoMinPulse + span*time.Duration(degrees)/180
}

// SetAngle positions the servo.
func (s *PWMServo) SetAngle(degrees int) error {
	return s.write("duty_cycle", strconv.FormatInt(PulseWidth(degrees).Nanoseconds(), 10))
}

// Close disables the output and unexports the channel if this servo exported it.
func (s *PWMServo) Close() error {
	if err := s.write("enable", "0"); err != nil {
		return err
	}
	if s.exported {
		return writeSysfs(filepath.Join(s.chipDir, "unexport"), strconv.Itoa(s.channel))
	}
	return nil
}

func (s *PWMServo) write(attr, value string) error {
	if err := writeSysfs(filepath.Join(s.dir, attr), value); err != nil {
		return fmt.Errorf("pwm %s: %w", attr, err)
	}
	return nil
}

func writeSysfs(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}

func waitForDir(dir string, attempts int, interval time.Duration) error {
	for i := 0; i < attempts; i++ {
		if _, err := os.Stat(dir); err == nil {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("pwm channel %s did not appear", dir)
}
