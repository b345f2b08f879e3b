// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/co2-monitor/internal/calibration"
	"github.com/sweeney/co2-monitor/internal/filter"
	"github.com/sweeney/co2-monitor/internal/hal"
	"github.com/sweeney/co2-monitor/internal/logic"
)

// Config represents the application configuration.
type Config struct {
	Sampling    SamplingConfig    `yaml:"sampling"`
	Thresholds  ThresholdsConfig  `yaml:"thresholds"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Startup     StartupConfig     `yaml:"startup"`
	Warning     WarningConfig     `yaml:"warning"`
	Hardware    HardwareConfig    `yaml:"hardware"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http"`
	Redis       RedisConfig       `yaml:"redis"`
	Log         LogConfig         `yaml:"log"`
}

// SamplingConfig controls the sampling and decision cadence.
type SamplingConfig struct {
	Interval     time.Duration `yaml:"interval"`      // between samples
	Decision     time.Duration `yaml:"decision"`      // between decision ticks
	BufferSize   int           `yaml:"buffer_size"`   // samples averaged
	LoopInterval time.Duration `yaml:"loop_interval"` // how often the main loop polls
}

// ThresholdsConfig holds the alarm limits.
type ThresholdsConfig struct {
	PPM             float64 `yaml:"ppm"`
	VoltageFailsafe float64 `yaml:"voltage_failsafe"`
}

// CalibrationConfig mirrors calibration.Config.
type CalibrationConfig struct {
	Samples        int           `yaml:"samples"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	Settle         time.Duration `yaml:"settle"`
	Interval       time.Duration `yaml:"interval"`
	SafePPM        float64       `yaml:"safe_ppm"`
	DriftSamples   int           `yaml:"drift_samples"`
	DriftTolerance float64       `yaml:"drift_tolerance"`
}

// StartupConfig holds the boot sequence timings.
type StartupConfig struct {
	SplashPage       time.Duration `yaml:"splash_page"`
	Preheat          time.Duration `yaml:"preheat"`
	SkipPreheat      bool          `yaml:"skip_preheat"`
	PreheatAnimation time.Duration `yaml:"preheat_animation"`
	CleanAirWait     time.Duration `yaml:"clean_air_wait"`
	ReadyHold        time.Duration `yaml:"ready_hold"`
	DiagnosticReads  int           `yaml:"diagnostic_reads"`
}

// WarningConfig holds the warning presentation timings.
type WarningConfig struct {
	DisplayTime time.Duration `yaml:"display_time"` // attention window
	BuzzerOn    time.Duration `yaml:"buzzer_on"`
	BuzzerOff   time.Duration `yaml:"buzzer_off"`
}

// HardwareConfig selects the input source and output wiring.
type HardwareConfig struct {
	// Source is "serial" (ADC bridge) or "fake" (no hardware).
	Source     string        `yaml:"source"`
	SerialPort string        `yaml:"serial_port"`
	BaudRate   int           `yaml:"baud_rate"`
	MaxAge     time.Duration `yaml:"max_age"`

	GPIOChip   string `yaml:"gpio_chip"`
	PinLED     int    `yaml:"pin_led"`
	PinBuzzer  int    `yaml:"pin_buzzer"`
	PWMChip    int    `yaml:"pwm_chip"`
	PWMChannel int    `yaml:"pwm_channel"`
	LCD        bool   `yaml:"lcd"`
	LCDPins    []int  `yaml:"lcd_pins"` // RS, EN, D4, D5, D6, D7
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker            string        `yaml:"broker"`
	TopicPrefix       string        `yaml:"topic_prefix"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	BufferSize        int           `yaml:"buffer_size"`
}

// HTTPConfig configures the status page.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig configures the latest-reading mirror. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with the standard values.
func Default() *Config {
	cal := calibration.DefaultConfig()
	return &Config{
		Sampling: SamplingConfig{
			Interval:     20 * time.Millisecond,
			Decision:     time.Second,
			BufferSize:   filter.DefaultSize,
			LoopInterval: 5 * time.Millisecond,
		},
		Thresholds: ThresholdsConfig{
			PPM:             logic.DefaultThreshold,
			VoltageFailsafe: logic.DefaultVoltageFailsafe,
		},
		Calibration: CalibrationConfig{
			Samples:        cal.Samples,
			SampleInterval: cal.SampleInterval,
			Settle:         cal.Settle,
			Interval:       cal.Interval,
			SafePPM:        cal.SafePPM,
			DriftSamples:   cal.DriftSamples,
			DriftTolerance: cal.DriftTolerance,
		},
		Startup: StartupConfig{
			SplashPage:       2 * time.Second,
			Preheat:          20 * time.Second,
			PreheatAnimation: 500 * time.Millisecond,
			CleanAirWait:     5 * time.Second,
			ReadyHold:        2 * time.Second,
			DiagnosticReads:  3,
		},
		Warning: WarningConfig{
			DisplayTime: logic.DefaultWarningDisplayTime,
			BuzzerOn:    logic.DefaultBuzzerOn,
			BuzzerOff:   logic.DefaultBuzzerOff,
		},
		Hardware: HardwareConfig{
			Source:     "serial",
			SerialPort: hal.DefaultSerialDev,
			BaudRate:   hal.DefaultBaudRate,
			MaxAge:     hal.DefaultMaxAge,
			GPIOChip:   hal.DefaultChip,
			PinLED:     hal.DefaultPinLED,
			PinBuzzer:  hal.DefaultPinBuzzer,
			LCD:        true,
			LCDPins: []int{
				hal.DefaultPinLCDRS, hal.DefaultPinLCDEN,
				hal.DefaultPinLCDD4, hal.DefaultPinLCDD5, hal.DefaultPinLCDD6, hal.DefaultPinLCDD7,
			},
		},
		MQTT: MQTTConfig{
			Broker:            "tcp://localhost:1883",
			TopicPrefix:       "air/co2-monitor",
			HeartbeatInterval: 15 * time.Minute,
			BufferSize:        1000,
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Redis: RedisConfig{
			Key: "co2-monitor:latest",
			TTL: time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; fields absent from the file keep their default values.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate reports every value that would break the control loop.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Sampling.Interval > 0, "sampling.interval must be positive")
	check(c.Sampling.Decision >= c.Sampling.Interval, "sampling.decision must not be shorter than sampling.interval")
	check(c.Sampling.BufferSize > 0, "sampling.buffer_size must be positive")
	check(c.Sampling.LoopInterval > 0, "sampling.loop_interval must be positive")

	check(c.Thresholds.PPM > 800, "thresholds.ppm (%v) must be above the POOR floor (800)", c.Thresholds.PPM)
	check(c.Thresholds.VoltageFailsafe > 0, "thresholds.voltage_failsafe must be positive")

	check(c.Calibration.Samples > 0, "calibration.samples must be positive")
	check(c.Calibration.DriftSamples > 0, "calibration.drift_samples must be positive")
	check(c.Calibration.Interval > 0, "calibration.interval must be positive")
	check(c.Calibration.SafePPM > 0, "calibration.safe_ppm must be positive")
	check(c.Calibration.DriftTolerance > 0 && c.Calibration.DriftTolerance < 1,
		"calibration.drift_tolerance must be in (0, 1)")

	check(c.Warning.BuzzerOn > 0 && c.Warning.BuzzerOff > 0, "warning buzzer timings must be positive")

	switch c.Hardware.Source {
	case "serial", "fake":
	default:
		errs = append(errs, fmt.Errorf("hardware.source %q must be serial or fake", c.Hardware.Source))
	}
	check(!c.Hardware.LCD || len(c.Hardware.LCDPins) == 6, "hardware.lcd_pins needs 6 entries (RS, EN, D4-D7)")

	check(c.MQTT.TopicPrefix != "", "mqtt.topic_prefix must not be empty")
	check(c.Redis.Addr == "" || c.Redis.TTL > 0, "redis.ttl must be positive")

	return errors.Join(errs...)
}

// CalibrationSettings converts the calibration section.
func (c *Config) CalibrationSettings() calibration.Config {
	return calibration.Config{
		Samples:        c.Calibration.Samples,
		SampleInterval: c.Calibration.SampleInterval,
		Settle:         c.Calibration.Settle,
		Interval:       c.Calibration.Interval,
		SafePPM:        c.Calibration.SafePPM,
		DriftSamples:   c.Calibration.DriftSamples,
		DriftTolerance: c.Calibration.DriftTolerance,
	}
}

// GPIO returns the output wiring.
func (c *Config) GPIO() hal.GPIOConfig {
	return hal.GPIOConfig{
		Chip:       c.Hardware.GPIOChip,
		LED:        c.Hardware.PinLED,
		Buzzer:     c.Hardware.PinBuzzer,
		PWMRoot:    hal.DefaultPWMRoot,
		PWMChip:    c.Hardware.PWMChip,
		PWMChannel: c.Hardware.PWMChannel,
	}
}

// LCDPins returns the LCD wiring. Only valid after Validate.
func (c *Config) LCDPins() hal.LCDPins {
	p := c.Hardware.LCDPins
	return hal.LCDPins{RS: p[0], EN: p[1], D4: p[2], D5: p[3], D6: p[4], D7: p[5]}
}
