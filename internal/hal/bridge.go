package hal

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/sweeney/co2-monitor/internal/sensor"
)

// Serial bridge defaults.
const (
	DefaultBaudRate  = 115200
	DefaultMaxAge    = 500 * time.Millisecond
	DefaultSerialDev = "/dev/ttyACM0"
)

// SerialBridge reads MQ-135 samples streamed by a microcontroller acting as
// the ADC. The bridge prints one line per conversion:
//
//	<count>[,<d0>]
//
// where count is the 10-bit ADC value and d0 is the comparator output (0/1).
// Lines starting with '#' are ignored. Only the most recent sample is kept.
type SerialBridge struct {
	port   io.ReadCloser
	maxAge time.Duration
	now    func() time.Time
	log    *zap.Logger

	mu      sync.Mutex
	count   int
	digital bool
	at      time.Time
	have    bool
	bad     int

	done chan struct{}
}

// OpenSerialBridge opens the serial device and starts reading samples.
func OpenSerialBridge(device string, baudRate int, maxAge time.Duration, log *zap.Logger) (*SerialBridge, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(device, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial bridge %s: %w", device, err)
	}
	return newSerialBridge(port, maxAge, time.Now, log), nil
}

func newSerialBridge(r io.ReadCloser, maxAge time.Duration, now func() time.Time, log *zap.Logger) *SerialBridge {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if log == nil {
		log = zap.NewNop()
	}
	b := &SerialBridge{
		port:   r,
		maxAge: maxAge,
		now:    now,
		log:    log,
		done:   make(chan struct{}),
	}
	go b.readLoop()
	return b
}

func (b *SerialBridge) readLoop() {
	defer close(b.done)

	scanner := bufio.NewScanner(b.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		count, digital, err := ParseBridgeLine(line)
		b.mu.Lock()
		if err != nil {
			b.bad++
			bad := b.bad
			b.mu.Unlock()
			if bad == 1 || bad%100 == 0 {
				b.log.Warn("serial bridge: malformed line", zap.String("line", line), zap.Int("total", bad), zap.Error(err))
			}
			continue
		}
		b.count = count
		b.digital = digital
		b.at = b.now()
		b.have = true
		b.mu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		b.log.Warn("serial bridge: read stopped", zap.Error(err))
	}
}

// ParseBridgeLine parses "<count>[,<d0>]".
func ParseBridgeLine(line string) (count int, digital bool, err error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) > 2 {
		return 0, false, fmt.Errorf("expected at most 2 fields, got %d", len(fields))
	}

	count, err = strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return 0, false, fmt.Errorf("parse count: %w", err)
	}
	if count < 0 || count > sensor.MaxADCCount {
		return 0, false, fmt.Errorf("count %d outside [0, %d]", count, sensor.MaxADCCount)
	}

	if len(fields) == 2 {
		switch strings.TrimSpace(fields[1]) {
		case "0":
			digital = false
		case "1":
			digital = true
		default:
			return 0, false, fmt.Errorf("parse d0: %q", fields[1])
		}
	}
	return count, digital, nil
}

// latest returns the newest sample, or ErrNoSample when none has arrived or
// the newest is older than maxAge.
func (b *SerialBridge) latest() (int, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.have {
		return 0, false, ErrNoSample
	}
	if age := b.now().Sub(b.at); age > b.maxAge {
		return 0, false, fmt.Errorf("%w: newest sample is %v old", ErrNoSample, age.Truncate(time.Millisecond))
	}
	return b.count, b.digital, nil
}

// Malformed returns the number of lines that failed to parse.
func (b *SerialBridge) Malformed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bad
}

// Analog returns the bridge's analog channel.
func (b *SerialBridge) Analog() AnalogInput {
	return bridgeAnalog{b}
}

// Digital returns the bridge's comparator channel.
func (b *SerialBridge) Digital() DigitalInput {
	return bridgeDigital{b}
}

// Done is closed when the read loop exits.
func (b *SerialBridge) Done() <-chan struct{} {
	return b.done
}

// Close closes the serial port, which stops the read loop.
func (b *SerialBridge) Close() error {
	return b.port.Close()
}

type bridgeAnalog struct{ b *SerialBridge }

func (a bridgeAnalog) Read() (int, error) {
	count, _, err := a.b.latest()
	return count, err
}

type bridgeDigital struct{ b *SerialBridge }

func (d bridgeDigital) Read() (bool, error) {
	_, digital, err := d.b.latest()
	return digital, err
}
