package hal

import (
	"errors"
	"strings"
	"sync"
)

// FakeADC is a test double that returns scripted ADC counts.
type FakeADC struct {
	mu sync.Mutex

	// Counts contains scripted values to return.
	// Each call to Read() consumes the next count.
	Counts []int

	// index tracks current position in Counts
	index int

	// Reads counts calls to Read
	Reads int

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeADC creates a FakeADC with the given counts.
func NewFakeADC(counts ...int) *FakeADC {
	return &FakeADC{Counts: counts}
}

// Read returns the next scripted count.
// If counts are exhausted, returns the last count repeatedly.
func (f *FakeADC) Read() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Counts) == 0 {
		return 0, errors.New("no samples configured")
	}

	c := f.Counts[f.index]
	if f.index < len(f.Counts)-1 {
		f.index++
	}
	return c, nil
}

// Set replaces the script with a single repeating count.
func (f *FakeADC) Set(count int) {
	f.mu.Lock()
	f.Counts = []int{count}
	f.index = 0
	f.mu.Unlock()
}

// Reset resets the reader to the beginning of counts.
func (f *FakeADC) Reset() {
	f.mu.Lock()
	f.index = 0
	f.Reads = 0
	f.mu.Unlock()
}

// FakeDigital is a test double for the comparator input.
type FakeDigital struct {
	Value     bool
	ReadError error
}

// Read returns Value or ReadError.
func (f *FakeDigital) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	return f.Value, nil
}

// ActuatorCall records a single actuator write.
type ActuatorCall struct {
	Op    string // "led", "servo" or "buzzer"
	Value int
}

// FakeActuator records every actuator write for test assertions.
type FakeActuator struct {
	Calls []ActuatorCall

	LED    bool
	Angle  int
	Buzzer bool

	// Err, if set, is returned by every write (state is still recorded).
	Err error
}

// NewFakeActuator creates a FakeActuator.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// SetLED records an LED write.
func (f *FakeActuator) SetLED(on bool) error {
	f.LED = on
	f.Calls = append(f.Calls, ActuatorCall{Op: "led", Value: boolInt(on)})
	return f.Err
}

// SetServoAngle records a servo write.
func (f *FakeActuator) SetServoAngle(degrees int) error {
	f.Angle = degrees
	f.Calls = append(f.Calls, ActuatorCall{Op: "servo", Value: degrees})
	return f.Err
}

// SetBuzzer records a buzzer write.
func (f *FakeActuator) SetBuzzer(on bool) error {
	f.Buzzer = on
	f.Calls = append(f.Calls, ActuatorCall{Op: "buzzer", Value: boolInt(on)})
	return f.Err
}

// Count returns how many recorded calls match op and value.
func (f *FakeActuator) Count(op string, value int) int {
	n := 0
	for _, c := range f.Calls {
		if c.Op == op && c.Value == value {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (f *FakeActuator) Reset() {
	f.Calls = nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// FakeDisplay is an in-memory 16×2 character grid.
type FakeDisplay struct {
	grid   [DisplayRows][DisplayCols]byte
	Clears int
	Writes int
}

// NewFakeDisplay creates a blank FakeDisplay.
func NewFakeDisplay() *FakeDisplay {
	d := &FakeDisplay{}
	d.blank()
	return d
}

func (d *FakeDisplay) blank() {
	for r := range d.grid {
		for c := range d.grid[r] {
			d.grid[r][c] = ' '
		}
	}
}

// Clear blanks the grid.
func (d *FakeDisplay) Clear() error {
	d.blank()
	d.Clears++
	return nil
}

// WriteAt writes text starting at (col, row). Text past the last column is
// clipped, as on the real module.
func (d *FakeDisplay) WriteAt(col, row int, text string) error {
	if row < 0 || row >= DisplayRows || col < 0 || col >= DisplayCols {
		return errors.New("fake display: position out of range")
	}
	d.Writes++
	for i := 0; i < len(text) && col+i < DisplayCols; i++ {
		d.grid[row][col+i] = text[i]
	}
	return nil
}

// Line returns the full contents of a row.
func (d *FakeDisplay) Line(row int) string {
	return string(d.grid[row][:])
}

// Text returns both rows trimmed of trailing spaces, joined by a newline.
func (d *FakeDisplay) Text() string {
	return strings.TrimRight(d.Line(0), " ") + "\n" + strings.TrimRight(d.Line(1), " ")
}
