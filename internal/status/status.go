// Package status provides a thread-safe status tracker for the co2-monitor daemon.
// It is read by HTTP handlers and the heartbeat publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/co2-monitor/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	SampleMs    int64
	DecisionMs  int64
	HeartbeatMs int64
	Threshold   float64
	Broker      string
	HTTPPort    string
}

// Calibration is the calibration state shown in status output.
type Calibration struct {
	State       string // calibration.State name
	R0          float64
	ReferenceR0 float64
	Count       int
	Due         bool
	LastAt      time.Time // wall time of the last successful calibration
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Reading       logic.Reading
	HaveReading   bool
	Calibration   Calibration
	Counts        logic.Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether the monitor has produced a calibrated reading.
func (s Snapshot) Ready() bool {
	return s.HaveReading && s.Calibration.Count > 0
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the time source used for Snapshot.Now.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Update records the latest decision-tick reading and event counts.
// Called from runLoop after every decision.
func (t *Tracker) Update(r logic.Reading, counts logic.Counts) {
	t.mu.Lock()
	t.snap.Reading = r
	t.snap.HaveReading = true
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetCounts updates the event counts without touching the reading.
func (t *Tracker) SetCounts(counts logic.Counts) {
	t.mu.Lock()
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetCalibration records the calibration state.
func (t *Tracker) SetCalibration(c Calibration) {
	t.mu.Lock()
	t.snap.Calibration = c
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
