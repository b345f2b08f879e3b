// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/co2-monitor/internal/logic"
)

// DefaultTopicPrefix is the root of all topics published by the monitor.
const DefaultTopicPrefix = "air/co2-monitor"

// Topics holds the topics derived from a prefix.
type Topics struct {
	Readings string // one message per decision tick
	Events   string // warning and calibration events
	System   string // lifecycle and heartbeat, retained
}

// NewTopics derives the topics under prefix. An empty prefix uses
// DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Readings: prefix + "/readings",
		Events:   prefix + "/events",
		System:   prefix + "/system",
	}
}

// Publisher publishes readings and events to MQTT.
// Errors should be logged by the caller; they must not crash the process.
type Publisher interface {
	// PublishReading sends a decision-tick reading.
	PublishReading(r logic.Reading) error

	// PublishEvent sends a warning or calibration event.
	PublishEvent(e logic.Event) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(e SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// ReadingPayload is the message published on the readings topic.
type ReadingPayload struct {
	Reading ReadingInner `json:"reading"`
}

// ReadingInner contains the reading details.
type ReadingInner struct {
	Timestamp  string  `json:"timestamp"`
	PPM        float64 `json:"ppm"`
	Tier       string  `json:"quality"`
	Mode       string  `json:"mode"`
	Voltage    float64 `json:"voltage"`
	Resistance float64 `json:"rs_kohm"`
	Ratio      float64 `json:"ratio"`
	R0         float64 `json:"r0_kohm"`
	Digital    bool    `json:"d0"`
}

// FormatReadingPayload creates the JSON payload for a reading.
func FormatReadingPayload(r logic.Reading) ([]byte, error) {
	payload := ReadingPayload{
		Reading: ReadingInner{
			Timestamp:  r.Timestamp.UTC().Format(time.RFC3339),
			PPM:        round(r.PPM, 1),
			Tier:       r.Tier.String(),
			Mode:       string(r.Mode),
			Voltage:    round(r.Voltage, 3),
			Resistance: round(r.Resistance, 2),
			Ratio:      round(r.Ratio, 3),
			R0:         round(r.R0, 2),
			Digital:    r.Digital,
		},
	}
	return json.Marshal(payload)
}

// EventPayload is the message published on the events topic.
type EventPayload struct {
	Air EventInner `json:"air"`
}

// EventInner contains the event details.
type EventInner struct {
	Timestamp    string  `json:"timestamp"`
	Event        string  `json:"event"`
	PPM          float64 `json:"ppm"`
	Tier         string  `json:"quality,omitempty"`
	Trigger      string  `json:"trigger,omitempty"`
	R0           float64 `json:"r0_kohm,omitempty"`
	DeviationPct float64 `json:"deviation_pct,omitempty"`
}

// FormatEventPayload creates the JSON payload for an event.
func FormatEventPayload(e logic.Event) ([]byte, error) {
	inner := EventInner{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(e.Type),
		PPM:       round(e.PPM, 1),
		Trigger:   string(e.Trigger),
		R0:        round(e.R0, 2),
	}
	switch e.Type {
	case logic.EventWarningOn, logic.EventWarningOff:
		inner.Tier = e.Tier.String()
	case logic.EventDrift, logic.EventRecalibrated:
		inner.DeviationPct = round(e.Deviation*100, 1)
	}
	return json.Marshal(EventPayload{Air: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the last-will message the broker publishes if the monitor
// disappears without a clean disconnect.
func WillPayload(connectedAt time.Time) []byte {
	payload, _ := FormatSystemPayload(SystemEvent{
		Timestamp: connectedAt,
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	return payload
}

// round rounds to the given decimal places. Non-finite values become 0 so
// the payload always marshals.
func round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
