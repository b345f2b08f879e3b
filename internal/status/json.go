package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Ready         bool            `json:"ready"`
	Air           *AirJSON        `json:"air,omitempty"`
	Calibration   CalibrationJSON `json:"calibration"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Counts        CountsJSON      `json:"event_counts"`
	Network       *NetworkJSON    `json:"network,omitempty"`
	Config        ConfigJSON      `json:"config"`
}

// AirJSON is the most recent decision-tick reading.
type AirJSON struct {
	PPM        float64 `json:"ppm"`
	Quality    string  `json:"quality"`
	Mode       string  `json:"mode"`
	Voltage    float64 `json:"voltage"`
	Resistance float64 `json:"rs_kohm"`
	Ratio      float64 `json:"ratio"`
	Digital    bool    `json:"d0"`
	Timestamp  string  `json:"timestamp"`
}

// CalibrationJSON is the JSON representation of calibration state.
type CalibrationJSON struct {
	State       string  `json:"state"`
	R0          float64 `json:"r0_kohm"`
	ReferenceR0 float64 `json:"reference_r0_kohm"`
	Count       int     `json:"count"`
	Due         bool    `json:"due"`
	Last        string  `json:"last,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Warnings       int `json:"warnings"`
	Recalibrations int `json:"recalibrations"`
	DriftWarnings  int `json:"drift_warnings"`
	InvalidSamples int `json:"invalid_samples"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SampleMs    int64   `json:"sample_ms"`
	DecisionMs  int64   `json:"decision_ms"`
	HeartbeatMs int64   `json:"heartbeat_ms"`
	Threshold   float64 `json:"threshold_ppm"`
	Broker      string  `json:"broker"`
	HTTPPort    string  `json:"http_port"`
}

func buildInner(snap Snapshot) StatusInner {
	state := snap.Calibration.State
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		Ready: snap.Ready(),
		Calibration: CalibrationJSON{
			State:       state,
			R0:          round(snap.Calibration.R0, 2),
			ReferenceR0: round(snap.Calibration.ReferenceR0, 2),
			Count:       snap.Calibration.Count,
			Due:         snap.Calibration.Due,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Warnings:       snap.Counts.Warnings,
			Recalibrations: snap.Counts.Recalibrations,
			DriftWarnings:  snap.Counts.DriftWarnings,
			InvalidSamples: snap.Counts.InvalidSamples,
		},
		Config: ConfigJSON{
			SampleMs:    snap.Config.SampleMs,
			DecisionMs:  snap.Config.DecisionMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Threshold:   snap.Config.Threshold,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
		},
	}
	if !snap.Calibration.LastAt.IsZero() {
		inner.Calibration.Last = snap.Calibration.LastAt.UTC().Format(time.RFC3339)
	}
	if snap.HaveReading {
		r := snap.Reading
		inner.Air = &AirJSON{
			PPM:        round(r.PPM, 1),
			Quality:    r.Tier.String(),
			Mode:       string(r.Mode),
			Voltage:    round(r.Voltage, 3),
			Resistance: round(r.Resistance, 2),
			Ratio:      round(r.Ratio, 3),
			Digital:    r.Digital,
			Timestamp:  r.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

func round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
