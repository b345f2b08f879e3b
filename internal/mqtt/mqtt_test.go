package mqtt

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sweeney/co2-monitor/internal/logic"
)

func TestNewTopics(t *testing.T) {
	topics := NewTopics("home/office")
	if topics.Readings != "home/office/readings" {
		t.Errorf("readings topic: got %s", topics.Readings)
	}
	if topics.Events != "home/office/events" {
		t.Errorf("events topic: got %s", topics.Events)
	}
	if topics.System != "home/office/system" {
		t.Errorf("system topic: got %s", topics.System)
	}
}

func TestNewTopicsDefaultPrefix(t *testing.T) {
	topics := NewTopics("")
	if topics.Readings != "air/co2-monitor/readings" {
		t.Errorf("readings topic: got %s", topics.Readings)
	}
	if topics.System != "air/co2-monitor/system" {
		t.Errorf("system topic: got %s", topics.System)
	}
}

func TestFormatReadingPayload(t *testing.T) {
	r := logic.Reading{
		Timestamp:  time.Date(2026, 3, 4, 9, 15, 0, 0, time.UTC),
		PPM:        1234.5678,
		Voltage:    0.806451,
		Resistance: 104.0123,
		Ratio:      1.6123,
		R0:         64.5478,
		Tier:       logic.TierPoor,
		Mode:       logic.ModeNormal,
		Digital:    true,
	}

	payload, err := FormatReadingPayload(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed ReadingPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	got := parsed.Reading
	if got.Timestamp != "2026-03-04T09:15:00Z" {
		t.Errorf("unexpected timestamp: %s", got.Timestamp)
	}
	if got.PPM != 1234.6 {
		t.Errorf("ppm: got %v, want 1234.6", got.PPM)
	}
	if got.Tier != "POOR" {
		t.Errorf("quality: got %s, want POOR", got.Tier)
	}
	if got.Mode != "NORMAL" {
		t.Errorf("mode: got %s, want NORMAL", got.Mode)
	}
	if got.Voltage != 0.806 {
		t.Errorf("voltage: got %v, want 0.806", got.Voltage)
	}
	if got.Resistance != 104.01 {
		t.Errorf("rs: got %v, want 104.01", got.Resistance)
	}
	if got.Ratio != 1.612 {
		t.Errorf("ratio: got %v, want 1.612", got.Ratio)
	}
	if got.R0 != 64.55 {
		t.Errorf("r0: got %v, want 64.55", got.R0)
	}
	if !got.Digital {
		t.Error("d0 should be true")
	}
}

func TestFormatReadingPayloadExactJSON(t *testing.T) {
	r := logic.Reading{
		Timestamp:  time.Date(2026, 3, 4, 9, 15, 0, 0, time.UTC),
		PPM:        400,
		Voltage:    0.733,
		Resistance: 116.4,
		Ratio:      1.8,
		R0:         64.67,
		Tier:       logic.TierGood,
		Mode:       logic.ModeNormal,
	}

	payload, err := FormatReadingPayload(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"reading":{"timestamp":"2026-03-04T09:15:00Z","ppm":400,"quality":"GOOD","mode":"NORMAL","voltage":0.733,"rs_kohm":116.4,"ratio":1.8,"r0_kohm":64.67,"d0":false}}`
	if string(payload) != want {
		t.Errorf("payload mismatch:\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestFormatReadingPayloadNonFinite(t *testing.T) {
	r := logic.Reading{
		Timestamp: time.Now(),
		PPM:       math.Inf(1),
		Ratio:     math.NaN(),
	}

	payload, err := FormatReadingPayload(r)
	if err != nil {
		t.Fatalf("non-finite values should not fail marshaling: %v", err)
	}

	var parsed ReadingPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Reading.PPM != 0 || parsed.Reading.Ratio != 0 {
		t.Errorf("non-finite values should become 0, got ppm=%v ratio=%v", parsed.Reading.PPM, parsed.Reading.Ratio)
	}
}

func TestFormatReadingPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	r := logic.Reading{Timestamp: time.Date(2026, 3, 4, 11, 15, 0, 0, loc)}

	payload, err := FormatReadingPayload(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed ReadingPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Reading.Timestamp != "2026-03-04T09:15:00Z" {
		t.Errorf("timestamp should be UTC: got %s", parsed.Reading.Timestamp)
	}
}

func TestFormatEventPayloadWarning(t *testing.T) {
	tests := []struct {
		name        string
		eventType   logic.EventType
		tier        logic.Tier
		trigger     logic.Trigger
		wantEvent   string
		wantQuality string
		wantTrigger string
	}{
		{"on ppm", logic.EventWarningOn, logic.TierDangerous, logic.TriggerPPM, "WARNING_ON", "DANGEROUS", "PPM"},
		{"on voltage", logic.EventWarningOn, logic.TierPoor, logic.TriggerVoltage, "WARNING_ON", "POOR", "VOLTAGE"},
		{"on both", logic.EventWarningOn, logic.TierDangerous, logic.TriggerBoth, "WARNING_ON", "DANGEROUS", "PPM+VOLTAGE"},
		{"off", logic.EventWarningOff, logic.TierFair, logic.TriggerNone, "WARNING_OFF", "FAIR", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := logic.Event{
				Timestamp: time.Now(),
				Type:      tt.eventType,
				PPM:       2500,
				Tier:      tt.tier,
				Trigger:   tt.trigger,
			}

			payload, err := FormatEventPayload(e)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var parsed EventPayload
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if parsed.Air.Event != tt.wantEvent {
				t.Errorf("event: got %s, want %s", parsed.Air.Event, tt.wantEvent)
			}
			if parsed.Air.Tier != tt.wantQuality {
				t.Errorf("quality: got %s, want %s", parsed.Air.Tier, tt.wantQuality)
			}
			if parsed.Air.Trigger != tt.wantTrigger {
				t.Errorf("trigger: got %s, want %s", parsed.Air.Trigger, tt.wantTrigger)
			}
			if parsed.Air.DeviationPct != 0 {
				t.Errorf("warning events carry no deviation, got %v", parsed.Air.DeviationPct)
			}
		})
	}
}

func TestFormatEventPayloadWarningExactJSON(t *testing.T) {
	e := logic.Event{
		Timestamp: time.Date(2026, 3, 4, 9, 15, 0, 0, time.UTC),
		Type:      logic.EventWarningOn,
		PPM:       3513.2,
		Tier:      logic.TierDangerous,
		Trigger:   logic.TriggerPPM,
	}

	payload, err := FormatEventPayload(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"air":{"timestamp":"2026-03-04T09:15:00Z","event":"WARNING_ON","ppm":3513.2,"quality":"DANGEROUS","trigger":"PPM"}}`
	if string(payload) != want {
		t.Errorf("payload mismatch:\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestFormatEventPayloadDrift(t *testing.T) {
	e := logic.Event{
		Timestamp: time.Date(2026, 3, 4, 9, 20, 0, 0, time.UTC),
		Type:      logic.EventDrift,
		PPM:       1234,
		R0:        57.77,
		Deviation: -0.1072,
	}

	payload, err := FormatEventPayload(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"air":{"timestamp":"2026-03-04T09:20:00Z","event":"DRIFT","ppm":1234,"r0_kohm":57.77,"deviation_pct":-10.7}}`
	if string(payload) != want {
		t.Errorf("payload mismatch:\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestFormatEventPayloadRecalibrated(t *testing.T) {
	e := logic.Event{
		Timestamp: time.Now(),
		Type:      logic.EventRecalibrated,
		PPM:       420,
		R0:        63.1,
		Deviation: 0.02,
	}

	payload, err := FormatEventPayload(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed EventPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Air.Event != "RECALIBRATED" {
		t.Errorf("event: got %s", parsed.Air.Event)
	}
	if parsed.Air.Tier != "" {
		t.Errorf("calibration events carry no quality, got %s", parsed.Air.Tier)
	}
	if parsed.Air.R0 != 63.1 {
		t.Errorf("r0: got %v, want 63.1", parsed.Air.R0)
	}
	if parsed.Air.DeviationPct != 2 {
		t.Errorf("deviation_pct: got %v, want 2", parsed.Air.DeviationPct)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"system":{"timestamp":"2026-02-03T10:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != want {
		t.Errorf("payload mismatch:\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := raw["system"]["reason"]; ok {
		t.Error("reason should be omitted when empty")
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"system":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload should pass through unchanged, got %s", payload)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	at := time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC)
	payload := WillPayload(at)

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Event != "OFFLINE" {
		t.Errorf("event: got %s, want OFFLINE", parsed.System.Event)
	}
	if parsed.System.Reason != "MQTT_DISCONNECT" {
		t.Errorf("reason: got %s, want MQTT_DISCONNECT", parsed.System.Reason)
	}
	if parsed.System.Timestamp != "2026-02-03T10:30:00Z" {
		t.Errorf("timestamp: got %s", parsed.System.Timestamp)
	}
}

func TestClientIDUnique(t *testing.T) {
	a, b := ClientID(), ClientID()
	if a == b {
		t.Errorf("client IDs should differ, both %s", a)
	}
	if len(a) != len("co2-monitor-")+8 {
		t.Errorf("unexpected client ID length: %s", a)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.PublishReading(logic.Reading{PPM: 400, Tier: logic.TierGood}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := logic.Event{Timestamp: time.Now(), Type: logic.EventWarningOn, PPM: 2500, Tier: logic.TierDangerous}
	if err := f.PublishEvent(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Readings) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(f.Readings))
	}
	if len(f.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(f.Events))
	}
	if f.Events[0].Type != logic.EventWarningOn {
		t.Errorf("unexpected event type: %s", f.Events[0].Type)
	}
	if len(f.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(f.Payloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")

	if err := f.PublishReading(logic.Reading{}); err == nil {
		t.Error("expected error from PublishReading")
	}
	if err := f.PublishEvent(logic.Event{Type: logic.EventWarningOff}); err == nil {
		t.Error("expected error from PublishEvent")
	}
	if len(f.Readings) != 0 || len(f.Events) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherPublishSystem(t *testing.T) {
	f := NewFakePublisher()

	for _, name := range []string{"STARTUP", "HEARTBEAT", "SHUTDOWN"} {
		if err := f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: name}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	names := f.SystemEventNames()
	want := []string{"STARTUP", "HEARTBEAT", "SHUTDOWN"}
	if len(names) != len(want) {
		t.Fatalf("expected %d system events, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("system event %d: got %s, want %s", i, names[i], want[i])
		}
	}
	if len(f.SystemPayloads) != 3 {
		t.Errorf("expected 3 system payloads, got %d", len(f.SystemPayloads))
	}
}

func TestFakePublisherPublishSystemError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSystemError = errors.New("broker down")

	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected error")
	}
	// Reading and event publishing are unaffected.
	if err := f.PublishReading(logic.Reading{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakePublisherRecordsRetainedFlag(t *testing.T) {
	f := NewFakePublisher()
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.SystemEvents[0].Retained {
		t.Error("retained flag should be recorded")
	}
}

func TestFakePublisherCloseAndReset(t *testing.T) {
	f := NewFakePublisher()
	f.Connected = true
	f.PublishError = errors.New("x")
	_ = f.PublishSystem(SystemEvent{Event: "STARTUP"})

	if err := f.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("expected Closed to be true")
	}
	if !f.IsConnected() {
		t.Error("expected IsConnected to reflect Connected")
	}

	f.Reset()
	if f.Closed || f.Connected || f.PublishError != nil {
		t.Error("Reset should clear flags and errors")
	}
	if len(f.SystemEvents) != 0 || len(f.SystemPayloads) != 0 {
		t.Error("Reset should clear recorded system events")
	}

	if err := f.PublishEvent(logic.Event{Type: logic.EventDrift}); err != nil {
		t.Fatalf("publisher should be reusable after reset: %v", err)
	}
	if len(f.Events) != 1 {
		t.Errorf("expected 1 event after reset, got %d", len(f.Events))
	}
}

func TestFakePublisherPreservesEventOrder(t *testing.T) {
	f := NewFakePublisher()
	types := []logic.EventType{logic.EventDrift, logic.EventRecalibrated, logic.EventWarningOn, logic.EventWarningOff}
	for _, et := range types {
		if err := f.PublishEvent(logic.Event{Timestamp: time.Now(), Type: et}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	for i, et := range types {
		if f.Events[i].Type != et {
			t.Errorf("event %d: got %s, want %s", i, f.Events[i].Type, et)
		}
	}
}

func TestFakePublisherImplementsInterfaces(t *testing.T) {
	var _ Publisher = NewFakePublisher()
	var _ ConnectionStatus = NewFakePublisher()
	var _ Publisher = (*RealPublisher)(nil)
	var _ ConnectionStatus = (*RealPublisher)(nil)
}
