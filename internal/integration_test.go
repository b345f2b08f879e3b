package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/co2-monitor/internal/clock"
	"github.com/sweeney/co2-monitor/internal/hal"
	"github.com/sweeney/co2-monitor/internal/logic"
	"github.com/sweeney/co2-monitor/internal/mirror"
	"github.com/sweeney/co2-monitor/internal/monitor"
	"github.com/sweeney/co2-monitor/internal/mqtt"
	"github.com/sweeney/co2-monitor/internal/status"
	"github.com/sweeney/co2-monitor/internal/web"
)

// ADC counts: clean air calibrates to ~400 ppm; high reads ~3500 ppm below
// the voltage failsafe; hot is above the failsafe.
const (
	cleanCount = 150
	highCount  = 180
	hotCount   = 210
)

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// pipeline wires the monitor to the publishing side the way the daemon's
// main loop does, with fakes at every edge.
type pipeline struct {
	mon     *monitor.Monitor
	adc     *hal.FakeADC
	act     *hal.FakeActuator
	disp    *hal.FakeDisplay
	clk     *clock.Fake
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	elapsed time.Duration
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	p := &pipeline{
		adc:     hal.NewFakeADC(cleanCount),
		act:     hal.NewFakeActuator(),
		disp:    hal.NewFakeDisplay(),
		clk:     clock.NewFake(0),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(startTime, status.Config{Threshold: 2000, Broker: "tcp://localhost:1883"}),
	}
	cfg := monitor.DefaultConfig()
	cfg.Startup.SkipPreheat = true
	hw := monitor.Hardware{ADC: p.adc, Digital: &hal.FakeDigital{}, Actuator: p.act, Display: p.disp}
	p.mon = monitor.New(cfg, hw, p.clk, p.clk, nil)
	p.mon.SetWallClock(p.wall)
	p.tracker.SetClock(p.wall)

	if err := p.mon.Startup(); err != nil {
		t.Fatalf("startup: %v", err)
	}
	return p
}

func (p *pipeline) wall() time.Time {
	return startTime.Add(p.elapsed)
}

// run steps the loop at the sample cadence for d, fanning reports out to the
// publisher and tracker. Publish errors are ignored like in the daemon.
func (p *pipeline) run(d time.Duration) {
	for end := p.elapsed + d; p.elapsed < end; {
		p.clk.Advance(20 * time.Millisecond)
		p.elapsed += 20 * time.Millisecond

		rep := p.mon.Step()
		if rep == nil {
			continue
		}
		for _, ev := range rep.Events {
			_ = p.pub.PublishEvent(ev)
		}
		_ = p.pub.PublishReading(rep.Reading)
		p.tracker.Update(rep.Reading, p.mon.Counts())
		cal := p.mon.Calibration()
		p.tracker.SetCalibration(status.Calibration{
			State:       cal.State().String(),
			R0:          cal.R0(),
			ReferenceR0: cal.ReferenceR0(),
			Count:       cal.Count(),
			Due:         cal.Due(),
		})
	}
}

func (p *pipeline) eventTypes() []logic.EventType {
	types := make([]logic.EventType, len(p.pub.Events))
	for i, e := range p.pub.Events {
		types[i] = e.Type
	}
	return types
}

// TestIntegrationWarningCycle tests the complete flow from ADC to MQTT
// through a warning and back.
func TestIntegrationWarningCycle(t *testing.T) {
	p := newPipeline(t)

	p.run(2 * time.Second)
	if len(p.pub.Events) != 0 {
		t.Fatalf("expected no events in clean air, got %v", p.eventTypes())
	}
	if !strings.HasPrefix(p.disp.Line(1), "Quality: Good") {
		t.Errorf("display: got %q", p.disp.Text())
	}

	p.adc.Set(highCount)
	p.run(time.Second)
	if got := p.disp.Text(); got != "    WARNING!\nHIGH CO2 LEVEL!" {
		t.Errorf("expected warning banner, got %q", got)
	}
	if !p.act.LED || !p.act.Buzzer || p.act.Angle != hal.ServoOpen {
		t.Errorf("warning outputs not active: led=%v buzzer=%v servo=%d", p.act.LED, p.act.Buzzer, p.act.Angle)
	}

	p.run(4 * time.Second)
	if !strings.HasSuffix(p.disp.Text(), ">2000 ppm!") {
		t.Errorf("expected live warning screen after the attention window, got %q", p.disp.Text())
	}

	p.adc.Set(cleanCount)
	p.run(3 * time.Second)

	types := p.eventTypes()
	if len(types) != 2 || types[0] != logic.EventWarningOn || types[1] != logic.EventWarningOff {
		t.Fatalf("expected [WARNING_ON WARNING_OFF], got %v", types)
	}
	if p.act.LED || p.act.Buzzer || p.act.Angle != hal.ServoClosed {
		t.Errorf("outputs not safe after clearing: led=%v buzzer=%v servo=%d", p.act.LED, p.act.Buzzer, p.act.Angle)
	}

	var on mqtt.EventPayload
	if err := json.Unmarshal(p.pub.Payloads[0], &on); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if on.Air.Tier != "DANGEROUS" {
		t.Errorf("quality: got %s, want DANGEROUS", on.Air.Tier)
	}
	if on.Air.Trigger != "PPM" {
		t.Errorf("trigger: got %s, want PPM", on.Air.Trigger)
	}
	if on.Air.PPM <= 2000 {
		t.Errorf("ppm: got %v, want above 2000", on.Air.PPM)
	}
	if on.Air.Timestamp != "2026-01-01T12:00:03Z" {
		t.Errorf("timestamp: got %s", on.Air.Timestamp)
	}

	// One reading per decision tick.
	if len(p.pub.Readings) != 10 {
		t.Errorf("expected 10 readings, got %d", len(p.pub.Readings))
	}
}

func TestIntegrationVoltageFailsafe(t *testing.T) {
	p := newPipeline(t)
	p.adc.Set(hotCount)
	p.run(time.Second)

	if len(p.pub.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(p.pub.Events))
	}
	var parsed mqtt.EventPayload
	if err := json.Unmarshal(p.pub.Payloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Air.Trigger != "PPM+VOLTAGE" {
		t.Errorf("trigger: got %s, want PPM+VOLTAGE", parsed.Air.Trigger)
	}
}

func TestIntegrationNoEventsAtStartup(t *testing.T) {
	p := newPipeline(t)

	if len(p.pub.Events) != 0 || len(p.pub.Readings) != 0 {
		t.Errorf("startup should not publish, got %d events %d readings", len(p.pub.Events), len(p.pub.Readings))
	}
	if p.tracker.Snapshot().Ready() {
		t.Error("tracker should not be ready before the first decision tick")
	}
}

func TestIntegrationPublishFailureDoesNotCrash(t *testing.T) {
	p := newPipeline(t)
	p.pub.PublishError = errors.New("broker down")

	p.adc.Set(highCount)
	p.run(2 * time.Second)

	if !p.mon.WarningActive() {
		t.Error("publish failures must not affect the warning response")
	}
	if !p.act.LED {
		t.Error("LED should be on during warning")
	}
	if p.tracker.Snapshot().Counts.Warnings != 1 {
		t.Errorf("tracker warnings: got %d, want 1", p.tracker.Snapshot().Counts.Warnings)
	}
}

func TestIntegrationScheduledRecalibration(t *testing.T) {
	p := newPipeline(t)
	firstR0 := p.mon.Calibration().R0()

	p.run(5*time.Minute + 2*time.Second)

	types := p.eventTypes()
	if len(types) != 1 || types[0] != logic.EventRecalibrated {
		t.Fatalf("expected a single RECALIBRATED event, got %v", types)
	}
	var parsed mqtt.EventPayload
	if err := json.Unmarshal(p.pub.Payloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Air.Event != "RECALIBRATED" {
		t.Errorf("event: got %s", parsed.Air.Event)
	}
	if parsed.Air.R0 <= 0 {
		t.Errorf("r0_kohm should be set, got %v", parsed.Air.R0)
	}

	snap := p.tracker.Snapshot()
	if snap.Counts.Recalibrations != 1 {
		t.Errorf("recalibrations: got %d, want 1", snap.Counts.Recalibrations)
	}
	if snap.Calibration.Count != 2 {
		t.Errorf("calibration count: got %d, want 2", snap.Calibration.Count)
	}
	if snap.Calibration.Due {
		t.Error("recalibration should no longer be due")
	}
	if got := p.mon.Calibration().R0(); got != firstR0 {
		t.Errorf("steady clean air should reproduce R0: got %v, want %v", got, firstR0)
	}
}

func TestIntegrationStatusSurfaces(t *testing.T) {
	p := newPipeline(t)
	p.adc.Set(highCount)
	p.run(2 * time.Second)
	p.tracker.SetMQTTConnected(true)

	// Web endpoint
	srv := web.New(":0", p.tracker, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Air == nil || sj.Status.Air.Mode != "WARNING" {
		t.Fatalf("expected WARNING mode in status, got %+v", sj.Status.Air)
	}
	if sj.Status.Counts.Warnings != 1 {
		t.Errorf("warnings: got %d, want 1", sj.Status.Counts.Warnings)
	}
	if sj.Status.Calibration.State != "CALIBRATED" {
		t.Errorf("calibration state: got %q", sj.Status.Calibration.State)
	}

	// Redis mirror (in-memory store)
	m := mirror.New(mirror.NewMemoryStore(), "co2-monitor:latest", time.Minute, nil)
	if err := m.Write(context.Background(), p.tracker.Snapshot()); err != nil {
		t.Fatalf("mirror write: %v", err)
	}
	latest, err := m.Latest(context.Background())
	if err != nil {
		t.Fatalf("mirror read: %v", err)
	}
	if latest.Status.Air == nil || latest.Status.Air.Quality != "DANGEROUS" {
		t.Errorf("mirrored quality: got %+v", latest.Status.Air)
	}
}

func TestIntegrationStartupEvent(t *testing.T) {
	p := newPipeline(t)
	p.run(time.Second)

	snap := p.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := p.pub.PublishSystem(event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(p.pub.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "STARTUP" {
		t.Errorf("event: got %q, want STARTUP", parsed.Status.Event)
	}
	if !parsed.Status.Ready {
		t.Error("expected ready after the first decision tick")
	}
	if parsed.Status.Timestamp != "2026-01-01T12:00:01Z" {
		t.Errorf("timestamp: got %s", parsed.Status.Timestamp)
	}
}

func TestIntegrationShutdownEvent(t *testing.T) {
	p := newPipeline(t)
	p.adc.Set(highCount)
	p.run(2 * time.Second)

	p.mon.Shutdown()
	snap := p.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     "SIGTERM",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"),
	}
	if err := p.pub.PublishSystem(event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if p.act.LED || p.act.Buzzer || p.act.Angle != hal.ServoClosed {
		t.Error("shutdown should drive outputs to the safe state")
	}
	if strings.TrimSpace(p.disp.Text()) != "" {
		t.Errorf("display should be cleared, got %q", p.disp.Text())
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(p.pub.SystemPayloads[0], &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if raw["status"]["reason"] != "SIGTERM" {
		t.Errorf("reason: got %v", raw["status"]["reason"])
	}
}
