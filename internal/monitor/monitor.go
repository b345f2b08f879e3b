// Package monitor is the single controller that ties the sensor pipeline
// together: sampling, filtering, calibration, classification and the warning
// response. It owns all mutable control state; collaborators are injected.
//
// Monitor is driven cooperatively by repeated calls to Step and is not safe
// for concurrent use.
package monitor

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/co2-monitor/internal/calibration"
	"github.com/sweeney/co2-monitor/internal/clock"
	"github.com/sweeney/co2-monitor/internal/filter"
	"github.com/sweeney/co2-monitor/internal/hal"
	"github.com/sweeney/co2-monitor/internal/lcd"
	"github.com/sweeney/co2-monitor/internal/logging"
	"github.com/sweeney/co2-monitor/internal/logic"
	"github.com/sweeney/co2-monitor/internal/sensor"
)

// Config holds the control loop parameters.
type Config struct {
	SampleInterval   time.Duration
	DecisionInterval time.Duration
	BufferSize       int

	Threshold          float64
	VoltageFailsafe    float64
	WarningDisplayTime time.Duration
	BuzzerOn           time.Duration
	BuzzerOff          time.Duration

	Calibration calibration.Config
	Startup     StartupConfig
}

// StartupConfig holds the boot and recalibration sequence timings.
type StartupConfig struct {
	SplashPage         time.Duration
	Preheat            time.Duration
	SkipPreheat        bool
	PreheatAnimation   time.Duration
	CleanAirWait       time.Duration
	ResultHold         time.Duration // test reading / recalibration result
	ReadyHold          time.Duration
	DiagnosticReads    int
	DiagnosticInterval time.Duration

	RecalibrationPrompt time.Duration
	Countdown           int // seconds counted down before a recalibration
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		SampleInterval:     20 * time.Millisecond,
		DecisionInterval:   time.Second,
		BufferSize:         filter.DefaultSize,
		Threshold:          logic.DefaultThreshold,
		VoltageFailsafe:    logic.DefaultVoltageFailsafe,
		WarningDisplayTime: logic.DefaultWarningDisplayTime,
		BuzzerOn:           logic.DefaultBuzzerOn,
		BuzzerOff:          logic.DefaultBuzzerOff,
		Calibration:        calibration.DefaultConfig(),
		Startup: StartupConfig{
			SplashPage:          2 * time.Second,
			Preheat:             20 * time.Second,
			PreheatAnimation:    500 * time.Millisecond,
			CleanAirWait:        5 * time.Second,
			ResultHold:          2 * time.Second,
			ReadyHold:           2 * time.Second,
			DiagnosticReads:     3,
			DiagnosticInterval:  time.Second,
			RecalibrationPrompt: 2 * time.Second,
			Countdown:           3,
		},
	}
}

// Hardware groups the injected collaborators. Digital may be nil.
type Hardware struct {
	ADC      hal.AnalogInput
	Digital  hal.DigitalInput
	Actuator hal.Actuator
	Display  hal.Display
}

// Report is produced by every decision tick.
type Report struct {
	Reading      logic.Reading
	Outcome      logic.Outcome
	Events       []logic.Event
	Drift        *calibration.DriftReport
	Recalibrated bool
	// Stale is set when no read has succeeded since the previous decision
	// tick. The reading then carries the last good sample.
	Stale bool
}

// Monitor is the control loop state.
type Monitor struct {
	cfg   Config
	hw    Hardware
	clock clock.Clock
	sleep clock.Sleeper
	wall  func() time.Time
	log   *zap.Logger

	cal       *calibration.Manager
	filter    *filter.Filter
	responder *logic.Responder
	buzzer    *logic.BuzzerPattern
	screen    *lcd.Renderer

	lastSampleAt   clock.Millis
	lastDecisionAt clock.Millis
	latest         sensor.Sample
	haveSample     bool
	freshSample    bool
	stale          bool
	readErrors     int
	driftWarnings  int
	guardLogged    bool
	diagnostics    []sensor.Reading
}

// New creates a Monitor. Call Startup before driving Step.
func New(cfg Config, hw Hardware, clk clock.Clock, sleep clock.Sleeper, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	if hw.Display == nil {
		hw.Display = hal.NopDisplay{}
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 20 * time.Millisecond
	}
	if cfg.DecisionInterval <= 0 {
		cfg.DecisionInterval = time.Second
	}

	m := &Monitor{
		cfg:       cfg,
		hw:        hw,
		clock:     clk,
		sleep:     sleep,
		wall:      time.Now,
		log:       log,
		cal:       calibration.New(cfg.Calibration, hw.ADC, clk, sleep),
		filter:    filter.New(cfg.BufferSize),
		responder: logic.NewResponder(cfg.Threshold, cfg.VoltageFailsafe, cfg.WarningDisplayTime),
		buzzer:    logic.NewBuzzerPattern(cfg.BuzzerOn, cfg.BuzzerOff),
		screen:    lcd.NewRenderer(hw.Display),
	}
	m.cal.SetObserver(&calibrationDisplay{m: m})
	return m
}

// SetWallClock overrides the source of event timestamps. For tests.
func (m *Monitor) SetWallClock(now func() time.Time) {
	m.wall = now
}

// Startup runs the blocking boot sequence: safe outputs, splash, preheat,
// clean-air wait, initial calibration, ready screen and diagnostics. It fails
// only if the initial calibration cannot collect a valid sample.
func (m *Monitor) Startup() error {
	m.safeState()
	m.clearDisplay()

	st := m.cfg.Startup
	for _, page := range lcd.Splash() {
		m.show(page)
		m.sleep.Sleep(st.SplashPage)
	}

	m.preheat()

	m.show(lcd.CleanAir())
	m.log.Info("place sensor in clean air", zap.Duration("wait", st.CleanAirWait))
	m.sleep.Sleep(st.CleanAirWait)

	res, err := m.cal.Calibrate(calibration.KindInitial)
	if err != nil {
		m.show(lcd.CalibrationFailed())
		return fmt.Errorf("initial calibration: %w", err)
	}
	m.log.Info("sensor calibrated",
		zap.Float64("avg_rs_kohm", res.AverageRs),
		zap.Float64("r0_kohm", res.R0),
		zap.Int("samples", res.Samples),
		zap.Int("skipped", res.Skipped),
		zap.Float64("test_ppm", res.TestPPM))
	m.show(lcd.TestReading(res.TestPPM))
	m.sleep.Sleep(st.ResultHold)

	m.show(lcd.Ready())
	m.sleep.Sleep(st.ReadyHold)
	m.clearDisplay()

	m.runDiagnostics()

	now := m.clock.Now()
	m.lastSampleAt = now
	m.lastDecisionAt = now
	m.log.Info("monitoring started",
		zap.Float64("threshold_ppm", m.responder.Threshold()),
		zap.Duration("recalibration_interval", m.cal.Config().Interval))
	return nil
}

func (m *Monitor) preheat() {
	st := m.cfg.Startup
	if st.SkipPreheat || st.Preheat <= 0 {
		m.log.Info("preheat skipped")
		return
	}
	step := st.PreheatAnimation
	if step <= 0 {
		step = 500 * time.Millisecond
	}

	m.log.Info("preheating sensor", zap.Duration("duration", st.Preheat))
	start := m.clock.Now()
	for frame := 0; ; frame++ {
		elapsed := clock.Since(m.clock.Now(), start).Std()
		if elapsed >= st.Preheat {
			return
		}
		m.show(lcd.Preheat(st.Preheat-elapsed, frame))
		m.sleep.Sleep(step)
	}
}

func (m *Monitor) runDiagnostics() {
	m.diagnostics = m.diagnostics[:0]
	for i := 0; i < m.cfg.Startup.DiagnosticReads; i++ {
		s, err := m.read()
		if err != nil {
			m.log.Warn("diagnostic read failed", zap.Int("reading", i+1), zap.Error(err))
		} else {
			r, derr := sensor.Derive(s, m.cal.R0())
			m.diagnostics = append(m.diagnostics, r)
			fields := []zap.Field{
				zap.Int("reading", i+1),
				zap.Int("adc", r.Count),
				zap.Bool("d0", r.Digital),
				zap.Float64("voltage", r.Voltage),
				zap.Float64("rs_kohm", r.Resistance),
				zap.Float64("ratio", r.Ratio),
				zap.Float64("ppm", r.PPM),
			}
			if derr != nil {
				fields = append(fields, zap.Error(derr))
			}
			m.log.Info("diagnostic reading", fields...)
		}
		m.sleep.Sleep(m.cfg.Startup.DiagnosticInterval)
	}
}

// Step polls the schedule: it samples when the sample interval has elapsed,
// advances the buzzer pattern, and runs a decision tick once per decision
// interval. It returns a Report for decision ticks and nil otherwise.
func (m *Monitor) Step() *Report {
	if !m.cal.Calibrated() {
		if !m.guardLogged {
			m.log.Warn("decision deferred until calibration completes")
			m.guardLogged = true
		}
		return nil
	}

	now := m.clock.Now()
	if clock.Since(now, m.lastSampleAt) >= clock.Duration(m.cfg.SampleInterval) {
		m.lastSampleAt = now
		m.sample()
	}

	if on, changed := m.buzzer.Tick(now); changed {
		m.setBuzzer(on)
	}

	if clock.Since(now, m.lastDecisionAt) < clock.Duration(m.cfg.DecisionInterval) {
		return nil
	}
	m.lastDecisionAt = now
	return m.decide(now)
}

func (m *Monitor) read() (sensor.Sample, error) {
	count, err := m.hw.ADC.Read()
	if err != nil {
		return sensor.Sample{}, fmt.Errorf("read adc: %w", err)
	}
	var digital bool
	if m.hw.Digital != nil {
		if d, err := m.hw.Digital.Read(); err == nil {
			digital = d
		}
	}
	return sensor.NewSample(count, digital), nil
}

func (m *Monitor) sample() {
	s, err := m.read()
	if err != nil {
		m.readErrors++
		m.log.Debug("sample skipped", zap.Error(err))
		return
	}
	m.freshSample = true
	m.latest = s
	m.haveSample = true
	m.filter.Sample(s.Voltage, m.cal.R0())
}

func (m *Monitor) decide(now clock.Millis) *Report {
	rep := &Report{Stale: !m.freshSample}
	m.freshSample = false
	switch {
	case rep.Stale && !m.stale:
		m.log.Warn("no fresh sample, holding last known state",
			zap.Float64("voltage", m.latest.Voltage))
	case !rep.Stale && m.stale:
		m.log.Info("sampling resumed")
	}
	m.stale = rep.Stale

	wasDue := m.cal.Due()
	if m.cal.CheckDue(now) && !wasDue {
		m.log.Info("recalibration due")
		rep.Drift = m.driftCheck(rep)
		// The check samples for about a second.
		now = m.clock.Now()
		m.lastSampleAt = now
		m.lastDecisionAt = now
	}

	avg := m.filter.Average()
	if m.cal.ReadyToRecalibrate(avg, m.responder.Active()) {
		m.recalibrate(avg, rep)
		// The sequence blocks for several seconds.
		now = m.clock.Now()
		m.lastSampleAt = now
		m.lastDecisionAt = now
	}

	avg = m.filter.Average()
	out := m.responder.Decide(logic.Input{PPM: avg, Voltage: m.latest.Voltage, Now: now})
	rep.Outcome = out
	rep.Reading = m.reading(avg, out)

	switch out.Transition {
	case logic.TransitionEntered:
		m.activateWarning(now)
		rep.Events = append(rep.Events, m.event(logic.EventWarningOn, avg, out))
		m.log.Warn("warning activated",
			zap.Float64("ppm", avg),
			zap.Float64("voltage", m.latest.Voltage),
			zap.String("trigger", string(out.Trigger)))
	case logic.TransitionCleared:
		m.deactivateWarning()
		rep.Events = append(rep.Events, m.event(logic.EventWarningOff, avg, out))
		m.log.Info("warning cleared", zap.Float64("ppm", avg))
	}

	switch {
	case out.Mode == logic.ModeWarning && out.Banner:
		m.show(lcd.WarningBanner())
	case out.Mode == logic.ModeWarning:
		m.show(lcd.WarningLive(avg, m.responder.Threshold()))
	default:
		m.show(lcd.Normal(avg, out.Tier))
	}

	m.log.Info(logging.Summary(avg, out.Tier, out.Mode == logic.ModeWarning), logging.ReadingFields(rep.Reading)...)
	return rep
}

func (m *Monitor) driftCheck(rep *Report) *calibration.DriftReport {
	drift, err := m.cal.QuickDriftCheck()
	if err != nil {
		m.log.Warn("drift check failed", zap.Error(err))
		return nil
	}
	fields := []zap.Field{
		zap.Float64("candidate_r0_kohm", drift.CandidateR0),
		zap.Float64("reference_r0_kohm", drift.ReferenceR0),
		zap.Float64("change_pct", drift.Deviation*100),
	}
	if drift.Drifted {
		m.driftWarnings++
		m.log.Warn("significant sensor drift detected", fields...)
		ev := logic.Event{
			Timestamp: m.wall(),
			Type:      logic.EventDrift,
			PPM:       m.filter.Average(),
			R0:        drift.CandidateR0,
			Deviation: drift.Deviation,
		}
		rep.Events = append(rep.Events, ev)
	} else {
		m.log.Info("drift check", fields...)
	}
	return &drift
}

// recalibrate shows the prompt and countdown, then runs the scheduled
// recalibration.
func (m *Monitor) recalibrate(avg float64, rep *Report) {
	st := m.cfg.Startup
	m.log.Info("regular recalibration started", zap.Float64("ppm", avg))

	m.clearDisplay()
	m.show(lcd.RecalibrationPrompt())
	m.sleep.Sleep(st.RecalibrationPrompt)
	for i := st.Countdown; i > 0; i-- {
		m.show(lcd.Countdown(i))
		m.sleep.Sleep(time.Second)
	}

	previous := m.cal.R0()
	ran, err := m.cal.PerformDueRecalibration(avg, m.responder.Active())
	if err != nil {
		m.log.Error("recalibration failed, keeping previous R0",
			zap.Float64("r0_kohm", previous), zap.Error(err))
		m.show(lcd.CalibrationFailed())
		m.sleep.Sleep(st.ResultHold)
		m.clearDisplay()
		return
	}
	if !ran {
		return
	}

	r0 := m.cal.R0()
	m.log.Info("recalibration complete",
		zap.Float64("previous_r0_kohm", previous),
		zap.Float64("r0_kohm", r0))
	m.show(lcd.RecalibrationDone(r0))
	m.sleep.Sleep(st.ResultHold)
	m.clearDisplay()

	rep.Recalibrated = true
	rep.Events = append(rep.Events, logic.Event{
		Timestamp: m.wall(),
		Type:      logic.EventRecalibrated,
		PPM:       avg,
		R0:        r0,
		Deviation: r0/previous - 1,
	})
}

func (m *Monitor) reading(avg float64, out logic.Outcome) logic.Reading {
	r := logic.Reading{
		Timestamp: m.wall(),
		PPM:       avg,
		Voltage:   m.latest.Voltage,
		R0:        m.cal.R0(),
		Tier:      out.Tier,
		Mode:      out.Mode,
		Digital:   m.latest.Digital,
	}
	if rs, err := sensor.Resistance(m.latest.Voltage); err == nil {
		r.Resistance = rs
		r.Ratio = rs / r.R0
	}
	return r
}

func (m *Monitor) event(t logic.EventType, avg float64, out logic.Outcome) logic.Event {
	return logic.Event{
		Timestamp: m.wall(),
		Type:      t,
		PPM:       avg,
		Tier:      out.Tier,
		Trigger:   out.Trigger,
		R0:        m.cal.R0(),
	}
}

func (m *Monitor) activateWarning(now clock.Millis) {
	m.setLED(true)
	m.setServo(hal.ServoOpen)
	m.buzzer.Start(now)
	m.setBuzzer(true)
}

func (m *Monitor) deactivateWarning() {
	m.setLED(false)
	m.setServo(hal.ServoClosed)
	m.buzzer.Stop()
	m.setBuzzer(false)
}

// Shutdown drives every output to its safe state and clears the display.
func (m *Monitor) Shutdown() {
	m.buzzer.Stop()
	m.safeState()
	m.clearDisplay()
}

func (m *Monitor) safeState() {
	m.setLED(false)
	m.setServo(hal.ServoClosed)
	m.setBuzzer(false)
}

// Actuator and display writes never change control flow.

func (m *Monitor) setLED(on bool) {
	if err := m.hw.Actuator.SetLED(on); err != nil {
		m.log.Warn("actuator write failed", zap.String("output", "led"), zap.Error(err))
	}
}

func (m *Monitor) setServo(degrees int) {
	if err := m.hw.Actuator.SetServoAngle(degrees); err != nil {
		m.log.Warn("actuator write failed", zap.String("output", "servo"), zap.Error(err))
	}
}

func (m *Monitor) setBuzzer(on bool) {
	if err := m.hw.Actuator.SetBuzzer(on); err != nil {
		m.log.Warn("actuator write failed", zap.String("output", "buzzer"), zap.Error(err))
	}
}

func (m *Monitor) show(s lcd.Screen) {
	if err := m.screen.Show(s); err != nil {
		m.log.Warn("display write failed", zap.Error(err))
	}
}

func (m *Monitor) clearDisplay() {
	if err := m.screen.Clear(); err != nil {
		m.log.Warn("display clear failed", zap.Error(err))
	}
}

// Counts returns event totals since startup.
func (m *Monitor) Counts() logic.Counts {
	recal := m.cal.Count() - 1
	if recal < 0 {
		recal = 0
	}
	return logic.Counts{
		Warnings:       m.responder.Warnings(),
		Recalibrations: recal,
		DriftWarnings:  m.driftWarnings,
		InvalidSamples: m.filter.Skipped() + m.readErrors,
	}
}

// Calibration exposes the calibration state for status reporting.
func (m *Monitor) Calibration() *calibration.Manager { return m.cal }

// WarningActive reports whether the warning is active.
func (m *Monitor) WarningActive() bool { return m.responder.Active() }

// Diagnostics returns the readings logged at the end of Startup.
func (m *Monitor) Diagnostics() []sensor.Reading { return m.diagnostics }

// Latest returns the most recent raw sample, if any.
func (m *Monitor) Latest() (sensor.Sample, bool) { return m.latest, m.haveSample }

// calibrationDisplay mirrors calibration progress on the display.
type calibrationDisplay struct {
	m *Monitor
}

func (d *calibrationDisplay) CalibrationStarted(kind calibration.Kind) {
	d.m.show(lcd.Calibrating())
}

func (d *calibrationDisplay) CalibrationProgress(kind calibration.Kind, done, total int) {
	d.m.show(lcd.Progress(done, total))
}

func (d *calibrationDisplay) CalibrationFinished(kind calibration.Kind, res calibration.Result, err error) {
	d.m.log.Debug("calibration finished",
		zap.Stringer("kind", kind),
		zap.Int("samples", res.Samples),
		zap.Int("skipped", res.Skipped),
		zap.Error(err))
}
