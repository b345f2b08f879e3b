// Command co2-monitor samples an MQ-135 gas sensor, drives the local warning
// outputs and publishes readings and events to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/co2-monitor/internal/calibration"
	"github.com/sweeney/co2-monitor/internal/clock"
	"github.com/sweeney/co2-monitor/internal/config"
	"github.com/sweeney/co2-monitor/internal/hal"
	"github.com/sweeney/co2-monitor/internal/logging"
	"github.com/sweeney/co2-monitor/internal/logic"
	"github.com/sweeney/co2-monitor/internal/mirror"
	"github.com/sweeney/co2-monitor/internal/monitor"
	"github.com/sweeney/co2-monitor/internal/mqtt"
	"github.com/sweeney/co2-monitor/internal/sensor"
	"github.com/sweeney/co2-monitor/internal/status"
	"github.com/sweeney/co2-monitor/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/co2-monitor/config.yaml", "Path to YAML config (missing file uses defaults)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	source := flag.String("source", "", `Sensor source: "serial" or "fake" (overrides config)`)
	skipPreheat := flag.Bool("skip-preheat", false, "Skip the sensor preheat wait")
	printReading := flag.Bool("print-reading", false, "Print one sensor reading and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyFlags(cfg, *broker, *httpAddr, *source, *skipPreheat)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, *printReading, logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

// applyFlags lets command-line flags override the loaded config. Empty
// values leave the config untouched.
func applyFlags(cfg *config.Config, broker, httpAddr, source string, skipPreheat bool) {
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	if source != "" {
		cfg.Hardware.Source = source
	}
	if skipPreheat {
		cfg.Startup.SkipPreheat = true
	}
}

// monitorConfig converts the loaded config into controller parameters.
func monitorConfig(cfg *config.Config) monitor.Config {
	mc := monitor.DefaultConfig()
	mc.SampleInterval = cfg.Sampling.Interval
	mc.DecisionInterval = cfg.Sampling.Decision
	mc.BufferSize = cfg.Sampling.BufferSize
	mc.Threshold = cfg.Thresholds.PPM
	mc.VoltageFailsafe = cfg.Thresholds.VoltageFailsafe
	mc.WarningDisplayTime = cfg.Warning.DisplayTime
	mc.BuzzerOn = cfg.Warning.BuzzerOn
	mc.BuzzerOff = cfg.Warning.BuzzerOff
	mc.Calibration = cfg.CalibrationSettings()
	mc.Startup.SplashPage = cfg.Startup.SplashPage
	mc.Startup.Preheat = cfg.Startup.Preheat
	mc.Startup.SkipPreheat = cfg.Startup.SkipPreheat
	mc.Startup.PreheatAnimation = cfg.Startup.PreheatAnimation
	mc.Startup.CleanAirWait = cfg.Startup.CleanAirWait
	mc.Startup.ReadyHold = cfg.Startup.ReadyHold
	mc.Startup.DiagnosticReads = cfg.Startup.DiagnosticReads
	return mc
}

// hardware is the opened device set plus its cleanup.
type hardware struct {
	monitor.Hardware
	closers []func() error
}

func (h *hardware) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openHardware opens the sensor input, the warning outputs and the LCD. A
// missing LCD is not fatal; the monitor runs headless.
func openHardware(cfg *config.Config, logger *zap.Logger) (*hardware, error) {
	hw := &hardware{}

	if cfg.Hardware.Source == "fake" {
		logger.Warn("using fake sensor and outputs; readings are simulated clean air")
		hw.ADC = hal.NewFakeADC(fakeCleanAirCount)
		hw.Digital = &hal.FakeDigital{}
		hw.Actuator = hal.NewFakeActuator()
		hw.Display = hal.NopDisplay{}
		return hw, nil
	}

	bridge, err := hal.OpenSerialBridge(cfg.Hardware.SerialPort, cfg.Hardware.BaudRate, cfg.Hardware.MaxAge, logger.With(zap.String("component", "bridge")))
	if err != nil {
		return nil, fmt.Errorf("init sensor: %w", err)
	}
	hw.ADC = bridge.Analog()
	hw.Digital = bridge.Digital()
	hw.closers = append(hw.closers, bridge.Close)

	act, err := hal.OpenActuator(cfg.GPIO())
	if err != nil {
		hw.Close()
		return nil, fmt.Errorf("init outputs: %w", err)
	}
	hw.Actuator = act
	hw.closers = append(hw.closers, act.Close)

	hw.Display = hal.NopDisplay{}
	if cfg.Hardware.LCD {
		lcd, err := hal.OpenLCD(cfg.Hardware.GPIOChip, cfg.LCDPins())
		if err != nil {
			logger.Warn("lcd unavailable, running without display", zap.Error(err))
		} else {
			hw.Display = lcd
			hw.closers = append(hw.closers, lcd.Close)
		}
	}
	return hw, nil
}

// fakeCleanAirCount is the ADC count the fake source reports (about 0.73 V).
const fakeCleanAirCount = 150

func run(cfg *config.Config, printReading bool, logger *zap.Logger) error {
	hw, err := openHardware(cfg, logger)
	if err != nil {
		return err
	}
	defer hw.Close()

	// Print reading mode
	if printReading {
		return printOneReading(hw.Hardware, os.Stdout)
	}

	clk := clock.NewSystem()
	mon := monitor.New(monitorConfig(cfg), hw.Hardware, clk, clk, logger)
	defer mon.Shutdown()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		SampleMs:    cfg.Sampling.Interval.Milliseconds(),
		DecisionMs:  cfg.Sampling.Decision.Milliseconds(),
		HeartbeatMs: cfg.MQTT.HeartbeatInterval.Milliseconds(),
		Threshold:   cfg.Thresholds.PPM,
		Broker:      cfg.MQTT.Broker,
		HTTPPort:    cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetCalibration(calibrationStatus(mon.Calibration(), time.Time{}))

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:      cfg.MQTT.Broker,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		BufferSize:  cfg.MQTT.BufferSize,
		Logger:      logger,
		OnReconnect: func(p mqtt.Publisher) {
			tracker.SetMQTTConnected(true)
			publishSystem(p, tracker, "RECONNECTED", "", false, logger)
		},
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()
	tracker.SetMQTTConnected(publisher.IsConnected())

	// Optional Redis mirror
	var mir *mirror.Mirror
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		client, err := mirror.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			logger.Warn("redis mirror disabled", zap.Error(err))
		} else {
			defer client.Close()
			mir = mirror.New(mirror.NewRedisKVStore(client), cfg.Redis.Key, cfg.Redis.TTL, logger)
			logger.Info("redis mirror enabled", zap.String("addr", cfg.Redis.Addr), zap.String("key", cfg.Redis.Key))
		}
	}

	// Publish startup event with full status snapshot
	publishSystem(publisher, tracker, "STARTUP", "", true, logger)

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := mon.Startup(); err != nil {
		publishSystem(publisher, tracker, "SHUTDOWN", "CALIBRATION_FAILED", true, logger)
		return err
	}

	logger.Info("started",
		zap.Duration("sample", cfg.Sampling.Interval),
		zap.Duration("decision", cfg.Sampling.Decision),
		zap.Float64("threshold_ppm", cfg.Thresholds.PPM),
		zap.String("broker", cfg.MQTT.Broker),
		zap.Duration("heartbeat", cfg.MQTT.HeartbeatInterval))

	ticker := time.NewTicker(cfg.Sampling.LoopInterval)
	defer ticker.Stop()

	return runLoop(mon, sinks{
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		mirror:     mir,
		log:        logger,
	}, cfg.MQTT.HeartbeatInterval, time.Now, ticker.C, sigCh)
}

// sinks are the consumers of each decision report.
type sinks struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	mirror     *mirror.Mirror // nil when disabled
	log        *zap.Logger
}

// runLoop drives the monitor from tick until a signal arrives. The first
// now() call is taken as the time of the initial calibration. Heartbeats are
// scheduled from the tracker's start time.
func runLoop(mon *monitor.Monitor, s sinks, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	calibratedAt := startTime
	// Uptime counts from process start, as on the status page.
	hb := logic.NewHeartbeat(heartbeat, s.tracker.Snapshot().StartTime)
	s.tracker.SetCalibration(calibrationStatus(mon.Calibration(), calibratedAt))

	for {
		select {
		case sg := <-sig:
			s.log.Info("shutting down", zap.String("signal", sg.String()))
			mon.Shutdown()
			signalName := "UNKNOWN"
			if sg == syscall.SIGINT {
				signalName = "SIGINT"
			} else if sg == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			s.refresh()
			s.tracker.SetCounts(mon.Counts())
			publishSystem(s.publisher, s.tracker, "SHUTDOWN", signalName, true, s.log)
			return nil

		case <-tick:
			t := now()
			rep := mon.Step()
			if rep == nil {
				continue
			}
			if rep.Recalibrated {
				calibratedAt = t
			}

			for _, event := range rep.Events {
				s.log.Info("event", zap.String("type", string(event.Type)), zap.Float64("ppm", event.PPM))
				if err := s.publisher.PublishEvent(event); err != nil {
					s.log.Warn("publish error", zap.String("type", string(event.Type)), zap.Error(err))
					// Don't crash on publish failure
				}
			}
			if err := s.publisher.PublishReading(rep.Reading); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
				s.log.Debug("reading publish error", zap.Error(err))
			}

			// Update status tracker for HTTP consumers
			counts := mon.Counts()
			s.tracker.Update(rep.Reading, counts)
			s.tracker.SetCalibration(calibrationStatus(mon.Calibration(), calibratedAt))
			s.refresh()

			if s.mirror != nil {
				// Failures are logged by the mirror.
				_ = s.mirror.Write(context.Background(), s.tracker.Snapshot())
			}

			if hbData := hb.Check(t, counts); hbData != nil {
				s.log.Info("heartbeat",
					zap.Duration("uptime", hbData.Uptime),
					zap.Int("warnings", hbData.Counts.Warnings),
					zap.Int("recalibrations", hbData.Counts.Recalibrations),
					zap.Int("drift_warnings", hbData.Counts.DriftWarnings),
					zap.Int("invalid_samples", hbData.Counts.InvalidSamples))
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					s.tracker.SetNetwork(net)
				}
				publishSystem(s.publisher, s.tracker, "HEARTBEAT", "", false, s.log)
			}
		}
	}
}

func (s sinks) refresh() {
	if s.mqttStatus != nil {
		s.tracker.SetMQTTConnected(s.mqttStatus.IsConnected())
	}
}

// publishSystem publishes a system event carrying the full status snapshot.
func publishSystem(p mqtt.Publisher, tracker *status.Tracker, event, reason string, retained bool, logger *zap.Logger) {
	snap := tracker.Snapshot()
	se := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := p.PublishSystem(se); err != nil {
		logger.Warn("failed to publish system event", zap.String("event", event), zap.Error(err))
		return
	}
	logger.Debug("published system event", zap.String("event", event))
}

// calibrationStatus converts the calibration manager state for the tracker.
// lastAt is the wall time of the last successful calibration, zero if none.
func calibrationStatus(m *calibration.Manager, lastAt time.Time) status.Calibration {
	c := status.Calibration{
		State:       m.State().String(),
		R0:          m.R0(),
		ReferenceR0: m.ReferenceR0(),
		Count:       m.Count(),
		Due:         m.Due(),
	}
	if m.Calibrated() {
		c.LastAt = lastAt
	}
	return c
}

// printOneReading waits briefly for the first sample and prints it using the
// default R0.
func printOneReading(hw monitor.Hardware, w io.Writer) error {
	var (
		count int
		err   error
	)
	for i := 0; i < 40; i++ {
		if count, err = hw.ADC.Read(); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("read sensor: %w", err)
	}
	var digital bool
	if hw.Digital != nil {
		digital, _ = hw.Digital.Read()
	}

	r, err := sensor.Derive(sensor.NewSample(count, digital), sensor.DefaultR0)
	fmt.Fprintf(w, "ADC: %d, D0: %s, Voltage: %.3f V\n", r.Count, d0String(r.Digital), r.Voltage)
	if err != nil {
		fmt.Fprintf(w, "Reading invalid: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "Rs: %.2f kOhm, Rs/R0: %.3f, CO2: %.0f ppm (uncalibrated, R0=%.2f kOhm)\n",
		r.Resistance, r.Ratio, r.PPM, sensor.DefaultR0)
	return nil
}

func d0String(on bool) string {
	if on {
		return "HIGH"
	}
	return "LOW"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
