package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/cjeanneret/RoverGo/internal/config"
	"github.com/cjeanneret/RoverGo/internal/dashboard"
	"github.com/cjeanneret/RoverGo/internal/debug"
	"github.com/cjeanneret/RoverGo/internal/fault"
	"github.com/cjeanneret/RoverGo/internal/hw/drivetrain"
	"github.com/cjeanneret/RoverGo/internal/hw/gamepad"
	"github.com/cjeanneret/RoverGo/internal/hw/gpio"
	"github.com/cjeanneret/RoverGo/internal/hw/host"
	"github.com/cjeanneret/RoverGo/internal/hw/magnet"
	"github.com/cjeanneret/RoverGo/internal/hw/serialport"
	"github.com/cjeanneret/RoverGo/internal/hw/stepper"
	"github.com/cjeanneret/RoverGo/internal/logic/command"
	"github.com/cjeanneret/RoverGo/internal/logic/controllers"
	"github.com/cjeanneret/RoverGo/internal/logic/drive"
	"github.com/cjeanneret/RoverGo/internal/logic/rover"
	"github.com/cjeanneret/RoverGo/internal/logic/translate"
	"github.com/cjeanneret/RoverGo/internal/logic/winch"
	"github.com/cjeanneret/RoverGo/internal/uplink"
	"github.com/cjeanneret/RoverGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	tui := flag.Bool("tui", false, "show the console dashboard instead of plain log output")
	debugLevel := flag.Int("debug_level", -1, "override debug level (0-4)")
	mock := flag.Bool("mock", false, "override defaults.mock_gpio")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	var overrides cliOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "debug_level":
			overrides.DebugLevel = debugLevel
		case "mock":
			overrides.MockGPIO = mock
		}
	})
	if err := validateCLIOverrides(overrides); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, overrides)

	// Log output: console, web stream, dashboard.
	debug.Init(cfg.Defaults.DebugLevel)
	var outputs []io.Writer
	var broadcaster *web.StatusBroadcaster
	var dashLogs *dashboard.LogWriter
	if *tui {
		dashLogs = dashboard.NewLogWriter(64)
		outputs = append(outputs, dashLogs)
	} else {
		outputs = append(outputs, os.Stdout)
	}
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		outputs = append(outputs, web.BroadcastWriter(broadcaster))
	}
	debug.SetOutput(io.MultiWriter(outputs...))

	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)

	debug.Step(1, "Initializing hardware")
	hw := initHardware(cfg)

	debug.Step(2, "Starting gamepad discovery")
	provider := controllers.NewProvider(controllers.OpenGamepad, controllers.Config{
		DebounceWindow: cfg.DebounceWindow(),
		RumbleDuration: cfg.RumbleDuration(),
	})
	discovered, err := gamepad.Watch(ctx, cfg.Gamepad.InputDir)
	if err != nil {
		debug.Fault("gamepad", err)
	}

	loop := &rover.Loop{
		Provider:       provider,
		Translator:     translate.New(),
		Drive:          hw.drive,
		Winch:          hw.winch,
		RumbleStrength: cfg.Gamepad.RumbleStrength,
		Discovered:     discovered,
	}

	debug.Step(3, "Starting command sources")
	remote := make(chan command.Command, 16)
	loop.Remote = remote
	var services sync.WaitGroup
	start := func(name string, run func(context.Context) error) {
		services.Add(1)
		go func() {
			defer services.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				debug.Fault(name, err)
			}
		}()
	}

	driveCtx, stopDrive := context.WithCancel(context.Background())
	defer stopDrive()
	if hw.drive != nil {
		driveFailed := make(chan error, 1)
		loop.DriveFailed = driveFailed
		go func() {
			if err := hw.drive.Run(driveCtx); err != nil && !errors.Is(err, context.Canceled) {
				driveFailed <- err
			}
		}()
	}

	state := func() any { return loop.Snapshot() }
	if cfg.Uplink.URL != "" {
		client := &uplink.Client{
			URL:            cfg.Uplink.URL,
			ReconnectDelay: cfg.ReconnectDelay(),
			Out:            remote,
			State:          state,
		}
		start("uplink", client.Run)
	}
	if cfg.Serial.Port != "" {
		port, err := serialport.Open(cfg.Serial.Port, cfg.Serial.BaudRate)
		if err != nil {
			debug.Fault("serial", err)
		} else {
			defer port.Close()
			start("serial", func(ctx context.Context) error {
				return serialport.Serve(ctx, port, remote)
			})
		}
	}
	if port := webPort.port(); port > 0 {
		srv := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, state, remote)
		start("web", srv.Run)
	}
	if *tui {
		start("dashboard", func(ctx context.Context) error {
			// Leaving the dashboard stops the rover.
			defer cancel()
			return dashboard.Run(ctx, dashboard.Config{
				Sample: loop.Snapshot,
				Logs:   dashLogs.Lines(),
			})
		})
	}

	debug.Section("Running")
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		debug.Error(err)
	}

	debug.Section("Shutting down")
	cancel()
	stopDrive()
	services.Wait()
	hw.close()
	_ = provider.Close()

	if loop.PowerOffRequested() {
		if err := host.Switch(cfg.Defaults.AllowPowerOff)(); err != nil {
			log.Fatalf("power off failed: %v", err)
		}
	}
}

// hardware holds the subsystems that came up. A nil subsystem failed to
// initialize or is disabled.
type hardware struct {
	gpio  gpio.Driver
	drive *drive.Dispatcher
	winch *winch.Controller
}

// initHardware brings up every enabled subsystem independently. A failure
// disables that subsystem only.
func initHardware(cfg *config.Config) *hardware {
	hw := &hardware{}
	g, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		debug.Fault("gpio", err)
		return hw
	}
	hw.gpio = g

	if cfg.Drive.Enabled {
		hw.drive, err = newDrive(g, cfg)
		if err != nil {
			debug.Fault(drive.Subsystem, err)
		}
	}
	if cfg.Winch.Enabled {
		hw.winch, err = newWinch(g, cfg)
		if err != nil {
			debug.Fault(winch.Subsystem, err)
		}
	}
	return hw
}

func newDrive(g gpio.Driver, cfg *config.Config) (*drive.Dispatcher, error) {
	motors, err := drivetrain.New(g, drivetrain.Config{
		Left:           motorPins(cfg.Drive.Left),
		Right:          motorPins(cfg.Drive.Right),
		PWMFrequencyHz: cfg.Drive.PWMFrequencyHz,
	})
	if err != nil {
		return nil, fault.New(drive.Subsystem, fault.Init, err)
	}
	debug.PrintStruct("Drive config", cfg.Drive)
	return drive.NewDispatcher(motors, drive.Config{
		TickPeriod:      cfg.TickPeriod(),
		DurationPerUnit: cfg.DurationPerUnit(),
	}), nil
}

func motorPins(m config.MotorConfig) drivetrain.MotorPins {
	return drivetrain.MotorPins{ForwardPin: m.ForwardPin, BackwardPin: m.BackwardPin, PWMPin: m.PWMPin}
}

func newWinch(g gpio.Driver, cfg *config.Config) (*winch.Controller, error) {
	coils, err := stepper.NewSequencer(g, stepper.Config{CoilPins: cfg.Winch.CoilPins})
	if err != nil {
		return nil, fault.New(winch.Subsystem, fault.Init, err)
	}
	latch, err := magnet.New(g, cfg.Winch.MagnetPin, cfg.ReleasePulse())
	if err != nil {
		_ = coils.Off()
		return nil, fault.New(winch.Subsystem, fault.Init, err)
	}
	debug.PrintStruct("Winch config", cfg.Winch)
	return winch.New(coils, latch, winch.Config{
		MinStepDelay: cfg.MinStepDelay(),
		MaxStepDelay: cfg.MaxStepDelay(),
	}), nil
}

// close stops the actuators and releases the GPIO driver. The drive tick
// loop must have stopped.
func (hw *hardware) close() {
	if hw.winch != nil {
		if err := hw.winch.Shutdown(); err != nil {
			debug.Error(fmt.Errorf("winch shutdown: %w", err))
		}
	}
	if hw.drive != nil {
		if err := hw.drive.StopImmediately(); err != nil {
			debug.Error(fmt.Errorf("drive stop: %w", err))
		}
	}
	if hw.gpio != nil {
		if err := hw.gpio.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}
}

// cliOverrides holds the flags that override config values. Nil means
// "use config".
type cliOverrides struct {
	DebugLevel *int
	MockGPIO   *bool
}

func validateCLIOverrides(o cliOverrides) error {
	if o.DebugLevel != nil && (*o.DebugLevel < 0 || *o.DebugLevel > 4) {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", *o.DebugLevel)
	}
	return nil
}

// applyOverrides mutates cfg with the flags that were set.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.DebugLevel != nil {
		cfg.Defaults.DebugLevel = *o.DebugLevel
	}
	if o.MockGPIO != nil {
		cfg.Defaults.MockGPIO = *o.MockGPIO
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
