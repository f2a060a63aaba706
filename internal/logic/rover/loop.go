// Package rover runs the main event loop: it waits on every event source
// at once and routes the resulting commands to the subsystems.
package rover

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/RoverGo/internal/debug"
	"github.com/cjeanneret/RoverGo/internal/hw/gamepad"
	"github.com/cjeanneret/RoverGo/internal/logic/command"
	"github.com/cjeanneret/RoverGo/internal/logic/controllers"
	"github.com/cjeanneret/RoverGo/internal/logic/drive"
	"github.com/cjeanneret/RoverGo/internal/logic/translate"
	"github.com/cjeanneret/RoverGo/internal/logic/winch"
)

// Loop wires the event sources to the subsystems. Drive and Winch may be
// nil when their hardware failed to initialize.
type Loop struct {
	Provider   *controllers.Provider
	Translator *translate.Translator
	Drive      *drive.Dispatcher
	Winch      *winch.Controller

	RumbleStrength float64

	// Event sources. Nil channels are never ready.
	Discovered  <-chan string          // gamepad device paths
	Remote      <-chan command.Command // uplink, serial, web
	DriveFailed <-chan error           // drive tick loop termination

	mu                sync.Mutex
	driveDown         bool
	powerOffRequested bool
}

// Telemetry is a snapshot of the rover state.
type Telemetry struct {
	DriveEnabled bool     `json:"drive_enabled"`
	Left         float64  `json:"left"`
	Right        float64  `json:"right"`
	WinchEnabled bool     `json:"winch_enabled"`
	WinchMode    string   `json:"winch_mode"`
	WinchSpeed   float64  `json:"winch_speed"`
	Releases     int      `json:"releases"`
	Devices      []string `json:"devices"`
	Shutdown     bool     `json:"shutdown"`
}

// Run processes events until ctx is done or a Shutdown command arrives.
// It returns nil after a Shutdown command and ctx.Err() otherwise.
// Cleanup of the subsystems is left to the caller.
func (l *Loop) Run(ctx context.Context) error {
	if l.Translator == nil {
		l.Translator = translate.New()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	targets := l.targets(cancel)
	discovered := l.Discovered
	remote := l.Remote
	driveFailed := l.DriveFailed

	var events <-chan controllers.Envelope
	if l.Provider != nil {
		events = l.Provider.Events()
	}
	opened := make(chan openResult)
	opening := make(map[string]bool)

	debug.Info("Event loop started")
	for {
		select {
		case <-ctx.Done():
			if l.PowerOffRequested() {
				debug.Info("Event loop stopped: shutdown requested")
				return nil
			}
			debug.Info("Event loop stopped: %v", ctx.Err())
			return ctx.Err()

		case path, ok := <-discovered:
			if !ok {
				debug.Info("Gamepad discovery stopped")
				discovered = nil
				continue
			}
			if l.Provider == nil || opening[path] || l.Provider.Blocked(path) {
				continue
			}
			opening[path] = true
			go l.open(ctx, path, opened)

		case res := <-opened:
			delete(opening, res.path)
			l.adopt(res)

		case env := <-events:
			if !l.Provider.Accept(env) {
				continue
			}
			debug.Live("Gamepad %s: %s", env.DeviceID, env.Event)
			for _, cmd := range l.Translator.Translate(env.Event, env.DeviceID) {
				l.dispatch(cmd, targets)
			}

		case cmd, ok := <-remote:
			if !ok {
				remote = nil
				continue
			}
			l.dispatch(cmd, targets)

		case err := <-driveFailed:
			driveFailed = nil
			debug.Fault(drive.Subsystem, err)
			if l.Drive != nil {
				if err := l.Drive.StopImmediately(); err != nil {
					debug.Fault(drive.Subsystem, err)
				}
			}
			l.mu.Lock()
			l.driveDown = true
			l.mu.Unlock()
			targets.Drive = nil
		}
	}
}

type openResult struct {
	path string
	dev  controllers.Device
	err  error
}

// open runs off the loop goroutine: opening a fresh device node can wait
// for udev to fix its permissions.
func (l *Loop) open(ctx context.Context, path string, out chan<- openResult) {
	dev, err := l.Provider.Open(path)
	select {
	case out <- openResult{path: path, dev: dev, err: err}:
	case <-ctx.Done():
		if dev != nil {
			_ = dev.Close()
		}
	}
}

func (l *Loop) adopt(res openResult) {
	switch {
	case errors.Is(res.err, gamepad.ErrNotGamepad):
		debug.Verbose("Ignoring %s: %v", res.path, res.err)
	case res.err != nil:
		debug.Fault("gamepad", res.err)
	case res.dev != nil:
		l.Provider.Adopt(res.path, res.dev)
	}
}

func (l *Loop) dispatch(cmd command.Command, t command.Targets) {
	if err := command.Dispatch(cmd, t); err != nil {
		debug.Error(fmt.Errorf("%s: %w", cmd, err))
	}
}

// targets builds the dispatch targets, leaving unavailable subsystems nil.
func (l *Loop) targets(cancel context.CancelFunc) command.Targets {
	t := command.Targets{
		RumbleStrength: l.RumbleStrength,
		PowerOff: func() error {
			debug.Summary("Shutdown requested")
			l.mu.Lock()
			l.powerOffRequested = true
			l.mu.Unlock()
			cancel()
			return nil
		},
	}
	if l.Drive != nil {
		t.Drive = l.Drive
	}
	if l.Winch != nil {
		t.Winch = l.Winch
	}
	if l.Provider != nil {
		t.Devices = l.Provider
	}
	return t
}

// PowerOffRequested reports whether the loop stopped on a Shutdown command.
func (l *Loop) PowerOffRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.powerOffRequested
}

// Snapshot returns the current telemetry. Safe for concurrent use.
func (l *Loop) Snapshot() Telemetry {
	l.mu.Lock()
	t := Telemetry{
		DriveEnabled: l.Drive != nil && !l.driveDown,
		WinchEnabled: l.Winch != nil,
		Shutdown:     l.powerOffRequested,
	}
	l.mu.Unlock()

	if l.Drive != nil {
		t.Left, t.Right = l.Drive.Speeds()
	}
	if l.Winch != nil {
		s := l.Winch.State()
		t.WinchMode = s.Mode.String()
		t.WinchSpeed = s.Speed
		t.Releases = s.Releases
	}
	if l.Provider != nil {
		t.Devices = l.Provider.Devices()
	}
	return t
}
