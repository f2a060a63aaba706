package drive

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/RoverGo/internal/debug"
	"github.com/cjeanneret/RoverGo/internal/fault"
	"github.com/cjeanneret/RoverGo/internal/logic/easing"
)

// Subsystem is the name drive faults are reported under.
const Subsystem = "drive"

// Default timing.
const (
	DefaultTickPeriod      = 10 * time.Millisecond
	DefaultDurationPerUnit = time.Second
)

// Actuator is the hardware side of the drive: two motors, speeds in [-1,1].
type Actuator interface {
	SetLeftSpeed(speed float64) error
	SetRightSpeed(speed float64) error
	Stop() error
}

// Config holds the dispatcher timing.
type Config struct {
	TickPeriod      time.Duration // period of the tick loop
	DurationPerUnit time.Duration // ramp time for a speed change of 1.0
}

// Dispatcher orchestrates the two drive motors. Speed commands retarget
// an eased trajectory per motor; the tick loop pushes the interpolated
// values to the actuator.
//
// Setters and Tick may be called from different goroutines.
type Dispatcher struct {
	actuator Actuator
	cfg      Config

	mu    sync.Mutex
	left  easing.Trajectory
	right easing.Trajectory

	wake chan struct{}
}

func NewDispatcher(a Actuator, cfg Config) *Dispatcher {
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = DefaultTickPeriod
	}
	if cfg.DurationPerUnit <= 0 {
		cfg.DurationPerUnit = DefaultDurationPerUnit
	}
	rest := easing.New(0, 0, cfg.DurationPerUnit.Seconds(), cfg.TickPeriod.Seconds())
	return &Dispatcher{
		actuator: a,
		cfg:      cfg,
		left:     rest,
		right:    rest,
		wake:     make(chan struct{}, 1),
	}
}

// SetLeftSpeed ramps the left motor from its current value to speed.
func (d *Dispatcher) SetLeftSpeed(speed float64) {
	d.mu.Lock()
	d.left = d.left.Retarget(d.left.Value(), clamp(speed))
	debug.Verbose("Drive: left %.3f -> %.3f", d.left.Start(), d.left.End())
	d.mu.Unlock()
	d.notify()
}

// SetRightSpeed ramps the right motor from its current value to speed.
func (d *Dispatcher) SetRightSpeed(speed float64) {
	d.mu.Lock()
	d.right = d.right.Retarget(d.right.Value(), clamp(speed))
	debug.Verbose("Drive: right %.3f -> %.3f", d.right.Start(), d.right.End())
	d.mu.Unlock()
	d.notify()
}

// StopImmediately stops both motors without ramping.
func (d *Dispatcher) StopImmediately() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	debug.Verbose("Drive: immediate stop")
	d.left = d.left.Retarget(0, 0)
	d.right = d.right.Retarget(0, 0)
	return fault.New(Subsystem, fault.Write, d.actuator.Stop())
}

// Tick advances both trajectories one step and forwards the values
// to the actuator.
func (d *Dispatcher) Tick() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	left := d.left.Advance()
	right := d.right.Advance()
	debug.Speeds(left, right)

	if err := d.actuator.SetLeftSpeed(left); err != nil {
		return fault.New(Subsystem, fault.Write, err)
	}
	if err := d.actuator.SetRightSpeed(right); err != nil {
		return fault.New(Subsystem, fault.Write, err)
	}
	return nil
}

// Run ticks at the configured period until ctx is done or the actuator
// fails. While both motors sit at their target the loop sleeps until
// the next speed change.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		if d.idle() {
			ticker.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-d.wake:
			}
			ticker.Reset(d.cfg.TickPeriod)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.Tick(); err != nil {
				return err
			}
		}
	}
}

// Speeds returns the current interpolated motor values.
func (d *Dispatcher) Speeds() (left, right float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.left.Value(), d.right.Value()
}

func (d *Dispatcher) idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.left.Finished() && d.right.Finished()
}

func (d *Dispatcher) notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func clamp(speed float64) float64 {
	if math.IsNaN(speed) {
		return 0
	}
	if speed > 1 {
		return 1
	}
	if speed < -1 {
		return -1
	}
	return speed
}
