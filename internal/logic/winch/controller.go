// Package winch runs the line winch: a stepper that winds the line and a
// release magnet that lets it go.
//
// A single worker goroutine, locked to its own OS thread, owns both
// outputs. The public API only posts commands to the worker's queue.
// While winding, the worker checks the queue after every micro-step:
// a release pulses the magnet without interrupting the winding, any other
// command preempts it. Commands that piled up during a step are coalesced,
// only the newest one is executed (releases are never dropped).
package winch

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/cjeanneret/RoverGo/internal/debug"
	"github.com/cjeanneret/RoverGo/internal/fault"
)

// Subsystem is the name winch faults are reported under.
const Subsystem = "winch"

// Default inter-step delays.
const (
	DefaultMinStepDelay = 800 * time.Microsecond
	DefaultMaxStepDelay = 5000 * time.Microsecond
)

var errQueueClosed = errors.New("command queue closed")

// Coils is the stepper output.
type Coils interface {
	Step(forward bool) error
	Off() error
}

// Latch is the release magnet output.
type Latch interface {
	Release() error
}

// Config holds the winch timing.
type Config struct {
	MinStepDelay time.Duration // delay at full speed
	MaxStepDelay time.Duration // delay as speed approaches 0
}

// Mode is what the worker is currently doing.
type Mode int

const (
	Idle Mode = iota
	Winding
	Closed
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Winding:
		return "winding"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// State is a snapshot of the worker for telemetry.
type State struct {
	Mode     Mode
	Speed    float64
	Releases int
}

// Controller is the handle to the winch worker. It is safe for concurrent use.
type Controller struct {
	coils Coils
	latch Latch
	cfg   Config
	sleep func(time.Duration)

	queue *mailbox
	done  chan struct{}

	mu    sync.Mutex
	state State
}

// New starts the winch worker. Call Shutdown to stop it.
func New(coils Coils, latch Latch, cfg Config) *Controller {
	return newController(coils, latch, cfg, time.Sleep)
}

func newController(coils Coils, latch Latch, cfg Config, sleep func(time.Duration)) *Controller {
	if cfg.MinStepDelay <= 0 {
		cfg.MinStepDelay = DefaultMinStepDelay
	}
	if cfg.MaxStepDelay < cfg.MinStepDelay {
		cfg.MaxStepDelay = max(DefaultMaxStepDelay, cfg.MinStepDelay)
	}
	c := &Controller{
		coils: coils,
		latch: latch,
		cfg:   cfg,
		sleep: sleep,
		queue: newMailbox(),
		done:  make(chan struct{}),
	}
	go c.run()
	return c
}

// Wind winds the line at speed in [-1,1]; the sign selects the direction.
// A speed of 0 stops the winch.
func (c *Controller) Wind(speed float64) error {
	if speed == 0 || math.IsNaN(speed) {
		return c.Stop()
	}
	return c.post(command{kind: cmdWind, speed: math.Max(-1, math.Min(1, speed))})
}

// Stop stops winding and de-energizes the coils.
func (c *Controller) Stop() error {
	return c.post(command{kind: cmdStop})
}

// Release pulses the release magnet.
func (c *Controller) Release() error {
	return c.post(command{kind: cmdRelease})
}

// Shutdown stops the worker and waits for it to exit.
// The coils are de-energized when Shutdown returns.
func (c *Controller) Shutdown() error {
	err := c.post(command{kind: cmdQuit})
	<-c.done
	return err
}

// Done is closed once the worker has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns what the worker is doing.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StepDelay maps |speed| linearly to an inter-step delay:
// 1 gives minDelay, 0 gives maxDelay.
func StepDelay(speed float64, minDelay, maxDelay time.Duration) time.Duration {
	s := math.Min(math.Abs(speed), 1)
	return maxDelay - time.Duration(float64(maxDelay-minDelay)*s)
}

func (c *Controller) post(cmd command) error {
	if !c.queue.push(cmd) {
		return fault.New(Subsystem, fault.Closed, errQueueClosed)
	}
	return nil
}

func (c *Controller) run() {
	// Step timing must not be perturbed by goroutine migration.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.done)
	defer c.queue.close()
	defer c.recoverStepFailure()

	debug.Verbose("Winch: worker started")
	cmd := c.next()
	for {
		switch cmd.kind {
		case cmdWind:
			// Winding returns the command that preempted it.
			cmd = c.wind(cmd.speed)
			continue
		case cmdStop:
			c.off()
			c.setState(Idle, 0)
		case cmdRelease:
			c.release()
		case cmdQuit:
			c.off()
			c.setState(Closed, 0)
			debug.Verbose("Winch: worker stopped")
			return
		}
		cmd = c.next()
	}
}

// next blocks for a command. A release is returned as is, anything else
// is coalesced with what queued up behind it.
func (c *Controller) next() command {
	cmd := c.queue.wait()
	if cmd.kind == cmdRelease {
		return cmd
	}
	return c.coalesce(cmd)
}

// recoverStepFailure turns a failed step into a winch fault. The worker
// exits and the queue is closed, the rest of the process keeps running.
func (c *Controller) recoverStepFailure() {
	r := recover()
	if r == nil {
		return
	}
	debug.Fault(Subsystem, fault.New(Subsystem, fault.Write, fmt.Errorf("%v", r)))
	c.off()
	c.setState(Closed, 0)
}

func (c *Controller) wind(speed float64) command {
	forward := speed > 0
	delay := StepDelay(speed, c.cfg.MinStepDelay, c.cfg.MaxStepDelay)
	c.setState(Winding, speed)
	debug.Verbose("Winch: winding speed=%.3f delay=%v", speed, delay)

	for {
		if err := c.coils.Step(forward); err != nil {
			panic(fmt.Errorf("step failed: %w", err))
		}
		c.sleep(delay)

		next, ok := c.queue.tryPop()
		if !ok {
			continue
		}
		if next.kind == cmdRelease {
			c.release()
			continue
		}
		return c.coalesce(next)
	}
}

// coalesce drains the queue and returns the newest command, latest being
// the oldest one already popped. Releases met on the way are executed.
func (c *Controller) coalesce(latest command) command {
	for {
		next, ok := c.queue.tryPop()
		if !ok {
			return latest
		}
		if next.kind == cmdRelease {
			c.release()
			continue
		}
		debug.Trace("Winch: dropping stale %s", latest.kind)
		latest = next
	}
}

func (c *Controller) release() {
	debug.Verbose("Winch: release")
	if err := c.latch.Release(); err != nil {
		debug.Fault(Subsystem, fault.New(Subsystem, fault.Write, err))
	}
	c.mu.Lock()
	c.state.Releases++
	c.mu.Unlock()
}

func (c *Controller) off() {
	if err := c.coils.Off(); err != nil {
		debug.Fault(Subsystem, fault.New(Subsystem, fault.Write, err))
	}
}

func (c *Controller) setState(mode Mode, speed float64) {
	c.mu.Lock()
	c.state.Mode = mode
	c.state.Speed = speed
	c.mu.Unlock()
}
