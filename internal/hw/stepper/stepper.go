package stepper

import (
	"fmt"

	"github.com/cjeanneret/RoverGo/internal/debug"
	"github.com/cjeanneret/RoverGo/internal/hw/gpio"
)

// halfStepSequence is the 8-pattern half-step sequence of a 4-phase
// unipolar stepper (28BYJ-48 behind a ULN2003 driver).
// One pattern is one micro-step; 4096 micro-steps are one output revolution.
var halfStepSequence = [8][4]gpio.Level{
	{gpio.High, gpio.Low, gpio.Low, gpio.High},
	{gpio.High, gpio.Low, gpio.Low, gpio.Low},
	{gpio.High, gpio.High, gpio.Low, gpio.Low},
	{gpio.Low, gpio.High, gpio.Low, gpio.Low},
	{gpio.Low, gpio.High, gpio.High, gpio.Low},
	{gpio.Low, gpio.Low, gpio.High, gpio.Low},
	{gpio.Low, gpio.Low, gpio.High, gpio.High},
	{gpio.Low, gpio.Low, gpio.Low, gpio.High},
}

// Config holds the hardware configuration for the winch stepper.
type Config struct {
	CoilPins [4]int // IN1..IN4 of the ULN2003 board (BCM)
}

// Sequencer energizes the coils of a 4-phase stepper one micro-step at a time.
// Timing between steps is left to the caller.
// A Sequencer is not safe for concurrent use; it belongs to a single worker.
type Sequencer struct {
	gpio  gpio.Driver
	cfg   Config
	phase int // index into halfStepSequence of the last written pattern, -1 when off
}

// NewSequencer configures the coil pins as outputs, de-energized.
func NewSequencer(g gpio.Driver, cfg Config) (*Sequencer, error) {
	for _, pin := range cfg.CoilPins {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup coil pin %d: %w", pin, err)
		}
	}
	s := &Sequencer{gpio: g, cfg: cfg, phase: -1}
	if err := s.Off(); err != nil {
		return nil, err
	}
	return s, nil
}

// Step advances the motor by one micro-step, forward or backward.
// Direction changes continue from the current phase, so no step is skipped.
func (s *Sequencer) Step(forward bool) error {
	next := s.phase
	switch {
	case next < 0 && forward:
		next = 0
	case next < 0:
		next = len(halfStepSequence) - 1
	case forward:
		next = (next + 1) % len(halfStepSequence)
	default:
		next = (next + len(halfStepSequence) - 1) % len(halfStepSequence)
	}
	if err := s.write(halfStepSequence[next]); err != nil {
		return err
	}
	s.phase = next
	return nil
}

// Off de-energizes all coils. The motor freewheels, no holding torque.
func (s *Sequencer) Off() error {
	debug.Trace("Stepper: coils off")
	if err := s.write([4]gpio.Level{}); err != nil {
		return err
	}
	s.phase = -1
	return nil
}

// Phase returns the index of the energized pattern, or -1 when the coils are off.
func (s *Sequencer) Phase() int {
	return s.phase
}

func (s *Sequencer) write(levels [4]gpio.Level) error {
	for i, pin := range s.cfg.CoilPins {
		if err := s.gpio.WritePin(pin, levels[i]); err != nil {
			return fmt.Errorf("write coil pin %d: %w", pin, err)
		}
	}
	return nil
}
