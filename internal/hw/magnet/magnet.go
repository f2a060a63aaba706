package magnet

import (
	"fmt"
	"time"

	"github.com/cjeanneret/RoverGo/internal/debug"
	"github.com/cjeanneret/RoverGo/internal/hw/gpio"
)

// DefaultPulse is how long the magnet stays de-energized on a release.
const DefaultPulse = 200 * time.Millisecond

// Magnet drives the winch release electromagnet through a relay board
// on a single GPIO line:
// - HIGH: relay idle, magnet holds the line clutch (normal state)
// - LOW: magnet de-energized, the clutch lets go
//
// Release sequence:
// 1. Line to LOW (de-energize)
// 2. Hold for the pulse duration
// 3. Line back to HIGH (hold again)
type Magnet struct {
	gpio  gpio.Driver
	pin   int
	pulse time.Duration
	sleep func(time.Duration)
}

// New configures pin as an output in the holding state.
// A pulse of 0 uses DefaultPulse.
func New(g gpio.Driver, pin int, pulse time.Duration) (*Magnet, error) {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup magnet pin %d: %w", pin, err)
	}
	// By default the magnet holds
	if err := g.WritePin(pin, gpio.High); err != nil {
		return nil, fmt.Errorf("engage magnet pin %d: %w", pin, err)
	}
	if pulse <= 0 {
		pulse = DefaultPulse
	}
	return &Magnet{
		gpio:  g,
		pin:   pin,
		pulse: pulse,
		sleep: time.Sleep,
	}, nil
}

// Release de-energizes the magnet for one pulse, then engages it again.
// It blocks for the pulse duration.
func (m *Magnet) Release() error {
	debug.Verbose("Magnet: releasing (pin %d -> LOW for %v)", m.pin, m.pulse)
	if err := m.gpio.WritePin(m.pin, gpio.Low); err != nil {
		return err
	}

	m.sleep(m.pulse)

	debug.Verbose("Magnet: holding (pin %d -> HIGH)", m.pin)
	return m.gpio.WritePin(m.pin, gpio.High)
}

// Pulse returns the configured release pulse.
func (m *Magnet) Pulse() time.Duration {
	return m.pulse
}
