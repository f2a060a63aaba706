package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/RoverGo/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	// SetupPWM switches a pin to hardware PWM at the given frequency.
	SetupPWM(pin int, freqHz int) error
	// SetDutyCycle sets the PWM duty cycle of a pin, duty in [0,1].
	SetDutyCycle(pin int, duty float64) error
	Close() error
}

// MockDriver is a test implementation that logs actions and remembers
// the last written state of each pin. Used for development on PC or testing.
type MockDriver struct {
	mu   sync.Mutex
	pins map[int]Level
	duty map[int]float64
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pins == nil {
		m.pins = make(map[int]Level)
	}
	m.pins[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pins[pin], nil
}

func (m *MockDriver) SetupPWM(pin int, freqHz int) error {
	debug.GPIO("SetupPWM", pin, freqHz)
	if freqHz <= 0 {
		return fmt.Errorf("pwm frequency must be > 0, got %d", freqHz)
	}
	return nil
}

func (m *MockDriver) SetDutyCycle(pin int, duty float64) error {
	debug.GPIO("SetDutyCycle", pin, duty)
	if duty < 0 || duty > 1 {
		return fmt.Errorf("duty cycle must be within [0,1], got %g", duty)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.duty == nil {
		m.duty = make(map[int]float64)
	}
	m.duty[pin] = duty
	return nil
}

// DutyCycle returns the last duty cycle written to pin.
func (m *MockDriver) DutyCycle(pin int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duty[pin]
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
