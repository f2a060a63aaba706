package gpio

import (
	"fmt"
	"math"
	"sync"

	"github.com/cjeanneret/RoverGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// pwmCycleLen is the number of PWM clock ticks per period.
// The PWM clock runs at freqHz*pwmCycleLen, which keeps it inside the
// 4688Hz - 19.2MHz range go-rpio accepts for usual motor frequencies.
const pwmCycleLen = 1000

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
// Drive, winch, and magnet live on different goroutines, so the pin table is locked.
type RPiDriver struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
	pwm  map[int]rpio.Pin
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
		pwm:  make(map[int]rpio.Pin),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setupPinLocked(pin, mode)
}

func (r *RPiDriver) setupPinLocked(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)

	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as output
		if err := r.setupPinLocked(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as input
		if err := r.setupPinLocked(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}

	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

func (r *RPiDriver) SetupPWM(pin int, freqHz int) error {
	debug.GPIO("SetupPWM", pin, freqHz)
	if freqHz <= 0 {
		return fmt.Errorf("pwm frequency must be > 0, got %d", freqHz)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	p.Freq(freqHz * pwmCycleLen)
	p.DutyCycle(0, pwmCycleLen)
	r.pwm[pin] = p
	return nil
}

func (r *RPiDriver) SetDutyCycle(pin int, duty float64) error {
	debug.GPIO("SetDutyCycle", pin, duty)
	if duty < 0 || duty > 1 || math.IsNaN(duty) {
		return fmt.Errorf("duty cycle must be within [0,1], got %g", duty)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pwm[pin]
	if !ok {
		return fmt.Errorf("pin %d is not configured for PWM", pin)
	}
	p.DutyCycle(uint32(math.Round(duty*pwmCycleLen)), pwmCycleLen)
	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	r.mu.Lock()
	defer r.mu.Unlock()

	for pin, p := range r.pwm {
		debug.Verbose("Zeroing PWM on pin %d", pin)
		p.DutyCycle(0, pwmCycleLen)
		p.Input()
	}

	// Reset all pins to input (safe state)
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}

	return rpio.Close()
}
