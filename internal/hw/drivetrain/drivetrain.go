package drivetrain

import (
	"fmt"
	"math"

	"github.com/cjeanneret/RoverGo/internal/debug"
	"github.com/cjeanneret/RoverGo/internal/hw/gpio"
)

// DefaultPWMFrequencyHz is the PWM frequency used when none is configured.
const DefaultPWMFrequencyHz = 75

// MotorPins are the BCM pins of one H-bridge channel.
type MotorPins struct {
	ForwardPin  int
	BackwardPin int
	PWMPin      int
}

// Config holds the hardware configuration of the dual H-bridge.
type Config struct {
	Left           MotorPins
	Right          MotorPins
	PWMFrequencyHz int
}

// Drivetrain drives the two wheel motors through a dual H-bridge.
// Direction pins select the rotation, the PWM duty cycle the speed.
type Drivetrain struct {
	gpio gpio.Driver
	cfg  Config
}

// New configures the direction pins as outputs and the PWM pins at the
// configured frequency. Both motors start stopped.
func New(g gpio.Driver, cfg Config) (*Drivetrain, error) {
	if cfg.PWMFrequencyHz <= 0 {
		cfg.PWMFrequencyHz = DefaultPWMFrequencyHz
	}
	for _, m := range []MotorPins{cfg.Left, cfg.Right} {
		for _, pin := range []int{m.ForwardPin, m.BackwardPin} {
			if err := g.SetupPin(pin, gpio.Output); err != nil {
				return nil, fmt.Errorf("setup direction pin %d: %w", pin, err)
			}
		}
		if err := g.SetupPWM(m.PWMPin, cfg.PWMFrequencyHz); err != nil {
			return nil, fmt.Errorf("setup pwm pin %d: %w", m.PWMPin, err)
		}
	}
	d := &Drivetrain{gpio: g, cfg: cfg}
	if err := d.Stop(); err != nil {
		return nil, err
	}
	return d, nil
}

// SetLeftSpeed sets the left motor speed in [-1,1].
func (d *Drivetrain) SetLeftSpeed(speed float64) error {
	return d.set("left", d.cfg.Left, speed)
}

// SetRightSpeed sets the right motor speed in [-1,1].
func (d *Drivetrain) SetRightSpeed(speed float64) error {
	return d.set("right", d.cfg.Right, speed)
}

// Stop releases all direction pins and zeroes both duty cycles.
func (d *Drivetrain) Stop() error {
	debug.Trace("Drivetrain: stop")
	if err := d.set("left", d.cfg.Left, 0); err != nil {
		return err
	}
	return d.set("right", d.cfg.Right, 0)
}

func (d *Drivetrain) set(name string, m MotorPins, speed float64) error {
	if math.IsNaN(speed) || speed < -1 || speed > 1 {
		return fmt.Errorf("%s motor speed %g out of range [-1,1]", name, speed)
	}

	forward, backward := gpio.Low, gpio.Low
	switch {
	case speed > 0:
		forward = gpio.High
	case speed < 0:
		backward = gpio.High
	}

	if err := d.gpio.WritePin(m.ForwardPin, forward); err != nil {
		return fmt.Errorf("%s motor forward pin: %w", name, err)
	}
	if err := d.gpio.WritePin(m.BackwardPin, backward); err != nil {
		return fmt.Errorf("%s motor backward pin: %w", name, err)
	}
	if err := d.gpio.SetDutyCycle(m.PWMPin, math.Abs(speed)); err != nil {
		return fmt.Errorf("%s motor pwm: %w", name, err)
	}
	return nil
}
