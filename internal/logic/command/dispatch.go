package command

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/RoverGo/internal/debug"
	"github.com/cjeanneret/RoverGo/internal/hw/power"
)

// DefaultRumbleStrength is used when Targets.RumbleStrength is 0.
const DefaultRumbleStrength = 0.75

// DriveTarget is the drive dispatcher.
type DriveTarget interface {
	SetLeftSpeed(speed float64)
	SetRightSpeed(speed float64)
	StopImmediately() error
}

// WinchTarget is the winch controller.
type WinchTarget interface {
	Wind(speed float64) error
	Stop() error
	Release() error
}

// DeviceTarget is the gamepad provider.
type DeviceTarget interface {
	Remove(id string)
	Rumble(id string, intensity float64) error
	CheckPower(id string) (*power.Status, error)
}

// Targets are the receivers of commands. A nil field is a subsystem that
// is not available; commands for it are skipped.
type Targets struct {
	Drive    DriveTarget
	Winch    WinchTarget
	Devices  DeviceTarget
	PowerOff func() error

	RumbleStrength float64
}

// Dispatch routes cmd to its target. Hardware errors are returned as is.
func Dispatch(cmd Command, t Targets) error {
	debug.Command(cmd)

	switch cmd.Kind {
	case KindDrive:
		return dispatchDrive(cmd, t)

	case KindReleaseWinch:
		if t.Winch == nil {
			return skipped(cmd, "winch")
		}
		return t.Winch.Release()

	case KindCheckGamepadPower:
		if t.Devices == nil {
			return skipped(cmd, "gamepads")
		}
		status, err := t.Devices.CheckPower(cmd.DeviceID)
		if err != nil {
			return err
		}
		if status == nil {
			debug.Info("Power %s: no battery information", cmd.DeviceID)
			return nil
		}
		debug.Info("Power %s: %s", cmd.DeviceID, status)
		return nil

	case KindRumbleGamepad:
		if t.Devices == nil {
			return skipped(cmd, "gamepads")
		}
		strength := t.RumbleStrength
		if strength <= 0 {
			strength = DefaultRumbleStrength
		}
		return t.Devices.Rumble(cmd.DeviceID, strength)

	case KindShutdown:
		if t.PowerOff == nil {
			return skipped(cmd, "power off")
		}
		return t.PowerOff()

	case KindHandleDisconnection:
		// A lost controller must never leave an actuator running.
		if t.Devices != nil {
			t.Devices.Remove(cmd.DeviceID)
		}
		var errs []error
		if t.Drive != nil {
			errs = append(errs, t.Drive.StopImmediately())
		}
		if t.Winch != nil {
			errs = append(errs, t.Winch.Stop())
		}
		return errors.Join(errs...)

	default:
		return fmt.Errorf("unknown command kind %d", int(cmd.Kind))
	}
}

func dispatchDrive(cmd Command, t Targets) error {
	switch cmd.Motor {
	case Left, Right:
		if t.Drive == nil {
			return skipped(cmd, "drive")
		}
		if cmd.Motor == Left {
			t.Drive.SetLeftSpeed(cmd.Speed)
		} else {
			t.Drive.SetRightSpeed(cmd.Speed)
		}
		return nil
	case Winch:
		if t.Winch == nil {
			return skipped(cmd, "winch")
		}
		return t.Winch.Wind(cmd.Speed)
	default:
		return fmt.Errorf("unknown motor %d", int(cmd.Motor))
	}
}

func skipped(cmd Command, subsystem string) error {
	debug.Live("%s skipped: %s unavailable", cmd, subsystem)
	return nil
}
