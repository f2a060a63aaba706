// Package translate maps gamepad events to rover commands.
//
// Layout:
//   - Select + Start held together: shut the rover down
//   - South: stop both drive motors
//   - East: rumble the pad
//   - West: release the winch line
//   - North: both drive motors full speed
//   - Mode: log the pad battery state
//   - left stick Y: right motor, right stick Y: left motor (inverted,
//     the motors are mounted facing each other)
//   - left trigger: wind in, right trigger: wind out
package translate

import (
	"github.com/cjeanneret/RoverGo/internal/hw/gamepad"
	"github.com/cjeanneret/RoverGo/internal/logic/command"
)

// Translator holds the dead-man combo state. It is used by the event
// loop only and is not safe for concurrent use.
type Translator struct {
	deadManLeft  bool
	deadManRight bool
	fired        bool // Shutdown already sent for the current hold
}

func New() *Translator {
	return &Translator{}
}

// Translate returns the commands for one event of the given device.
// Most events yield zero or one command.
func (t *Translator) Translate(ev gamepad.Event, deviceID string) []command.Command {
	switch ev.Kind {
	case gamepad.Disconnect:
		return []command.Command{command.HandleDisconnection(deviceID)}
	case gamepad.Button:
		return t.button(ev, deviceID)
	case gamepad.Axis:
		return axis(ev)
	default:
		return nil
	}
}

func (t *Translator) button(ev gamepad.Event, deviceID string) []command.Command {
	switch ev.Control {
	case gamepad.Select:
		t.deadManLeft = ev.Pressed
		return t.combo()
	case gamepad.Start:
		t.deadManRight = ev.Pressed
		return t.combo()
	}

	// Action buttons fire on press only.
	if !ev.Pressed {
		return nil
	}
	switch ev.Control {
	case gamepad.South:
		return []command.Command{command.Drive(command.Left, 0), command.Drive(command.Right, 0)}
	case gamepad.East:
		return []command.Command{command.RumbleGamepad(deviceID)}
	case gamepad.West:
		return []command.Command{command.ReleaseWinch()}
	case gamepad.North:
		return []command.Command{command.Drive(command.Left, 1), command.Drive(command.Right, 1)}
	case gamepad.Mode:
		return []command.Command{command.CheckGamepadPower(deviceID)}
	default:
		return nil
	}
}

// combo emits Shutdown once per rising edge of both dead-man buttons held.
func (t *Translator) combo() []command.Command {
	both := t.deadManLeft && t.deadManRight
	if !both {
		t.fired = false
		return nil
	}
	if t.fired {
		return nil
	}
	t.fired = true
	return []command.Command{command.Shutdown()}
}

func axis(ev gamepad.Event) []command.Command {
	switch ev.Control {
	case gamepad.LeftStickY:
		return []command.Command{command.Drive(command.Right, -ev.Value)}
	case gamepad.RightStickY:
		return []command.Command{command.Drive(command.Left, -ev.Value)}
	case gamepad.LeftTrigger:
		return []command.Command{command.Drive(command.Winch, (ev.Value+1)/2)}
	case gamepad.RightTrigger:
		return []command.Command{command.Drive(command.Winch, -(ev.Value+1)/2)}
	default:
		return nil
	}
}
