// Package command defines the rover command vocabulary and routes
// commands to the subsystems.
package command

import (
	"fmt"
	"strings"
)

// Motor is an actuator target.
type Motor int

const (
	Left Motor = iota
	Right
	Winch
)

func (m Motor) String() string {
	switch m {
	case Left:
		return "left"
	case Right:
		return "right"
	case Winch:
		return "winch"
	default:
		return fmt.Sprintf("motor(%d)", int(m))
	}
}

// ParseMotor parses a motor name as printed by String.
func ParseMotor(s string) (Motor, error) {
	switch strings.ToLower(s) {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	case "winch":
		return Winch, nil
	default:
		return 0, fmt.Errorf("unknown motor %q", s)
	}
}

// Kind is the variant of a Command.
type Kind int

const (
	KindDrive Kind = iota
	KindReleaseWinch
	KindCheckGamepadPower
	KindRumbleGamepad
	KindShutdown
	KindHandleDisconnection
)

// Command is one rover command. Only the fields of its Kind are set:
// Motor and Speed for drive commands, DeviceID for gamepad commands.
type Command struct {
	Kind     Kind
	Motor    Motor
	Speed    float64 // [-1,1]
	DeviceID string
}

func Drive(m Motor, speed float64) Command {
	return Command{Kind: KindDrive, Motor: m, Speed: speed}
}

func ReleaseWinch() Command {
	return Command{Kind: KindReleaseWinch}
}

func CheckGamepadPower(id string) Command {
	return Command{Kind: KindCheckGamepadPower, DeviceID: id}
}

func RumbleGamepad(id string) Command {
	return Command{Kind: KindRumbleGamepad, DeviceID: id}
}

func Shutdown() Command {
	return Command{Kind: KindShutdown}
}

func HandleDisconnection(id string) Command {
	return Command{Kind: KindHandleDisconnection, DeviceID: id}
}

func (c Command) String() string {
	switch c.Kind {
	case KindDrive:
		return fmt.Sprintf("Drive(%s, %.3f)", c.Motor, c.Speed)
	case KindReleaseWinch:
		return "ReleaseWinch"
	case KindCheckGamepadPower:
		return fmt.Sprintf("CheckGamepadPower(%s)", c.DeviceID)
	case KindRumbleGamepad:
		return fmt.Sprintf("RumbleGamepad(%s)", c.DeviceID)
	case KindShutdown:
		return "Shutdown"
	case KindHandleDisconnection:
		return fmt.Sprintf("HandleDisconnection(%s)", c.DeviceID)
	default:
		return fmt.Sprintf("Command(%d)", int(c.Kind))
	}
}
