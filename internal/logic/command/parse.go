package command

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnknownCommand is returned by Parse for lines outside the vocabulary.
var ErrUnknownCommand = errors.New("unknown command")

// Parse reads one line of the text command vocabulary shared by the
// remote sources (websocket uplink, serial port, web API):
//
//	drive <left|right|winch> <speed>
//	stop
//	release
//	rumble <device>
//	power <device>
//	shutdown
//
// Keywords are case-insensitive. stop brings all three motors to 0.
func Parse(line string) ([]Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	switch verb {
	case "drive":
		if len(args) != 2 {
			return nil, fmt.Errorf("drive: want <motor> <speed>, got %q", line)
		}
		motor, err := ParseMotor(args[0])
		if err != nil {
			return nil, fmt.Errorf("drive: %w", err)
		}
		speed, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, fmt.Errorf("drive: invalid speed %q", args[1])
		}
		if math.IsNaN(speed) || speed < -1 || speed > 1 {
			return nil, fmt.Errorf("drive: speed %g out of range [-1,1]", speed)
		}
		return []Command{Drive(motor, speed)}, nil

	case "stop":
		if err := noArgs(verb, args); err != nil {
			return nil, err
		}
		return []Command{Drive(Left, 0), Drive(Right, 0), Drive(Winch, 0)}, nil

	case "release":
		if err := noArgs(verb, args); err != nil {
			return nil, err
		}
		return []Command{ReleaseWinch()}, nil

	case "shutdown":
		if err := noArgs(verb, args); err != nil {
			return nil, err
		}
		return []Command{Shutdown()}, nil

	case "rumble", "power":
		if len(args) != 1 {
			return nil, fmt.Errorf("%s: want <device>, got %q", verb, line)
		}
		if verb == "rumble" {
			return []Command{RumbleGamepad(args[0])}, nil
		}
		return []Command{CheckGamepadPower(args[0])}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
}

func noArgs(verb string, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%s takes no arguments, got %v", verb, args)
	}
	return nil
}
