// Package serialport reads text commands from a serial line, typically an
// Arduino companion board.
package serialport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/cjeanneret/RoverGo/internal/debug"
	"github.com/cjeanneret/RoverGo/internal/logic/command"
)

// DefaultBaudRate matches the Arduino Serial.begin default.
const DefaultBaudRate = 9600

// AutoPort asks Open to pick the first USB serial adapter.
const AutoPort = "auto"

const (
	readTimeout = 200 * time.Millisecond
	maxLine     = 256
)

// ErrNoPort is returned by Open in auto mode when no adapter is present.
var ErrNoPort = errors.New("no serial port found")

// Open opens the port in 8N1 mode.
func Open(name string, baudRate int) (serial.Port, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	if name == AutoPort {
		found, err := findPort()
		if err != nil {
			return nil, err
		}
		name = found
	}

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	// Reads return periodically so Serve can watch its context.
	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	debug.Info("Serial: %s opened at %d baud", name, baudRate)
	return port, nil
}

func findPort() (string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	for _, p := range ports {
		if strings.Contains(p, "ttyACM") || strings.Contains(p, "ttyUSB") {
			return p, nil
		}
	}
	return "", ErrNoPort
}

// Serve reads newline-terminated lines from r and forwards the parsed
// commands to out until ctx is done or r fails. Lines that are not
// commands are logged as peer output. Lines longer than 256 bytes are
// discarded.
//
// r must return regularly (a read timeout) for cancellation to be
// noticed; a serial.Port opened by Open does.
func Serve(ctx context.Context, r io.Reader, out chan<- command.Command) error {
	buf := make([]byte, 64)
	var line []byte
	overflow := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			switch {
			case b == '\n':
				if !overflow {
					if err := forward(ctx, string(bytes.TrimSpace(line)), out); err != nil {
						return err
					}
				}
				line = line[:0]
				overflow = false
			case len(line) >= maxLine:
				overflow = true
			default:
				line = append(line, b)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("serial read: %w", err)
		}
	}
}

func forward(ctx context.Context, line string, out chan<- command.Command) error {
	if line == "" {
		return nil
	}
	cmds, err := command.Parse(line)
	if err != nil {
		debug.Live("Serial peer: %s", line)
		return nil
	}
	for _, cmd := range cmds {
		debug.Command(cmd)
		select {
		case out <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
