// Package power reads the battery state of wireless gamepads.
//
// The kernel lists input devices in /proc/bus/input/devices. Each block
// carries the bluetooth address of the pad (Uniq=) and its event handlers.
// The battery shows up under /sys/class/power_supply in a directory whose
// name ends with that address.
package power

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Status is the battery state of one gamepad.
type Status struct {
	Capacity int    // percent
	State    string // Charging, Discharging, Full, ...
	Type     string // Battery, ...
}

func (s Status) String() string {
	return fmt.Sprintf("[%s|%d|%s]", s.Type, s.Capacity, s.State)
}

// Lookup locates the kernel files. The zero value is not usable, see Default.
type Lookup struct {
	DevicesFile string // /proc/bus/input/devices
	SupplyDir   string // /sys/class/power_supply
	InputDir    string // /dev/input
}

// Default returns the lookup on the standard Linux locations.
func Default() Lookup {
	return Lookup{
		DevicesFile: "/proc/bus/input/devices",
		SupplyDir:   "/sys/class/power_supply",
		InputDir:    "/dev/input",
	}
}

// Check returns the battery state of the gamepad behind an event device
// path. It returns nil without error when the pad reports no battery.
func Check(devicePath string) (*Status, error) {
	return Default().Check(devicePath)
}

func (l Lookup) Check(devicePath string) (*Status, error) {
	f, err := os.Open(l.DevicesFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	addresses, err := parseDevices(f, l.InputDir)
	if err != nil {
		return nil, err
	}
	address, ok := addresses[devicePath]
	if !ok {
		return nil, nil
	}
	dir, err := findSupplyDir(l.SupplyDir, address)
	if err != nil || dir == "" {
		return nil, err
	}
	return readStatus(dir)
}

type patterns struct {
	uniq     *regexp.Regexp
	handlers *regexp.Regexp
	event    *regexp.Regexp
}

var compiled = sync.OnceValue(func() patterns {
	return patterns{
		uniq:     regexp.MustCompile(`^U: Uniq=(\S+)`),
		handlers: regexp.MustCompile(`^H: Handlers=(.*)$`),
		event:    regexp.MustCompile(`\bevent\d+\b`),
	}
})

// parseDevices maps event device paths to the address of their device.
func parseDevices(r io.Reader, inputDir string) (map[string]string, error) {
	p := compiled()
	result := make(map[string]string)
	address := ""

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.TrimSpace(line) == "":
			// end of a device block
			address = ""
		case p.uniq.MatchString(line):
			address = p.uniq.FindStringSubmatch(line)[1]
		case p.handlers.MatchString(line):
			if address == "" {
				continue
			}
			handlers := p.handlers.FindStringSubmatch(line)[1]
			for _, event := range p.event.FindAllString(handlers, -1) {
				result[filepath.Join(inputDir, event)] = address
			}
		}
	}
	return result, scanner.Err()
}

func findSupplyDir(supplyDir, address string) (string, error) {
	entries, err := os.ReadDir(supplyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	address = strings.ToLower(address)
	for _, entry := range entries {
		if strings.HasSuffix(strings.ToLower(entry.Name()), address) {
			return filepath.Join(supplyDir, entry.Name()), nil
		}
	}
	return "", nil
}

func readStatus(dir string) (*Status, error) {
	read := func(name string) (string, error) {
		b, err := os.ReadFile(filepath.Join(dir, name))
		return strings.TrimSpace(string(b)), err
	}

	capacityText, err := read("capacity")
	if err != nil {
		return nil, err
	}
	capacity, err := strconv.Atoi(capacityText)
	if err != nil {
		return nil, fmt.Errorf("parse capacity %q: %w", capacityText, err)
	}
	state, err := read("status")
	if err != nil {
		return nil, err
	}
	kind, err := read("type")
	if err != nil {
		return nil, err
	}
	return &Status{Capacity: capacity, State: state, Type: kind}, nil
}
