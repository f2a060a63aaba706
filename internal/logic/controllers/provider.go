// Package controllers keeps track of the connected gamepads.
//
// Every tracked device gets a reader goroutine that forwards its events
// into one shared channel, so the event loop waits on all pads at once.
// A pad that disconnects cannot come back under the same path until the
// debounce window has passed: unplug/replug and driver re-announcements
// otherwise spawn duplicate devices.
package controllers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cjeanneret/RoverGo/internal/debug"
	"github.com/cjeanneret/RoverGo/internal/hw/gamepad"
	"github.com/cjeanneret/RoverGo/internal/hw/power"
)

// Default settings.
const (
	DefaultDebounceWindow = time.Second
	DefaultRumbleDuration = 300 * time.Millisecond
)

// Device is a connected gamepad. *gamepad.Device implements it.
type Device interface {
	Path() string
	Name() string
	ReadEvent() (gamepad.Event, error)
	Rumble(strength float64, d time.Duration) error
	Close() error
}

// Opener opens the device at path.
type Opener func(path string) (Device, error)

// OpenGamepad opens an evdev gamepad.
func OpenGamepad(path string) (Device, error) {
	dev, err := gamepad.Open(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Config holds the provider settings. Zero values use the defaults.
type Config struct {
	DebounceWindow time.Duration
	RumbleDuration time.Duration
	PowerLookup    func(path string) (*power.Status, error)
	Now            func() time.Time
}

// Envelope is an event tagged with the device it came from.
// The device id is the device path.
type Envelope struct {
	DeviceID string
	Event    gamepad.Event

	dev Device
}

// Provider owns the connected gamepads.
type Provider struct {
	open Opener
	cfg  Config

	mu           sync.Mutex
	devices      map[string]Device
	disconnected map[string]time.Time

	events chan Envelope
	done   chan struct{}
	once   sync.Once
}

func NewProvider(open Opener, cfg Config) *Provider {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.RumbleDuration <= 0 {
		cfg.RumbleDuration = DefaultRumbleDuration
	}
	if cfg.PowerLookup == nil {
		cfg.PowerLookup = power.Check
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Provider{
		open:         open,
		cfg:          cfg,
		devices:      make(map[string]Device),
		disconnected: make(map[string]time.Time),
		events:       make(chan Envelope),
		done:         make(chan struct{}),
	}
}

// TryCreateNewDevice opens and tracks the device at path. It returns nil
// without error when the path is already tracked or was disconnected
// less than the debounce window ago.
func (p *Provider) TryCreateNewDevice(path string) (Device, error) {
	dev, err := p.Open(path)
	if dev == nil || err != nil {
		return nil, err
	}
	if !p.Adopt(path, dev) {
		return nil, nil
	}
	return dev, nil
}

// Blocked reports whether path is tracked or still inside its debounce
// window.
func (p *Provider) Blocked(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blockedLocked(path)
}

// Open opens the device at path without tracking it. It returns nil
// without error when the path is blocked. Opening may wait for udev,
// so callers that must stay responsive run it on their own goroutine.
func (p *Provider) Open(path string) (Device, error) {
	if p.Blocked(path) {
		return nil, nil
	}
	return p.open(path)
}

// Adopt tracks a device returned by Open and starts its reader. The
// checks are repeated: if path got blocked while opening, dev is closed
// and Adopt returns false.
func (p *Provider) Adopt(path string, dev Device) bool {
	p.mu.Lock()
	if p.blockedLocked(path) {
		p.mu.Unlock()
		_ = dev.Close()
		return false
	}
	p.devices[path] = dev
	p.mu.Unlock()

	debug.Device("connected", path, dev.Name())
	go p.read(path, dev)
	return true
}

func (p *Provider) blockedLocked(path string) bool {
	if _, ok := p.devices[path]; ok {
		return true
	}
	at, ok := p.disconnected[path]
	if !ok {
		return false
	}
	if p.cfg.Now().Sub(at) < p.cfg.DebounceWindow {
		debug.Verbose("Gamepad: %s reconnect within debounce window, ignored", path)
		return true
	}
	delete(p.disconnected, path)
	return false
}

// read forwards the events of one device until it fails, then reports
// a disconnect.
func (p *Provider) read(id string, dev Device) {
	for {
		ev, err := dev.ReadEvent()
		if err != nil {
			debug.Verbose("Gamepad: %s read ended: %v", id, err)
			ev = gamepad.Event{Kind: gamepad.Disconnect}
		}
		select {
		case p.events <- Envelope{DeviceID: id, Event: ev, dev: dev}:
		case <-p.done:
			return
		}
		if ev.Kind == gamepad.Disconnect {
			return
		}
	}
}

// Events is the fan-in of all device readers. Pass every received
// envelope to Accept before using it.
func (p *Provider) Events() <-chan Envelope {
	return p.events
}

// Accept applies the bookkeeping of an envelope received from Events.
// It returns false for events of devices that are no longer tracked.
// A disconnect removes the device and starts its debounce window.
func (p *Provider) Accept(env Envelope) bool {
	p.mu.Lock()
	dev, ok := p.devices[env.DeviceID]
	if !ok || dev != env.dev {
		p.mu.Unlock()
		return false
	}
	if env.Event.Kind == gamepad.Disconnect {
		p.removeLocked(env.DeviceID)
	}
	p.mu.Unlock()

	if env.Event.Kind == gamepad.Disconnect {
		debug.Device("disconnected", env.DeviceID, dev.Name())
		_ = dev.Close()
	}
	return true
}

// NextEvent waits for the next event of any tracked device.
func (p *Provider) NextEvent(ctx context.Context) (Envelope, error) {
	for {
		select {
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		case env := <-p.events:
			if p.Accept(env) {
				return env, nil
			}
		}
	}
}

// Remove forgets the device with the given id, closes it and starts its
// debounce window. Removing an unknown id does nothing.
func (p *Provider) Remove(id string) {
	p.mu.Lock()
	dev, ok := p.devices[id]
	if ok {
		p.removeLocked(id)
	}
	p.mu.Unlock()

	if ok {
		debug.Device("removed", id, dev.Name())
		_ = dev.Close()
	}
}

func (p *Provider) removeLocked(id string) {
	delete(p.devices, id)
	p.disconnected[id] = p.cfg.Now()
}

// Rumble shakes the device. Unknown ids are ignored.
func (p *Provider) Rumble(id string, intensity float64) error {
	dev := p.lookup(id)
	if dev == nil {
		debug.Verbose("Gamepad: rumble for %s ignored, not connected", id)
		return nil
	}
	return dev.Rumble(intensity, p.cfg.RumbleDuration)
}

// CheckPower returns the battery state of the device. Unknown ids, and
// pads without a battery, give a nil status.
func (p *Provider) CheckPower(id string) (*power.Status, error) {
	dev := p.lookup(id)
	if dev == nil {
		debug.Verbose("Gamepad: power check for %s ignored, not connected", id)
		return nil, nil
	}
	return p.cfg.PowerLookup(dev.Path())
}

// Devices returns the ids of the tracked devices, sorted.
func (p *Provider) Devices() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.devices))
	for id := range p.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops all readers and closes every device.
func (p *Provider) Close() error {
	p.once.Do(func() { close(p.done) })

	p.mu.Lock()
	devices := p.devices
	p.devices = make(map[string]Device)
	p.mu.Unlock()

	for _, dev := range devices {
		_ = dev.Close()
	}
	return nil
}

func (p *Provider) lookup(id string) Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.devices[id]
}
