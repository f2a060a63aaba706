package gamepad

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Kind is the kind of a gamepad event.
type Kind int

const (
	Button Kind = iota
	Axis
	Disconnect
)

func (k Kind) String() string {
	switch k {
	case Button:
		return "button"
	case Axis:
		return "axis"
	case Disconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Control names a button or an axis, using the evdev gamepad layout
// (South is A on an Xbox pad, Cross on a PlayStation pad).
type Control int

const (
	ControlUnknown Control = iota
	South
	East
	North
	West
	Select
	Start
	Mode
	LeftStickX
	LeftStickY
	RightStickX
	RightStickY
	LeftTrigger
	RightTrigger
)

var controlNames = map[Control]string{
	ControlUnknown: "unknown",
	South:          "south",
	East:           "east",
	North:          "north",
	West:           "west",
	Select:         "select",
	Start:          "start",
	Mode:           "mode",
	LeftStickX:     "left-x",
	LeftStickY:     "left-y",
	RightStickX:    "right-x",
	RightStickY:    "right-y",
	LeftTrigger:    "left-trigger",
	RightTrigger:   "right-trigger",
}

func (c Control) String() string {
	if name, ok := controlNames[c]; ok {
		return name
	}
	return fmt.Sprintf("control(%d)", int(c))
}

// Event is one decoded gamepad input.
type Event struct {
	Kind    Kind
	Control Control
	Pressed bool    // Button only
	Value   float64 // Axis only, normalized to [-1,1]
}

func (e Event) String() string {
	switch e.Kind {
	case Button:
		return fmt.Sprintf("%s pressed=%t", e.Control, e.Pressed)
	case Axis:
		return fmt.Sprintf("%s=%.3f", e.Control, e.Value)
	default:
		return e.Kind.String()
	}
}

// evdev event types and codes (linux/input-event-codes.h)
const (
	evSyn = 0x00
	evKey = 0x01
	evAbs = 0x03
	evFF  = 0x15

	btnSouth  = 0x130
	btnEast   = 0x131
	btnNorth  = 0x133
	btnWest   = 0x134
	btnSelect = 0x13a
	btnStart  = 0x13b
	btnMode   = 0x13c

	absX  = 0x00
	absY  = 0x01
	absZ  = 0x02
	absRX = 0x03
	absRY = 0x04
	absRZ = 0x05

	keyMax = 0x2ff

	// value of a key event repeated by the kernel while held
	keyRepeat = 2
)

var buttonCodes = map[uint16]Control{
	btnSouth:  South,
	btnEast:   East,
	btnNorth:  North,
	btnWest:   West,
	btnSelect: Select,
	btnStart:  Start,
	btnMode:   Mode,
}

var axisCodes = map[uint16]Control{
	absX:  LeftStickX,
	absY:  LeftStickY,
	absZ:  LeftTrigger,
	absRX: RightStickX,
	absRY: RightStickY,
	absRZ: RightTrigger,
}

// struct input_event: a timeval followed by type, code and value.
var (
	timevalSize    = int(unsafe.Sizeof(unix.Timeval{}))
	inputEventSize = timevalSize + 8
)

type rawEvent struct {
	typ   uint16
	code  uint16
	value int32
}

func decodeRaw(b []byte) rawEvent {
	b = b[timevalSize:]
	return rawEvent{
		typ:   binary.NativeEndian.Uint16(b[0:]),
		code:  binary.NativeEndian.Uint16(b[2:]),
		value: int32(binary.NativeEndian.Uint32(b[4:])),
	}
}

func encodeRaw(e rawEvent) []byte {
	b := make([]byte, inputEventSize)
	p := b[timevalSize:]
	binary.NativeEndian.PutUint16(p[0:], e.typ)
	binary.NativeEndian.PutUint16(p[2:], e.code)
	binary.NativeEndian.PutUint32(p[4:], uint32(e.value))
	return b
}

// absRange is the reported range of an absolute axis.
type absRange struct {
	min, max int32
}

// decoder turns raw evdev records into Events.
type decoder struct {
	axes map[uint16]absRange
}

// decode returns the Event for a raw record, or false if the record is
// not one the rover listens to.
func (d *decoder) decode(raw rawEvent) (Event, bool) {
	switch raw.typ {
	case evKey:
		control, ok := buttonCodes[raw.code]
		if !ok || raw.value == keyRepeat {
			return Event{}, false
		}
		return Event{Kind: Button, Control: control, Pressed: raw.value != 0}, true
	case evAbs:
		control, ok := axisCodes[raw.code]
		if !ok {
			return Event{}, false
		}
		return Event{Kind: Axis, Control: control, Value: d.normalize(raw.code, raw.value)}, true
	default:
		return Event{}, false
	}
}

// normalize maps a raw axis value onto [-1,1] using the axis range.
func (d *decoder) normalize(code uint16, value int32) float64 {
	r, ok := d.axes[code]
	if !ok || r.max <= r.min {
		r = absRange{min: -32768, max: 32767}
	}
	v := 2*(float64(value)-float64(r.min))/(float64(r.max)-float64(r.min)) - 1
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
