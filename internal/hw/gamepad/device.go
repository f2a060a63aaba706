// Package gamepad reads gamepads through the Linux evdev interface
// (/dev/input/event*) and discovers them as they are plugged in.
package gamepad

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cjeanneret/RoverGo/internal/debug"
)

// ErrNotGamepad is returned by Open for input devices without gamepad buttons.
var ErrNotGamepad = errors.New("not a gamepad")

// ioctl request numbers (linux/input.h), _IOC(dir, 'E', nr, size)
const (
	iocRead  = 2
	iocWrite = 1
)

func evIOC(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | 'E'<<8 | nr
}

func eviocgname(size int) uintptr { return evIOC(iocRead, 0x06, uintptr(size)) }
func eviocgbit(ev, size int) uintptr { return evIOC(iocRead, 0x20+uintptr(ev), uintptr(size)) }
func eviocgabs(abs uint16) uintptr { return evIOC(iocRead, 0x40+uintptr(abs), unsafe.Sizeof(absInfo{})) }
func eviocsff() uintptr { return evIOC(iocWrite, 0x80, unsafe.Sizeof(ffEffect{})) }

// struct input_absinfo
type absInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// struct ff_effect, with the union sized like ff_periodic_effect
// (its largest member, which ends with a pointer).
type ffEffect struct {
	Type            uint16
	ID              int16
	Direction       uint16
	TriggerButton   uint16
	TriggerInterval uint16
	ReplayLength    uint16
	ReplayDelay     uint16
	Union           ffUnion
}

type ffUnion struct {
	Data       [20]byte
	CustomLen  uint32
	CustomData uintptr
}

const ffRumble = 0x50

// Device is an opened evdev gamepad.
type Device struct {
	path string
	name string
	file *os.File
	dec  decoder
	buf  []byte

	mu       sync.Mutex
	effectID int16
}

// Open opens the event device at path. It fails with ErrNotGamepad
// when the device has no gamepad face buttons.
func Open(path string) (*Device, error) {
	f, err := openFilePersistent(path)
	if err != nil {
		return nil, err
	}
	d := &Device{
		path:     path,
		file:     f,
		dec:      decoder{axes: make(map[uint16]absRange)},
		buf:      make([]byte, inputEventSize),
		effectID: -1,
	}
	if err := d.identify(); err != nil {
		_ = f.Close()
		return nil, err
	}
	debug.Verbose("Gamepad: opened %s (%s), axes %v", path, d.name, d.dec.axes)
	return d, nil
}

func (d *Device) identify() error {
	keys := make([]byte, keyMax/8+1)
	if err := d.ioctl(eviocgbit(evKey, len(keys)), unsafe.Pointer(&keys[0])); err != nil {
		return fmt.Errorf("%s: read key bits: %w", d.path, err)
	}
	if keys[btnSouth/8]&(1<<(btnSouth%8)) == 0 {
		return fmt.Errorf("%s: %w", d.path, ErrNotGamepad)
	}

	name := make([]byte, 256)
	if err := d.ioctl(eviocgname(len(name)), unsafe.Pointer(&name[0])); err != nil {
		return fmt.Errorf("%s: read name: %w", d.path, err)
	}
	d.name = strings.TrimRight(string(name), "\x00")

	for code := range axisCodes {
		var info absInfo
		if err := d.ioctl(eviocgabs(code), unsafe.Pointer(&info)); err != nil {
			// axis not present on this pad
			continue
		}
		d.dec.axes[code] = absRange{min: info.Minimum, max: info.Maximum}
	}
	return nil
}

func (d *Device) Path() string { return d.path }
func (d *Device) Name() string { return d.name }

// ReadEvent blocks until the next relevant event. Records the rover does
// not use (sync, unknown keys, key repeats) are skipped. An error means the
// device is gone or closed.
func (d *Device) ReadEvent() (Event, error) {
	for {
		if _, err := io.ReadFull(d.file, d.buf); err != nil {
			return Event{}, err
		}
		if ev, ok := d.dec.decode(decodeRaw(d.buf)); ok {
			return ev, nil
		}
	}
}

// Rumble plays a rumble effect of the given strength in [0,1] for duration.
func (d *Device) Rumble(strength float64, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	magnitude := uint16(math.Round(math.Max(0, math.Min(1, strength)) * math.MaxUint16))
	effect := ffEffect{
		Type:         ffRumble,
		ID:           d.effectID,
		ReplayLength: uint16(min(max(duration.Milliseconds(), 0), math.MaxUint16)),
	}
	binary.NativeEndian.PutUint16(effect.Union.Data[0:], magnitude) // strong motor
	binary.NativeEndian.PutUint16(effect.Union.Data[2:], magnitude) // weak motor

	if err := d.ioctl(eviocsff(), unsafe.Pointer(&effect)); err != nil {
		return fmt.Errorf("%s: upload rumble: %w", d.path, err)
	}
	d.effectID = effect.ID

	play := encodeRaw(rawEvent{typ: evFF, code: uint16(effect.ID), value: 1})
	if _, err := d.file.Write(play); err != nil {
		return fmt.Errorf("%s: play rumble: %w", d.path, err)
	}
	return nil
}

// Close releases the device. A pending ReadEvent returns an error.
func (d *Device) Close() error {
	return d.file.Close()
}

// ioctl goes through SyscallConn so the file stays in non-blocking mode
// and Close can interrupt a pending read.
func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	conn, err := d.file.SyscallConn()
	if err != nil {
		return err
	}
	var errno unix.Errno
	err = conn.Control(func(fd uintptr) {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	})
	if err != nil {
		return err
	}
	if errno != 0 {
		return errno
	}
	return nil
}

// openFilePersistent retries while udev is still fixing the permissions
// of a freshly created device node.
func openFilePersistent(path string) (f *os.File, err error) {
	for i := 0; i < 5; i++ {
		f, err = os.OpenFile(path, os.O_RDWR, 0)
		if err == nil || !errors.Is(err, os.ErrPermission) {
			return f, err
		}
		time.Sleep(200 * time.Millisecond)
	}
	return nil, err
}
