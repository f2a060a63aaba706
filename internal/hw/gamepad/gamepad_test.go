package gamepad

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

func TestRawEventRoundTrip(t *testing.T) {
	want := rawEvent{typ: evAbs, code: absRY, value: -1234}
	buf := encodeRaw(want)
	if len(buf) != inputEventSize {
		t.Fatalf("encoded size = %d, want %d", len(buf), inputEventSize)
	}
	if got := decodeRaw(buf); got != want {
		t.Errorf("decodeRaw = %+v, want %+v", got, want)
	}
}

func TestDecoder_Buttons(t *testing.T) {
	d := &decoder{}
	tests := []struct {
		name   string
		raw    rawEvent
		want   Event
		wantOK bool
	}{
		{"south press", rawEvent{evKey, btnSouth, 1}, Event{Kind: Button, Control: South, Pressed: true}, true},
		{"south release", rawEvent{evKey, btnSouth, 0}, Event{Kind: Button, Control: South}, true},
		{"select press", rawEvent{evKey, btnSelect, 1}, Event{Kind: Button, Control: Select, Pressed: true}, true},
		{"mode press", rawEvent{evKey, btnMode, 1}, Event{Kind: Button, Control: Mode, Pressed: true}, true},
		{"key repeat dropped", rawEvent{evKey, btnEast, keyRepeat}, Event{}, false},
		{"unknown key", rawEvent{evKey, 0x120, 1}, Event{}, false},
		{"sync report", rawEvent{evSyn, 0, 0}, Event{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.decode(tt.raw)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("decode = (%+v, %t), want (%+v, %t)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDecoder_AxesNormalized(t *testing.T) {
	d := &decoder{axes: map[uint16]absRange{
		absY: {min: -32768, max: 32767},
		absZ: {min: 0, max: 255},
	}}
	tests := []struct {
		name    string
		code    uint16
		value   int32
		control Control
		want    float64
	}{
		{"stick min", absY, -32768, LeftStickY, -1},
		{"stick max", absY, 32767, LeftStickY, 1},
		{"trigger released", absZ, 0, LeftTrigger, -1},
		{"trigger full", absZ, 255, LeftTrigger, 1},
		{"unknown range uses 16-bit", absRY, 32767, RightStickY, 1},
		{"clamped", absZ, 400, LeftTrigger, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := d.decode(rawEvent{evAbs, tt.code, tt.value})
			if !ok {
				t.Fatal("axis event dropped")
			}
			if ev.Kind != Axis || ev.Control != tt.control {
				t.Errorf("event = %+v, want axis %v", ev, tt.control)
			}
			if math.Abs(ev.Value-tt.want) > 1e-9 {
				t.Errorf("value = %g, want %g", ev.Value, tt.want)
			}
		})
	}
}

func TestIoctlSizes(t *testing.T) {
	if got := unsafe.Sizeof(absInfo{}); got != 24 {
		t.Errorf("sizeof(input_absinfo) = %d, want 24", got)
	}
	want := uintptr(48)
	if unsafe.Sizeof(uintptr(0)) == 4 {
		want = 44
	}
	if got := unsafe.Sizeof(ffEffect{}); got != want {
		t.Errorf("sizeof(ff_effect) = %d, want %d", got, want)
	}
	if got := eviocgname(256); got != 0x81004506 {
		t.Errorf("EVIOCGNAME(256) = %#x", got)
	}
	if got := eviocgabs(absY); got != 0x80184541 {
		t.Errorf("EVIOCGABS(ABS_Y) = %#x", got)
	}
}

func inotifyRecord(name string) []byte {
	nameLen := (len(name) + 1 + 3) &^ 3 // NUL-terminated, padded
	buf := make([]byte, unix.SizeofInotifyEvent+nameLen)
	binary.NativeEndian.PutUint32(buf[4:], unix.IN_CREATE)
	binary.NativeEndian.PutUint32(buf[12:], uint32(nameLen))
	copy(buf[unix.SizeofInotifyEvent:], name)
	return buf
}

func TestParseInotify(t *testing.T) {
	var buf []byte
	buf = append(buf, inotifyRecord("event3")...)
	buf = append(buf, inotifyRecord("js0")...)
	buf = append(buf, inotifyRecord("event12")...)

	got := parseInotify(buf)
	want := []string{"event3", "js0", "event12"}
	if len(got) != len(want) {
		t.Fatalf("parseInotify = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("name %d = %q, want %q", i, got[i], want[i])
		}
	}

	// A truncated trailing record is ignored.
	if got := parseInotify(buf[:len(buf)-4]); len(got) != 2 {
		t.Errorf("truncated buffer: got %v, want 2 names", got)
	}
}

func nextPath(t *testing.T, paths <-chan string) string {
	t.Helper()
	select {
	case p, ok := <-paths:
		if !ok {
			t.Fatal("watch channel closed")
		}
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a device path")
		return ""
	}
}

func TestWatch_ExistingAndCreated(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"event0", "mice", "js0"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	paths, err := Watch(ctx, dir)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if got := nextPath(t, paths); got != filepath.Join(dir, "event0") {
		t.Errorf("first path = %q, want existing event0", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "event7"), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if got := nextPath(t, paths); got != filepath.Join(dir, "event7") {
		t.Errorf("created path = %q, want event7", got)
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-paths:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("watch channel not closed after cancel")
		}
	}
}

func TestOpen_NotAnEventDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event0")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("Open on a regular file should fail")
	}
}
