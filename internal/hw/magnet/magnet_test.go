package magnet

import (
	"errors"
	"testing"
	"time"

	"github.com/cjeanneret/RoverGo/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls    []gpioCall
	failNext bool
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	if d.failNext {
		d.failNext = false
		return errors.New("write failed")
	}
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) SetupPWM(pin int, freqHz int) error { return nil }

func (d *recordingDriver) SetDutyCycle(pin int, duty float64) error { return nil }

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writeCalls() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

func TestMagnet_InitializedHolding(t *testing.T) {
	drv := &recordingDriver{}
	if _, err := New(drv, 4, 0); err != nil {
		t.Fatalf("New: %v", err)
	}

	writes := drv.writeCalls()
	if len(writes) != 1 || writes[0].pin != 4 || writes[0].level != gpio.High {
		t.Errorf("magnet should be initialized HIGH (holding), got %v", writes)
	}
}

func TestMagnet_DefaultPulse(t *testing.T) {
	m, err := New(&recordingDriver{}, 4, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Pulse() != DefaultPulse {
		t.Errorf("Pulse() = %v, want %v", m.Pulse(), DefaultPulse)
	}
}

func TestMagnet_ReleaseSequence(t *testing.T) {
	drv := &recordingDriver{}
	m, err := New(drv, 4, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var slept []time.Duration
	m.sleep = func(d time.Duration) { slept = append(slept, d) }
	drv.calls = nil // reset after init

	if err := m.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	expected := []struct {
		level gpio.Level
		desc  string
	}{
		{gpio.Low, "de-energize"},
		{gpio.High, "hold again"},
	}
	writes := drv.writeCalls()
	if len(writes) != len(expected) {
		t.Fatalf("expected %d writes, got %d: %v", len(expected), len(writes), writes)
	}
	for i, exp := range expected {
		if writes[i].pin != 4 || writes[i].level != exp.level {
			t.Errorf("step %d (%s): pin=%d level=%v, want pin=4 level=%v",
				i, exp.desc, writes[i].pin, writes[i].level, exp.level)
		}
	}
	if len(slept) != 1 || slept[0] != 150*time.Millisecond {
		t.Errorf("expected a single 150ms pulse, slept %v", slept)
	}
}

func TestMagnet_ReleaseWriteError(t *testing.T) {
	drv := &recordingDriver{}
	m, err := New(drv, 4, time.Microsecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	drv.failNext = true

	if err := m.Release(); err == nil {
		t.Error("expected error when the release write fails")
	}
}

func TestMagnet_InitWriteError(t *testing.T) {
	drv := &recordingDriver{failNext: true}
	if _, err := New(drv, 4, 0); err == nil {
		t.Error("expected init error when the holding write fails")
	}
}
