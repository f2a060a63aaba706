package host

import (
	"reflect"
	"testing"
)

func TestSwitch_DisabledIsNoop(t *testing.T) {
	off := Switch(false)
	if err := off(); err != nil {
		t.Errorf("disabled power off returned %v", err)
	}
}

func TestSwitch_EnabledIsPowerOff(t *testing.T) {
	got := reflect.ValueOf(Switch(true)).Pointer()
	want := reflect.ValueOf(PowerOff).Pointer()
	if got != want {
		t.Error("Switch(true) did not return PowerOff")
	}
}
