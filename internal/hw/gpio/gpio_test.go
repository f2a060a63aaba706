package gpio

import "testing"

func TestMockDriver_WriteThenRead(t *testing.T) {
	m := &MockDriver{}
	if err := m.WritePin(4, High); err != nil {
		t.Fatalf("WritePin: %v", err)
	}
	got, err := m.ReadPin(4)
	if err != nil {
		t.Fatalf("ReadPin: %v", err)
	}
	if got != High {
		t.Errorf("ReadPin(4) = %v, want High", got)
	}
	if got, _ := m.ReadPin(5); got != Low {
		t.Errorf("unwritten pin should read Low, got %v", got)
	}
}

func TestMockDriver_DutyCycle(t *testing.T) {
	m := &MockDriver{}
	if err := m.SetupPWM(18, 75); err != nil {
		t.Fatalf("SetupPWM: %v", err)
	}
	if err := m.SetDutyCycle(18, 0.4); err != nil {
		t.Fatalf("SetDutyCycle: %v", err)
	}
	if got := m.DutyCycle(18); got != 0.4 {
		t.Errorf("DutyCycle(18) = %v, want 0.4", got)
	}
}

func TestMockDriver_RejectsInvalidPWM(t *testing.T) {
	m := &MockDriver{}
	if err := m.SetupPWM(18, 0); err == nil {
		t.Error("expected error for zero frequency")
	}
	for _, duty := range []float64{-0.1, 1.1} {
		if err := m.SetDutyCycle(18, duty); err == nil {
			t.Errorf("expected error for duty %v", duty)
		}
	}
}

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver(true): %v", err)
	}
	if _, ok := d.(*MockDriver); !ok {
		t.Errorf("NewDriver(true) returned %T, want *MockDriver", d)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
