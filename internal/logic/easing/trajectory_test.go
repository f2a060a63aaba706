package easing

import (
	"math"
	"testing"
)

const eps = 1e-9

func TestEaseOutCubic(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{1, 1},
		{0.5, 0.875},
	}
	for _, tt := range tests {
		if got := EaseOutCubic(tt.in); math.Abs(got-tt.want) > eps {
			t.Errorf("EaseOutCubic(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

func TestAdvance_MonotonicConvergence(t *testing.T) {
	const timeStep = 0.01

	tests := []struct {
		name            string
		start, end      float64
		durationPerUnit float64
	}{
		{"zero to full", 0, 1, 1},
		{"full to reverse", 1, -1, 1},
		{"half ramp", 0, 0.5, 1},
		{"reverse to stop slow", -1, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traj := New(tt.start, tt.end, tt.durationPerUnit, timeStep)
			duration := math.Abs(tt.end-tt.start) * tt.durationPerUnit
			maxTicks := int(math.Ceil(duration / timeStep))
			direction := math.Copysign(1, tt.end-tt.start)

			prev := tt.start
			ticks := 0
			for !traj.Finished() {
				if ticks > maxTicks {
					t.Fatalf("not finished after %d ticks (value %g)", ticks, traj.Value())
				}
				v := traj.Advance()
				if (v-prev)*direction < -eps {
					t.Fatalf("tick %d: value went backwards from %g to %g", ticks, prev, v)
				}
				prev = v
				ticks++
			}
			if ticks != maxTicks {
				t.Errorf("finished after %d ticks, want %d", ticks, maxTicks)
			}
			if math.Abs(traj.Value()-tt.end) > eps {
				t.Errorf("final value = %g, want %g", traj.Value(), tt.end)
			}
		})
	}
}

func TestAdvance_StaysAtEnd(t *testing.T) {
	traj := New(0, 1, 0.1, 0.05)
	for i := 0; i < 10; i++ {
		traj.Advance()
	}
	if !traj.Finished() || traj.Advance() != 1 {
		t.Errorf("finished trajectory should hold its end value, got %g", traj.Value())
	}
}

func TestRetarget_ResetsFinished(t *testing.T) {
	traj := New(0, 1, 0.1, 0.05)
	for !traj.Finished() {
		traj.Advance()
	}

	next := traj.Retarget(traj.Value(), -1)
	if next.Finished() {
		t.Error("retargeted trajectory should not be finished")
	}
	if next.Start() != 1 || next.End() != -1 {
		t.Errorf("Start/End = %g/%g, want 1/-1", next.Start(), next.End())
	}
	if next.Value() != 1 {
		t.Errorf("Value() right after retarget = %g, want start 1", next.Value())
	}

	// The receiver is left untouched.
	if !traj.Finished() || traj.End() != 1 {
		t.Error("Retarget must not mutate the receiver")
	}

	same := traj.Retarget(0.3, 0.3)
	if !same.Finished() {
		t.Error("retarget to the same value should be finished immediately")
	}
}

func TestZeroDistance(t *testing.T) {
	traj := New(0, 0, 1, 0.01)
	if !traj.Finished() {
		t.Error("zero-distance trajectory should be finished")
	}
	v := traj.Advance()
	if math.IsNaN(v) || math.IsInf(v, 0) || v != 0 {
		t.Errorf("Advance() = %g, want 0", v)
	}
}

func TestZeroDurationPerUnit(t *testing.T) {
	traj := New(0, 1, 0, 0.01)
	v := traj.Advance()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		t.Fatalf("Advance() = %g, want a finite value", v)
	}
}
