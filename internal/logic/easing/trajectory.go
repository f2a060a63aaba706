// Package easing produces smooth speed ramps between two setpoints.
package easing

import "math"

// nominalDuration replaces a zero travel duration so a trajectory with
// start == end never divides by zero.
const nominalDuration = 1.0

// progressEpsilon absorbs the float drift of summing timeStep/duration.
const progressEpsilon = 1e-9

// Trajectory interpolates from Start to End with an ease-out-cubic profile.
// The travel duration is proportional to the distance: |end-start| × durationPerUnit.
//
// Retarget returns a new value; holders replace their copy instead of
// mutating a trajectory in flight.
type Trajectory struct {
	start           float64
	end             float64
	durationPerUnit float64 // seconds for a distance of 1.0
	timeStep        float64 // seconds per Advance
	elapsed         float64 // normalized progress, 0..1
}

// New returns a trajectory from start to end.
// durationPerUnit and timeStep are in seconds.
func New(start, end, durationPerUnit, timeStep float64) Trajectory {
	return Trajectory{
		start:           start,
		end:             end,
		durationPerUnit: durationPerUnit,
		timeStep:        timeStep,
	}
}

// Retarget returns a copy with new endpoints and progress reset.
func (t Trajectory) Retarget(start, end float64) Trajectory {
	t.start = start
	t.end = end
	t.elapsed = 0
	return t
}

// Advance moves one time step forward and returns the new value.
func (t *Trajectory) Advance() float64 {
	duration := math.Abs(t.end-t.start) * t.durationPerUnit
	if duration <= 0 {
		duration = nominalDuration
	}
	t.elapsed += t.timeStep / duration
	if t.elapsed >= 1-progressEpsilon {
		t.elapsed = 1
	}
	t.elapsed = clamp(t.elapsed, 0, 1)
	return t.Value()
}

// Value returns the current interpolated value without advancing.
func (t Trajectory) Value() float64 {
	if t.elapsed >= 1 {
		return t.end
	}
	return t.start + (t.end-t.start)*EaseOutCubic(t.elapsed)
}

// Finished reports whether the end value has been reached.
func (t Trajectory) Finished() bool {
	return t.elapsed >= 1 || t.start == t.end
}

func (t Trajectory) Start() float64 { return t.start }
func (t Trajectory) End() float64   { return t.end }

// EaseOutCubic maps normalized time t in [0,1] to 1 + (t-1)^3.
// Fast start, soft landing.
func EaseOutCubic(t float64) float64 {
	u := t - 1
	return 1 + u*u*u
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
