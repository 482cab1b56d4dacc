package ducking

import (
	"time"

	"github.com/oszuidwest/zwfm-ducker/internal/registry"
	"github.com/oszuidwest/zwfm-ducker/internal/types"
)

const (
	// gainEpsilon is the distance at which a ramp snaps to its target.
	gainEpsilon = 1e-3
	// writeEpsilon is the minimum gain change worth sending to the server.
	// Smaller deltas are inaudible and would only flood the write queue.
	writeEpsilon = 0.005
)

// rampStep converts the configured ramp duration into the gain change per
// tick. The rate covers the full 0..1 scale in rampDuration, so shorter
// ramps (smaller gaps) finish proportionally sooner and a reversed ramp
// moves at the same audible speed in both directions.
func rampStep(tick, rampDuration time.Duration) float64 {
	if rampDuration <= 0 {
		return types.MaxGain
	}
	return tick.Seconds() / rampDuration.Seconds()
}

// advanceGain moves current toward target by at most step, without
// overshoot. Reports whether the target was reached this tick.
func advanceGain(current, target, step float64) (next float64, reached bool) {
	diff := target - current
	if diff > -gainEpsilon && diff < gainEpsilon {
		return target, true
	}
	if diff > 0 {
		next = current + step
		if next >= target {
			return target, true
		}
	} else {
		next = current - step
		if next <= target {
			return target, true
		}
	}
	return next, false
}

// advanceStream runs one gain-controller tick for a single stream: advance
// the ramp, complete the state transition on arrival, and report whether
// the new gain differs enough from the last written value to be flushed.
func advanceStream(s *registry.TrackedStream, step float64) (write bool) {
	if s.CurrentGain == s.TargetGain {
		return false
	}

	next, reached := advanceGain(s.CurrentGain, s.TargetGain, step)
	s.CurrentGain = next

	if reached {
		switch s.State {
		case types.DuckDucking:
			s.State = types.DuckDucked
		case types.DuckUnducking:
			s.State = types.DuckUnducked
		}
		// Always flush the exact final value unless it was already written.
		return s.CurrentGain != s.LastWritten
	}

	delta := s.CurrentGain - s.LastWritten
	return delta > writeEpsilon || delta < -writeEpsilon
}
