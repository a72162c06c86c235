package orientation

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidAlpha is returned when a blend factor is outside [0, 1].
var ErrInvalidAlpha = errors.New("alpha must be within [0, 1]")

// Guard selects how a Filter treats accelerometer samples for which the
// tilt formulas are undefined.
type Guard int

const (
	// GuardNone applies the formulas as-is; Inf and NaN propagate.
	GuardNone Guard = iota
	// GuardHold clamps X/g into [-1, 1] and keeps the previous pitch when Z is 0.
	GuardHold
)

// ParseGuard parses "none" or "hold".
func ParseGuard(s string) (Guard, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return GuardNone, nil
	case "hold":
		return GuardHold, nil
	default:
		return GuardNone, fmt.Errorf("unknown filter guard %q (want none or hold)", s)
	}
}

func (g Guard) String() string {
	switch g {
	case GuardNone:
		return "none"
	case GuardHold:
		return "hold"
	default:
		return fmt.Sprintf("Guard(%d)", int(g))
	}
}

// Filter is a complementary filter bound to one sensor. It owns the State
// threaded between steps. A Filter is not safe for concurrent use.
type Filter struct {
	alpha float64
	guard Guard
	state State
}

// NewFilter returns a Filter seeded with the zero State.
func NewFilter(alpha float64, guard Guard) (*Filter, error) {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidAlpha, alpha)
	}
	return &Filter{alpha: alpha, guard: guard}, nil
}

// Alpha returns the blend factor.
func (f *Filter) Alpha() float64 { return f.alpha }

// State returns the state that the next Update will start from.
func (f *Filter) State() State { return f.state }

// Reset drops the carried state.
func (f *Filter) Reset() { f.state = State{} }

// Update fuses one accelerometer and one gyroscope sample taken dt seconds
// after the previous ones.
func (f *Filter) Update(accel, rate Sample, dt float64) Euler {
	var accelEst Euler
	if f.guard == GuardHold {
		accelEst = heldAccelerometerEstimate(accel, f.state.Estimate)
	} else {
		accelEst = AccelerometerEstimate(accel)
	}

	out, next := step(accelEst, rate, f.state, dt, f.alpha)
	f.state = next
	return out
}

func heldAccelerometerEstimate(accel Sample, prev Euler) Euler {
	ratio := accel.X / StandardGravity
	if ratio > 1 {
		ratio = 1
	} else if ratio < -1 {
		ratio = -1
	}

	est := Euler{Roll: math.Asin(ratio)}
	if accel.Z == 0 {
		est.Pitch = prev.Pitch
	} else {
		est.Pitch = math.Atan(accel.Y / accel.Z)
	}
	return est
}
