package orientation

import (
	"math"
	"testing"
)

const eps = 1e-12

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestAccelerometerEstimate(t *testing.T) {
	tests := []struct {
		name  string
		accel Sample
		want  Euler
	}{
		{"level", Sample{0, 0, StandardGravity}, Euler{}},
		{"roll on x", Sample{StandardGravity, 0, 0.0001}, Euler{Roll: math.Pi / 2}},
		{"pitch 45", Sample{0, 1, 1}, Euler{Pitch: math.Pi / 4}},
		{"upside down", Sample{0, 0, -StandardGravity}, Euler{Pitch: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AccelerometerEstimate(tt.accel)
			if !near(got.Pitch, tt.want.Pitch, eps) || !near(got.Roll, tt.want.Roll, eps) || got.Yaw != 0 {
				t.Fatalf("AccelerometerEstimate(%+v) = %+v, want %+v", tt.accel, got, tt.want)
			}
		})
	}
}

func TestAccelerometerEstimateRollFromGravity(t *testing.T) {
	got := AccelerometerEstimate(Sample{X: StandardGravity, Y: 0, Z: 0})
	if got.Roll != math.Asin(1) {
		t.Fatalf("roll = %v, want %v", got.Roll, math.Pi/2)
	}
}

func TestAccelerometerEstimateUndefinedInputs(t *testing.T) {
	got := AccelerometerEstimate(Sample{X: 0, Y: 0, Z: 0})
	if !math.IsNaN(got.Pitch) {
		t.Errorf("0/0 pitch = %v, want NaN", got.Pitch)
	}

	got = AccelerometerEstimate(Sample{X: 0, Y: 1, Z: 0})
	if !near(got.Pitch, math.Pi/2, eps) {
		t.Errorf("y/0 pitch = %v, want pi/2", got.Pitch)
	}

	got = AccelerometerEstimate(Sample{X: 2 * StandardGravity, Y: 0, Z: 1})
	if !math.IsNaN(got.Roll) {
		t.Errorf("|x| > g roll = %v, want NaN", got.Roll)
	}
}

func TestGyroscopeEstimate(t *testing.T) {
	// Level attitude: the transform is the identity on x/y.
	got := GyroscopeEstimate(Sample{X: 0.1, Y: 0.2, Z: 0.3}, Euler{})
	if !near(got.Pitch, 0.1, eps) || !near(got.Roll, 0.2, eps) || got.Yaw != 0 {
		t.Fatalf("level transform = %+v", got)
	}

	prev := Euler{Pitch: 0.3, Roll: -0.2, Yaw: 1}
	rate := Sample{X: 0.5, Y: -0.4, Z: 0.25}
	wantPitch := rate.X + math.Sin(prev.Roll)*(rate.Y*math.Sin(prev.Pitch)+rate.Z*math.Cos(prev.Pitch))
	wantRoll := rate.Y*math.Cos(prev.Roll) - rate.Z*math.Sin(prev.Pitch)

	got = GyroscopeEstimate(rate, prev)
	if !near(got.Pitch, wantPitch, eps) || !near(got.Roll, wantRoll, eps) || got.Yaw != 0 {
		t.Fatalf("GyroscopeEstimate = %+v, want pitch=%v roll=%v yaw=0", got, wantPitch, wantRoll)
	}
}

func TestIntegrateTrapezoidalConstantRate(t *testing.T) {
	const (
		r  = 0.75
		dt = 0.01
		n  = 1000
	)

	var acc float64
	for i := 0; i < n; i++ {
		acc = IntegrateTrapezoidal(acc, r, r, dt)
	}
	if want := n * r * dt; !near(acc, want, 1e-9) {
		t.Fatalf("integral = %v, want %v", acc, want)
	}
}

func TestIntegrateTrapezoidalLinearRateIsExact(t *testing.T) {
	// rate(t) = t integrates to t²/2; the trapezoid rule is exact for lines.
	const dt = 0.1
	var acc, prev float64
	for i := 1; i <= 50; i++ {
		cur := float64(i) * dt
		acc = IntegrateTrapezoidal(acc, cur, prev, dt)
		prev = cur
	}
	if want := 5.0 * 5.0 / 2; !near(acc, want, 1e-9) {
		t.Fatalf("integral = %v, want %v", acc, want)
	}
}

func TestIntegrateRiemann(t *testing.T) {
	if got := IntegrateRiemann(1, 2, 0.5); got != 2 {
		t.Fatalf("IntegrateRiemann = %v, want 2", got)
	}
}

func TestComplementaryAlphaZeroFollowsAccelerometer(t *testing.T) {
	accel := Euler{Pitch: 0.2, Roll: -0.1}
	gyro := Euler{Pitch: 5, Roll: -3, Yaw: 0.4}
	gyroPrev := Euler{Pitch: 1, Roll: 2, Yaw: 0.2}
	prev := Euler{Pitch: 0.7, Roll: 0.6, Yaw: 0.1}

	got := Complementary(accel, gyro, gyroPrev, prev, 0.02, 0)
	if got.Pitch != accel.Pitch || got.Roll != accel.Roll {
		t.Fatalf("alpha=0 fused = %+v, want accel %+v", got, accel)
	}
}

func TestComplementaryAlphaOneFollowsGyroscope(t *testing.T) {
	accel := Euler{Pitch: 0.2, Roll: -0.1}
	gyro := Euler{Pitch: 5, Roll: -3, Yaw: 0.4}
	gyroPrev := Euler{Pitch: 1, Roll: 2, Yaw: 0.2}
	prev := Euler{Pitch: 0.7, Roll: 0.6, Yaw: 0.1}
	const dt = 0.02

	got := Complementary(accel, gyro, gyroPrev, prev, dt, 1)
	wantPitch := IntegrateTrapezoidal(prev.Pitch, gyroPrev.Pitch, gyro.Pitch, dt)
	wantRoll := IntegrateTrapezoidal(prev.Roll, gyroPrev.Roll, gyro.Roll, dt)
	if got.Pitch != wantPitch || got.Roll != wantRoll {
		t.Fatalf("alpha=1 fused = %+v, want pitch=%v roll=%v", got, wantPitch, wantRoll)
	}
}

func TestComplementaryYawIgnoresAlphaAndAccelerometer(t *testing.T) {
	gyro := Euler{Yaw: 0.4}
	gyroPrev := Euler{Yaw: 0.2}
	prev := Euler{Yaw: 1}
	const dt = 0.5
	want := IntegrateTrapezoidal(prev.Yaw, gyro.Yaw, gyroPrev.Yaw, dt)

	for _, alpha := range []float64{0, 0.3, 0.98, 1} {
		for _, accel := range []Euler{{}, {Pitch: 1, Roll: 1, Yaw: 7}} {
			got := Complementary(accel, gyro, gyroPrev, prev, dt, alpha)
			if got.Yaw != want {
				t.Fatalf("alpha=%v accel=%+v yaw = %v, want %v", alpha, accel, got.Yaw, want)
			}
		}
	}
}

func TestStepSteadyStateLevel(t *testing.T) {
	accel := Sample{0, 0, StandardGravity}
	var state State

	for i := 0; i < 2; i++ {
		var out Euler
		out, state = Step(accel, Sample{}, state, 0.01, 0.98)
		if out != (Euler{}) {
			t.Fatalf("step %d: fused = %+v, want zero", i, out)
		}
	}
	if state != (State{}) {
		t.Fatalf("state drifted: %+v", state)
	}
}

func TestStepCarriesGyroStateWithRawYaw(t *testing.T) {
	accel := Sample{0, 0, StandardGravity}
	rate := Sample{X: 0.1, Y: 0.2, Z: 0.3}
	const dt = 0.1

	out, state := Step(accel, rate, State{}, dt, 0.5)

	if state.GyroRate.Yaw != rate.Z {
		t.Errorf("carried gyro yaw = %v, want raw rate %v", state.GyroRate.Yaw, rate.Z)
	}
	if state.GyroRate.Pitch != 0.1 || state.GyroRate.Roll != 0.2 {
		t.Errorf("carried gyro rate = %+v", state.GyroRate)
	}
	if state.Estimate != out {
		t.Errorf("carried estimate = %+v, want %+v", state.Estimate, out)
	}
	// First step integrates from a zero previous rate.
	if want := (0.3 + 0) / 2 * dt; !near(out.Yaw, want, eps) {
		t.Errorf("yaw = %v, want %v", out.Yaw, want)
	}
	if want := 0.5 * (0.1 / 2 * dt); !near(out.Pitch, want, eps) {
		t.Errorf("pitch = %v, want %v", out.Pitch, want)
	}
}

func TestStepYawIsPureGyroIntegration(t *testing.T) {
	const (
		wz = 0.5
		dt = 0.01
		n  = 200
	)
	tilted := Sample{X: 1, Y: 2, Z: 9}

	var state State
	var out Euler
	for i := 0; i < n; i++ {
		out, state = Step(tilted, Sample{Z: wz}, state, dt, 0.3)
	}
	// First step averages against a zero rate: half a step is lost.
	want := wz*dt*n - wz*dt/2
	if !near(out.Yaw, want, 1e-9) {
		t.Fatalf("yaw = %v, want %v", out.Yaw, want)
	}
}
