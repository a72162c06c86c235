// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

// Amplitudes and yaw rate of the synthetic motion, in radians and rad/s.
const (
	mockRollAmplitude  = 20 * math.Pi / 180
	mockPitchAmplitude = 15 * math.Pi / 180
	mockYawRate        = 30 * math.Pi / 180
)

// mockAttitude returns the synthetic attitude and its time derivative at t.
func mockAttitude(t float64) (att, rate Euler) {
	sin07, cos07 := math.Sincos(t * 0.7)
	sinT, cosT := math.Sincos(t)
	att = Euler{
		Roll:  mockRollAmplitude * sinT,
		Pitch: mockPitchAmplitude * cos07,
		Yaw:   mockYawRate * t,
	}
	rate = Euler{
		Roll:  mockRollAmplitude * cosT,
		Pitch: -mockPitchAmplitude * 0.7 * sin07,
		Yaw:   mockYawRate,
	}
	return att, rate
}

// MockPose returns the attitude MockMotion describes at t, in degrees.
func MockPose(t float64) Pose {
	att, _ := mockAttitude(t)
	return PoseFromEuler(att)
}

// MockMotion returns the accelerometer and gyroscope samples of a sensor
// swaying smoothly t seconds after start while turning at a constant yaw rate.
// Pitch and roll follow the same conventions as AccelerometerEstimate, so a
// gravity-only accelerometer reproduces them exactly. The body rates are the
// ones GyroscopeEstimate maps back onto the attitude rates of MockPose.
func MockMotion(t float64) (accel, gyro Sample) {
	att, rate := mockAttitude(t)
	sinRoll, cosRoll := math.Sincos(att.Roll)
	sinPitch, cosPitch := math.Sincos(att.Pitch)

	accel = Sample{
		X: StandardGravity * sinRoll,
		Y: StandardGravity * cosRoll * sinPitch,
		Z: StandardGravity * cosRoll * cosPitch,
	}

	// |roll| stays at 20°, well away from cos(roll) = 0
	gyro.Z = rate.Yaw
	gyro.Y = (rate.Roll + gyro.Z*sinPitch) / cosRoll
	gyro.X = rate.Pitch - sinRoll*(gyro.Y*sinPitch+gyro.Z*cosPitch)
	return accel, gyro
}

type mockSource struct {
	start time.Time
	now   func() time.Time
}

// NewMockSource creates a ReadingSource generating MockMotion at the times
// reported by now. A nil now means time.Now.
func NewMockSource(now func() time.Time) ReadingSource {
	if now == nil {
		now = time.Now
	}
	return &mockSource{start: now(), now: now}
}

func (m *mockSource) NextReading() (Reading, error) {
	t := m.now()
	accel, gyro := MockMotion(t.Sub(m.start).Seconds())
	return Reading{Accel: accel, Gyro: gyro, Time: t}, nil
}
