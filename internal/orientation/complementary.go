// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import "math"

// StandardGravity is the conventional value of g, in m/s².
const StandardGravity = 9.80665

// Sample is a single three-axis measurement in the sensor body frame.
// Depending on the sensor it holds linear acceleration (m/s²) or angular
// velocity (rad/s).
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Euler is an orientation estimate in radians.
type Euler struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}

// State is what a complementary filter carries from one step to the next:
// the previous fused estimate and the gyroscope estimate used to produce it.
// The zero State seeds the first step.
type State struct {
	Estimate Euler `json:"estimate"`
	GyroRate Euler `json:"gyro_rate"`
}

// AccelerometerEstimate converts a linear acceleration sample into pitch and
// roll. The accelerometer cannot observe yaw, so Yaw is always 0.
//
// The formulas are not guarded: Z == 0 yields an infinite or NaN pitch and
// |X| > g yields a NaN roll. See Guard for a filtered alternative.
func AccelerometerEstimate(accel Sample) Euler {
	return Euler{
		Pitch: math.Atan(accel.Y / accel.Z),
		Roll:  math.Asin(accel.X / StandardGravity),
		Yaw:   0,
	}
}

// GyroscopeEstimate maps body angular rates onto pitch and roll rates,
// evaluated at the previous fused estimate (first-order, no iteration).
// Yaw is left at 0; Step replaces it with the raw z rate.
func GyroscopeEstimate(rate Sample, prev Euler) Euler {
	sinPitch, cosPitch := math.Sincos(prev.Pitch)
	return Euler{
		Pitch: rate.X + math.Sin(prev.Roll)*(rate.Y*sinPitch+rate.Z*cosPitch),
		Roll:  rate.Y*math.Cos(prev.Roll) - rate.Z*sinPitch,
		Yaw:   0,
	}
}

// IntegrateTrapezoidal adds the area of the trapezoid between two consecutive
// rate values to an accumulated integral.
func IntegrateTrapezoidal(prevOutput, current, previous, dt float64) float64 {
	return prevOutput + (current+previous)/2*dt
}

// IntegrateRiemann is the first-order (rectangle) counterpart of
// IntegrateTrapezoidal.
func IntegrateRiemann(prevOutput, current, dt float64) float64 {
	return prevOutput + current*dt
}

// Complementary blends the accelerometer estimate with the integrated
// gyroscope rates. alpha weights the gyroscope path for pitch and roll;
// yaw has no accelerometer reference and is pure gyroscope integration.
func Complementary(accel, gyro, gyroPrev, prev Euler, dt, alpha float64) Euler {
	return Euler{
		Pitch: (1-alpha)*accel.Pitch +
			alpha*IntegrateTrapezoidal(prev.Pitch, gyroPrev.Pitch, gyro.Pitch, dt),
		Roll: (1-alpha)*accel.Roll +
			alpha*IntegrateTrapezoidal(prev.Roll, gyroPrev.Roll, gyro.Roll, dt),
		Yaw: IntegrateTrapezoidal(prev.Yaw, gyro.Yaw, gyroPrev.Yaw, dt),
	}
}

// Step runs one filter iteration and returns the fused estimate together
// with the state to pass to the next call.
func Step(accel, rate Sample, state State, dt, alpha float64) (Euler, State) {
	return step(AccelerometerEstimate(accel), rate, state, dt, alpha)
}

func step(accelEst Euler, rate Sample, state State, dt, alpha float64) (Euler, State) {
	gyroEst := GyroscopeEstimate(rate, state.Estimate)
	// yaw needs no cross-axis correction, use the raw rate
	gyroEst.Yaw = rate.Z

	out := Complementary(accelEst, gyroEst, state.GyroRate, state.Estimate, dt, alpha)
	return out, State{Estimate: out, GyroRate: gyroEst}
}
