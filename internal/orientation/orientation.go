package orientation

import (
	"math"
	"time"
)

// Pose is the canonical representation of orientation for the app, in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Source is anything that can provide poses over time.
type Source interface {
	Next() (Pose, error)
}

// Reading is one synchronized accelerometer + gyroscope acquisition in SI
// units (m/s² and rad/s).
type Reading struct {
	Accel Sample    `json:"accel"`
	Gyro  Sample    `json:"gyro"`
	Time  time.Time `json:"time"`
}

// ReadingSource produces readings from a sensor, a replay or a simulation.
type ReadingSource interface {
	NextReading() (Reading, error)
}

// PoseFromEuler converts a radian estimate into a Pose in degrees.
func PoseFromEuler(e Euler) Pose {
	return Pose{
		Roll:  e.Roll * 180.0 / math.Pi,
		Pitch: e.Pitch * 180.0 / math.Pi,
		Yaw:   e.Yaw * 180.0 / math.Pi,
	}
}

// ComputePoseFromAccel computes pitch and roll from accelerometer data only
// (m/s²). Yaw is 0 since gravity carries no heading information.
//
//	pitch = atan(ay / az)
//	roll  = asin(ax / g)
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	return PoseFromEuler(AccelerometerEstimate(Sample{X: ax, Y: ay, Z: az}))
}
