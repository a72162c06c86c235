package sensors

import (
	"math"
	"time"

	"github.com/relabs-tech/imu_fusion/internal/imu"
	"github.com/relabs-tech/imu_fusion/internal/orientation"
)

type mockSource struct {
	name       string
	accelRange byte
	gyroRange  byte
	start      time.Time
	now        func() time.Time
}

// NewMockSource returns a raw source that quantizes orientation.MockMotion
// into sensor counts at the given full-scale selections. A nil now means
// time.Now.
func NewMockSource(name string, accelRange, gyroRange byte, now func() time.Time) Source {
	if now == nil {
		now = time.Now
	}
	return &mockSource{
		name:       name,
		accelRange: accelRange,
		gyroRange:  gyroRange,
		start:      now(),
		now:        now,
	}
}

func toCounts(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func (m *mockSource) ReadRaw() (imu.IMURaw, error) {
	t := m.now()
	accel, gyro := orientation.MockMotion(t.Sub(m.start).Seconds())

	ka := imu.AccelSensitivity(m.accelRange) / orientation.StandardGravity
	kg := imu.GyroSensitivity(m.gyroRange) * 180 / math.Pi

	return imu.IMURaw{
		Source:     m.name,
		Time:       t,
		Ax:         toCounts(accel.X * ka),
		Ay:         toCounts(accel.Y * ka),
		Az:         toCounts(accel.Z * ka),
		Gx:         toCounts(gyro.X * kg),
		Gy:         toCounts(gyro.Y * kg),
		Gz:         toCounts(gyro.Z * kg),
		AccelRange: m.accelRange,
		GyroRange:  m.gyroRange,
	}, nil
}

func (m *mockSource) Close() error { return nil }
