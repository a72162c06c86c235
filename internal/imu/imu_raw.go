package imu

import (
	"fmt"
	"math"
	"time"

	"github.com/relabs-tech/imu_fusion/internal/orientation"
)

// Accelerometer sensitivities in LSB/g and gyroscope sensitivities in
// LSB/(°/s), indexed by the full-scale selection (FS_SEL / AFS_SEL 0-3).
var (
	accelSensitivity = [4]float64{16384, 8192, 4096, 2048}
	gyroSensitivity  = [4]float64{131, 65.5, 32.8, 16.4}
)

// IMURaw represents a single raw accelerometer + gyroscope sample in sensor
// counts, together with the full-scale selections needed to convert it.
type IMURaw struct {
	Source string    `json:"source"` // configured IMU name
	Time   time.Time `json:"time"`

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`

	AccelRange byte `json:"accel_range"`
	GyroRange  byte `json:"gyro_range"`
}

// IMURawSource is anything that delivers raw samples: a driver, a serial
// stream or a simulation.
type IMURawSource interface {
	ReadRaw() (IMURaw, error)
}

// AccelSensitivity returns LSB/g for an accelerometer full-scale selection.
func AccelSensitivity(fullScale byte) float64 {
	return accelSensitivity[fullScale&3]
}

// GyroSensitivity returns LSB/(°/s) for a gyroscope full-scale selection.
func GyroSensitivity(fullScale byte) float64 {
	return gyroSensitivity[fullScale&3]
}

// AccelRangeG returns the ±g span of an accelerometer full-scale selection.
func AccelRangeG(fullScale byte) int {
	return 2 << (fullScale & 3)
}

// GyroRangeDPS returns the ±°/s span of a gyroscope full-scale selection.
func GyroRangeDPS(fullScale byte) int {
	return 250 << (fullScale & 3)
}

// Accel returns the acceleration in m/s².
func (r IMURaw) Accel() orientation.Sample {
	k := orientation.StandardGravity / AccelSensitivity(r.AccelRange)
	return orientation.Sample{
		X: float64(r.Ax) * k,
		Y: float64(r.Ay) * k,
		Z: float64(r.Az) * k,
	}
}

// Gyro returns the angular rate in rad/s.
func (r IMURaw) Gyro() orientation.Sample {
	return GyroBias{}.rate(r)
}

// GyroBias is a static gyroscope offset in counts, measured at rest.
type GyroBias struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (b GyroBias) rate(r IMURaw) orientation.Sample {
	k := math.Pi / 180 / GyroSensitivity(r.GyroRange)
	return orientation.Sample{
		X: (float64(r.Gx) - b.X) * k,
		Y: (float64(r.Gy) - b.Y) * k,
		Z: (float64(r.Gz) - b.Z) * k,
	}
}

// EstimateGyroBias averages n samples taken while the sensor is still.
func EstimateGyroBias(src IMURawSource, n int) (GyroBias, error) {
	if n <= 0 {
		return GyroBias{}, nil
	}

	var sx, sy, sz float64
	for i := 0; i < n; i++ {
		raw, err := src.ReadRaw()
		if err != nil {
			return GyroBias{}, fmt.Errorf("gyro bias sample %d/%d: %w", i+1, n, err)
		}
		sx += float64(raw.Gx)
		sy += float64(raw.Gy)
		sz += float64(raw.Gz)
	}
	return GyroBias{X: sx / float64(n), Y: sy / float64(n), Z: sz / float64(n)}, nil
}

// Reading converts a raw sample into SI units with bias removed.
func Reading(raw IMURaw, bias GyroBias) orientation.Reading {
	return orientation.Reading{
		Accel: raw.Accel(),
		Gyro:  bias.rate(raw),
		Time:  raw.Time,
	}
}

type readingSource struct {
	src  IMURawSource
	bias GyroBias
}

// NewReadingSource adapts a raw source to the orientation package.
func NewReadingSource(src IMURawSource, bias GyroBias) orientation.ReadingSource {
	return &readingSource{src: src, bias: bias}
}

func (s *readingSource) NextReading() (orientation.Reading, error) {
	raw, err := s.src.ReadRaw()
	if err != nil {
		return orientation.Reading{}, err
	}
	return Reading(raw, s.bias), nil
}
