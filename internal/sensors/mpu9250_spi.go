// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_fusion/internal/imu"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
)

type spiSource struct {
	name       string
	dev        *mpu9250.MPU9250
	accelRange byte
	gyroRange  byte
	now        func() time.Time
}

// NewMPU9250SPI opens an MPU9250 on an SPI bus with a GPIO chip select,
// applies the full-scale selections and runs the chip's self-test and
// calibration. The host must already be initialized.
func NewMPU9250SPI(name, spiDev, csPin string, accelRange, gyroRange byte) (Source, error) {
	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q not found", name, csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: SPI transport (%s): %w", name, spiDev, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: device creation: %w", name, err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: initialization: %w", name, err)
	}

	if err := dev.SetAccelRange(accelRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set accel range: %w", name, err)
	}
	log.Printf("%s IMU: accelerometer range set to %d (±%dg)", name, accelRange, imu.AccelRangeG(accelRange))

	if err := dev.SetGyroRange(gyroRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set gyro range: %w", name, err)
	}
	log.Printf("%s IMU: gyroscope range set to %d (±%d°/s)", name, gyroRange, imu.GyroRangeDPS(gyroRange))

	if res, err := dev.SelfTest(); err != nil {
		log.Warnf("%s IMU: self-test failed: %v", name, err)
	} else {
		log.Printf("%s IMU: self-test accel deviation X: %.2f%%, Y: %.2f%%, Z: %.2f%%",
			name, res.AccelDeviation.X, res.AccelDeviation.Y, res.AccelDeviation.Z)
		log.Printf("%s IMU: self-test gyro deviation X: %.2f%%, Y: %.2f%%, Z: %.2f%%",
			name, res.GyroDeviation.X, res.GyroDeviation.Y, res.GyroDeviation.Z)
	}

	if err := dev.Calibrate(); err != nil {
		log.Warnf("%s IMU: calibration failed: %v", name, err)
	} else {
		log.Printf("%s IMU: calibration complete", name)
	}

	return &spiSource{
		name:       name,
		dev:        dev,
		accelRange: accelRange,
		gyroRange:  gyroRange,
		now:        time.Now,
	}, nil
}

// ReadRaw reads accelerometer and gyroscope data from this IMU.
func (s *spiSource) ReadRaw() (imu.IMURaw, error) {
	raw := imu.IMURaw{
		Source:     s.name,
		Time:       s.now(),
		AccelRange: s.accelRange,
		GyroRange:  s.gyroRange,
	}

	reads := []struct {
		axis string
		dst  *int16
		get  func() (int16, error)
	}{
		{"accel X", &raw.Ax, s.dev.GetAccelerationX},
		{"accel Y", &raw.Ay, s.dev.GetAccelerationY},
		{"accel Z", &raw.Az, s.dev.GetAccelerationZ},
		{"gyro X", &raw.Gx, s.dev.GetRotationX},
		{"gyro Y", &raw.Gy, s.dev.GetRotationY},
		{"gyro Z", &raw.Gz, s.dev.GetRotationZ},
	}
	for _, r := range reads {
		v, err := r.get()
		if err != nil {
			return imu.IMURaw{}, fmt.Errorf("%s IMU %s: %w", s.name, r.axis, err)
		}
		*r.dst = v
	}
	return raw, nil
}

func (s *spiSource) Close() error { return nil }
