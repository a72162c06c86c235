package sensors

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/imu_fusion/internal/config"
	"github.com/relabs-tech/imu_fusion/internal/imu"
)

// ErrUnknownDriver is returned by Open for an unsupported IMU_DRIVER.
var ErrUnknownDriver = errors.New("unknown IMU driver")

// Source is an opened IMU.
type Source interface {
	imu.IMURawSource
	Close() error
}

// Stream is a Source that pushes samples at the device's own rate rather
// than being read on demand.
type Stream interface {
	Source
	Samples() <-chan imu.IMURaw
	Err() error
}

// Open creates the raw source selected by cfg.IMUDriver.
func Open(cfg *config.Config) (Source, error) {
	switch cfg.IMUDriver {
	case config.DriverMPU6050, config.DriverMPU9250:
		dev, err := OpenI2C(cfg)
		if err != nil {
			return nil, err
		}
		return dev, nil
	case config.DriverMPU9250SPI:
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("%s IMU: periph host init: %w", cfg.IMUName, err)
		}
		return NewMPU9250SPI(cfg.IMUName, cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange)
	case config.DriverSerial:
		return NewSerialSource(cfg.IMUName, cfg.IMUSerialPort, cfg.IMUSerialBaud)
	case config.DriverMock:
		log.Printf("%s IMU: using synthetic motion", cfg.IMUName)
		return NewMockSource(cfg.IMUName, cfg.IMUAccelRange, cfg.IMUGyroRange, nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.IMUDriver)
	}
}

// OpenI2C opens the configured I2C bus, verifies WHO_AM_I and initializes
// the device.
func OpenI2C(cfg *config.Config) (*Dev, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: periph host init: %w", cfg.IMUName, err)
	}

	bus, err := i2creg.Open(cfg.IMUI2CBus)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: open I2C bus %q: %w", cfg.IMUName, cfg.IMUI2CBus, err)
	}

	var dev *Dev
	if cfg.IMUDriver == config.DriverMPU9250 {
		dev = NewMPU9250(bus, cfg.IMUI2CAddr, cfg.IMUName)
	} else {
		dev = NewMPU6050(bus, cfg.IMUI2CAddr, cfg.IMUName)
	}
	dev.closer = bus

	if err := dev.SanityCheck(); err != nil {
		bus.Close()
		return nil, err
	}
	if err := dev.Init(cfg.IMUAccelRange, cfg.IMUGyroRange); err != nil {
		bus.Close()
		return nil, err
	}
	log.Printf("%s IMU: %s ready on %s (±%dg, ±%d°/s)", cfg.IMUName, dev, bus,
		imu.AccelRangeG(cfg.IMUAccelRange), imu.GyroRangeDPS(cfg.IMUGyroRange))
	return dev, nil
}
