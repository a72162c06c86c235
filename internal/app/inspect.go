package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_fusion/internal/config"
	"github.com/relabs-tech/imu_fusion/internal/imu"
	"github.com/relabs-tech/imu_fusion/internal/orientation"
	"github.com/relabs-tech/imu_fusion/internal/sensors"
)

// RunInspect opens the configured I2C IMU and prints its identity, power
// state, configuration registers and one sample. When nothing answers at
// IMU_I2C_ADDR the other AD0 address is tried.
func RunInspect(cfg *config.Config) error {
	dev, err := openEitherAddr(cfg, sensors.OpenI2C)
	if err != nil {
		return err
	}
	defer dev.Close()

	return inspectDevice(dev, os.Stdout)
}

func openEitherAddr(cfg *config.Config, open func(*config.Config) (*sensors.Dev, error)) (*sensors.Dev, error) {
	dev, err := open(cfg)
	if err == nil {
		return dev, nil
	}
	alt, ok := sensors.AlternateAddr(cfg.IMUI2CAddr)
	if !ok {
		return nil, err
	}

	retry := *cfg
	retry.IMUI2CAddr = alt
	dev, altErr := open(&retry)
	if altErr != nil {
		return nil, errors.Join(err, altErr)
	}
	log.Warnf("%s IMU: no answer at 0x%02X, found at 0x%02X; set IMU_I2C_ADDR=0x%02X", cfg.IMUName, cfg.IMUI2CAddr, alt, alt)
	return dev, nil
}

func inspectDevice(dev *sensors.Dev, out io.Writer) error {
	fmt.Fprintf(out, "device: %s\n", dev)

	pm, err := dev.ReadPowerManagement()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "power: PWR_MGMT_1=0x%02X PWR_MGMT_2=0x%02X sleep=%t\n", pm[0], pm[1], pm[0]&0x40 != 0)

	fs, err := dev.ReadConfig()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "full scale: accel ±%dg (%d) gyro ±%d°/s (%d)\n",
		imu.AccelRangeG(fs.Accel), fs.Accel, imu.GyroRangeDPS(fs.Gyro), fs.Gyro)

	regs, err := dev.DumpRegisters()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "registers:")
	for _, r := range regs {
		for _, line := range r.Lines() {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}

	// each output block on its own, then the burst the producer uses
	accelCounts, err := dev.ReadAccelRaw()
	if err != nil {
		return err
	}
	gyroCounts, err := dev.ReadGyroRaw()
	if err != nil {
		return err
	}
	temp, err := dev.ReadTempRaw()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "blocks: accel=%v gyro=%v temp=%d\n", accelCounts, gyroCounts, temp)

	raw, err := dev.ReadRaw()
	if err != nil {
		return err
	}
	a, g := raw.Accel(), raw.Gyro()
	pose := orientation.ComputePoseFromAccel(a.X, a.Y, a.Z)

	fmt.Fprintln(out, formatRaw(raw))
	fmt.Fprintf(out, "accel: %.3f %.3f %.3f m/s²\n", a.X, a.Y, a.Z)
	fmt.Fprintf(out, "gyro:  %.4f %.4f %.4f rad/s\n", g.X, g.Y, g.Z)
	fmt.Fprintf(out, "temp:  %.2f °C\n", sensors.TempCelsius(temp))
	fmt.Fprintln(out, formatPose("ACCEL", pose))
	return nil
}
