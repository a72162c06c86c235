// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/imu_fusion/internal/imu"
	"periph.io/x/conn/v3/i2c"
)

// Registers shared by the MPU6050 and the MPU9250 accel/gyro die.
const (
	regGyroConfig  = 0x1B
	regAccelConfig = 0x1C
	regAccelXOutH  = 0x3B
	regTempOutH    = 0x41
	regGyroXOutH   = 0x43
	regPwrMgmt1    = 0x6B
	regPwrMgmt2    = 0x6C
	regWhoAmI      = 0x75

	fsSelOffset = 3
	fsSelMask   = 0b11 << fsSelOffset
)

// Default I2C addresses: AD0 low and AD0 high.
const (
	AddrAD0Low  uint16 = 0x68
	AddrAD0High uint16 = 0x69
)

// AlternateAddr returns the address selected by the other AD0 level. ok is
// false for addresses outside the pair.
func AlternateAddr(addr uint16) (uint16, bool) {
	switch addr {
	case AddrAD0Low:
		return AddrAD0High, true
	case AddrAD0High:
		return AddrAD0Low, true
	default:
		return 0, false
	}
}

var (
	// ErrWrongDevice is returned by SanityCheck when WHO_AM_I does not match.
	ErrWrongDevice = errors.New("unexpected WHO_AM_I")
	// ErrInvalidFullScale is returned for a full-scale selection outside 0-3.
	ErrInvalidFullScale = errors.New("full scale selection must be 0-3")
)

// Block selects the output registers loaded by Fetch.
type Block int

const (
	BlockAccel Block = iota
	BlockGyro
	BlockTemp
)

func (b Block) String() string {
	switch b {
	case BlockAccel:
		return "accel"
	case BlockGyro:
		return "gyro"
	case BlockTemp:
		return "temp"
	default:
		return fmt.Sprintf("Block(%d)", int(b))
	}
}

// register returns the first register and the byte count of the block.
func (b Block) register() (byte, int) {
	switch b {
	case BlockGyro:
		return regGyroXOutH, 6
	case BlockTemp:
		return regTempOutH, 2
	default:
		return regAccelXOutH, 6
	}
}

// FullScale holds the decoded GYRO_CONFIG and ACCEL_CONFIG selections.
type FullScale struct {
	Accel byte `json:"accel"`
	Gyro  byte `json:"gyro"`
}

// Dev is an InvenSense MPU6050/MPU9250 accelerometer + gyroscope on an I2C
// bus. The fetch buffer and its ready flag belong to the device, so several
// sensors can be driven side by side. A Dev is not safe for concurrent use.
type Dev struct {
	name   string
	model  string
	c      i2c.Dev
	whoAmI []byte
	now    func() time.Time
	closer io.Closer

	fs    FullScale
	buf   [6]byte
	block Block
	ready bool
}

// NewMPU6050 returns a handle for an MPU6050 at addr. No bus traffic happens
// until Init or SanityCheck.
func NewMPU6050(bus i2c.Bus, addr uint16, name string) *Dev {
	return newDev(bus, addr, name, "MPU6050", 0x68)
}

// NewMPU9250 returns a handle for the accel/gyro die of an MPU9250 (or one
// of its MPU9255/MPU6500 siblings) at addr.
func NewMPU9250(bus i2c.Bus, addr uint16, name string) *Dev {
	return newDev(bus, addr, name, "MPU9250", 0x71, 0x73, 0x70)
}

func newDev(bus i2c.Bus, addr uint16, name, model string, whoAmI ...byte) *Dev {
	return &Dev{
		name:   name,
		model:  model,
		c:      i2c.Dev{Bus: bus, Addr: addr},
		whoAmI: whoAmI,
		now:    time.Now,
	}
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s(%s@0x%02X)", d.model, d.name, d.c.Addr)
}

func (d *Dev) readReg(reg byte) (byte, error) {
	var b [1]byte
	if err := d.c.Tx([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) writeReg(reg, value byte) error {
	return d.c.Tx([]byte{reg, value}, nil)
}

// Init wakes the device from sleep and applies the full-scale selections.
func (d *Dev) Init(accelRange, gyroRange byte) error {
	if err := d.ResetPowerManagement(); err != nil {
		return err
	}
	if err := d.SetAccelFullScale(accelRange); err != nil {
		return err
	}
	return d.SetGyroFullScale(gyroRange)
}

// SanityCheck reads WHO_AM_I and compares it with the expected identity.
func (d *Dev) SanityCheck() error {
	id, err := d.readReg(regWhoAmI)
	if err != nil {
		return fmt.Errorf("%s IMU: read WHO_AM_I: %w", d.name, err)
	}
	for _, want := range d.whoAmI {
		if id == want {
			return nil
		}
	}
	return fmt.Errorf("%s IMU: %w 0x%02X for %s", d.name, ErrWrongDevice, id, d.model)
}

// ReadPowerManagement returns PWR_MGMT_1 and PWR_MGMT_2.
func (d *Dev) ReadPowerManagement() ([2]byte, error) {
	var pm [2]byte
	var err error
	if pm[0], err = d.readReg(regPwrMgmt1); err != nil {
		return pm, fmt.Errorf("%s IMU: read PWR_MGMT_1: %w", d.name, err)
	}
	if pm[1], err = d.readReg(regPwrMgmt2); err != nil {
		return pm, fmt.Errorf("%s IMU: read PWR_MGMT_2: %w", d.name, err)
	}
	return pm, nil
}

// ResetPowerManagement clears PWR_MGMT_1, leaving sleep mode with the
// internal oscillator selected.
func (d *Dev) ResetPowerManagement() error {
	if err := d.writeReg(regPwrMgmt1, 0x00); err != nil {
		return fmt.Errorf("%s IMU: write PWR_MGMT_1: %w", d.name, err)
	}
	return nil
}

// ReadConfig reads back the accelerometer and gyroscope full-scale
// selections and caches them for ReadRaw.
func (d *Dev) ReadConfig() (FullScale, error) {
	gc, err := d.readReg(regGyroConfig)
	if err != nil {
		return FullScale{}, fmt.Errorf("%s IMU: read GYRO_CONFIG: %w", d.name, err)
	}
	ac, err := d.readReg(regAccelConfig)
	if err != nil {
		return FullScale{}, fmt.Errorf("%s IMU: read ACCEL_CONFIG: %w", d.name, err)
	}
	d.fs = FullScale{
		Accel: (ac & fsSelMask) >> fsSelOffset,
		Gyro:  (gc & fsSelMask) >> fsSelOffset,
	}
	return d.fs, nil
}

// SetAccelFullScale selects ±2g, ±4g, ±8g or ±16g (0-3).
func (d *Dev) SetAccelFullScale(fs byte) error {
	if err := d.setFullScale(regAccelConfig, fs); err != nil {
		return fmt.Errorf("%s IMU: set accel full scale: %w", d.name, err)
	}
	d.fs.Accel = fs
	return nil
}

// SetGyroFullScale selects ±250, ±500, ±1000 or ±2000 °/s (0-3).
func (d *Dev) SetGyroFullScale(fs byte) error {
	if err := d.setFullScale(regGyroConfig, fs); err != nil {
		return fmt.Errorf("%s IMU: set gyro full scale: %w", d.name, err)
	}
	d.fs.Gyro = fs
	return nil
}

// setFullScale rewrites bits 4:3 of reg and keeps the others.
func (d *Dev) setFullScale(reg, fs byte) error {
	if fs > 3 {
		return fmt.Errorf("%w, got %d", ErrInvalidFullScale, fs)
	}
	v, err := d.readReg(reg)
	if err != nil {
		return err
	}
	v = v&^fsSelMask | fs<<fsSelOffset
	return d.writeReg(reg, v)
}

func (d *Dev) burst(reg byte, dst []byte) error {
	return d.c.Tx([]byte{reg}, dst)
}

func decodeAxes(b []byte) [3]int16 {
	return [3]int16{
		int16(binary.BigEndian.Uint16(b[0:])),
		int16(binary.BigEndian.Uint16(b[2:])),
		int16(binary.BigEndian.Uint16(b[4:])),
	}
}

// ReadAccelRaw returns the accelerometer output in counts.
func (d *Dev) ReadAccelRaw() ([3]int16, error) {
	return d.readBlock(BlockAccel)
}

// ReadGyroRaw returns the gyroscope output in counts.
func (d *Dev) ReadGyroRaw() ([3]int16, error) {
	return d.readBlock(BlockGyro)
}

// ReadTempRaw returns TEMP_OUT in counts.
func (d *Dev) ReadTempRaw() (int16, error) {
	v, err := d.readBlock(BlockTemp)
	return v[0], err
}

// readBlock fetches one block and decodes it from the device buffer.
func (d *Dev) readBlock(block Block) ([3]int16, error) {
	if err := d.Fetch(block); err != nil {
		return [3]int16{}, err
	}
	if !d.DataReady() {
		return [3]int16{}, fmt.Errorf("%s IMU %s: no data after fetch", d.name, block)
	}
	got, v := d.ReadFromBuffer()
	if got != block {
		return [3]int16{}, fmt.Errorf("%s IMU: fetched %s, want %s", d.name, got, block)
	}
	return v, nil
}

// Fetch loads one output block into the device buffer and raises the ready
// flag. The flag is consumed by DataReady and the values by ReadFromBuffer.
func (d *Dev) Fetch(block Block) error {
	reg, n := block.register()
	d.ready = false
	if err := d.burst(reg, d.buf[:n]); err != nil {
		return fmt.Errorf("%s IMU fetch %s: %w", d.name, block, err)
	}
	d.block = block
	d.ready = true
	return nil
}

// DataReady reports whether a fetched block is waiting and clears the flag.
func (d *Dev) DataReady() bool {
	if d.ready {
		d.ready = false
		return true
	}
	return false
}

// ReadFromBuffer decodes the last fetched block. For BlockTemp only the
// first value is meaningful.
func (d *Dev) ReadFromBuffer() (Block, [3]int16) {
	if d.block == BlockTemp {
		return d.block, [3]int16{int16(binary.BigEndian.Uint16(d.buf[:2]))}
	}
	return d.block, decodeAxes(d.buf[:])
}

// ReadRaw reads accelerometer and gyroscope in a single burst.
func (d *Dev) ReadRaw() (imu.IMURaw, error) {
	// ACCEL_XOUT_H .. GYRO_ZOUT_L: accel, temp, gyro
	var b [14]byte
	if err := d.burst(regAccelXOutH, b[:]); err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU read: %w", d.name, err)
	}
	a := decodeAxes(b[0:6])
	g := decodeAxes(b[8:14])

	return imu.IMURaw{
		Source:     d.name,
		Time:       d.now(),
		Ax:         a[0],
		Ay:         a[1],
		Az:         a[2],
		Gx:         g[0],
		Gy:         g[1],
		Gz:         g[2],
		AccelRange: d.fs.Accel,
		GyroRange:  d.fs.Gyro,
	}, nil
}

// TempCelsius converts a TEMP_OUT count of the MPU6050.
func TempCelsius(raw int16) float64 {
	return float64(raw)/340 + 36.53
}

// Close releases the bus when the device was created by Open.
func (d *Dev) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
