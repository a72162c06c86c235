// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import "fmt"

// BitField describes a group of bits inside a register.
type BitField struct {
	Hi, Lo      uint8
	Name        string
	Description string
	Values      string
}

// Extract returns the field value of a raw register value.
func (f BitField) Extract(v byte) byte {
	width := f.Hi - f.Lo + 1
	return (v >> f.Lo) & byte(1<<width-1)
}

func (f BitField) bits() string {
	if f.Hi == f.Lo {
		return fmt.Sprintf("%d", f.Hi)
	}
	return fmt.Sprintf("%d:%d", f.Hi, f.Lo)
}

// RegisterInfo is the metadata of one configuration register.
type RegisterInfo struct {
	Address     byte
	Name        string
	Description string
	Access      string // "R" or "RW"
	BitFields   []BitField
}

// RegisterValue is a register read back from a device.
type RegisterValue struct {
	RegisterInfo
	Value byte
}

// Lines renders the register and its decoded fields, one per line.
func (r RegisterValue) Lines() []string {
	out := []string{fmt.Sprintf("0x%02X %-12s = 0x%02X  %s", r.Address, r.Name, r.Value, r.Description)}
	for _, f := range r.BitFields {
		out = append(out, fmt.Sprintf("    [%s] %-12s = %d  %s", f.bits(), f.Name, f.Extract(r.Value), f.Values))
	}
	return out
}

// configRegisters lists the configuration registers common to the MPU6050
// and the MPU9250 accel/gyro die.
var configRegisters = []RegisterInfo{
	{Address: 0x19, Name: "SMPLRT_DIV", Description: "Sample Rate Divider", Access: "RW",
		BitFields: []BitField{
			{Hi: 7, Lo: 0, Name: "SMPLRT_DIV", Description: "Sample Rate = Gyro_Output_Rate / (1 + SMPLRT_DIV)", Values: "0-255"},
		}},
	{Address: 0x1A, Name: "CONFIG", Description: "Configuration (DLPF)", Access: "RW",
		BitFields: []BitField{
			{Hi: 5, Lo: 3, Name: "EXT_SYNC_SET", Description: "FSYNC pin sampling", Values: "0=Disabled"},
			{Hi: 2, Lo: 0, Name: "DLPF_CFG", Description: "Digital Low Pass Filter", Values: "0=260Hz ... 6=5Hz"},
		}},
	{Address: regGyroConfig, Name: "GYRO_CONFIG", Description: "Gyroscope Configuration", Access: "RW",
		BitFields: []BitField{
			{Hi: 4, Lo: 3, Name: "FS_SEL", Description: "Gyro Full Scale Range", Values: "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s"},
		}},
	{Address: regAccelConfig, Name: "ACCEL_CONFIG", Description: "Accelerometer Configuration", Access: "RW",
		BitFields: []BitField{
			{Hi: 4, Lo: 3, Name: "AFS_SEL", Description: "Accel Full Scale Range", Values: "0=±2g, 1=±4g, 2=±8g, 3=±16g"},
		}},
	{Address: 0x37, Name: "INT_PIN_CFG", Description: "INT Pin / Bypass Enable Configuration", Access: "RW",
		BitFields: []BitField{
			{Hi: 1, Lo: 1, Name: "I2C_BYPASS_EN", Description: "Auxiliary I2C bypass", Values: "0=Disabled, 1=Enabled"},
		}},
	{Address: 0x6A, Name: "USER_CTRL", Description: "User Control", Access: "RW",
		BitFields: []BitField{
			{Hi: 5, Lo: 5, Name: "I2C_MST_EN", Description: "Enable I2C Master", Values: "0=Disabled, 1=Enabled"},
		}},
	{Address: regPwrMgmt1, Name: "PWR_MGMT_1", Description: "Power Management 1", Access: "RW",
		BitFields: []BitField{
			{Hi: 6, Lo: 6, Name: "SLEEP", Description: "Sleep mode", Values: "0=Awake, 1=Sleep"},
			{Hi: 2, Lo: 0, Name: "CLKSEL", Description: "Clock source", Values: "0=Internal 8MHz, 1=PLL X gyro"},
		}},
	{Address: regPwrMgmt2, Name: "PWR_MGMT_2", Description: "Power Management 2", Access: "RW"},
	{Address: regWhoAmI, Name: "WHO_AM_I", Description: "Device identity", Access: "R"},
}

// ConfigRegisters returns the register map used by DumpRegisters.
func ConfigRegisters() []RegisterInfo {
	return append([]RegisterInfo(nil), configRegisters...)
}

// DumpRegisters reads every configuration register.
func (d *Dev) DumpRegisters() ([]RegisterValue, error) {
	out := make([]RegisterValue, 0, len(configRegisters))
	for _, info := range configRegisters {
		v, err := d.readReg(info.Address)
		if err != nil {
			return out, fmt.Errorf("%s IMU: read %s: %w", d.name, info.Name, err)
		}
		out = append(out, RegisterValue{RegisterInfo: info, Value: v})
	}
	return out, nil
}
