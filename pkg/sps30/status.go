package sps30

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DeviceStatus is the sensor's status register bitfield. A set fault
// bit is a semantic result, not a protocol failure: the exchange that
// read it succeeded, and reacting to it is application policy.
type DeviceStatus uint32

// Status register bits per the SPS30 datasheet.
const (
	statusFanSpeed DeviceStatus = 1 << 21
	statusLaser    DeviceStatus = 1 << 5
	statusFan      DeviceStatus = 1 << 4
)

// FanSpeedOutOfRange reports whether the fan is running too fast or
// too slow. The bit clears automatically once the speed is back in
// range.
func (s DeviceStatus) FanSpeedOutOfRange() bool {
	return s&statusFanSpeed != 0
}

// LaserFailure reports a laser current out of range.
func (s DeviceStatus) LaserFailure() bool {
	return s&statusLaser != 0
}

// FanFailure reports a mechanically blocked or broken fan (0 RPM).
func (s DeviceStatus) FanFailure() bool {
	return s&statusFan != 0
}

// Fault reports whether any fault bit is set.
func (s DeviceStatus) Fault() bool {
	return s.FanSpeedOutOfRange() || s.LaserFailure() || s.FanFailure()
}

// String implements fmt.Stringer.
func (s DeviceStatus) String() string {
	var faults []string
	if s.FanSpeedOutOfRange() {
		faults = append(faults, "fan speed out of range")
	}
	if s.LaserFailure() {
		faults = append(faults, "laser failure")
	}
	if s.FanFailure() {
		faults = append(faults, "fan failure")
	}
	if len(faults) == 0 {
		return "ok"
	}
	return strings.Join(faults, ", ")
}

// DecodeDeviceStatus decodes a status register response: a big-endian
// 32-bit bitfield followed by one reserved byte.
func DecodeDeviceStatus(data []byte) (DeviceStatus, error) {
	if len(data) != statusSize {
		return 0, fmt.Errorf("status payload is %d bytes, want %d", len(data), statusSize)
	}
	return DeviceStatus(binary.BigEndian.Uint32(data[:4])), nil
}

// Version describes the sensor's firmware, hardware and protocol
// versions.
type Version struct {
	FirmwareMajor    byte
	FirmwareMinor    byte
	HardwareRevision byte
	SHDLCMajor       byte
	SHDLCMinor       byte
}

// String implements fmt.Stringer.
func (v Version) String() string {
	return fmt.Sprintf("firmware %d.%d, hardware %d, SHDLC %d.%d",
		v.FirmwareMajor, v.FirmwareMinor, v.HardwareRevision, v.SHDLCMajor, v.SHDLCMinor)
}

// DecodeVersion decodes a version response. Bytes 2 and 4 are
// reserved.
func DecodeVersion(data []byte) (Version, error) {
	if len(data) != versionSize {
		return Version{}, fmt.Errorf("version payload is %d bytes, want %d", len(data), versionSize)
	}
	return Version{
		FirmwareMajor:    data[0],
		FirmwareMinor:    data[1],
		HardwareRevision: data[3],
		SHDLCMajor:       data[5],
		SHDLCMinor:       data[6],
	}, nil
}
