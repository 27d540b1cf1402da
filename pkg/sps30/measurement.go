package sps30

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Measurement is one decoded sample in floating point representation.
// Mass concentrations are µg/m³, number concentrations are #/cm³, the
// typical particle size is µm.
type Measurement struct {
	MassPM1_0           float32 `json:"mass_pm1_0"`
	MassPM2_5           float32 `json:"mass_pm2_5"`
	MassPM4_0           float32 `json:"mass_pm4_0"`
	MassPM10            float32 `json:"mass_pm10"`
	NumberPM0_5         float32 `json:"num_pm0_5"`
	NumberPM1_0         float32 `json:"num_pm1_0"`
	NumberPM2_5         float32 `json:"num_pm2_5"`
	NumberPM4_0         float32 `json:"num_pm4_0"`
	NumberPM10          float32 `json:"num_pm10"`
	TypicalParticleSize float32 `json:"typical_particle_size"`
}

// FixedMeasurement is one decoded sample in the sensor's unsigned
// integer representation. No scaling is applied; units and scale
// factors are the caller's concern.
type FixedMeasurement struct {
	MassPM1_0           uint16 `json:"mass_pm1_0"`
	MassPM2_5           uint16 `json:"mass_pm2_5"`
	MassPM4_0           uint16 `json:"mass_pm4_0"`
	MassPM10            uint16 `json:"mass_pm10"`
	NumberPM0_5         uint16 `json:"num_pm0_5"`
	NumberPM1_0         uint16 `json:"num_pm1_0"`
	NumberPM2_5         uint16 `json:"num_pm2_5"`
	NumberPM4_0         uint16 `json:"num_pm4_0"`
	NumberPM10          uint16 `json:"num_pm10"`
	TypicalParticleSize uint16 `json:"typical_particle_size"`
}

// DecodeMeasurement decodes a FormatFloat response payload: 10
// big-endian IEEE754 fields in datasheet order.
func DecodeMeasurement(data []byte) (Measurement, error) {
	if len(data) != measurementFloatSize {
		return Measurement{}, fmt.Errorf("measurement payload is %d bytes, want %d", len(data), measurementFloatSize)
	}
	f := func(i int) float32 {
		return math.Float32frombits(binary.BigEndian.Uint32(data[i*4:]))
	}
	return Measurement{
		MassPM1_0:           f(0),
		MassPM2_5:           f(1),
		MassPM4_0:           f(2),
		MassPM10:            f(3),
		NumberPM0_5:         f(4),
		NumberPM1_0:         f(5),
		NumberPM2_5:         f(6),
		NumberPM4_0:         f(7),
		NumberPM10:          f(8),
		TypicalParticleSize: f(9),
	}, nil
}

// DecodeFixedMeasurement decodes a FormatUint16 response payload: 10
// big-endian unsigned fields in datasheet order.
func DecodeFixedMeasurement(data []byte) (FixedMeasurement, error) {
	if len(data) != measurementUint16Size {
		return FixedMeasurement{}, fmt.Errorf("measurement payload is %d bytes, want %d", len(data), measurementUint16Size)
	}
	u := func(i int) uint16 {
		return binary.BigEndian.Uint16(data[i*2:])
	}
	return FixedMeasurement{
		MassPM1_0:           u(0),
		MassPM2_5:           u(1),
		MassPM4_0:           u(2),
		MassPM10:            u(3),
		NumberPM0_5:         u(4),
		NumberPM1_0:         u(5),
		NumberPM2_5:         u(6),
		NumberPM4_0:         u(7),
		NumberPM10:          u(8),
		TypicalParticleSize: u(9),
	}, nil
}
