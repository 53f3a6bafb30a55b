package sensor

import (
	"fmt"
	"math"
)

// StandardGravity is one g in m/s².
const StandardGravity = 9.80665

// Units selects how acceleration and angular rate are expressed.
type Units int

const (
	// Native is g and degrees per second, as decoded from the device.
	Native Units = iota
	// SI is m/s² and radians per second.
	SI
)

func (u Units) String() string {
	switch u {
	case Native:
		return "native"
	case SI:
		return "si"
	}
	return fmt.Sprintf("Units(%d)", int(u))
}

// AccelLabel and GyroLabel name the axis fields of records in u.
func (u Units) AccelLabel() string {
	if u == SI {
		return "accel_mps2"
	}
	return "accel_g"
}

func (u Units) GyroLabel() string {
	if u == SI {
		return "gyro_rads"
	}
	return "gyro_dps"
}

// ParseUnits accepts "native" or "si".
func ParseUnits(name string) (Units, error) {
	switch name {
	case "native":
		return Native, nil
	case "si":
		return SI, nil
	}
	return 0, fmt.Errorf("unknown units %q", name)
}

// Sample is one physical-unit reading decoded from a single block read.
// Accel and Gyro are expressed in Units.
type Sample struct {
	TemperatureC float64    `json:"temperature_c"`
	Accel        [3]float64 `json:"accel"`
	Gyro         [3]float64 `json:"gyro"`
	Units        Units      `json:"-"`
}

// In returns s expressed in u.
func (s Sample) In(u Units) Sample {
	if s.Units == u {
		return s
	}
	accel, gyro := StandardGravity, math.Pi/180
	if u == Native {
		accel, gyro = 1/accel, 1/gyro
	}
	for i := range 3 {
		s.Accel[i] *= accel
		s.Gyro[i] *= gyro
	}
	s.Units = u
	return s
}

// State is a snapshot of the mirrored registers and derived resolutions.
type State struct {
	Bank             byte
	GyroConfig0      GyroConfig0
	GyroConfig1      GyroConfig1
	AccelConfig0     AccelConfig0
	AccelConfig1     AccelConfig1
	GyroAccelConfig0 GyroAccelConfig0
	AccelResolution  float64
	GyroResolution   float64
}

func (s State) String() string {
	return fmt.Sprintf("bank=%d gyro_config0=0x%02X (%s, %s) gyro_config1=0x%02X (filter order %d) "+
		"accel_config0=0x%02X (%s, %s) accel_config1=0x%02X (filter order %d) gyro_accel_config0=0x%02X "+
		"accel_res=%g gyro_res=%g",
		s.Bank,
		uint8(s.GyroConfig0), s.GyroConfig0.Scale(), s.GyroConfig0.ODR(),
		uint8(s.GyroConfig1), s.GyroConfig1.FilterOrder(),
		uint8(s.AccelConfig0), s.AccelConfig0.Scale(), s.AccelConfig0.ODR(),
		uint8(s.AccelConfig1), s.AccelConfig1.FilterOrder(),
		uint8(s.GyroAccelConfig0),
		s.AccelResolution, s.GyroResolution)
}
