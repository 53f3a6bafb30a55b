package sensor

import (
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/ericogr/icm42688p-monitor/pkg/bus"
)

// resetDefaults are the power-on values of the registers the simulator
// models.
var resetDefaults = map[byte]byte{
	regBankSel:          0x00,
	regPwrMgmt0:         0x00,
	regGyroConfig0:      0x06,
	regAccelConfig0:     0x06,
	regGyroConfig1:      0x16,
	regGyroAccelConfig0: 0x11,
	regAccelConfig1:     0x0D,
	regIntConfig:        0x00,
	regIntConfig1:       0x10,
	regIntSource0:       0x10,
	regWhoAmI:           whoAmI,
}

// NewSimBus returns a register file that behaves like an ICM-42688-P lying
// flat: a soft reset restores defaults and each block read at TEMP_DATA1
// produces a fresh noisy sample of about 1 g on Z at room temperature.
func NewSimBus() *bus.Sim {
	s := bus.NewSim()
	simReset(s)
	s.OnWrite = func(s *bus.Sim, reg, value byte) {
		if reg == regDeviceConfig && value&softReset != 0 {
			simReset(s)
		}
	}
	s.OnBlock = func(s *bus.Sim, reg byte, n int) {
		if reg == regTempData1 && n == sampleLength {
			s.SetBlock(regTempData1, simSample(s))
		}
	}
	return s
}

func simReset(s *bus.Sim) {
	for reg, v := range resetDefaults {
		s.Set(reg, v)
	}
	s.Set(regDeviceConfig, 0)
}

func simSample(s *bus.Sim) []byte {
	accelRes := AccelConfig0(s.Get(regAccelConfig0)).Scale().Resolution()
	gyroRes := GyroConfig0(s.Get(regGyroConfig0)).Scale().Resolution()
	words := [7]float64{
		(rand.Float64()*2 - 1) * 132.48, // 24..26 C
		rand.NormFloat64() * 0.01 / accelRes,
		rand.NormFloat64() * 0.01 / accelRes,
		(1 + rand.NormFloat64()*0.01) / accelRes,
		rand.NormFloat64() * 0.2 / gyroRes,
		rand.NormFloat64() * 0.2 / gyroRes,
		rand.NormFloat64() * 0.2 / gyroRes,
	}
	out := make([]byte, sampleLength)
	for i, w := range words {
		w = math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(w)))
		binary.BigEndian.PutUint16(out[2*i:], uint16(int16(w)))
	}
	return out
}
