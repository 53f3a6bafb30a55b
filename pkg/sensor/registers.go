package sensor

import (
	"fmt"
	"strings"
)

// Register map, user bank 0.
const (
	regDeviceConfig     = 0x11
	regIntConfig        = 0x14
	regTempData1        = 0x1D
	regPwrMgmt0         = 0x4E
	regGyroConfig0      = 0x4F
	regAccelConfig0     = 0x50
	regGyroConfig1      = 0x51
	regGyroAccelConfig0 = 0x52
	regAccelConfig1     = 0x53
	regIntConfig1       = 0x64
	regIntSource0       = 0x65
	regWhoAmI           = 0x75
	regBankSel          = 0x76

	whoAmI = 0x47

	softReset    = 0x01
	pwrLowNoise  = 0x0F // gyro and accel in low-noise mode
	sampleLength = 14
)

// combine keeps the bits of old selected by keep and ORs field into the rest.
func combine(old, keep, field byte) byte {
	return field&^keep | old&keep
}

// AccelScale selects the accelerometer full-scale range.
type AccelScale uint8

const (
	Accel16g AccelScale = iota
	Accel8g
	Accel4g
	Accel2g
)

var accelScaleNames = [...]string{"16g", "8g", "4g", "2g"}

func (s AccelScale) Valid() bool { return s <= Accel2g }

func (s AccelScale) String() string {
	if !s.Valid() {
		return fmt.Sprintf("AccelScale(%d)", uint8(s))
	}
	return accelScaleNames[s]
}

// Resolution returns g per LSB for the scale. Full scale halves as the code
// increases while the signed 16-bit sample range stays fixed.
func (s AccelScale) Resolution() float64 {
	if !s.Valid() {
		return 0
	}
	return float64(int(1)<<(4-int(s))) / 32768
}

// ParseAccelScale accepts the names returned by String, e.g. "4g".
func ParseAccelScale(name string) (AccelScale, error) {
	for i, n := range accelScaleNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return AccelScale(i), nil
		}
	}
	return 0, fmt.Errorf("unknown accel scale %q", name)
}

// GyroScale selects the gyroscope full-scale range.
type GyroScale uint8

const (
	Gyro2000dps GyroScale = iota
	Gyro1000dps
	Gyro500dps
	Gyro250dps
	Gyro125dps
	Gyro62_5dps
	Gyro31_25dps
	Gyro15_625dps
)

var gyroScaleNames = [...]string{"2000dps", "1000dps", "500dps", "250dps", "125dps", "62.5dps", "31.25dps", "15.625dps"}

func (s GyroScale) Valid() bool { return s <= Gyro15_625dps }

func (s GyroScale) String() string {
	if !s.Valid() {
		return fmt.Sprintf("GyroScale(%d)", uint8(s))
	}
	return gyroScaleNames[s]
}

// Resolution returns degrees per second per LSB for the scale.
func (s GyroScale) Resolution() float64 {
	return (2000 / float64(int(1)<<int(s))) / 32768
}

func ParseGyroScale(name string) (GyroScale, error) {
	for i, n := range gyroScaleNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return GyroScale(i), nil
		}
	}
	return 0, fmt.Errorf("unknown gyro scale %q", name)
}

// ODR is an output data rate code shared by the accelerometer and gyroscope.
type ODR uint8

const (
	ODR32kHz    ODR = 0x01
	ODR16kHz    ODR = 0x02
	ODR8kHz     ODR = 0x03
	ODR4kHz     ODR = 0x04
	ODR2kHz     ODR = 0x05
	ODR1kHz     ODR = 0x06
	ODR200Hz    ODR = 0x07
	ODR100Hz    ODR = 0x08
	ODR50Hz     ODR = 0x09
	ODR25Hz     ODR = 0x0A
	ODR12_5Hz   ODR = 0x0B
	ODR6_25Hz   ODR = 0x0C
	ODR3_125Hz  ODR = 0x0D
	ODR1_5625Hz ODR = 0x0E
	ODR500Hz    ODR = 0x0F
)

var odrNames = map[ODR]string{
	ODR32kHz:    "32kHz",
	ODR16kHz:    "16kHz",
	ODR8kHz:     "8kHz",
	ODR4kHz:     "4kHz",
	ODR2kHz:     "2kHz",
	ODR1kHz:     "1kHz",
	ODR200Hz:    "200Hz",
	ODR100Hz:    "100Hz",
	ODR50Hz:     "50Hz",
	ODR25Hz:     "25Hz",
	ODR12_5Hz:   "12.5Hz",
	ODR6_25Hz:   "6.25Hz",
	ODR3_125Hz:  "3.125Hz",
	ODR1_5625Hz: "1.5625Hz",
	ODR500Hz:    "500Hz",
}

func (o ODR) Valid() bool {
	_, ok := odrNames[o]
	return ok
}

func (o ODR) String() string {
	if n, ok := odrNames[o]; ok {
		return n
	}
	return fmt.Sprintf("ODR(0x%02X)", uint8(o))
}

// gyroUnsupported reports the accel-only low power rates below 12.5 Hz.
func (o ODR) gyroUnsupported() bool {
	return o >= ODR6_25Hz && o <= ODR1_5625Hz
}

func ParseODR(name string) (ODR, error) {
	for code, n := range odrNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown output data rate %q", name)
}

// AccelConfig0 mirrors ACCEL_CONFIG0: ACCEL_FS_SEL in bits 7:5, ACCEL_ODR in
// bits 3:0.
type AccelConfig0 uint8

func (r AccelConfig0) Scale() AccelScale { return AccelScale(r >> 5) }
func (r AccelConfig0) ODR() ODR          { return ODR(r & 0x0F) }

func (r AccelConfig0) WithScale(s AccelScale) AccelConfig0 {
	return AccelConfig0(combine(byte(r), 0x1F, byte(s)<<5))
}

func (r AccelConfig0) WithODR(o ODR) AccelConfig0 {
	return AccelConfig0(combine(byte(r), 0xF0, byte(o)))
}

// GyroConfig0 mirrors GYRO_CONFIG0 with the same layout as AccelConfig0.
type GyroConfig0 uint8

func (r GyroConfig0) Scale() GyroScale { return GyroScale(r >> 5) }
func (r GyroConfig0) ODR() ODR         { return ODR(r & 0x0F) }

func (r GyroConfig0) WithScale(s GyroScale) GyroConfig0 {
	return GyroConfig0(combine(byte(r), 0x1F, byte(s)<<5))
}

func (r GyroConfig0) WithODR(o ODR) GyroConfig0 {
	return GyroConfig0(combine(byte(r), 0xF0, byte(o)))
}

// AccelConfig1 mirrors ACCEL_CONFIG1; ACCEL_UI_FILT_ORD lives in bits 4:3.
type AccelConfig1 uint8

func (r AccelConfig1) FilterOrder() int { return int(r&0x18)>>3 + 1 }

// GyroConfig1 mirrors GYRO_CONFIG1; GYRO_UI_FILT_ORD lives in bits 5:4.
type GyroConfig1 uint8

func (r GyroConfig1) FilterOrder() int { return int(r&0x30)>>4 + 1 }

// GyroAccelConfig0 mirrors GYRO_ACCEL_CONFIG0: ACCEL_UI_FILT_BW in bits 7:4,
// GYRO_UI_FILT_BW in bits 3:0.
type GyroAccelConfig0 uint8

func (r GyroAccelConfig0) AccelFilterBW() uint8 { return uint8(r) >> 4 }
func (r GyroAccelConfig0) GyroFilterBW() uint8  { return uint8(r) & 0x0F }

// INT_CONFIG bits.
const (
	int1PolarityHigh = 1 << 0
	int1PushPull     = 1 << 1
	int1Latched      = 1 << 2
	int2PolarityHigh = 1 << 3
	int2PushPull     = 1 << 4
	int2Latched      = 1 << 5
)

// intConfigDataReady drives both pins active high, push-pull, pulsed.
const intConfigDataReady = int1PolarityHigh | int1PushPull | int2PolarityHigh | int2PushPull

// IntConfig1 mirrors INT_CONFIG1.
type IntConfig1 uint8

const intAsyncReset = 1 << 4

// WithAsyncReset sets or clears INT_ASYNC_RESET; the interrupt pins only
// operate correctly with it cleared.
func (r IntConfig1) WithAsyncReset(on bool) IntConfig1 {
	if on {
		return r | intAsyncReset
	}
	return r &^ intAsyncReset
}

// INT_SOURCE0 bits.
const (
	uiDataReadyInt1 = 1 << 3
	resetDoneInt1   = 1 << 4
)
