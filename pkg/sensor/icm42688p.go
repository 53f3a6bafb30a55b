// Package sensor drives a TDK InvenSense ICM-42688-P 6-axis IMU.
//
// Device keeps a mirror of the configuration registers it touches. Every
// configuration write goes through a preserve-and-combine step on the
// mirrored value, so fields that share a register are never clobbered, and
// the mirror is only updated after the bus reports success.
package sensor

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ericogr/icm42688p-monitor/pkg/bus"
	"github.com/ericogr/icm42688p-monitor/pkg/hwerr"
)

var sleep = time.Sleep

// Options tunes bus timing.
type Options struct {
	// ResetDelay is the wait after a soft reset. Values below 1ms are raised
	// to 1ms.
	ResetDelay time.Duration
	// WriteDelay is applied after every successful register write.
	WriteDelay time.Duration
}

// Device is an initialized ICM-42688-P. Configuration calls are serialized
// against Measure.
type Device struct {
	bus  bus.Bus
	opts Options

	mu    sync.Mutex
	state State
}

// State returns a copy of the mirrored registers.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) write(reg, value byte) error {
	if err := d.bus.WriteRegister(reg, value); err != nil {
		return err
	}
	if d.opts.WriteDelay > 0 {
		sleep(d.opts.WriteDelay)
	}
	return nil
}

// SetAccelScale changes the accelerometer full-scale range and the
// resolution used by Measure.
func (d *Device) SetAccelScale(s AccelScale) error {
	if !s.Valid() {
		return fmt.Errorf("accel scale %d: %w", s, hwerr.ErrInvalidArgument)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.state.AccelConfig0.WithScale(s)
	if err := d.write(regAccelConfig0, byte(v)); err != nil {
		return fmt.Errorf("set accel scale: %w", err)
	}
	d.state.AccelConfig0 = v
	d.state.AccelResolution = s.Resolution()
	return nil
}

// SetAccelODR changes the accelerometer output data rate.
func (d *Device) SetAccelODR(o ODR) error {
	if !o.Valid() {
		return fmt.Errorf("accel odr 0x%02X: %w", uint8(o), hwerr.ErrInvalidArgument)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.state.AccelConfig0.WithODR(o)
	if err := d.write(regAccelConfig0, byte(v)); err != nil {
		return fmt.Errorf("set accel odr: %w", err)
	}
	d.state.AccelConfig0 = v
	return nil
}

// SetGyroScale changes the gyroscope full-scale range and the resolution
// used by Measure.
func (d *Device) SetGyroScale(s GyroScale) error {
	if !s.Valid() {
		return fmt.Errorf("gyro scale %d: %w", s, hwerr.ErrInvalidArgument)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.state.GyroConfig0.WithScale(s)
	if err := d.write(regGyroConfig0, byte(v)); err != nil {
		return fmt.Errorf("set gyro scale: %w", err)
	}
	d.state.GyroConfig0 = v
	d.state.GyroResolution = s.Resolution()
	return nil
}

// SetGyroODR changes the gyroscope output data rate. The gyroscope cannot
// run below 12.5 Hz; those codes are ignored without touching the device.
func (d *Device) SetGyroODR(o ODR) error {
	if !o.Valid() {
		return fmt.Errorf("gyro odr 0x%02X: %w", uint8(o), hwerr.ErrInvalidArgument)
	}
	if o.gyroUnsupported() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.state.GyroConfig0.WithODR(o)
	if err := d.write(regGyroConfig0, byte(v)); err != nil {
		return fmt.Errorf("set gyro odr: %w", err)
	}
	d.state.GyroConfig0 = v
	return nil
}

// EnableDataReadyInterrupt configures INT1/INT2 and routes UI data ready and
// reset done to INT1. Pin configuration is written before routing.
func (d *Device) EnableDataReadyInterrupt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(regIntConfig, intConfigDataReady); err != nil {
		return fmt.Errorf("int config: %w", err)
	}
	b, err := d.bus.ReadRegister(regIntConfig1)
	if err != nil {
		return fmt.Errorf("int config1: %w", err)
	}
	if err := d.write(regIntConfig1, byte(IntConfig1(b).WithAsyncReset(false))); err != nil {
		return fmt.Errorf("int config1: %w", err)
	}
	if err := d.write(regIntSource0, uiDataReadyInt1|resetDoneInt1); err != nil {
		return fmt.Errorf("int source0: %w", err)
	}
	return nil
}

// Measure reads temperature, acceleration and angular rate in one block
// transfer and converts them with the current resolutions.
func (d *Device) Measure() (Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	block, err := d.bus.ReadBlock(regTempData1, sampleLength)
	if err != nil {
		return Sample{}, fmt.Errorf("measure: %w", err)
	}
	return Convert(block, d.state.AccelResolution, d.state.GyroResolution)
}

// Convert decodes a 14 byte TEMP_DATA1..GYRO_DATA_Z0 block. Words are
// big-endian two's complement in the order temp, accel x/y/z, gyro x/y/z.
func Convert(block []byte, accelRes, gyroRes float64) (Sample, error) {
	if len(block) != sampleLength {
		return Sample{}, fmt.Errorf("measure: got %d bytes, want %d: %w", len(block), sampleLength, hwerr.ErrTransport)
	}
	word := func(i int) float64 {
		return float64(int16(binary.BigEndian.Uint16(block[2*i:])))
	}
	var s Sample
	s.TemperatureC = word(0)/132.48 + 25
	for i := 0; i < 3; i++ {
		s.Accel[i] = word(1+i) * accelRes
		s.Gyro[i] = word(4+i) * gyroRes
	}
	return s, nil
}

// Close releases the underlying bus when it owns one.
func (d *Device) Close() error {
	if c, ok := d.bus.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
