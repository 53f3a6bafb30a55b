package sensor

import (
	"fmt"
	"strings"
	"time"

	"github.com/ericogr/icm42688p-monitor/pkg/bus"
	"github.com/ericogr/icm42688p-monitor/pkg/hwerr"
)

// InitError reports which initialization step failed and which steps had
// already taken effect on the device.
type InitError struct {
	Step      string
	Completed []string
	Err       error
}

func (e *InitError) Error() string {
	if len(e.Completed) == 0 {
		return fmt.Sprintf("init %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("init %s (after %s): %v", e.Step, strings.Join(e.Completed, ","), e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

type initStep struct {
	name string
	run  func(d *Device) error
}

var initSteps = []initStep{
	{"reset", func(d *Device) error { return d.write(regDeviceConfig, softReset) }},
	{"settle", func(d *Device) error {
		sleep(d.opts.ResetDelay)
		return nil
	}},
	{"bank", func(d *Device) error {
		if err := d.write(regBankSel, 0); err != nil {
			return err
		}
		d.state.Bank = 0
		return nil
	}},
	{"identify", func(d *Device) error {
		id, err := d.bus.ReadRegister(regWhoAmI)
		if err != nil {
			return err
		}
		if id != whoAmI {
			return fmt.Errorf("WHO_AM_I=0x%02X want 0x%02X: %w", id, whoAmI, hwerr.ErrIdentityMismatch)
		}
		return nil
	}},
	{"power", func(d *Device) error { return d.write(regPwrMgmt0, pwrLowNoise) }},
	{"readback", (*Device).readConfig},
}

// Initialize resets the device, verifies its identity, enables the
// accelerometer and gyroscope in low-noise mode and reads back the
// configuration registers. On failure no Device is returned and the error is
// an *InitError.
func Initialize(b bus.Bus, opts Options) (*Device, error) {
	if opts.ResetDelay < time.Millisecond {
		opts.ResetDelay = time.Millisecond
	}
	d := &Device{bus: b, opts: opts}
	done := make([]string, 0, len(initSteps))
	for _, step := range initSteps {
		if err := step.run(d); err != nil {
			return nil, &InitError{Step: step.name, Completed: done, Err: err}
		}
		done = append(done, step.name)
	}
	return d, nil
}

// readConfig refreshes the mirror from the device. The resolutions follow
// the full-scale fields that were read so Measure is consistent with the
// hardware before any scale is set explicitly.
func (d *Device) readConfig() error {
	var raw [5]byte
	for i, reg := range []byte{regGyroConfig0, regGyroConfig1, regAccelConfig0, regAccelConfig1, regGyroAccelConfig0} {
		v, err := d.bus.ReadRegister(reg)
		if err != nil {
			return err
		}
		raw[i] = v
	}
	d.state.GyroConfig0 = GyroConfig0(raw[0])
	d.state.GyroConfig1 = GyroConfig1(raw[1])
	d.state.AccelConfig0 = AccelConfig0(raw[2])
	d.state.AccelConfig1 = AccelConfig1(raw[3])
	d.state.GyroAccelConfig0 = GyroAccelConfig0(raw[4])
	d.state.AccelResolution = d.state.AccelConfig0.Scale().Resolution()
	d.state.GyroResolution = d.state.GyroConfig0.Scale().Resolution()
	return nil
}
