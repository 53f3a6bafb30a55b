package bus

import (
	"encoding/binary"
	"fmt"

	"github.com/ericogr/icm42688p-monitor/pkg/hwerr"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/mmr"
	"periph.io/x/host/v3"
)

var hostInit = host.Init

// I2C is a Bus backed by a periph.io I2C device.
type I2C struct {
	dev  *i2c.Dev
	regs mmr.Dev8
	bus  i2c.Bus
}

// OpenI2C initializes the host drivers and opens the named bus (e.g. "1" for
// /dev/i2c-1) addressing the device at addr.
func OpenI2C(name string, addr uint16) (*I2C, error) {
	if _, err := hostInit(); err != nil {
		return nil, fmt.Errorf("host init: %w: %w", hwerr.ErrTransport, err)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c %q: %w: %w", name, hwerr.ErrTransport, err)
	}
	return NewI2C(b, addr), nil
}

// NewI2C wraps an already opened bus. If b implements io.Closer it is closed
// by Close.
func NewI2C(b i2c.Bus, addr uint16) *I2C {
	dev := &i2c.Dev{Addr: addr, Bus: b}
	return &I2C{dev: dev, regs: mmr.Dev8{Conn: dev, Order: binary.BigEndian}, bus: b}
}

func (c *I2C) WriteRegister(reg, value byte) error {
	if err := c.regs.WriteUint8(reg, value); err != nil {
		return fmt.Errorf("write 0x%02X: %w: %w", reg, hwerr.ErrTransport, err)
	}
	return nil
}

func (c *I2C) ReadRegister(reg byte) (byte, error) {
	v, err := c.regs.ReadUint8(reg)
	if err != nil {
		return 0, fmt.Errorf("read 0x%02X: %w: %w", reg, hwerr.ErrTransport, err)
	}
	return v, nil
}

// ReadBlock reads n consecutive registers starting at reg in one transaction.
func (c *I2C) ReadBlock(reg byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := c.dev.Tx([]byte{reg}, buf); err != nil {
		return nil, fmt.Errorf("read block 0x%02X[%d]: %w: %w", reg, n, hwerr.ErrTransport, err)
	}
	return buf, nil
}

func (c *I2C) String() string {
	return c.dev.String()
}

func (c *I2C) Close() error {
	if cl, ok := c.bus.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}
