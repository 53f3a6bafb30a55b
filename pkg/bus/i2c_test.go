package bus

import (
	"errors"
	"testing"

	"github.com/ericogr/icm42688p-monitor/pkg/hwerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestI2CRegisterTransactions(t *testing.T) {
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x68, W: []byte{0x11, 0x01}},
		{Addr: 0x68, W: []byte{0x75}, R: []byte{0x47}},
		{Addr: 0x68, W: []byte{0x1D}, R: []byte{1, 2, 3, 4}},
	}}
	c := NewI2C(pb, 0x68)

	require.NoError(t, c.WriteRegister(0x11, 0x01))
	v, err := c.ReadRegister(0x75)
	require.NoError(t, err)
	assert.Equal(t, byte(0x47), v)
	b, err := c.ReadBlock(0x1D, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b)

	// Playback.Close reports any unconsumed operation.
	require.NoError(t, c.Close())
}

func TestI2CFailureIsTransportError(t *testing.T) {
	pb := &i2ctest.Playback{DontPanic: true}
	c := NewI2C(pb, 0x68)

	err := c.WriteRegister(0x11, 0x01)
	require.Error(t, err)
	assert.True(t, errors.Is(err, hwerr.ErrTransport))

	_, err = c.ReadRegister(0x75)
	assert.True(t, errors.Is(err, hwerr.ErrTransport))

	_, err = c.ReadBlock(0x1D, 14)
	assert.True(t, errors.Is(err, hwerr.ErrTransport))
}

func failHostInit(t *testing.T) {
	t.Helper()
	orig := hostInit
	hostInit = func() (*driverreg.State, error) { return nil, errors.New("no drivers loaded") }
	t.Cleanup(func() { hostInit = orig })
}

func TestOpenI2CHostInitFailure(t *testing.T) {
	failHostInit(t)
	_, err := OpenI2C("1", 0x68)
	require.Error(t, err)
	assert.True(t, errors.Is(err, hwerr.ErrTransport))
	assert.ErrorContains(t, err, "no drivers loaded")
}
