package bus

import (
	"errors"
	"testing"

	"github.com/ericogr/icm42688p-monitor/pkg/hwerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimRecordsWrites(t *testing.T) {
	s := NewSim()
	var hooked []byte
	s.OnWrite = func(s *Sim, reg, value byte) {
		hooked = append(hooked, reg)
		s.Set(reg+1, value)
	}

	require.NoError(t, s.WriteRegister(0x10, 0xAB))
	assert.Equal(t, []Write{{Reg: 0x10, Value: 0xAB}}, s.Writes())
	assert.Equal(t, []byte{0x10}, hooked)
	assert.Equal(t, byte(0xAB), s.Get(0x11))
}

func TestSimBlockAndFailures(t *testing.T) {
	s := NewSim()
	s.SetBlock(0x1D, []byte{1, 2, 3})

	b, err := s.ReadBlock(0x1D, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)

	s.MaxBlock = 2
	b, err = s.ReadBlock(0x1D, 3)
	require.NoError(t, err)
	assert.Len(t, b, 2)

	s.Fail(0x1E)
	_, err = s.ReadBlock(0x1D, 3)
	assert.True(t, errors.Is(err, hwerr.ErrTransport))
	_, err = s.ReadRegister(0x1E)
	assert.True(t, errors.Is(err, hwerr.ErrTransport))
	err = s.WriteRegister(0x1E, 0)
	assert.True(t, errors.Is(err, hwerr.ErrTransport))
	assert.Empty(t, s.Writes())

	_, err = s.ReadBlock(0xFA, 14)
	assert.True(t, errors.Is(err, hwerr.ErrTransport))
}
