package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNames(t *testing.T) {
	for i := range accelScaleNames {
		s, err := ParseAccelScale(AccelScale(i).String())
		require.NoError(t, err)
		assert.Equal(t, AccelScale(i), s)
	}
	for i := range gyroScaleNames {
		s, err := ParseGyroScale(GyroScale(i).String())
		require.NoError(t, err)
		assert.Equal(t, GyroScale(i), s)
	}
	for code := range odrNames {
		o, err := ParseODR(code.String())
		require.NoError(t, err)
		assert.Equal(t, code, o)
	}

	s, err := ParseAccelScale(" 4G ")
	require.NoError(t, err)
	assert.Equal(t, Accel4g, s)

	_, err = ParseAccelScale("3g")
	assert.Error(t, err)
	_, err = ParseGyroScale("4000dps")
	assert.Error(t, err)
	_, err = ParseODR("7Hz")
	assert.Error(t, err)
}

func TestRegisterFields(t *testing.T) {
	tests := []struct {
		reg  AccelConfig0
		fs   AccelScale
		odr  ODR
		next AccelConfig0
	}{
		{0x06, Accel16g, ODR1kHz, AccelConfig0(0x06).WithScale(Accel2g)},
		{0x66, Accel2g, ODR1kHz, 0x66},
		{0x49, Accel4g, ODR50Hz, 0x49},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.fs, tt.reg.Scale())
		assert.Equal(t, tt.odr, tt.reg.ODR())
	}
	assert.Equal(t, AccelConfig0(0x66), tests[0].next)

	assert.Equal(t, 2, AccelConfig1(0x0D).FilterOrder())
	assert.Equal(t, 2, GyroConfig1(0x16).FilterOrder())
	assert.Equal(t, uint8(1), GyroAccelConfig0(0x11).AccelFilterBW())
	assert.Equal(t, uint8(1), GyroAccelConfig0(0x11).GyroFilterBW())
	assert.Equal(t, IntConfig1(0x10), IntConfig1(0x00).WithAsyncReset(true))
	assert.Equal(t, IntConfig1(0x00), IntConfig1(0x10).WithAsyncReset(false))
	assert.Equal(t, "ODR(0x00)", ODR(0).String())
	assert.Equal(t, "AccelScale(9)", AccelScale(9).String())
}
