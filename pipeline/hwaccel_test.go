package astipipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHardwareAccelerators(t *testing.T) {
	// Register
	hs := NewHardwareAccelerators()
	vaapi := &mockedHardwareAccelerator{err: errors.New("no device"), name: "vaapi"}
	cuda := &mockedHardwareAccelerator{name: "cuda"}
	require.NoError(t, hs.Register(vaapi))
	require.NoError(t, hs.Register(cuda))
	assert.Error(t, hs.Register(&mockedHardwareAccelerator{name: "cuda"}))
	assert.Error(t, hs.Register(&mockedHardwareAccelerator{name: HardwareAcceleratorAuto}))
	assert.Equal(t, []string{"cuda", "vaapi"}, hs.Names())
	assert.Equal(t, []HardwareAccelerator{vaapi, cuda}, hs.All())

	// Lookup
	a, ok := hs.Lookup("nvdec")
	require.True(t, ok)
	assert.Equal(t, cuda, a)
	_, ok = hs.Lookup("qsv")
	assert.False(t, ok)

	// No acceleration
	a, d, err := hs.initHardwareDevice(HardwareAcceleratorNone, "")
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Nil(t, d)

	// Auto picks the first accelerator that can be initialized
	a, d, err = hs.initHardwareDevice(HardwareAcceleratorAuto, "")
	require.NoError(t, err)
	assert.Equal(t, cuda, a)
	assert.NotNil(t, d)
	assert.Equal(t, []string{""}, vaapi.inits)

	// Explicit
	_, _, err = hs.initHardwareDevice("cuda", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"", "1"}, cuda.inits)
	_, _, err = hs.initHardwareDevice("vaapi", "/dev/dri/renderD128")
	assert.Error(t, err)
	_, _, err = hs.initHardwareDevice("qsv", "")
	assert.Error(t, err)
}
