package adaq8092_test

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/iiolab/adaq8092"
	"github.com/nasa-jpl/iiolab/iio"
	"github.com/nasa-jpl/iiolab/iiosim"
)

func connect(t *testing.T) (*iiosim.Server, *adaq8092.ADAQ8092) {
	sim := iiosim.New()
	addr, err := sim.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { sim.Close() })
	adc, err := adaq8092.NewWithTimeout("ip:"+addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { adc.Close() })
	return sim, adc
}

func TestNewDefaults(t *testing.T) {
	_, adc := connect(t)
	assert.Equal(t, []int{0, 1}, adc.RxEnabledChannels())
	assert.Equal(t, adaq8092.DefaultRxBufferSize, adc.RxBufferSize())
	assert.Equal(t, adaq8092.OutputRaw, adc.RxOutputType())
}

func TestNewSendsTimeout(t *testing.T) {
	sim, _ := connect(t)
	cmds := sim.Commands()
	require.NotEmpty(t, cmds)
	assert.Equal(t, "TIMEOUT 1000", cmds[0])
}

func TestNewFailsWithoutListener(t *testing.T) {
	sim := iiosim.New()
	addr, err := sim.Start("127.0.0.1:0")
	require.NoError(t, err)
	sim.Close()
	_, err = adaq8092.NewWithTimeout("ip:"+addr, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestNewRejectsBadURI(t *testing.T) {
	_, err := adaq8092.New("local:")
	assert.ErrorIs(t, err, iio.ErrUnsupportedURI)
}

func TestClientSideSettings(t *testing.T) {
	_, adc := connect(t)
	require.NoError(t, adc.SetRxBufferSize(256))
	assert.Equal(t, 256, adc.RxBufferSize())
	assert.ErrorIs(t, adc.SetRxBufferSize(0), adaq8092.ErrInvalidOption)

	require.NoError(t, adc.SetRxOutputType(adaq8092.OutputSI))
	assert.ErrorIs(t, adc.SetRxOutputType("volts"), adaq8092.ErrInvalidOption)
	assert.Equal(t, adaq8092.OutputSI, adc.RxOutputType())

	require.NoError(t, adc.SetRxEnabledChannels([]int{1}))
	assert.Equal(t, []int{1}, adc.RxEnabledChannels())
	assert.ErrorIs(t, adc.SetRxEnabledChannels([]int{2}), adaq8092.ErrInvalidChannel)
	assert.ErrorIs(t, adc.SetRxEnabledChannels(nil), adaq8092.ErrInvalidChannel)
	assert.ErrorIs(t, adc.SetRxEnabledChannels([]int{0, 0}), adaq8092.ErrInvalidChannel)
}

func TestTypedAccessors(t *testing.T) {
	sim, adc := connect(t)

	fs, err := adc.SamplingFrequency()
	require.NoError(t, err)
	assert.Equal(t, int64(iiosim.DefaultSampleRate), fs)
	require.NoError(t, adc.SetSamplingFrequency(50000000))
	fs, err = adc.SamplingFrequency()
	require.NoError(t, err)
	assert.Equal(t, int64(50000000), fs)

	require.NoError(t, adc.SetLVDSCurMode("2.1mA"))
	v, err := adc.LVDSCurMode()
	require.NoError(t, err)
	assert.Equal(t, "2.1mA", v)
	assert.Equal(t, uint8(0x60), sim.Reg(adaq8092.RegOutputMode)&0x70)

	require.NoError(t, adc.SetPDGPIO(1))
	n, err := adc.PDGPIO()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	v, err = adc.TwosComplement()
	require.NoError(t, err)
	assert.Equal(t, "on", v)
}

func TestInvalidOptionNeverReachesDevice(t *testing.T) {
	sim, adc := connect(t)
	before := len(sim.Commands())
	assert.ErrorIs(t, adc.SetPDMode("hibernate"), adaq8092.ErrInvalidOption)
	assert.ErrorIs(t, adc.SetSamplingFrequency(adaq8092.MaxSampleRate+1), adaq8092.ErrInvalidOption)
	assert.ErrorIs(t, adc.WriteAttribute("gain", "1"), adaq8092.ErrInvalidOption)
	_, err := adc.ReadAttribute("gain")
	assert.ErrorIs(t, err, adaq8092.ErrInvalidOption)
	assert.Len(t, sim.Commands(), before)
}

func TestEnabledChannelsPseudoAttribute(t *testing.T) {
	_, adc := connect(t)
	v, err := adc.ReadAttribute("rx_enabled_channels")
	require.NoError(t, err)
	assert.Equal(t, "[0 1]", v)
}

func TestRegisterAccess(t *testing.T) {
	sim, adc := connect(t)
	v, err := adc.Reg(adaq8092.RegDataFormat)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x19), v)

	require.NoError(t, adc.SetTestMode("ones"))
	v, err = adc.Reg(adaq8092.RegDataFormat)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x09), v)

	require.NoError(t, adc.SetReg(adaq8092.RegPowerdown, 0x01))
	mode, err := adc.PDMode()
	require.NoError(t, err)
	assert.Equal(t, "ch2_nap", mode)
	assert.Equal(t, uint8(0x01), sim.Reg(adaq8092.RegPowerdown))

	_, err = adc.Reg(0x1B)
	assert.ErrorIs(t, err, adaq8092.ErrInvalidOption)
}

func TestRxCheckerboard(t *testing.T) {
	_, adc := connect(t)
	require.NoError(t, adc.SetRxBufferSize(256))
	wf, err := adc.Rx()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, wf.Indices())
	assert.InDelta(t, 1e-8, wf.DT, 1e-15)
	for _, idx := range wf.Indices() {
		ch := wf.Channels[idx]
		data, ok := ch.Data.([]int16)
		require.True(t, ok)
		require.Len(t, data, 256)
		for i, v := range data {
			if i%2 == 0 {
				assert.Equal(t, int16(-5462), v)
			} else {
				assert.Equal(t, int16(5461), v)
			}
		}
		assert.Equal(t, 1., ch.Scale)
	}
	assert.Equal(t, "voltage1", wf.Channels[1].Name)
}

func TestRxSingleChannel(t *testing.T) {
	sim, adc := connect(t)
	require.NoError(t, adc.SetRxEnabledChannels([]int{1}))
	require.NoError(t, adc.SetRxBufferSize(16))
	wf, err := adc.Rx()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, wf.Indices())
	assert.Equal(t, 16, wf.Channels[1].Len())
	assert.Contains(t, sim.Commands(), "OPEN iio:device0 16 00000002")
}

func TestRxSIAppliesScale(t *testing.T) {
	_, adc := connect(t)
	require.NoError(t, adc.SetRxOutputType(adaq8092.OutputSI))
	require.NoError(t, adc.SetTestMode("ones"))
	require.NoError(t, adc.SetRxBufferSize(4))
	wf, err := adc.Rx()
	require.NoError(t, err)
	ch := wf.Channels[0]
	assert.InDelta(t, 0.122070312, ch.Scale, 1e-12)
	assert.InDeltaSlice(t, []float64{-0.122070312, -0.122070312, -0.122070312, -0.122070312}, ch.Physical(), 1e-9)
}

func TestRxInSleepFails(t *testing.T) {
	_, adc := connect(t)
	require.NoError(t, adc.SetPDMode("sleep"))
	_, err := adc.Rx()
	assert.ErrorIs(t, err, syscall.EIO)

	// the handle stays usable
	require.NoError(t, adc.SetPDMode("normal"))
	_, err = adc.Rx()
	assert.NoError(t, err)
}

func TestAttachRequiresDevice(t *testing.T) {
	sim := iiosim.New()
	addr, err := sim.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { sim.Close() })
	sim.FailCommand("PRINT", syscall.ENOSYS)
	_, err = adaq8092.NewWithTimeout("ip:"+addr, time.Second)
	assert.ErrorIs(t, err, syscall.ENOSYS)
}
