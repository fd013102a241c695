// Package adaq8092 provides an interface to the Analog Devices ADAQ8092,
// a dual channel 14 bit 105 MSPS uModule data acquisition system, as
// exposed by its Linux IIO driver through iiod.
package adaq8092

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nasa-jpl/iiolab/iio"
	"github.com/nasa-jpl/iiolab/oscilloscope"
)

const (
	// DefaultURI is where the evaluation platform answers out of the box
	DefaultURI = "ip:analog.local"

	// DeviceName is the IIO name of the converter
	DeviceName = "adaq8092"

	// MaxSampleRate is the fastest conversion rate in samples per second
	MaxSampleRate = 105000000

	// DefaultRxBufferSize is the number of samples per channel per Rx call
	// until SetRxBufferSize is used
	DefaultRxBufferSize = 1024

	// OutputRaw returns ADC codes as they come off the converter
	OutputRaw = "raw"

	// OutputSI returns data scaled to millivolts by the channel scale and offset
	OutputSI = "SI"

	regAccessAttr = "direct_reg_access"
)

// RxChannelNames are the IIO ids of the receive channels; an index into
// this slice is a channel index
var RxChannelNames = []string{"voltage0", "voltage1"}

var (
	// ErrInvalidOption is generated when an attribute value is rejected before it is sent
	ErrInvalidOption = errors.New("invalid attribute value")

	// ErrInvalidChannel is generated for a channel index outside RxChannelNames
	ErrInvalidChannel = errors.New("invalid channel index")
)

// ADAQ8092 is a handle to a connected converter.  Buffer size, output type
// and enabled channels are client side settings that shape Rx; every other
// setting lives on the device.
type ADAQ8092 struct {
	client *iio.Client
	ctx    *iio.Context
	dev    *iio.Device

	rxBufferSize int
	rxOutputType string
	rxEnabled    []int
}

// New connects to the converter at uri
func New(uri string) (*ADAQ8092, error) {
	return NewWithTimeout(uri, iio.DefaultTimeout)
}

// NewWithTimeout connects to the converter at uri, bounding every exchange by timeout
func NewWithTimeout(uri string, timeout time.Duration) (*ADAQ8092, error) {
	client, err := iio.Dial(uri, timeout)
	if err != nil {
		return nil, err
	}
	// iiod applies the same bound to its side of the exchanges
	if timeout > 0 {
		if err = client.SetTimeout(timeout); err != nil {
			client.Close()
			return nil, err
		}
	}
	a, err := Attach(client)
	if err != nil {
		client.Close()
		return nil, err
	}
	return a, nil
}

// Attach binds to the converter reachable through an existing client
func Attach(client *iio.Client) (*ADAQ8092, error) {
	ctx, err := client.Context()
	if err != nil {
		return nil, err
	}
	dev, err := ctx.Device(DeviceName)
	if err != nil {
		return nil, err
	}
	for _, id := range RxChannelNames {
		ch, err := dev.Channel(id, false)
		if err != nil {
			return nil, err
		}
		if ch.Scan == nil {
			return nil, fmt.Errorf("channel %s of %s is not scannable", id, DeviceName)
		}
	}
	a := &ADAQ8092{
		client:       client,
		ctx:          ctx,
		dev:          dev,
		rxBufferSize: DefaultRxBufferSize,
		rxOutputType: OutputRaw,
	}
	for i := range RxChannelNames {
		a.rxEnabled = append(a.rxEnabled, i)
	}
	return a, nil
}

// Close releases the connection to the device
func (a *ADAQ8092) Close() error {
	return a.client.Close()
}

// Context returns the IIO context the device was found in
func (a *ADAQ8092) Context() *iio.Context {
	return a.ctx
}

// RxBufferSize returns the number of samples per channel captured by Rx
func (a *ADAQ8092) RxBufferSize() int {
	return a.rxBufferSize
}

// SetRxBufferSize sets the number of samples per channel captured by Rx
func (a *ADAQ8092) SetRxBufferSize(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: rx buffer size must be positive, got %d", ErrInvalidOption, n)
	}
	a.rxBufferSize = n
	return nil
}

// RxOutputType returns OutputRaw or OutputSI
func (a *ADAQ8092) RxOutputType() string {
	return a.rxOutputType
}

// SetRxOutputType selects OutputRaw or OutputSI
func (a *ADAQ8092) SetRxOutputType(typ string) error {
	if typ != OutputRaw && typ != OutputSI {
		return fmt.Errorf("%w: output type must be %q or %q, got %q", ErrInvalidOption, OutputRaw, OutputSI, typ)
	}
	a.rxOutputType = typ
	return nil
}

// RxEnabledChannels returns the channel indices captured by Rx
func (a *ADAQ8092) RxEnabledChannels() []int {
	out := make([]int, len(a.rxEnabled))
	copy(out, a.rxEnabled)
	return out
}

// SetRxEnabledChannels selects the channel indices captured by Rx
func (a *ADAQ8092) SetRxEnabledChannels(chans []int) error {
	if len(chans) == 0 {
		return fmt.Errorf("%w: at least one channel must be enabled", ErrInvalidChannel)
	}
	seen := map[int]bool{}
	for _, c := range chans {
		if c < 0 || c >= len(RxChannelNames) {
			return fmt.Errorf("%w: %d", ErrInvalidChannel, c)
		}
		if seen[c] {
			return fmt.Errorf("%w: %d listed twice", ErrInvalidChannel, c)
		}
		seen[c] = true
	}
	a.rxEnabled = append(a.rxEnabled[:0], chans...)
	return nil
}

func (a *ADAQ8092) devLoc() iio.Location {
	return iio.Location{Device: a.dev.ID}
}

// ReadAttribute reads a device attribute by name.  The pseudo attribute
// rx_enabled_channels reports the enabled channel set.
func (a *ADAQ8092) ReadAttribute(name string) (string, error) {
	if name == "rx_enabled_channels" {
		return fmt.Sprint(a.rxEnabled), nil
	}
	if _, ok := LookupAttr(name); !ok {
		return "", fmt.Errorf("%w: unknown attribute %q", ErrInvalidOption, name)
	}
	return a.client.ReadAttr(a.devLoc(), name)
}

// WriteAttribute validates and writes a device attribute
func (a *ADAQ8092) WriteAttribute(name, value string) error {
	attr, ok := LookupAttr(name)
	if !ok {
		return fmt.Errorf("%w: unknown attribute %q", ErrInvalidOption, name)
	}
	if err := attr.Validate(value); err != nil {
		return err
	}
	return a.client.WriteAttr(a.devLoc(), name, value)
}

func (a *ADAQ8092) readInt(name string) (int64, error) {
	s, err := a.ReadAttribute(name)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}

func (a *ADAQ8092) writeInt(name string, v int64) error {
	return a.WriteAttribute(name, strconv.FormatInt(v, 10))
}

// SamplingFrequency returns the conversion rate in Hz
func (a *ADAQ8092) SamplingFrequency() (int64, error) {
	return a.readInt("sampling_frequency")
}

// SetSamplingFrequency sets the conversion rate in Hz
func (a *ADAQ8092) SetSamplingFrequency(hz int64) error {
	return a.writeInt("sampling_frequency", hz)
}

// AltBitPolEn returns "on" if alternate bit polarity is engaged
func (a *ADAQ8092) AltBitPolEn() (string, error) { return a.ReadAttribute("alt_bit_pol_en") }

// SetAltBitPolEn engages ("on") or releases ("off") alternate bit polarity
func (a *ADAQ8092) SetAltBitPolEn(v string) error { return a.WriteAttribute("alt_bit_pol_en", v) }

// ClkDCMode returns the state of the clock duty cycle stabilizer
func (a *ADAQ8092) ClkDCMode() (string, error) { return a.ReadAttribute("clk_dc_mode") }

// SetClkDCMode turns the clock duty cycle stabilizer "on" or "off"
func (a *ADAQ8092) SetClkDCMode(v string) error { return a.WriteAttribute("clk_dc_mode", v) }

// ClkPhaseMode returns the output clock phase delay
func (a *ADAQ8092) ClkPhaseMode() (string, error) { return a.ReadAttribute("clk_phase_mode") }

// SetClkPhaseMode sets the output clock phase delay
func (a *ADAQ8092) SetClkPhaseMode(v string) error { return a.WriteAttribute("clk_phase_mode", v) }

// ClkPolMode returns the CLKOUT polarity
func (a *ADAQ8092) ClkPolMode() (string, error) { return a.ReadAttribute("clk_pol_mode") }

// SetClkPolMode sets the CLKOUT polarity
func (a *ADAQ8092) SetClkPolMode(v string) error { return a.WriteAttribute("clk_pol_mode", v) }

// DataRandEn returns the state of the data output randomizer
func (a *ADAQ8092) DataRandEn() (string, error) { return a.ReadAttribute("data_rand_en") }

// SetDataRandEn turns the data output randomizer "on" or "off"
func (a *ADAQ8092) SetDataRandEn(v string) error { return a.WriteAttribute("data_rand_en", v) }

// DoutEn returns whether the digital outputs are driven
func (a *ADAQ8092) DoutEn() (string, error) { return a.ReadAttribute("dout_en") }

// SetDoutEn turns the digital outputs "on" or "off"
func (a *ADAQ8092) SetDoutEn(v string) error { return a.WriteAttribute("dout_en", v) }

// DoutMode returns the digital output mode
func (a *ADAQ8092) DoutMode() (string, error) { return a.ReadAttribute("dout_mode") }

// SetDoutMode sets the digital output mode
func (a *ADAQ8092) SetDoutMode(v string) error { return a.WriteAttribute("dout_mode", v) }

// LVDSCurMode returns the LVDS output current
func (a *ADAQ8092) LVDSCurMode() (string, error) { return a.ReadAttribute("lvds_cur_mode") }

// SetLVDSCurMode sets the LVDS output current
func (a *ADAQ8092) SetLVDSCurMode(v string) error { return a.WriteAttribute("lvds_cur_mode", v) }

// LVDSTermMode returns the state of the LVDS internal termination
func (a *ADAQ8092) LVDSTermMode() (string, error) { return a.ReadAttribute("lvds_term_mode") }

// SetLVDSTermMode turns the LVDS internal termination "on" or "off"
func (a *ADAQ8092) SetLVDSTermMode(v string) error { return a.WriteAttribute("lvds_term_mode", v) }

// ParSerGPIO returns the level of the PAR/SER pin
func (a *ADAQ8092) ParSerGPIO() (int64, error) { return a.readInt("par_ser_gpio") }

// SetParSerGPIO drives the PAR/SER pin
func (a *ADAQ8092) SetParSerGPIO(v int64) error { return a.writeInt("par_ser_gpio", v) }

// PDGPIO returns the levels of the PD1 (bit 0) and PD2 (bit 1) pins
func (a *ADAQ8092) PDGPIO() (int64, error) { return a.readInt("pd_gpio") }

// SetPDGPIO drives the PD1 (bit 0) and PD2 (bit 1) pins
func (a *ADAQ8092) SetPDGPIO(v int64) error { return a.writeInt("pd_gpio", v) }

// PDMode returns the power down mode
func (a *ADAQ8092) PDMode() (string, error) { return a.ReadAttribute("pd_mode") }

// SetPDMode sets the power down mode
func (a *ADAQ8092) SetPDMode(v string) error { return a.WriteAttribute("pd_mode", v) }

// TestMode returns the digital output test pattern
func (a *ADAQ8092) TestMode() (string, error) { return a.ReadAttribute("test_mode") }

// SetTestMode selects a digital output test pattern, or "off" for conversions
func (a *ADAQ8092) SetTestMode(v string) error { return a.WriteAttribute("test_mode", v) }

// TwosComplement returns "on" for two's complement output and "off" for offset binary
func (a *ADAQ8092) TwosComplement() (string, error) { return a.ReadAttribute("twos_complement") }

// SetTwosComplement selects two's complement ("on") or offset binary ("off") output
func (a *ADAQ8092) SetTwosComplement(v string) error { return a.WriteAttribute("twos_complement", v) }

func (a *ADAQ8092) debugLoc() iio.Location {
	return iio.Location{Device: a.dev.ID, Kind: iio.DebugAttr}
}

// Reg reads a register directly over SPI
func (a *ADAQ8092) Reg(addr uint8) (uint8, error) {
	if addr > MaxRegister {
		return 0, fmt.Errorf("%w: register 0x%02X beyond 0x%02X", ErrInvalidOption, addr, MaxRegister)
	}
	err := a.client.WriteAttr(a.debugLoc(), regAccessAttr, fmt.Sprintf("0x%X", addr))
	if err != nil {
		return 0, err
	}
	s, err := a.client.ReadAttr(a.debugLoc(), regAccessAttr)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: register read returned %q", iio.ErrProtocol, s)
	}
	return uint8(v), nil
}

// SetReg writes a register directly over SPI
func (a *ADAQ8092) SetReg(addr, val uint8) error {
	if addr > MaxRegister {
		return fmt.Errorf("%w: register 0x%02X beyond 0x%02X", ErrInvalidOption, addr, MaxRegister)
	}
	return a.client.WriteAttr(a.debugLoc(), regAccessAttr, fmt.Sprintf("0x%X 0x%X", addr, val))
}

// Rx captures one buffer of RxBufferSize samples on every enabled channel.
// The waveform is keyed by channel index.  In raw mode the data are the
// converter's codes; in SI mode each channel carries its scale and offset
// and Physical yields millivolts.
func (a *ADAQ8092) Rx() (oscilloscope.Waveform, error) {
	var wf oscilloscope.Waveform

	// buffer elements are ordered by scan index, not by enable order
	type element struct {
		index int
		ch    *iio.Channel
		fmt   iio.DataFormat
	}
	elems := make([]element, 0, len(a.rxEnabled))
	maxScan := 0
	for _, ch := range a.dev.ScanChannels() {
		if ch.Scan.Index > maxScan {
			maxScan = ch.Scan.Index
		}
	}
	mask := iio.NewChannelMask(maxScan + 1)
	for _, idx := range a.rxEnabled {
		ch, err := a.dev.Channel(RxChannelNames[idx], false)
		if err != nil {
			return wf, err
		}
		f, err := ch.Format()
		if err != nil {
			return wf, err
		}
		mask.Set(ch.Scan.Index)
		elems = append(elems, element{index: idx, ch: ch, fmt: f})
	}
	sort.Slice(elems, func(i, j int) bool { return elems[i].ch.Scan.Index < elems[j].ch.Scan.Index })
	formats := make([]iio.DataFormat, len(elems))
	for i, e := range elems {
		formats[i] = e.fmt
	}
	layout := iio.NewLayout(formats)

	fs, err := a.SamplingFrequency()
	if err != nil {
		return wf, err
	}
	if fs > 0 {
		wf.DT = 1 / float64(fs)
	}

	buf, err := a.client.Capture(a.dev.ID, a.rxBufferSize, mask, a.rxBufferSize*layout.FrameSize)
	if err != nil {
		return wf, fmt.Errorf("capture %d samples: %w", a.rxBufferSize, err)
	}
	values, err := layout.Demux(buf)
	if err != nil {
		return wf, err
	}

	wf.Channels = make(map[int]oscilloscope.Channel, len(elems))
	for i, e := range elems {
		ch := oscilloscope.Channel{Name: e.ch.ID, Data: narrow(values[i], e.fmt), Scale: 1}
		if a.rxOutputType == OutputSI {
			if ch.Scale, ch.Offset, err = a.scaleOffset(e.ch); err != nil {
				return wf, err
			}
		}
		wf.Channels[e.index] = ch
	}
	return wf, nil
}

func (a *ADAQ8092) scaleOffset(ch *iio.Channel) (float64, float64, error) {
	scale, offset := 1., 0.
	loc := iio.Location{Device: a.dev.ID, Kind: iio.ChannelAttr, Channel: ch.ID}
	if ch.HasAttr("scale") {
		s, err := a.client.ReadAttr(loc, "scale")
		if err != nil {
			return 0, 0, err
		}
		if scale, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, 0, fmt.Errorf("%w: scale of %s is %q", iio.ErrProtocol, ch.ID, s)
		}
	}
	if ch.HasAttr("offset") {
		s, err := a.client.ReadAttr(loc, "offset")
		if err != nil {
			return 0, 0, err
		}
		if offset, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, 0, fmt.Errorf("%w: offset of %s is %q", iio.ErrProtocol, ch.ID, s)
		}
	}
	return scale, offset, nil
}

// narrow stores decoded samples in the smallest slice type the format fits
func narrow(v []int64, f iio.DataFormat) oscilloscope.Data {
	switch {
	case f.Signed && f.Bits <= 16 && f.Repeat == 1:
		out := make([]int16, len(v))
		for i := range v {
			out[i] = int16(v[i])
		}
		return out
	case !f.Signed && f.Bits <= 16 && f.Repeat == 1:
		out := make([]uint16, len(v))
		for i := range v {
			out[i] = uint16(v[i])
		}
		return out
	}
	return v
}
