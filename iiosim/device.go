package iiosim

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"syscall"

	"github.com/nasa-jpl/iiolab/adaq8092"
	"github.com/nasa-jpl/iiolab/iio"
)

const (
	// DefaultSampleRate is the conversion rate after power-up
	DefaultSampleRate = 100000000

	// Scale is the channel scale in mV per code, 2 Vpp over 14 bits
	Scale = "0.122070312"

	codeBits = 14
	codeMask = 1<<codeBits - 1
	midscale = 1 << (codeBits - 1)
)

var channelFormat = iio.DataFormat{Signed: true, FullyDefined: true, Bits: 16, Length: 16, Repeat: 1}

// device is the emulated converter; all access is under Server.mu
type device struct {
	regs      [adaq8092.MaxRegister + 1]uint8
	parSer    int64
	pdGPIO    int64
	fs        int64
	debugAddr uint8

	// n counts samples produced so tones are continuous across buffers
	n int64
}

func newDevice() *device {
	d := &device{fs: DefaultSampleRate}
	d.powerUp()
	return d
}

// powerUp brings the part to the state the kernel probe leaves it in:
// PD pins high, software reset, checkerboard pattern in two's complement
func (d *device) powerUp() {
	d.parSer = 0
	d.pdGPIO = 3
	d.reset()
	d.regs[adaq8092.RegDataFormat] = adaq8092.FieldOutTest.Prep(3) | adaq8092.FieldTwosComp.Prep(1)
}

func (d *device) reset() {
	for i := range d.regs {
		d.regs[i] = 0
	}
}

func (d *device) field(f adaq8092.Field) uint8 {
	return f.Get(d.regs[f.Reg])
}

func (d *device) setReg(addr, val uint8) {
	if addr == adaq8092.RegReset {
		// self clearing
		if adaq8092.FieldReset.Get(val) != 0 {
			d.reset()
		}
		return
	}
	d.regs[addr] = val
}

func (d *device) readAttr(name string) (string, syscall.Errno) {
	if base, ok := strings.CutSuffix(name, "_available"); ok {
		attr, ok := adaq8092.LookupAttr(base)
		if !ok || !attr.IsEnum() {
			return "", syscall.ENOENT
		}
		return strings.Join(attr.OptionNames(), " "), 0
	}
	switch name {
	case "sampling_frequency":
		return strconv.FormatInt(d.fs, 10), 0
	case "par_ser_gpio":
		return strconv.FormatInt(d.parSer, 10), 0
	case "pd_gpio":
		return strconv.FormatInt(d.pdGPIO, 10), 0
	}
	attr, ok := adaq8092.LookupAttr(name)
	if !ok || attr.Field == nil {
		return "", syscall.ENOENT
	}
	code := d.field(*attr.Field)
	if s, ok := attr.NameOf(code); ok {
		return s, 0
	}
	return strconv.Itoa(int(code)), 0
}

func (d *device) writeAttr(name, value string) syscall.Errno {
	attr, ok := adaq8092.LookupAttr(name)
	if !ok {
		return syscall.ENOENT
	}
	if attr.Validate(value) != nil {
		return syscall.EINVAL
	}
	if attr.Field != nil {
		code, _ := attr.Code(value)
		f := *attr.Field
		d.regs[f.Reg] = f.Update(d.regs[f.Reg], code)
		return 0
	}
	n, _ := strconv.ParseInt(value, 10, 64)
	switch name {
	case "sampling_frequency":
		d.fs = n
	case "par_ser_gpio":
		d.parSer = n
	case "pd_gpio":
		d.pdGPIO = n
	}
	return 0
}

// readDebug emulates debugfs direct_reg_access, which reports the
// register selected by the last write
func (d *device) readDebug(name string) (string, syscall.Errno) {
	if name != "direct_reg_access" {
		return "", syscall.ENOENT
	}
	return fmt.Sprintf("0x%X", d.regs[d.debugAddr]), 0
}

func (d *device) writeDebug(name, value string) syscall.Errno {
	if name != "direct_reg_access" {
		return syscall.ENOENT
	}
	fields := strings.Fields(value)
	if len(fields) == 0 || len(fields) > 2 {
		return syscall.EINVAL
	}
	addr, err := strconv.ParseUint(fields[0], 0, 8)
	if err != nil || addr > adaq8092.MaxRegister {
		return syscall.EINVAL
	}
	if len(fields) == 1 {
		d.debugAddr = uint8(addr)
		return 0
	}
	val, err := strconv.ParseUint(fields[1], 0, 8)
	if err != nil {
		return syscall.EINVAL
	}
	d.setReg(uint8(addr), uint8(val))
	return 0
}

// readChannelAttr serves the per channel attributes of an input channel
func (d *device) readChannelAttr(name string) (string, syscall.Errno) {
	switch name {
	case "scale":
		return Scale, 0
	case "offset":
		return "0", 0
	}
	return "", syscall.ENOENT
}

// pattern returns the 14 bit test pattern for sample i, if one is selected
func (d *device) pattern(i int64) (uint16, bool) {
	switch d.field(adaq8092.FieldOutTest) {
	case 1:
		return codeMask, true
	case 2:
		return 0, true
	case 3:
		if i%2 == 0 {
			return 0x2AAA, true
		}
		return 0x1555, true
	case 4:
		if i%2 == 0 {
			return codeMask, true
		}
		return 0, true
	}
	return 0, false
}

// tone is the analog input of channel ch at sample i, in codes
func (d *device) tone(ch int, i int64) int64 {
	period, amp := 16., 6000.
	if ch == 1 {
		period, amp = 32., 4000.
	}
	return int64(math.Round(amp * math.Sin(2*math.Pi*float64(i)/period)))
}

// awake reports whether channel ch is converting; the PD pins are active low
// and nap modes silence the channels they name
func (d *device) awake(ch int) bool {
	if d.pdGPIO&(1<<uint(ch)) == 0 {
		return false
	}
	switch d.field(adaq8092.FieldPDMode) {
	case 1:
		return ch != 1
	case 2, 3:
		return false
	}
	return true
}

// sample produces the sign extended output code of channel ch at sample i.
// Test patterns override the output format controls.
func (d *device) sample(ch int, i int64) int64 {
	if !d.awake(ch) {
		return 0
	}
	code, ok := d.pattern(i)
	if !ok {
		v := d.tone(ch, i)
		if d.field(adaq8092.FieldTwosComp) == 0 {
			v += midscale
		}
		code = uint16(v) & codeMask
		if d.field(adaq8092.FieldRand) != 0 && code&1 != 0 {
			code ^= 0x3FFE
		}
		if d.field(adaq8092.FieldABP) != 0 {
			code ^= 0x2AAA
		}
	}
	v := int64(code)
	if v&midscale != 0 {
		v -= 1 << codeBits
	}
	return v
}

// capture renders nbytes of interleaved data for the channels in mask
func (d *device) capture(mask iio.ChannelMask, nbytes int) ([]byte, syscall.Errno) {
	if d.field(adaq8092.FieldPDMode) == 3 {
		return nil, syscall.EIO
	}
	if d.field(adaq8092.FieldOutOff) != 0 {
		return nil, syscall.ETIMEDOUT
	}
	var chans []int
	for ch := range adaq8092.RxChannelNames {
		if mask.IsSet(ch) {
			chans = append(chans, ch)
		}
	}
	if len(chans) == 0 {
		return nil, syscall.EINVAL
	}
	formats := make([]iio.DataFormat, len(chans))
	for j := range chans {
		formats[j] = channelFormat
	}
	layout := iio.NewLayout(formats)
	if nbytes%layout.FrameSize != 0 {
		return nil, syscall.EINVAL
	}
	frames := nbytes / layout.FrameSize
	values := make([][]int64, len(chans))
	for j, ch := range chans {
		values[j] = make([]int64, frames)
		for i := 0; i < frames; i++ {
			values[j][i] = d.sample(ch, d.n+int64(i))
		}
	}
	d.n += int64(frames)
	return layout.Mux(values, frames), 0
}
