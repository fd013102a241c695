package comm

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/gousb"
)

// vendor requests understood by the IIO USB gadget
const (
	usbCmdResetPipes = 0
	usbCmdOpenPipe   = 1
	usbCmdClosePipe  = 2
)

// ErrNoBulkPipe is generated when a USB interface has no bulk IN/OUT pair
var ErrNoBulkPipe = errors.New("usb interface has no bulk IN/OUT endpoint pair")

// USBPipe is an io.ReadWriteCloser over the first bulk endpoint pair of
// a vendor interface
type USBPipe struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	iface  *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	num    int
}

// USBConnMaker returns a CreationFunc which opens pipe 0 of interface iface
// on the device at bus.address
func USBConnMaker(bus, address, iface int) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return OpenUSBPipe(bus, address, iface)
	}
}

// OpenUSBPipe locates the device at bus.address, claims interface iface,
// resets its pipes and opens pipe 0
func OpenUSBPipe(bus, address, iface int) (*USBPipe, error) {
	p := &USBPipe{ctx: gousb.NewContext(), num: iface}
	devs, err := p.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == bus && desc.Address == address
	})
	if err != nil {
		for _, d := range devs {
			d.Close()
		}
		p.ctx.Close()
		return nil, err
	}
	if len(devs) == 0 {
		p.ctx.Close()
		return nil, fmt.Errorf("no usb device at %d.%d", bus, address)
	}
	p.device = devs[0]
	for _, d := range devs[1:] {
		d.Close()
	}
	if err = p.setup(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *USBPipe) setup() error {
	err := p.device.SetAutoDetach(true)
	if err != nil {
		return err
	}
	cfgNum, err := p.device.ActiveConfigNum()
	if err != nil {
		return err
	}
	p.config, err = p.device.Config(cfgNum)
	if err != nil {
		return err
	}
	p.iface, err = p.config.Interface(p.num, 0)
	if err != nil {
		return err
	}
	var ins, outs []int
	for _, ep := range p.iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			ins = append(ins, ep.Number)
		} else {
			outs = append(outs, ep.Number)
		}
	}
	if len(ins) == 0 || len(outs) == 0 {
		return ErrNoBulkPipe
	}
	sort.Ints(ins)
	sort.Ints(outs)
	if err = p.control(usbCmdResetPipes, 0); err != nil {
		return err
	}
	if err = p.control(usbCmdOpenPipe, 0); err != nil {
		return err
	}
	p.in, err = p.iface.InEndpoint(ins[0])
	if err != nil {
		return err
	}
	p.out, err = p.iface.OutEndpoint(outs[0])
	return err
}

func (p *USBPipe) control(cmd uint8, arg uint16) error {
	rType := uint8(gousb.ControlOut | gousb.ControlVendor | gousb.ControlInterface)
	_, err := p.device.Control(rType, cmd, arg, uint16(p.num), nil)
	if err != nil {
		return fmt.Errorf("usb control request %d: %w", cmd, err)
	}
	return nil
}

// Read reads from the bulk IN endpoint
func (p *USBPipe) Read(b []byte) (int, error) {
	if p.in == nil {
		return 0, ErrNotConnected
	}
	return p.in.Read(b)
}

// Write writes to the bulk OUT endpoint
func (p *USBPipe) Write(b []byte) (int, error) {
	if p.out == nil {
		return 0, ErrNotConnected
	}
	return p.out.Write(b)
}

// Close closes the pipe and releases the device
func (p *USBPipe) Close() error {
	if p.iface != nil {
		p.control(usbCmdClosePipe, 0)
		p.iface.Close()
	}
	if p.config != nil {
		p.config.Close()
	}
	var err error
	if p.device != nil {
		err = p.device.Close()
	}
	p.ctx.Close()
	return err
}
