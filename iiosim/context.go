package iiosim

import (
	"github.com/nasa-jpl/iiolab/adaq8092"
	"github.com/nasa-jpl/iiolab/iio"
)

const deviceID = "iio:device0"

// Context describes the emulated IIO context
func Context() *iio.Context {
	dev := iio.Device{
		ID:          deviceID,
		Name:        adaq8092.DeviceName,
		DebugAttrs:  []iio.Attribute{{Name: "direct_reg_access"}},
		BufferAttrs: []iio.Attribute{{Name: "length"}},
	}
	for _, a := range adaq8092.Attrs {
		dev.Attrs = append(dev.Attrs, iio.Attribute{Name: a.Name})
		if a.IsEnum() {
			dev.Attrs = append(dev.Attrs, iio.Attribute{Name: a.Name + "_available"})
		}
	}
	for i, id := range adaq8092.RxChannelNames {
		dev.Channels = append(dev.Channels, iio.Channel{
			ID:   id,
			Type: "input",
			Scan: &iio.ScanElement{Index: i, Format: channelFormat.String()},
			Attrs: []iio.Attribute{
				{Name: "scale", Filename: "in_" + id + "_scale"},
				{Name: "offset", Filename: "in_" + id + "_offset"},
			},
		})
	}
	return &iio.Context{
		Name:        "network",
		Description: "iiosim ADAQ8092 emulator",
		Attrs: []iio.ContextAttr{
			{Name: "hw_carrier", Value: "iiosim"},
			{Name: "ip,ip-addr", Value: "127.0.0.1"},
		},
		Devices: []iio.Device{dev},
	}
}

// isDevice matches a device token by id or name, as iiod does
func isDevice(name string) bool {
	return name == deviceID || name == adaq8092.DeviceName
}
