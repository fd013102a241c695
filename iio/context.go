package iio

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
)

// Context is the decoded XML description of an IIO context
type Context struct {
	XMLName     xml.Name      `xml:"context"`
	Name        string        `xml:"name,attr"`
	Description string        `xml:"description,attr"`
	Attrs       []ContextAttr `xml:"context-attribute"`
	Devices     []Device      `xml:"device"`
}

// ContextAttr is a context level key/value pair
type ContextAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Device is an IIO device; ID is of the form iio:deviceN
type Device struct {
	ID          string      `xml:"id,attr"`
	Name        string      `xml:"name,attr"`
	Channels    []Channel   `xml:"channel"`
	Attrs       []Attribute `xml:"attribute"`
	DebugAttrs  []Attribute `xml:"debug-attribute"`
	BufferAttrs []Attribute `xml:"buffer-attribute"`
}

// Channel is a channel of a device
type Channel struct {
	ID    string       `xml:"id,attr"`
	Name  string       `xml:"name,attr,omitempty"`
	Type  string       `xml:"type,attr"`
	Scan  *ScanElement `xml:"scan-element"`
	Attrs []Attribute  `xml:"attribute"`
}

// ScanElement describes how a channel is laid out in a buffer
type ScanElement struct {
	Index  int     `xml:"index,attr"`
	Format string  `xml:"format,attr"`
	Scale  float64 `xml:"scale,attr,omitempty"`
}

// Attribute names a device or channel attribute
type Attribute struct {
	Name     string `xml:"name,attr"`
	Filename string `xml:"filename,attr,omitempty"`
}

// ParseContext decodes a context XML document as sent in reply to PRINT
func ParseContext(raw []byte) (*Context, error) {
	raw = bytes.TrimRight(raw, "\x00\r\n\t ")
	ctx := &Context{}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	// iiod sends a DOCTYPE with an inline DTD; the decoder skips it
	dec.Strict = false
	if err := dec.Decode(ctx); err != nil {
		return nil, fmt.Errorf("decode context xml: %w", err)
	}
	return ctx, nil
}

// Marshal encodes the context in the form iiod sends
func (c *Context) Marshal() ([]byte, error) {
	body, err := xml.Marshal(c)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// Device finds a device by name or id
func (c *Context) Device(nameOrID string) (*Device, error) {
	for i := range c.Devices {
		if c.Devices[i].Name == nameOrID || c.Devices[i].ID == nameOrID {
			return &c.Devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, nameOrID)
}

// Attr returns the value of a context attribute
func (c *Context) Attr(name string) (string, bool) {
	for _, a := range c.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Channel finds an input or output channel by id
func (d *Device) Channel(id string, output bool) (*Channel, error) {
	typ := "input"
	if output {
		typ = "output"
	}
	for i := range d.Channels {
		if d.Channels[i].ID == id && d.Channels[i].IsOutput() == output {
			return &d.Channels[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s on %s", ErrChannelNotFound, typ, id, d.Name)
}

// HasAttr reports whether the device lists attr among its plain attributes
func (d *Device) HasAttr(name string) bool {
	return hasAttr(d.Attrs, name)
}

// HasDebugAttr reports whether the device lists attr among its debug attributes
func (d *Device) HasDebugAttr(name string) bool {
	return hasAttr(d.DebugAttrs, name)
}

// HasAttr reports whether the channel lists attr
func (c *Channel) HasAttr(name string) bool {
	return hasAttr(c.Attrs, name)
}

// IsOutput reports whether the channel is an output channel
func (c *Channel) IsOutput() bool {
	return c.Type == "output"
}

// Format parses the channel's scan element format
func (c *Channel) Format() (DataFormat, error) {
	if c.Scan == nil {
		return DataFormat{}, fmt.Errorf("channel %s is not scannable", c.ID)
	}
	return ParseFormat(c.Scan.Format)
}

// ScanChannels returns the scannable channels of the device in scan index order
func (d *Device) ScanChannels() []*Channel {
	var out []*Channel
	for i := range d.Channels {
		if d.Channels[i].Scan != nil {
			out = append(out, &d.Channels[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Scan.Index < out[j].Scan.Index })
	return out
}

func hasAttr(attrs []Attribute, name string) bool {
	for _, a := range attrs {
		if a.Name == name {
			return true
		}
	}
	return false
}
