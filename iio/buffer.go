package iio

import (
	"fmt"
	"strconv"
	"strings"
)

// ChannelMask is a bitmask of scan indices, bit i of word i/32
type ChannelMask []uint32

// NewChannelMask creates a mask wide enough for nchannels scan indices
func NewChannelMask(nchannels int) ChannelMask {
	words := (nchannels + 31) / 32
	if words == 0 {
		words = 1
	}
	return make(ChannelMask, words)
}

// Set enables scan index i
func (m ChannelMask) Set(i int) {
	m[i/32] |= 1 << uint(i%32)
}

// IsSet reports whether scan index i is enabled
func (m ChannelMask) IsSet(i int) bool {
	if i/32 >= len(m) {
		return false
	}
	return m[i/32]&(1<<uint(i%32)) != 0
}

// String renders the mask as iiod expects, most significant word first
func (m ChannelMask) String() string {
	var b strings.Builder
	for i := len(m) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%08x", m[i])
	}
	return b.String()
}

// ParseChannelMask is the inverse of ChannelMask.String
func ParseChannelMask(s string) (ChannelMask, error) {
	if len(s) == 0 || len(s)%8 != 0 {
		return nil, fmt.Errorf("%w: bad channel mask %q", ErrProtocol, s)
	}
	words := len(s) / 8
	m := make(ChannelMask, words)
	for i := 0; i < words; i++ {
		chunk := s[i*8 : (i+1)*8]
		v, err := strconv.ParseUint(chunk, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad channel mask %q", ErrProtocol, s)
		}
		m[words-1-i] = uint32(v)
	}
	return m, nil
}

// Layout is the placement of enabled scan elements inside one frame
// ("sample" in libiio terms) of an interleaved buffer
type Layout struct {
	Formats   []DataFormat
	Offsets   []int
	FrameSize int
}

// NewLayout computes the layout of frames holding the given formats, in
// scan index order.  Each element is aligned to its own storage size and
// the frame is padded to the largest one.
func NewLayout(formats []DataFormat) Layout {
	l := Layout{Formats: formats, Offsets: make([]int, len(formats))}
	off, largest := 0, 1
	for i, f := range formats {
		size := int(f.Length / 8)
		if size > largest {
			largest = size
		}
		if r := off % size; r != 0 {
			off += size - r
		}
		l.Offsets[i] = off
		off += f.Size()
	}
	if r := off % largest; r != 0 {
		off += largest - r
	}
	l.FrameSize = off
	return l
}

// Demux splits an interleaved buffer into one slice per format.  Elements
// with Repeat > 1 contribute Repeat values per frame.
func (l Layout) Demux(buf []byte) ([][]int64, error) {
	if l.FrameSize == 0 {
		return nil, fmt.Errorf("empty buffer layout")
	}
	if len(buf)%l.FrameSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d byte frames", ErrProtocol, len(buf), l.FrameSize)
	}
	frames := len(buf) / l.FrameSize
	out := make([][]int64, len(l.Formats))
	for i, f := range l.Formats {
		out[i] = make([]int64, 0, frames*int(f.Repeat))
	}
	for fr := 0; fr < frames; fr++ {
		frame := buf[fr*l.FrameSize : (fr+1)*l.FrameSize]
		for i, f := range l.Formats {
			step := int(f.Length / 8)
			for r := 0; r < int(f.Repeat); r++ {
				at := l.Offsets[i] + r*step
				out[i] = append(out[i], f.Decode(frame[at:at+step]))
			}
		}
	}
	return out, nil
}

// Mux is the inverse of Demux; every slice must hold frames*Repeat values
func (l Layout) Mux(values [][]int64, frames int) []byte {
	buf := make([]byte, frames*l.FrameSize)
	for fr := 0; fr < frames; fr++ {
		frame := buf[fr*l.FrameSize : (fr+1)*l.FrameSize]
		for i, f := range l.Formats {
			step := int(f.Length / 8)
			for r := 0; r < int(f.Repeat); r++ {
				at := l.Offsets[i] + r*step
				f.Encode(frame[at:at+step], values[i][fr*int(f.Repeat)+r])
			}
		}
	}
	return buf
}
