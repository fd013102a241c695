package iio

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DataFormat is the layout of one scan element, as in "le:S16/16>>0"
type DataFormat struct {
	BigEndian bool
	Signed    bool
	// FullyDefined is set when Bits == Length (upper case sign letter)
	FullyDefined bool
	Bits         uint
	Length       uint
	Shift        uint
	Repeat       uint
}

// ParseFormat parses a scan element format string
func ParseFormat(s string) (DataFormat, error) {
	f := DataFormat{Repeat: 1}
	endian, rest, ok := strings.Cut(s, ":")
	if !ok || len(rest) < 2 {
		return f, fmt.Errorf("%w: bad scan format %q", ErrProtocol, s)
	}
	switch endian {
	case "le":
	case "be":
		f.BigEndian = true
	default:
		return f, fmt.Errorf("%w: bad endianness in %q", ErrProtocol, s)
	}
	switch rest[0] {
	case 's', 'S':
		f.Signed = true
	case 'u', 'U':
	default:
		return f, fmt.Errorf("%w: bad sign in %q", ErrProtocol, s)
	}
	f.FullyDefined = rest[0] == 'S' || rest[0] == 'U'
	var n int
	var err error
	if strings.Contains(rest, "X") {
		n, err = fmt.Sscanf(rest[1:], "%d/%dX%d>>%d", &f.Bits, &f.Length, &f.Repeat, &f.Shift)
		if err == nil && n != 4 {
			err = fmt.Errorf("short format")
		}
	} else {
		n, err = fmt.Sscanf(rest[1:], "%d/%d>>%d", &f.Bits, &f.Length, &f.Shift)
		if err == nil && n != 3 {
			err = fmt.Errorf("short format")
		}
	}
	if err != nil {
		return f, fmt.Errorf("%w: bad scan format %q: %v", ErrProtocol, s, err)
	}
	switch f.Length {
	case 8, 16, 32, 64:
	default:
		return f, fmt.Errorf("%w: unsupported storage length %d in %q", ErrProtocol, f.Length, s)
	}
	if f.Bits == 0 || f.Bits > f.Length || f.Repeat == 0 {
		return f, fmt.Errorf("%w: inconsistent scan format %q", ErrProtocol, s)
	}
	return f, nil
}

func (f DataFormat) String() string {
	endian := "le"
	if f.BigEndian {
		endian = "be"
	}
	sign := byte('u')
	if f.Signed {
		sign = 's'
	}
	if f.Bits == f.Length {
		sign -= 'a' - 'A'
	}
	if f.Repeat > 1 {
		return fmt.Sprintf("%s:%c%d/%dX%d>>%d", endian, sign, f.Bits, f.Length, f.Repeat, f.Shift)
	}
	return fmt.Sprintf("%s:%c%d/%d>>%d", endian, sign, f.Bits, f.Length, f.Shift)
}

// Size is the number of bytes one element occupies in a buffer
func (f DataFormat) Size() int {
	return int(f.Length/8) * int(f.Repeat)
}

func (f DataFormat) order() binary.ByteOrder {
	if f.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Decode converts one stored value into a sign extended integer.
// b must hold at least Length/8 bytes.
func (f DataFormat) Decode(b []byte) int64 {
	var v uint64
	order := f.order()
	switch f.Length {
	case 8:
		v = uint64(b[0])
	case 16:
		v = uint64(order.Uint16(b))
	case 32:
		v = uint64(order.Uint32(b))
	case 64:
		v = order.Uint64(b)
	}
	v >>= f.Shift
	if f.Bits < 64 {
		mask := uint64(1)<<f.Bits - 1
		v &= mask
		if f.Signed && v&(uint64(1)<<(f.Bits-1)) != 0 {
			v |= ^mask
		}
	}
	return int64(v)
}

// Encode is the inverse of Decode; it writes v into b
func (f DataFormat) Encode(b []byte, v int64) {
	u := uint64(v)
	if f.Bits < 64 {
		u &= uint64(1)<<f.Bits - 1
	}
	u <<= f.Shift
	order := f.order()
	switch f.Length {
	case 8:
		b[0] = byte(u)
	case 16:
		order.PutUint16(b, uint16(u))
	case 32:
		order.PutUint32(b, uint32(u))
	case 64:
		order.PutUint64(b, u)
	}
}
