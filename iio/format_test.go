package iio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in   string
		want DataFormat
	}{
		{"le:S16/16>>0", DataFormat{Signed: true, FullyDefined: true, Bits: 16, Length: 16, Repeat: 1}},
		{"le:s14/16>>2", DataFormat{Signed: true, Bits: 14, Length: 16, Shift: 2, Repeat: 1}},
		{"be:u12/16>>4", DataFormat{BigEndian: true, Bits: 12, Length: 16, Shift: 4, Repeat: 1}},
		{"le:U32/32>>0", DataFormat{FullyDefined: true, Bits: 32, Length: 32, Repeat: 1}},
		{"le:s24/32X4>>8", DataFormat{Signed: true, Bits: 24, Length: 32, Shift: 8, Repeat: 4}},
	}
	for _, c := range cases {
		got, err := ParseFormat(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
		assert.Equal(t, c.in, got.String())
	}
}

func TestParseFormatRejects(t *testing.T) {
	for _, in := range []string{"", "le", "me:s16/16>>0", "le:x16/16>>0", "le:s16/12>>0", "le:s20/24>>0", "le:s16/16", "le:s0/16>>0"} {
		_, err := ParseFormat(in)
		assert.ErrorIs(t, err, ErrProtocol, in)
	}
}

func TestDecodeSignExtends(t *testing.T) {
	f, err := ParseFormat("le:s14/16>>2")
	require.NoError(t, err)
	// 0x2000 is the most negative 14 bit code
	assert.Equal(t, int64(-8192), f.Decode([]byte{0x00, 0x80}))
	assert.Equal(t, int64(8191), f.Decode([]byte{0xFC, 0x7F}))
	assert.Equal(t, int64(-1), f.Decode([]byte{0xFC, 0xFF}))
	assert.Equal(t, int64(1), f.Decode([]byte{0x04, 0x00}))
}

func TestDecodeUnsignedBigEndian(t *testing.T) {
	f, err := ParseFormat("be:u12/16>>4")
	require.NoError(t, err)
	assert.Equal(t, int64(0xABC), f.Decode([]byte{0xAB, 0xC5}))
}

func TestEncodeInvertsDecode(t *testing.T) {
	f, err := ParseFormat("le:S16/16>>0")
	require.NoError(t, err)
	b := make([]byte, 2)
	for _, v := range []int64{-32768, -5462, -1, 0, 1, 5461, 32767} {
		f.Encode(b, v)
		assert.Equal(t, v, f.Decode(b))
	}
}

func TestChannelMask(t *testing.T) {
	m := NewChannelMask(2)
	assert.Equal(t, "00000000", m.String())
	m.Set(0)
	m.Set(1)
	assert.Equal(t, "00000003", m.String())
	assert.True(t, m.IsSet(1))
	assert.False(t, m.IsSet(2))
	assert.False(t, m.IsSet(40))

	wide := NewChannelMask(40)
	wide.Set(33)
	wide.Set(0)
	assert.Equal(t, "0000000200000001", wide.String())
	back, err := ParseChannelMask(wide.String())
	require.NoError(t, err)
	assert.Equal(t, wide, back)

	_, err = ParseChannelMask("123")
	assert.ErrorIs(t, err, ErrProtocol)
	_, err = ParseChannelMask("0000000g")
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDemuxTwoChannels(t *testing.T) {
	f, err := ParseFormat("le:S16/16>>0")
	require.NoError(t, err)
	l := NewLayout([]DataFormat{f, f})
	assert.Equal(t, 4, l.FrameSize)
	assert.Equal(t, []int{0, 2}, l.Offsets)

	buf := []byte{
		0x01, 0x00, 0xFF, 0xFF, // 1, -1
		0x02, 0x00, 0xFE, 0xFF, // 2, -2
		0x03, 0x00, 0xFD, 0xFF, // 3, -3
	}
	out, err := l.Demux(buf)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{1, 2, 3}, {-1, -2, -3}}, out)
	assert.Equal(t, buf, l.Mux(out, 3))
}

func TestLayoutAlignsMixedSizes(t *testing.T) {
	s16, _ := ParseFormat("le:S16/16>>0")
	u32, _ := ParseFormat("le:U32/32>>0")
	l := NewLayout([]DataFormat{s16, u32, s16})
	assert.Equal(t, []int{0, 4, 8}, l.Offsets)
	assert.Equal(t, 12, l.FrameSize)
}

func TestDemuxRejectsPartialFrames(t *testing.T) {
	f, _ := ParseFormat("le:S16/16>>0")
	l := NewLayout([]DataFormat{f, f})
	_, err := l.Demux(make([]byte, 6))
	assert.ErrorIs(t, err, ErrProtocol)
}
