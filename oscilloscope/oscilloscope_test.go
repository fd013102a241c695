package oscilloscope

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoChannel() Waveform {
	return Waveform{
		DT: 0.5,
		Channels: map[int]Channel{
			1: {Name: "voltage1", Data: []int16{-1, 0, 1}, Scale: 2, Offset: 1},
			0: {Name: "voltage0", Data: []int16{10, 20, 30}, Scale: 1},
		},
	}
}

func TestIndicesAreSorted(t *testing.T) {
	assert.Equal(t, []int{0, 1}, twoChannel().Indices())
}

func TestPhysicalAddsOffsetThenScales(t *testing.T) {
	ch := twoChannel().Channels[1]
	assert.Equal(t, []float64{0, 2, 4}, ch.Physical())
	assert.Equal(t, []float64{-1, 0, 1}, ch.Counts())
	assert.Equal(t, 3, ch.Len())
}

func TestCountsOfEachType(t *testing.T) {
	want := []float64{1, 2}
	for _, d := range []Data{
		[]uint8{1, 2}, []uint16{1, 2}, []uint32{1, 2}, []uint64{1, 2},
		[]int8{1, 2}, []int16{1, 2}, []int32{1, 2}, []int64{1, 2},
		[]float32{1, 2}, []float64{1, 2},
	} {
		got := Channel{Data: d}.Counts()
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%T: (-want +got)\n%s", d, diff)
		}
	}
}

func TestEncodeCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, twoChannel().EncodeCSV(&buf, false))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	want := [][]string{
		{"time", "channel0", "channel1"},
		{"0", "10", "-1"},
		{"0.5", "20", "0"},
		{"1", "30", "1"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("csv mismatch (-want +got)\n%s", diff)
	}
}

func TestEncodeCSVPhysical(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, twoChannel().EncodeCSV(&buf, true))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"1", "30", "4"}, rows[3])
}

func TestEncodeEmptyWaveformFails(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Waveform{}.EncodeCSV(&buf, false))
	assert.Error(t, Waveform{}.EncodeFITS(&buf, nil))
}

func TestEncodeFITS(t *testing.T) {
	var buf bytes.Buffer
	cards := []fitsio.Card{{Name: "DEVICE", Value: "adaq8092"}}
	require.NoError(t, twoChannel().EncodeFITS(&buf, cards))

	f, err := fitsio.Open(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	img, ok := f.HDU(0).(fitsio.Image)
	require.True(t, ok)
	hdr := img.Header()
	assert.Equal(t, []int{3, 2}, hdr.Axes())
	assert.Equal(t, 16, hdr.Bitpix())
	require.NotNil(t, hdr.Get("DEVICE"))
	assert.Equal(t, "adaq8092", hdr.Get("DEVICE").Value)
	require.NotNil(t, hdr.Get("CHNAM1"))
	assert.Equal(t, "voltage1", hdr.Get("CHNAM1").Value)

	data := make([]int16, 6)
	require.NoError(t, img.Read(&data))
	assert.Equal(t, []int16{10, 20, 30, -1, 0, 1}, data)
}

func TestEncodeFITSRejectsRaggedChannels(t *testing.T) {
	wav := twoChannel()
	wav.Channels[2] = Channel{Data: []int16{1}}
	var buf bytes.Buffer
	assert.Error(t, wav.EncodeFITS(&buf, nil))
}
