// Package oscilloscope provides the waveform type shared by digitizers
package oscilloscope

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/astrogo/fitsio"
)

// Waveform describes a waveform recording from a digitizer
type Waveform struct {
	// DT is the temporal sample spacing in seconds
	DT float64 `json:"dt"`

	// Channels holds the data streams keyed by channel index
	Channels map[int]Channel `json:"channels"`
}

// Indices returns the channel indices present in ascending order
func (wav Waveform) Indices() []int {
	out := make([]int, 0, len(wav.Channels))
	for k := range wav.Channels {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// Channel represents a stream of data from an ADC.  To convert to physical units,
// compute (data+offset)*scale
type Channel struct {
	// Name is the device's id for the channel, e.g. voltage0
	Name string `json:"name"`

	// Data is the actual buffer, []int16, []uint16, or similar
	Data Data `json:"data"`

	// Scale is the size of a single increment in Data's native dtype
	Scale float64 `json:"scale"`

	// Offset is added to the raw data before scaling
	Offset float64 `json:"offset"`
}

// Data is a moniker for an empty interface, expected to be a slice of a concrete
// numerical type
type Data interface{}

// Len is the number of samples in the channel
func (c Channel) Len() int {
	switch v := c.Data.(type) {
	case []uint8:
		return len(v)
	case []uint16:
		return len(v)
	case []uint32:
		return len(v)
	case []uint64:
		return len(v)
	case []int8:
		return len(v)
	case []int16:
		return len(v)
	case []int32:
		return len(v)
	case []int64:
		return len(v)
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	}
	return 0
}

// Counts returns the unscaled data as float64
func (c Channel) Counts() []float64 {
	ret := make([]float64, c.Len())
	// a lot of copy paste, but this gets us around the type system
	switch v := c.Data.(type) {
	case []uint8:
		for i := range v {
			ret[i] = float64(v[i])
		}
	case []uint16:
		for i := range v {
			ret[i] = float64(v[i])
		}
	case []uint32:
		for i := range v {
			ret[i] = float64(v[i])
		}
	case []uint64:
		for i := range v {
			ret[i] = float64(v[i])
		}
	case []int8:
		for i := range v {
			ret[i] = float64(v[i])
		}
	case []int16:
		for i := range v {
			ret[i] = float64(v[i])
		}
	case []int32:
		for i := range v {
			ret[i] = float64(v[i])
		}
	case []int64:
		for i := range v {
			ret[i] = float64(v[i])
		}
	case []float32:
		for i := range v {
			ret[i] = float64(v[i])
		}
	case []float64:
		copy(ret, v)
	case nil:
	default:
		panic("attempt to convert non numerical data to counts")
	}
	return ret
}

// Physical computes the data scaled to real units
func (c Channel) Physical() []float64 {
	ret := c.Counts()
	for i := range ret {
		ret[i] = (ret[i] + c.Offset) * c.Scale
	}
	return ret
}

// Label is the column or series name of channel index i
func Label(i int) string {
	return "channel" + strconv.Itoa(i)
}

// EncodeCSV writes the waveform as columns time,channel0,channel1,...
// in ascending index order.  With physical set, values are scaled;
// otherwise they are counts.
func (wav Waveform) EncodeCSV(w io.Writer, physical bool) error {
	idx := wav.Indices()
	if len(idx) == 0 {
		return fmt.Errorf("waveform has no channels")
	}
	data := make([][]float64, len(idx))
	n := -1
	for j, k := range idx {
		ch := wav.Channels[k]
		if physical {
			data[j] = ch.Physical()
		} else {
			data[j] = ch.Counts()
		}
		if n < 0 || len(data[j]) < n {
			n = len(data[j])
		}
	}

	bw := bufio.NewWriter(w)
	writer := csv.NewWriter(bw)
	row := make([]string, len(idx)+1)
	row[0] = "time"
	for j, k := range idx {
		row[j+1] = Label(k)
	}
	if err := writer.Write(row); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		row[0] = strconv.FormatFloat(float64(i)*wav.DT, 'G', -1, 64)
		for j := range data {
			row[j+1] = strconv.FormatFloat(data[j][i], 'G', -1, 64)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// EncodeFITS streams the waveform counts to w as a 16 bit image with
// NAXIS1 = samples and NAXIS2 = channels, in ascending index order.
// DT, channel names, scales and offsets are added to the header after cards.
func (wav Waveform) EncodeFITS(w io.Writer, cards []fitsio.Card) error {
	idx := wav.Indices()
	if len(idx) == 0 {
		return fmt.Errorf("waveform has no channels")
	}
	n := wav.Channels[idx[0]].Len()
	for _, k := range idx[1:] {
		if l := wav.Channels[k].Len(); l != n {
			return fmt.Errorf("channel %d has %d samples, channel %d has %d", idx[0], n, k, l)
		}
	}

	cards = append(cards, fitsio.Card{Name: "DT", Value: wav.DT, Comment: "sample spacing, s"})
	for j, k := range idx {
		ch := wav.Channels[k]
		cards = append(cards,
			fitsio.Card{Name: fmt.Sprintf("CHIDX%d", j), Value: k, Comment: "channel index"},
			fitsio.Card{Name: fmt.Sprintf("CHNAM%d", j), Value: ch.Name},
			fitsio.Card{Name: fmt.Sprintf("CHSCL%d", j), Value: ch.Scale},
			fitsio.Card{Name: fmt.Sprintf("CHOFF%d", j), Value: ch.Offset},
		)
	}

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(16, []int{n, len(idx)})
	defer im.Close()
	if err = im.Header().Append(cards...); err != nil {
		return err
	}
	buf := make([]int16, 0, n*len(idx))
	for _, k := range idx {
		for _, v := range wav.Channels[k].Counts() {
			buf = append(buf, int16(v))
		}
	}
	if err = im.Write(buf); err != nil {
		return err
	}
	return fits.Write(im)
}
