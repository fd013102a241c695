// Package acquire runs the ADAQ8092 demonstration: connect, configure,
// print the device settings, capture one buffer and plot it.
//
// The device and the plot are interfaces, so the same sequence drives real
// hardware, the simulator, or test doubles.
package acquire

import (
	"context"
	"fmt"
	"io"

	"github.com/nasa-jpl/iiolab/adaq8092"
	"github.com/nasa-jpl/iiolab/oscilloscope"
	"github.com/nasa-jpl/iiolab/plotting"
)

const (
	// DefaultURI is used when no URI is given
	DefaultURI = adaq8092.DefaultURI

	// DefaultBufferSize is the number of samples per channel captured
	DefaultBufferSize = 256

	// DefaultOutputType requests unscaled ADC codes
	DefaultOutputType = adaq8092.OutputRaw
)

// Device is the part of a converter handle the workflow uses
type Device interface {
	SetRxBufferSize(n int) error
	SetRxOutputType(typ string) error
	RxEnabledChannels() []int
	ReadAttribute(name string) (string, error)
	Rx() (oscilloscope.Waveform, error)
	Close() error
}

// Connector opens a device at uri
type Connector func(uri string) (Device, error)

// Plotter presents a figure, blocking until the operator is done with it
type Plotter interface {
	Show(ctx context.Context, fig plotting.Figure) error
}

// Inspection is one line of the settings printout
type Inspection struct {
	Label string
	Attr  string
}

// Inspections is the settings printout, in order
var Inspections = []Inspection{
	{"Sampling frequency", "sampling_frequency"},
	{"Enabled Channels", "rx_enabled_channels"},
	{"Alternate Bit Polarity Mode Control", "alt_bit_pol_en"},
	{"Clock Duty Cycle Stabilizer", "clk_dc_mode"},
	{"Output Clock Phase Delay", "clk_phase_mode"},
	{"CLKOUT Polarity", "clk_pol_mode"},
	{"Data Randomizer", "data_rand_en"},
	{"Digital Outputs", "dout_en"},
	{"Digital Output Mode", "dout_mode"},
	{"LVDS Output Current", "lvds_cur_mode"},
	{"LVDS Internal Termination", "lvds_term_mode"},
	{"Parallel/Serial Gpio Value", "par_ser_gpio"},
	{"Power Down GPIO Configuration", "pd_gpio"},
	{"Power Down Mode", "pd_mode"},
	{"Digital Output Test Pattern", "test_mode"},
	{"Two's Complement Modes", "twos_complement"},
}

// ResolveURI returns args[0] verbatim, or DefaultURI when args is empty
func ResolveURI(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return DefaultURI
}

// Connect opens a real ADAQ8092; it is the default Connector
func Connect(uri string) (Device, error) {
	return adaq8092.New(uri)
}

// Workflow is one run of the demonstration
type Workflow struct {
	// Out receives the operator printout
	Out io.Writer

	Connect Connector
	Plotter Plotter

	// BufferSize and OutputType are applied before acquisition;
	// zero values mean DefaultBufferSize and DefaultOutputType
	BufferSize int
	OutputType string

	// Record, if not nil, receives the waveform before it is plotted
	Record func(oscilloscope.Waveform) error

	// Step, if not nil, is told the name of each step as it begins
	Step func(name string)
}

func (w *Workflow) step(name string) {
	if w.Step != nil {
		w.Step(name)
	}
}

// Run executes the demonstration against ResolveURI(args).  It stops at the
// first failure, returning it wrapped with the step that failed.  The
// device is closed on every path once it has been opened.
func (w *Workflow) Run(ctx context.Context, args []string) (err error) {
	out := w.Out
	if out == nil {
		out = io.Discard
	}
	connect := w.Connect
	if connect == nil {
		connect = Connect
	}
	size := w.BufferSize
	if size == 0 {
		size = DefaultBufferSize
	}
	typ := w.OutputType
	if typ == "" {
		typ = DefaultOutputType
	}

	uri := ResolveURI(args)
	fmt.Fprintf(out, "uri: %s\n", uri)

	w.step("connect")
	dev, err := connect(uri)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", uri, err)
	}
	defer func() {
		w.step("close")
		if cerr := dev.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()

	w.step("configure")
	if err = dev.SetRxBufferSize(size); err != nil {
		return fmt.Errorf("configure buffer size: %w", err)
	}
	if err = dev.SetRxOutputType(typ); err != nil {
		return fmt.Errorf("configure output type: %w", err)
	}

	w.step("inspect")
	for _, in := range Inspections {
		v, err := dev.ReadAttribute(in.Attr)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", in.Attr, err)
		}
		fmt.Fprintf(out, "%s: %s\n", in.Label, v)
	}

	w.step("acquire")
	wf, err := dev.Rx()
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	enabled := dev.RxEnabledChannels()
	fig, err := Figure(wf, enabled)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	if w.Record != nil {
		if err = w.Record(wf); err != nil {
			return fmt.Errorf("record: %w", err)
		}
	}

	w.step("present")
	if w.Plotter != nil {
		if err = w.Plotter.Show(ctx, fig); err != nil {
			return fmt.Errorf("present: %w", err)
		}
	}
	return nil
}

// Figure builds the plot of wf: one series of counts against sample index
// per enabled channel, in enabled order
func Figure(wf oscilloscope.Waveform, enabled []int) (plotting.Figure, error) {
	fig := plotting.Figure{
		Title:  "ADAQ8092",
		XLabel: "Data Point",
		YLabel: "ADC counts",
		Legend: plotting.Legend{Columns: 4},
	}
	for _, idx := range enabled {
		ch, ok := wf.Channels[idx]
		if !ok {
			return fig, fmt.Errorf("%w: channel %d is enabled but was not captured", adaq8092.ErrInvalidChannel, idx)
		}
		y := ch.Counts()
		x := make([]float64, len(y))
		for i := range x {
			x[i] = float64(i)
		}
		fig.Series = append(fig.Series, plotting.Series{Label: oscilloscope.Label(idx), X: x, Y: y})
	}
	return fig, nil
}
