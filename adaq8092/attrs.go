package adaq8092

import (
	"fmt"
	"strconv"
	"strings"
)

// Option is one value of an enumerated attribute and its register code
type Option struct {
	Name string
	Code uint8
}

// Attr describes a device attribute of the ADAQ8092.
// Enumerated attributes have Options and, when register backed, a Field.
// Numeric attributes are bounded by Min and Max.
type Attr struct {
	Name        string
	Description string
	Options     []Option
	Field       *Field
	Min, Max    int64
}

var onOff = []Option{{"off", 0}, {"on", 1}}

// Attrs lists every device attribute, in the order the driver declares them
var Attrs = []Attr{
	{Name: "sampling_frequency", Description: "sample rate in Hz", Min: 1, Max: MaxSampleRate},
	{Name: "alt_bit_pol_en", Description: "alternate bit polarity mode", Options: onOff, Field: &FieldABP},
	{Name: "clk_dc_mode", Description: "clock duty cycle stabilizer", Options: onOff, Field: &FieldClkDutyCycle},
	{Name: "clk_phase_mode", Description: "output clock phase delay", Field: &FieldClkPhase, Options: []Option{
		{"no_delay", 0},
		{"clkout_delay_45deg", 1},
		{"clkout_delay_90deg", 2},
		{"clkout_delay_180deg", 3},
	}},
	{Name: "clk_pol_mode", Description: "CLKOUT polarity", Field: &FieldClkInvert, Options: []Option{
		{"normal", 0},
		{"inverted", 1},
	}},
	{Name: "data_rand_en", Description: "data output randomizer", Options: onOff, Field: &FieldRand},
	// OUTOFF is active high, so "on" is code 0
	{Name: "dout_en", Description: "digital outputs", Field: &FieldOutOff, Options: []Option{
		{"on", 0},
		{"off", 1},
	}},
	{Name: "dout_mode", Description: "digital output mode", Field: &FieldOutMode, Options: []Option{
		{"full_rate_cmos", 0},
		{"double_rate_lvds", 1},
		{"double_rate_cmos", 2},
	}},
	{Name: "lvds_cur_mode", Description: "LVDS output current", Field: &FieldILVDS, Options: []Option{
		{"3.5mA", 0},
		{"4.0mA", 1},
		{"4.5mA", 2},
		{"3.0mA", 4},
		{"2.5mA", 5},
		{"2.1mA", 6},
		{"1.75mA", 7},
	}},
	{Name: "lvds_term_mode", Description: "LVDS internal termination", Options: onOff, Field: &FieldTermOn},
	{Name: "par_ser_gpio", Description: "PAR/SER pin level", Min: 0, Max: 1},
	{Name: "pd_gpio", Description: "PD1 | PD2<<1 pin levels", Min: 0, Max: 3},
	{Name: "pd_mode", Description: "power down mode", Field: &FieldPDMode, Options: []Option{
		{"normal", 0},
		{"ch2_nap", 1},
		{"ch1_ch2_nap", 2},
		{"sleep", 3},
	}},
	{Name: "test_mode", Description: "digital output test pattern", Field: &FieldOutTest, Options: []Option{
		{"off", 0},
		{"ones", 1},
		{"zeros", 2},
		{"checkerboard", 3},
		{"alternating", 4},
	}},
	{Name: "twos_complement", Description: "two's complement output format", Options: onOff, Field: &FieldTwosComp},
}

// LookupAttr finds an attribute description by name
func LookupAttr(name string) (Attr, bool) {
	for _, a := range Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

// IsEnum reports whether the attribute takes one of a fixed set of names
func (a Attr) IsEnum() bool {
	return len(a.Options) > 0
}

// OptionNames lists the accepted names of an enumerated attribute
func (a Attr) OptionNames() []string {
	names := make([]string, len(a.Options))
	for i, o := range a.Options {
		names[i] = o.Name
	}
	return names
}

// Code returns the register code of an option name
func (a Attr) Code(name string) (uint8, bool) {
	for _, o := range a.Options {
		if o.Name == name {
			return o.Code, true
		}
	}
	return 0, false
}

// NameOf returns the option name for a register code
func (a Attr) NameOf(code uint8) (string, bool) {
	for _, o := range a.Options {
		if o.Code == code {
			return o.Name, true
		}
	}
	return "", false
}

// Validate checks that value is acceptable for the attribute
func (a Attr) Validate(value string) error {
	if a.IsEnum() {
		if _, ok := a.Code(value); !ok {
			return fmt.Errorf("%w: %s must be one of %s, got %q",
				ErrInvalidOption, a.Name, strings.Join(a.OptionNames(), ", "), value)
		}
		return nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidOption, a.Name, value)
	}
	if n < a.Min || n > a.Max {
		return fmt.Errorf("%w: %s must be within [%d, %d], got %d", ErrInvalidOption, a.Name, a.Min, a.Max, n)
	}
	return nil
}
