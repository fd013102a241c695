package adaq8092

import "math/bits"

// register map
const (
	RegReset      = 0x00
	RegPowerdown  = 0x01
	RegTiming     = 0x02
	RegOutputMode = 0x03
	RegDataFormat = 0x04

	// MaxRegister is the highest address the SPI regmap accepts
	MaxRegister = 0x1A
)

// Field is a bit field within an 8 bit register
type Field struct {
	Reg  uint8
	Mask uint8
}

// register fields
var (
	FieldReset        = Field{RegReset, 0x80}
	FieldPDMode       = Field{RegPowerdown, 0x03}
	FieldClkInvert    = Field{RegTiming, 0x08}
	FieldClkPhase     = Field{RegTiming, 0x06}
	FieldClkDutyCycle = Field{RegTiming, 0x01}
	FieldILVDS        = Field{RegOutputMode, 0x70}
	FieldTermOn       = Field{RegOutputMode, 0x08}
	FieldOutOff       = Field{RegOutputMode, 0x04}
	FieldOutMode      = Field{RegOutputMode, 0x03}
	FieldOutTest      = Field{RegDataFormat, 0x38}
	FieldABP          = Field{RegDataFormat, 0x04}
	FieldRand         = Field{RegDataFormat, 0x02}
	FieldTwosComp     = Field{RegDataFormat, 0x01}
)

func (f Field) shift() uint {
	return uint(bits.TrailingZeros8(f.Mask))
}

// Prep shifts v into position; bits outside the field are dropped
func (f Field) Prep(v uint8) uint8 {
	return (v << f.shift()) & f.Mask
}

// Get extracts the field from a register value
func (f Field) Get(reg uint8) uint8 {
	return (reg & f.Mask) >> f.shift()
}

// Update replaces the field within a register value
func (f Field) Update(reg, v uint8) uint8 {
	return reg&^f.Mask | f.Prep(v)
}

// Max is the largest value the field can hold
func (f Field) Max() uint8 {
	return f.Mask >> f.shift()
}
