package analog

import "math"

// DAC is a local handle on an MCP4728 quad DAC addressed over I2C. Unlike
// IOExpander, the DAC has no persistent shadow to flush: each SetChannel
// call issues a complete I2C write for that channel (spec.md §4.4).
type DAC struct {
	i2c  I2CSender
	addr byte
}

// NewDAC constructs a DAC handle at the given I2C address.
func NewDAC(i2c I2CSender, addr byte) *DAC {
	return &DAC{i2c: i2c, addr: addr}
}

// encodeVolt clamps volt to [0, 3.3] and encodes it as a 12-bit DAC code
// plus gain bit, switching reference range at 2.0485V (spec.md §4.4).
func encodeVolt(volt float64) uint16 {
	if volt < 0 {
		volt = 0
	}
	if volt > 3.3 {
		volt = 3.3
	}
	if volt >= 2.0485 {
		code := int(math.Round(4096 * volt / 4.096))
		if code < 0 {
			code = 0
		}
		if code > 0xfff {
			code = 0xfff
		}
		return uint16(code) | (1 << 12)
	}
	code := int(math.Round(4096 * volt / 2.048))
	if code < 0 {
		code = 0
	}
	if code > 0xfff {
		code = 0xfff
	}
	return uint16(code)
}

// decodeVolt recovers the voltage a DAC code encodes, inverse of
// encodeVolt.
func decodeVolt(value uint16) float64 {
	if value&(1<<12) != 0 {
		return float64(value&0xfff) / 4096 * 4.096
	}
	return float64(value&0xfff) / 4096 * 2.048
}

// CalcVolt returns the voltage the DAC will actually produce for a
// requested volt, round-tripped through the same quantisation SetChannel
// uses.
func (d *DAC) CalcVolt(volt float64) float64 {
	return decodeVolt(encodeVolt(volt))
}

// SetChannel programs one DAC output channel (0-3) to the nearest
// representable voltage.
func (d *DAC) SetChannel(channel int, volt float64) error {
	value := encodeVolt(volt)
	_, err := d.i2c.Send(d.addr, []byte{
		0x40 | byte(channel<<1),
		byte((value>>8)&0x1f) | 0x80,
		byte(value),
	}, 0)
	return err
}
