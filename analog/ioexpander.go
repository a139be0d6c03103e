// Package analog implements the analog-frontend stack: GPIO-expander and
// DAC register shadows, per-channel AFConfig (mode/probe/trigger), and
// voltage<->ADC-code conversion (spec.md §4.4, §4.5).
package analog

// I2CSender is the capability the analog package needs from the I2C
// master: a full addr/write/read transaction, matching i2c.Master.Send.
type I2CSender interface {
	Send(addr byte, write []byte, readCount int) ([]byte, error)
}

// IOExpander is a local shadow of an MCP23017 16-bit GPIO expander's
// direction, output-latch, pull-up, and input registers. Setters only
// modify the shadow; Flush writes it out over I2C (spec.md §4.4).
type IOExpander struct {
	i2c     I2CSender
	addr    byte
	pins    map[string]uint8 // pin name -> bit index

	iodir uint16
	iolat uint16
	gppu  uint16
	gpio  uint16
}

// NewIOExpander constructs a shadow for the MCP23017 at the given I2C
// address with the given named pin assignment.
func NewIOExpander(i2c I2CSender, addr byte, pins map[string]uint8) *IOExpander {
	return &IOExpander{i2c: i2c, addr: addr, pins: pins, iodir: 0xffff}
}

// Flush writes the shadowed iolat, iodir, and gppu registers to the
// device, in that order: latches before direction avoids output glitches
// (spec.md §4.4).
func (e *IOExpander) Flush() error {
	addr := e.addr
	if _, err := e.i2c.Send(addr, []byte{0x14, byte(e.iolat), byte(e.iolat >> 8)}, 0); err != nil {
		return err
	}
	if _, err := e.i2c.Send(addr, []byte{0x00, byte(e.iodir), byte(e.iodir >> 8)}, 0); err != nil {
		return err
	}
	if _, err := e.i2c.Send(addr, []byte{0x0c, byte(e.gppu), byte(e.gppu >> 8)}, 0); err != nil {
		return err
	}
	return nil
}

// ReadPins issues a single I2C read of the expander's live GPIO register
// (address 0x12) and stores the result for later Input queries.
func (e *IOExpander) ReadPins() error {
	res, err := e.i2c.Send(e.addr, []byte{0x12}, 2)
	if err != nil {
		return err
	}
	e.gpio = uint16(res[0]) | uint16(res[1])<<8
	return nil
}

// SetOutput configures a pin as an output and sets its shadowed level.
func (e *IOExpander) SetOutput(pin string, value bool) {
	bit := uint16(1) << e.pins[pin]
	e.iodir &^= bit
	if value {
		e.iolat |= bit
	} else {
		e.iolat &^= bit
	}
}

// SetInput configures a pin as an input, optionally enabling its pull-up.
func (e *IOExpander) SetInput(pin string, pullup bool) {
	bit := uint16(1) << e.pins[pin]
	e.iodir |= bit
	if pullup {
		e.gppu |= bit
	} else {
		e.gppu &^= bit
	}
}

// Input returns the last-read live value of an input pin.
func (e *IOExpander) Input(pin string) bool {
	bit := uint16(1) << e.pins[pin]
	return e.gpio&bit != 0
}
