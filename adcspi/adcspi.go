// Package adcspi implements the state-polled SPI master used to configure
// the MAX19506-family ADC over the FPGA's "adcspi" register module
// (spec.md §4.3).
package adcspi

import "github.com/jbrzusto/haasoscope/regbus"

// Master drives ADC SPI register writes through a register bus.
type Master struct {
	bus *regbus.Bus
}

// New constructs an ADC SPI master over bus.
func New(bus *regbus.Bus) *Master {
	return &Master{bus: bus}
}

// waitReady polls the SPI state register until it reads zero.
func (m *Master) waitReady() error {
	for {
		v, err := m.bus.ReadReg("adcspi", "state")
		if err != nil {
			return err
		}
		if v == 0 {
			return nil
		}
	}
}

// Send writes one ADC configuration register over SPI: reg (7-bit address)
// and val (8-bit data), waiting for the controller to be idle before and
// after issuing the transaction (spec.md §4.3).
func (m *Master) Send(reg, val byte) error {
	if err := m.waitReady(); err != nil {
		return err
	}
	if err := m.bus.WriteReg("adcspi", "data0", uint32(reg&0x7f)); err != nil {
		return err
	}
	if err := m.bus.WriteReg("adcspi", "data1", uint32(val)); err != nil {
		return err
	}
	if err := m.bus.WriteReg("adcspi", "state", 0x01); err != nil {
		return err
	}
	return m.waitReady()
}

// adcSetupSequence is the MAX19506 power-up register sequence: non-
// multiplexed output, DOR/DCLK disabled, "-3T/16" output timing, default
// 50-ohm data line termination on both
// channels, offset-binary output, and default 0.9V voltage modes.
var adcSetupSequence = [][2]byte{
	{0x01, 0x00},
	{0x02, 0x03},
	{0x03, 0b10111111},
	{0x04, 0x00},
	{0x05, 0x00},
	{0x06, 0x10},
	{0x08, 0x00},
}

// Setup configures the ADC with its fixed power-up register sequence.
func (m *Master) Setup() error {
	for _, rv := range adcSetupSequence {
		if err := m.Send(rv[0], rv[1]); err != nil {
			return err
		}
	}
	return nil
}
