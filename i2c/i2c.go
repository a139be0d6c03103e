// Package i2c implements a byte-level state-machined I2C master over the
// FPGA's OpenCores-style I2C controller (spec.md §4.2), reached through the
// register bus at module "i2c".
package i2c

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jbrzusto/haasoscope/herr"
	"github.com/jbrzusto/haasoscope/regbus"
)

// Command flag bits for the i2c "cr"/"sr" register (shared register,
// command on write, status on read).
const (
	flagStart = 1 << 7
	flagWrite = 1 << 4
	flagRead  = 1 << 5
	flagStop  = 1 << 6
	flagAck   = 1 << 3
	busyBit   = 1 << 1
	ackBit    = 1 << 6
)

// maxFaultRetries bounds the previously-unbounded retry-forever loop on
// I2C fault (spec.md §9 redesign flag).
const maxFaultRetries = 100

// Master drives I2C transactions through a register bus.
type Master struct {
	bus *regbus.Bus
	log *log.Logger
}

// New constructs an I2C master over bus.
func New(bus *regbus.Bus, logger *log.Logger) *Master {
	return &Master{bus: bus, log: logger}
}

// sendByte issues one I2C command byte, optionally writing data first, and
// polls the status register until the controller is no longer busy,
// verifying the acknowledge bit matches the command's direction (spec.md
// §4.2).
func (m *Master) sendByte(cmdFlags byte, data byte) error {
	if cmdFlags&flagRead == 0 {
		if err := m.bus.WriteReg("i2c", "txr", uint32(data)); err != nil {
			return err
		}
	}
	if err := m.bus.WriteReg("i2c", "cr", uint32(cmdFlags)); err != nil {
		return err
	}
	var res uint32
	for {
		v, err := m.bus.ReadReg("i2c", "sr")
		if err != nil {
			return err
		}
		res = v
		if v&busyBit == 0 {
			break
		}
	}
	expected := (uint32(cmdFlags) & ackBit) ^ ackBit
	if res&^uint32(0x01) != expected {
		if expected != 0 {
			_ = m.bus.WriteReg("i2c", "cr", flagStop)
		}
		return herr.ErrI2CFault
	}
	return nil
}

// trySend performs one attempt at a full I2C transaction: an optional
// write phase followed by an optional read phase (spec.md §4.2).
func (m *Master) trySend(addr byte, write []byte, readCount int) ([]byte, error) {
	addrWr := addr << 1
	if len(write) > 0 {
		if err := m.sendByte(flagStart|flagWrite, addrWr); err != nil {
			return nil, err
		}
		for i, b := range write {
			flags := byte(flagWrite)
			if readCount == 0 && i == len(write)-1 {
				flags |= flagStop
			}
			if err := m.sendByte(flags, b); err != nil {
				return nil, err
			}
		}
	}
	var res []byte
	if readCount > 0 {
		if err := m.sendByte(flagStart|flagWrite, addrWr|1); err != nil {
			return nil, err
		}
		for i := 0; i < readCount; i++ {
			flags := byte(flagRead)
			if i == readCount-1 {
				flags |= flagStop | flagAck
			}
			if err := m.sendByte(flags, 0); err != nil {
				return nil, err
			}
			v, err := m.bus.ReadReg("i2c", "rxr")
			if err != nil {
				return nil, err
			}
			res = append(res, byte(v))
		}
	}
	return res, nil
}

// Send performs an I2C transaction, retrying on fault with a 1ms backoff up
// to maxFaultRetries times after the first attempt (spec.md §4.2, bounded
// per spec.md §9).
func (m *Master) Send(addr byte, write []byte, readCount int) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		res, err := m.trySend(addr, write, readCount)
		if err == nil {
			return res, nil
		}
		if attempt >= maxFaultRetries {
			return nil, fmt.Errorf("%w: i2c send fail to addr 0x%02x after %d retries", herr.ErrI2CFault, addr, attempt)
		}
		m.log.Warnf("i2c send fail to addr 0x%02x", addr)
		time.Sleep(time.Millisecond)
	}
}

// Setup programs the I2C controller's clock prescaler for a 100kHz I2C bus
// derived from fpgaFreq, then enables the core (spec.md §4.2).
func (m *Master) Setup(fpgaFreq uint32) error {
	const i2cFreq = 100000
	if err := m.bus.WriteReg("i2c", "ctr", 0x00); err != nil {
		return err
	}
	prescale := fpgaFreq/(5*i2cFreq) - 1
	if err := m.bus.WriteReg("i2c", "prer", prescale); err != nil {
		return err
	}
	return m.bus.WriteReg("i2c", "ctr", 0x80)
}
