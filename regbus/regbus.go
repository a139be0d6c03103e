// Package regbus provides typed, named register read/write on top of the
// framer's single-byte request primitive, resolving (module, register)
// names through a frozen regmap.Map (spec.md §4.1).
package regbus

import (
	"fmt"

	"github.com/jbrzusto/haasoscope/framer"
	"github.com/jbrzusto/haasoscope/regmap"
)

// Bus resolves named registers against a fixed register map and issues the
// corresponding 1/2/4-byte transactions over a Framer.
type Bus struct {
	f   *framer.Framer
	regs regmap.Map
}

// New constructs a Bus over f using the given (immutable) register map.
func New(f *framer.Framer, m regmap.Map) *Bus {
	return &Bus{f: f, regs: m}
}

func (b *Bus) resolve(module, register string) (uint16, uint8, error) {
	addr, size, ok := b.regs.Resolve(module, register)
	if !ok {
		return 0, 0, fmt.Errorf("unknown register %s.%s", module, register)
	}
	return addr, size, nil
}

// WriteReg writes val to the named register, splitting multi-byte
// registers into little-endian single-byte transactions at consecutive
// addresses (spec.md §4.1).
func (b *Bus) WriteReg(module, register string, val uint32) error {
	addr, size, err := b.resolve(module, register)
	if err != nil {
		return err
	}
	for i := uint8(0); i < size; i++ {
		if err := b.f.WriteByte(addr+uint16(i), byte(val>>(8*i))); err != nil {
			return err
		}
	}
	return nil
}

// ReadReg reads the named register, reassembling multi-byte registers
// little-endian from consecutive single-byte transactions.
func (b *Bus) ReadReg(module, register string) (uint32, error) {
	addr, size, err := b.resolve(module, register)
	if err != nil {
		return 0, err
	}
	var val uint32
	for i := uint8(0); i < size; i++ {
		v, err := b.f.ReadByte(addr + uint16(i))
		if err != nil {
			return 0, err
		}
		val |= uint32(v) << (8 * i)
	}
	return val, nil
}

// Setup performs the boot handshake: flush, read the version register with
// sequence warnings suppressed (the first round-trip necessarily
// desynchronises the counters), then re-enable warnings. Returns the raw
// 32-bit code_version value (major/minor/patch packed as 8-bit fields per
// spec.md §6).
func (b *Bus) Setup() (uint32, error) {
	var vers uint32
	err := b.f.Startup(func() error {
		var err error
		vers, err = b.ReadReg("vers", "code_version")
		return err
	})
	return vers, err
}
