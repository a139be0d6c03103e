// Package pll sets the phase of the device's interleaved-sampling clock
// through the FPGA's "pp" (phase-poke) register module (spec.md §4.3).
package pll

import "github.com/jbrzusto/haasoscope/regbus"

// phaseStepPicoseconds is the granularity of one phase step.
const phaseStepPicoseconds = 100

// interleavePhasePicoseconds is the phase offset applied when interleaving
// two channels at double rate.
const interleavePhasePicoseconds = 4000

// Setter drives the PLL phase register through a register bus.
type Setter struct {
	bus *regbus.Bus
}

// New constructs a phase setter over bus.
func New(bus *regbus.Bus) *Setter {
	return &Setter{bus: bus}
}

func (s *Setter) waitReady() error {
	for {
		v, err := s.bus.ReadReg("pp", "status")
		if err != nil {
			return err
		}
		if v == 0 {
			return nil
		}
	}
}

// Setup sets the target clock phase for interleaved or non-interleaved
// sampling, skipping the write entirely if the device already reports the
// target phase (spec.md §4.3).
func (s *Setter) Setup(interleave bool) error {
	target := uint32(0)
	if interleave {
		target = interleavePhasePicoseconds / phaseStepPicoseconds
	}
	cur, err := s.bus.ReadReg("pp", "req_phase")
	if err != nil {
		return err
	}
	if cur == target {
		return nil
	}
	if err := s.waitReady(); err != nil {
		return err
	}
	if err := s.bus.WriteReg("pp", "req_phase", target); err != nil {
		return err
	}
	return s.waitReady()
}
