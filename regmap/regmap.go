// Package regmap defines the device's memory-mapped register space: a
// configuration-time mapping of module name to module address and, within
// each module, register name to (offset, size). The map is immutable after
// startup and is handed to the register bus (regbus.New) as a frozen value,
// never consulted as ambient global state (see SPEC_FULL.md §9, "global
// register dictionary").
package regmap

// Register describes one named register within a module: its byte offset
// from the module's base address, and its size in bytes (1, 2, or 4).
type Register struct {
	Offset uint8
	Size   uint8
}

// Module describes one addressable module: its base address byte and the
// registers it exposes.
type Module struct {
	Address   uint8
	Registers map[string]Register
}

// Map is the full device register space, keyed by module name.
type Map map[string]Module

// Resolve returns the 16-bit device address and byte size of a named
// register, or ok=false if the module or register name is unknown.
func (m Map) Resolve(module, register string) (addr uint16, size uint8, ok bool) {
	mod, ok := m[module]
	if !ok {
		return 0, 0, false
	}
	reg, ok := mod.Registers[register]
	if !ok {
		return 0, 0, false
	}
	return (uint16(mod.Address) << 8) | uint16(reg.Offset), reg.Size, true
}

// channelRegisters is shared by the four ADC-channel modules ch0..ch3.
var channelRegisters = map[string]Register{
	"trigger":      {0x00, 1},
	"thresh":       {0x01, 1},
	"status":       {0x20, 1},
	"acc_cnt":      {0x21, 1},
	"sum_mask":     {0x22, 2},
	"initial_sum":  {0x24, 2},
}

// Default is the register map for the device described in spec.md §6: a
// version register, the ADC SPI and I2C controllers, the PLL phase setter,
// four ADC channel modules, and the sample queue.
var Default = Map{
	"vers": {
		Address: 0x00,
		Registers: map[string]Register{
			"code_version": {0x00, 4},
		},
	},
	"adcspi": {
		Address: 0x01,
		Registers: map[string]Register{
			"state": {0x00, 1},
			"data0": {0x02, 1},
			"data1": {0x03, 1},
		},
	},
	"i2c": {
		Address: 0x02,
		Registers: map[string]Register{
			"prer": {0x00, 2},
			"ctr":  {0x02, 1},
			"txr":  {0x03, 1},
			"rxr":  {0x03, 1}, // read-only alias of txr
			"cr":   {0x04, 1},
			"sr":   {0x04, 1}, // read-only alias of cr
		},
	},
	"pp": {
		Address: 0x03,
		Registers: map[string]Register{
			"status":     {0x00, 1},
			"req_phase":  {0x01, 1},
			"cur_phase":  {0x02, 1},
		},
	},
	"ch0": {Address: 0x80, Registers: channelRegisters},
	"ch1": {Address: 0x81, Registers: channelRegisters},
	"ch2": {Address: 0x82, Registers: channelRegisters},
	"ch3": {Address: 0x83, Registers: channelRegisters},
	"sq": {
		Address: 0x87,
		Registers: map[string]Register{
			"status":             {0x00, 1},
			"frame_preface":      {0x02, 2},
			"frame_size":         {0x04, 4},
			"reg_fifo_position":  {0x08, 4},
			"frame_count":        {0x0c, 4},
		},
	},
}
