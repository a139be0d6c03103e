// Package orchestrator wires the Framer, register bus, I²C master, SPI/PLL
// helpers, analog front ends, and capture engine into a single bring-up/
// capture/shutdown sequence (spec.md §2, §5).
package orchestrator

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jbrzusto/haasoscope/analog"
	"github.com/jbrzusto/haasoscope/capture"
	"github.com/jbrzusto/haasoscope/framer"
	"github.com/jbrzusto/haasoscope/herr"
	"github.com/jbrzusto/haasoscope/i2c"
	"github.com/jbrzusto/haasoscope/pll"
	"github.com/jbrzusto/haasoscope/regbus"
	"github.com/jbrzusto/haasoscope/regmap"
	"github.com/jbrzusto/haasoscope/transport"

	"github.com/jbrzusto/haasoscope/adcspi"
)

// Device-wide constants (hcap.py FPGA_FREQ/FPGA_SLOW_FREQ/I2C_*_ADDR).
const (
	fpgaFreq     = 125000000.
	fpgaSlowFreq = 62500000.

	i2cDACAddr  = 0x60
	i2cExp1Addr = 0x20
	i2cExp2Addr = 0x21
)

// pinsIOExp1 names GPIO expander 1's pins: per-channel gain/enable/dc-connect
// switches and ADC shutdown lines (hcap.py PINS_IOEXP1).
var pinsIOExp1 = map[string]uint8{
	"gain_ch0": 0, "gain_ch1": 1, "gain_ch2": 2, "gain_ch3": 3,
	"enable_ch2": 4, "enable_ch3": 5,
	"dc_connect_ch0": 8, "dc_connect_ch1": 9,
	"dc_connect_ch2": 10, "dc_connect_ch3": 11,
	"shutdown_adc1": 12, "shutdown_adc2": 13,
}

// pinsIOExp2 names GPIO expander 2's pins: status LEDs, spare IO, and the
// front-panel impedance/gain switch readbacks (hcap.py PINS_IOEXP2).
var pinsIOExp2 = map[string]uint8{
	"led0": 0, "led1": 1, "led2": 2, "led3": 3,
	"extra_io1": 4, "extra_io2": 5, "extra_io3": 6, "extra_io4": 7,
	"switch_imp10Mohm_ch0": 8, "switch_imp10Mohm_ch1": 9,
	"switch_imp10Mohm_ch2": 10, "switch_imp10Mohm_ch3": 11,
	"switch_gain100_ch0": 12, "switch_gain100_ch1": 13,
	"switch_gain100_ch2": 14, "switch_gain100_ch3": 15,
}

// ChannelConfig carries one channel's CLI-level configuration (spec.md §6
// --chN/--chNprobe/--chNtrigger).
type ChannelConfig struct {
	Mode    string
	Probe   string
	Trigger string
}

// Config carries the full set of capture parameters an Orchestrator needs,
// already parsed out of the CLI surface by cmd/hcap (spec.md §6).
type Config struct {
	QueryRate string
	Bits      int
	Duration  string
	Preface   string
	Average   int
	Channels  string // e.g. "ch0,ch1,ch2,ch3"
	Channel   [4]ChannelConfig
}

// Orchestrator owns every device-side collaborator and drives the
// bring-up -> capture -> shutdown sequence (spec.md §2, §5, hcap.py
// HProcessor).
type Orchestrator struct {
	log *log.Logger

	fr  *framer.Framer
	bus *regbus.Bus

	i2cMaster *i2c.Master
	adc       *adcspi.Master
	pllSet    *pll.Setter

	ioexp1 *analog.IOExpander
	ioexp2 *analog.IOExpander
	dac    *analog.DAC

	frontends [4]*analog.Frontend
	engine    *capture.Engine

	cal *analog.CalibrationStore

	interleave  bool
	csvFilename string
}

// New constructs an Orchestrator over the given transport, using cal for
// probe-calibration lookups and logger for every component's diagnostic
// output (spec.md §4.7, §9's "no package-level globals" note).
func New(t transport.Transport, cal *analog.CalibrationStore, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	fr := framer.New(t, logger)
	bus := regbus.New(fr, regmap.Default)
	i2cMaster := i2c.New(bus, logger)
	adc := adcspi.New(bus)
	pllSet := pll.New(bus)
	dac := analog.NewDAC(i2cMaster, i2cDACAddr)
	ioexp1 := analog.NewIOExpander(i2cMaster, i2cExp1Addr, pinsIOExp1)
	ioexp2 := analog.NewIOExpander(i2cMaster, i2cExp2Addr, pinsIOExp2)

	for name := range pinsIOExp1 {
		configureExpanderPin(ioexp1, name)
	}
	for name := range pinsIOExp2 {
		configureExpanderPin(ioexp2, name)
	}

	o := &Orchestrator{
		log:       logger,
		fr:        fr,
		bus:       bus,
		i2cMaster: i2cMaster,
		adc:       adc,
		pllSet:    pllSet,
		ioexp1:    ioexp1,
		ioexp2:    ioexp2,
		dac:       dac,
		cal:       cal,
	}
	for ch := 0; ch < 4; ch++ {
		o.frontends[ch] = analog.NewFrontend(bus, dac, ioexp1, ch, ch%2)
	}
	o.engine = capture.NewEngine(bus, fr, fpgaFreq, logger)
	return o
}

// configureExpanderPin assigns a pin's direction the way HProcessor.__init__
// does: switch_* pins are inputs with pull-up, extra_io* pins are plain
// inputs, everything else is an output initialised low.
func configureExpanderPin(e *analog.IOExpander, name string) {
	switch {
	case strings.HasPrefix(name, "switch_"):
		e.SetInput(name, true)
	case strings.HasPrefix(name, "extra_io"):
		e.SetInput(name, false)
	default:
		e.SetOutput(name, false)
	}
}

// parseChannels parses a "ch0,ch1,ch2,ch3" style channel list into the set
// of selected channel numbers (hcap.py AFHelper._parse_channels).
func parseChannels(val string) (map[int]bool, error) {
	result := map[int]bool{}
	for _, p := range strings.Split(val, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		p = strings.TrimPrefix(p, "ch")
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed channel list entry %q", herr.ErrConfig, p)
		}
		result[n] = true
	}
	return result, nil
}

// Configure parses the capture engine's frame-shape options and every
// channel's mode/probe/trigger/capturing flag, mirroring
// HProcessor.note_cmdline_options.
func (o *Orchestrator) Configure(cfg Config) error {
	if err := o.engine.Configure(cfg.QueryRate, cfg.Bits, cfg.Duration, cfg.Preface, cfg.Average); err != nil {
		return err
	}
	o.interleave = o.engine.IsInterleaving()

	selected, err := parseChannels(cfg.Channels)
	if err != nil {
		return err
	}

	for ch := 0; ch < 4; ch++ {
		captureChannel := ch
		if o.interleave {
			captureChannel = ch % 2
		}
		// In interleave mode a parked channel (ch2/ch3) decodes the extra
		// interleaved samples belonging to its partner's physical input, so
		// it must carry the partner's mode/probe/trigger/capturing state
		// rather than its own.
		cc := cfg.Channel[captureChannel]
		mode, err := analog.ParseMode(cc.Mode)
		if err != nil {
			return fmt.Errorf("channel %d: %w", ch, err)
		}
		capturing := selected[captureChannel]
		if err := o.frontends[ch].Configure(o.cal, mode, strings.ToLower(strings.TrimSpace(cc.Mode)), cc.Probe, cc.Trigger, capturing, o.interleave); err != nil {
			return fmt.Errorf("channel %d: %w", ch, err)
		}
	}
	return nil
}

// Run performs the full bring-up and capture sequence: register-map
// version handshake, per-subsystem setup, per-channel analog front-end
// configuration, and a single capture into csvFilename (hcap.py
// HProcessor.run).
func (o *Orchestrator) Run(csvFilename string) error {
	o.csvFilename = csvFilename
	if _, err := o.bus.Setup(); err != nil {
		return err
	}
	if err := o.engine.Setup(); err != nil {
		return err
	}
	if err := o.adc.Setup(); err != nil {
		return err
	}
	if err := o.i2cMaster.Setup(fpgaSlowFreq); err != nil {
		return err
	}
	if err := o.pllSet.Setup(o.interleave); err != nil {
		return err
	}

	o.ioexp2.SetOutput("led0", true)
	if err := o.ioexp2.Flush(); err != nil {
		return err
	}
	if err := o.ioexp2.ReadPins(); err != nil {
		return err
	}

	o.ioexp1.SetOutput("enable_ch2", !o.interleave)
	o.ioexp1.SetOutput("enable_ch3", !o.interleave)

	forceTrigger := true
	for ch := 0; ch < 4; ch++ {
		suffix := fmt.Sprintf("_ch%d", ch)
		sw10MOhm := o.ioexp2.Input("switch_imp10Mohm" + suffix)
		swGain100 := o.ioexp2.Input("switch_gain100" + suffix)
		o.frontends[ch].NoteSwitches(sw10MOhm, swGain100)
		if err := o.frontends[ch].SetupChannel(); err != nil {
			return err
		}
		if o.frontends[ch].HaveTrigger() {
			forceTrigger = false
		}
	}
	if err := o.ioexp1.Flush(); err != nil {
		return err
	}

	return o.engine.CaptureFrame(o.frontends[:], o.csvFilename, forceTrigger)
}

// Cleanup disconnects every channel's probe input, shuts down both ADCs,
// zeroes the DAC, and turns off the status LEDs, run unconditionally after
// Run whether or not it succeeded (spec.md §5 "failure-atomicity", hcap.py
// HProcessor.cleanup).
func (o *Orchestrator) Cleanup() error {
	for ch := 0; ch < 4; ch++ {
		o.ioexp1.SetOutput(fmt.Sprintf("dc_connect_ch%d", ch), false)
	}
	o.ioexp1.SetOutput("shutdown_adc1", true)
	o.ioexp1.SetOutput("shutdown_adc2", true)
	if err := o.ioexp1.Flush(); err != nil {
		return err
	}
	for ch := 0; ch < 4; ch++ {
		if err := o.dac.SetChannel(ch, 0.0); err != nil {
			return err
		}
	}
	for led := 0; led < 4; led++ {
		o.ioexp2.SetOutput(fmt.Sprintf("led%d", led), false)
	}
	if err := o.ioexp2.Flush(); err != nil {
		return err
	}
	o.log.Info("Shutdown adc complete.")
	return nil
}
