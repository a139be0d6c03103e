package analog

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jbrzusto/haasoscope/herr"
	"github.com/jbrzusto/haasoscope/regbus"
)

// Mode is a parsed channel mode: AC vs DC coupling and 1x vs 10x gain
// (spec.md §4.5).
type Mode struct {
	ACIsolate bool
	Gain10    bool
}

var channelModes = map[string]Mode{
	"dc1x":  {ACIsolate: false, Gain10: false},
	"dc10x": {ACIsolate: false, Gain10: true},
	"ac1x":  {ACIsolate: true, Gain10: false},
	"ac10x": {ACIsolate: true, Gain10: true},
}

// modeName recovers the canonical "dc1x"/"dc10x"/"ac1x"/"ac10x" string a
// Mode was parsed from, needed for probe-table lookups.
func modeName(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := channelModes[s]; !ok {
		return "", fmt.Errorf("%w: unknown mode %q (available: dc1x, dc10x, ac1x, ac10x)", herr.ErrConfig, s)
	}
	return s, nil
}

// ParseMode parses a channel mode string ("dc1x", "dc10x", "ac1x", "ac10x",
// case-insensitive) into its AC-isolate/gain10 flags.
func ParseMode(s string) (Mode, error) {
	name, err := modeName(s)
	if err != nil {
		return Mode{}, err
	}
	return channelModes[name], nil
}

// triggerEdges maps the trigger grammar's leading character to its edge
// code (spec.md §4.5). "<" is the default when no leading character
// matches.
var triggerEdges = []struct {
	prefix string
	code   byte
}{
	{"<", 0x04},
	{">", 0x06},
	{"_", 0x00},
	{"~", 0x02},
}

// ParseTrigger parses a trigger expression such as "<1.25", ">-0.5", "~0",
// or a bare "1.0" (defaulting to "<") into its edge code (with the
// always-set enable bit 0x01) and threshold voltage (spec.md §4.5, §8
// scenario 3).
func ParseTrigger(s string) (code byte, volt float64, err error) {
	s = strings.TrimSpace(s)
	edgeCode := byte(0x04)
	for _, e := range triggerEdges {
		if strings.HasPrefix(s, e.prefix) {
			s = strings.TrimSpace(s[len(e.prefix):])
			edgeCode = e.code
			break
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: malformed trigger voltage %q: %v", herr.ErrConfig, s, err)
	}
	return edgeCode | 0x01, v, nil
}

// Frontend configures one channel's analog front end: DAC bias, gain/
// coupling switches on GPIO expander 1, trigger registers, and the
// voltage<->ADC-code conversion used when decoding captured samples
// (spec.md §4.5).
type Frontend struct {
	bus     *regbus.Bus
	dac     *DAC
	ioexp1  *IOExpander
	channel int

	// interleaveChannel is the channel (0 or 1) that stays physically
	// active, of this channel's interleaved pair, when interleaving.
	interleaveChannel int
	interleaving      bool

	mode Mode

	dacVoltage  float64
	baseADC     float64
	baseVoltage float64
	adcFactor   float64

	triggerCode byte
	triggerVolt float64

	capturing bool

	sw10MOhm   bool
	swGain100  bool
}

// NewFrontend constructs a Frontend for the given channel (0-3).
// interleaveChannel is channel%2: the partner channel that remains active
// when this pair is running in interleaved mode.
func NewFrontend(bus *regbus.Bus, dac *DAC, ioexp1 *IOExpander, channel, interleaveChannel int) *Frontend {
	return &Frontend{bus: bus, dac: dac, ioexp1: ioexp1, channel: channel, interleaveChannel: interleaveChannel}
}

// Configure applies a parsed mode, optional probe calibration lookup,
// optional trigger, capturing flag, and interleave flag to the frontend
// (spec.md §4.5).
func (f *Frontend) Configure(cal *CalibrationStore, mode Mode, modeStr, probe string, trigger string, capturing, interleaving bool) error {
	f.mode = mode
	f.interleaving = interleaving
	f.capturing = capturing

	dacV, adcFactor, baseADC, baseVolt, err := cal.Lookup(modeStr, probe, mode.ACIsolate)
	if err != nil {
		return err
	}
	f.dacVoltage = dacV
	f.adcFactor = adcFactor
	f.baseADC = baseADC
	f.baseVoltage = baseVolt

	if trigger != "" {
		code, volt, err := ParseTrigger(trigger)
		if err != nil {
			return err
		}
		f.triggerCode = code
		f.triggerVolt = volt
	}
	return nil
}

// NoteSwitches records the front-panel impedance/gain switch positions
// read back from GPIO expander 2, used only for status reporting.
func (f *Frontend) NoteSwitches(sw10MOhm, swGain100 bool) {
	f.sw10MOhm = sw10MOhm
	f.swGain100 = swGain100
}

// HaveTrigger reports whether this channel has a trigger configured.
func (f *Frontend) HaveTrigger() bool { return f.triggerCode != 0 }

// CheckIsCapturing reports whether this channel is selected for capture.
func (f *Frontend) CheckIsCapturing() bool { return f.capturing }

// CalcADC converts a probe-side voltage to its nearest 8-bit ADC code,
// clamped to [0, 255] (spec.md §4.5).
func (f *Frontend) CalcADC(probeVolt float64) uint8 {
	result := (probeVolt-f.baseVoltage)/f.adcFactor + f.baseADC
	rounded := math.Floor(result + 0.5)
	if rounded < 0 {
		return 0
	}
	if rounded > 255 {
		return 255
	}
	return uint8(rounded)
}

// CalcProbeVolt converts an ADC code (or accumulated/averaged measurement)
// to a probe-side voltage, inverse of CalcADC (spec.md §4.5).
func (f *Frontend) CalcProbeVolt(adcResult float64) float64 {
	return f.baseVoltage + (adcResult-f.baseADC)*f.adcFactor
}

// SetupChannel drives the channel's GPIO-expander outputs, DAC bias, and
// trigger registers to match its current configuration. When interleaving
// is active and this channel is not the interleave pair's active member,
// the channel is parked: disconnected, zero gain, zero DAC bias (spec.md
// §4.5).
func (f *Frontend) SetupChannel() error {
	suffix := fmt.Sprintf("_ch%d", f.channel)

	isActive := f.capturing || f.triggerCode != 0
	if f.interleaving && f.interleaveChannel != f.channel {
		isActive = false
	}

	dcConnect := false
	gain10 := false
	dacV := 0.0
	if isActive {
		dcConnect = !f.mode.ACIsolate
		gain10 = f.mode.Gain10
		dacV = f.dacVoltage
	}

	f.ioexp1.SetOutput("dc_connect"+suffix, dcConnect)
	f.ioexp1.SetOutput("gain"+suffix, gain10)
	if err := f.dac.SetChannel(f.channel, dacV); err != nil {
		return err
	}

	modName := fmt.Sprintf("ch%d", f.channel)
	if err := f.bus.WriteReg(modName, "trigger", 0x00); err != nil {
		return err
	}
	if f.triggerCode != 0 {
		tadc := f.CalcADC(f.triggerVolt)
		if err := f.bus.WriteReg(modName, "thresh", uint32(tadc)); err != nil {
			return err
		}
		if err := f.bus.WriteReg(modName, "trigger", uint32(f.triggerCode)); err != nil {
			return err
		}
	}
	return nil
}

// Status returns a human-readable summary of the channel's configuration,
// matching the fields reported in the CSV header block (spec.md §6).
func (f *Frontend) Status() string {
	trig := "None"
	if f.triggerCode != 0 {
		edgeNames := map[byte]string{0x04: "falling", 0x06: "rising", 0x00: "below", 0x02: "above"}
		tvolt := f.CalcProbeVolt(float64(f.CalcADC(f.triggerVolt)))
		trig = fmt.Sprintf("%s %.6fV", edgeNames[f.triggerCode&^0x01], tvolt)
	}
	minV := f.CalcProbeVolt(255)
	maxV := f.CalcProbeVolt(0)
	return fmt.Sprintf(
		"channel%d: capturing=%v ac_isolate=%v 50ohm=%v gain10x=%v gain100x=%v\n"+
			"  DAC=%.4fV base_adc=%.6f base_v=%.6fV adc_factor=%.6fV\n"+
			"  range=%.6fV:%.6fV trigger: %s\n",
		f.channel, f.capturing, f.mode.ACIsolate, !f.sw10MOhm, f.mode.Gain10, f.swGain100,
		f.dacVoltage, f.baseADC, f.baseVoltage, f.adcFactor, minV, maxV, trig)
}
