package analog

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jbrzusto/haasoscope/herr"
)

// ProbeEntry describes one probe calibration point: the DAC bias voltage
// applied ahead of the ADC, the volts-per-ADC-code conversion factor, and
// an optional base (adc-code, voltage) pair the conversion is anchored to
// (defaulting to the ADC's mid-code and zero volts).
type ProbeEntry struct {
	DACVoltage float64 `mapstructure:"dac"`
	ADCFactor  float64 `mapstructure:"adc_factor"`
	// BaseADC and BaseVolt default to the ADC's mid-code and zero volts
	// (via Lookup) when left unset in a calibration entry.
	BaseADC  float64 `mapstructure:"adc"`
	BaseVolt float64 `mapstructure:"voltage"`
}

// ProbeKey names a probe-specific calibration override: the channel mode
// it applies to ("dc1x", "dc10x", "ac1x", "ac10x") and the probe name.
type ProbeKey struct {
	Mode  string
	Probe string
}

// CalibrationStore holds the per-mode base calibration and per-(mode,probe)
// overrides used by AFConfig voltage<->ADC-code conversion (spec.md §4.5).
// Loaded from an external file rather than hardcoded BASE_PROBES/PROBES
// module dictionaries, per spec.md §1's "probe-calibration constants"
// non-goal.
type CalibrationStore struct {
	Base      map[string]ProbeEntry
	Overrides map[ProbeKey]ProbeEntry
}

// gain1Factor and gain10Factor are the built-in fallback ADC conversion
// factors (volts per ADC code) for 1x and 10x gain, derived from the
// reference front-end's resistor-divider and amplifier gain values. These
// are the factory defaults used when no calibration file is found; a real
// deployment should calibrate and load its own via Load.
const (
	gain1Factor  = -1.5 * 1100000. / (200000. * 255.)
	gain10Factor = -1.5 * 1100000. / (2000000. * 255.)
)

// DefaultCalibration returns the built-in factory calibration, used when no
// calibration file is found (spec.md §4.5 BASE_PROBES/PROBES tables).
func DefaultCalibration() *CalibrationStore {
	return &CalibrationStore{
		Base: map[string]ProbeEntry{
			"ac1x":  {DACVoltage: 1.235, ADCFactor: gain1Factor},
			"ac10x": {DACVoltage: 2.35, ADCFactor: gain10Factor},
			"dc1x":  {DACVoltage: 1.0575, ADCFactor: gain1Factor},
			"dc10x": {DACVoltage: 1.5535, ADCFactor: gain10Factor},
		},
		Overrides: map[ProbeKey]ProbeEntry{
			{"dc1x", "10x"}:  {DACVoltage: 1.2125, ADCFactor: gain1Factor * 10.},
			{"dc10x", "10x"}: {DACVoltage: 2.329, ADCFactor: gain10Factor * 10.},
		},
	}
}

// LoadCalibration reads a YAML or TOML calibration file via viper (keys
// "base" and "overrides", same shape as CalibrationStore), following the
// teacher's config.go loadConfig pattern. If path is empty or the file
// cannot be found, the built-in DefaultCalibration is returned instead of
// an error.
func LoadCalibration(path string) (*CalibrationStore, error) {
	if path == "" {
		return DefaultCalibration(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return DefaultCalibration(), nil
	}
	store := &CalibrationStore{
		Base:      map[string]ProbeEntry{},
		Overrides: map[ProbeKey]ProbeEntry{},
	}
	var base map[string]ProbeEntry
	if err := v.UnmarshalKey("base", &base); err != nil {
		return nil, fmt.Errorf("%w: parsing calibration base: %v", herr.ErrConfig, err)
	}
	store.Base = base
	var overrides map[string]map[string]ProbeEntry
	if err := v.UnmarshalKey("overrides", &overrides); err != nil {
		return nil, fmt.Errorf("%w: parsing calibration overrides: %v", herr.ErrConfig, err)
	}
	for mode, byProbe := range overrides {
		for probe, entry := range byProbe {
			store.Overrides[ProbeKey{Mode: mode, Probe: probe}] = entry
		}
	}
	return store, nil
}

// Lookup resolves the dac voltage, adc factor, base adc code, and base
// voltage to use for a given mode/probe/ac-isolate combination, following
// spec.md §4.5's fallback rule: an ac1x/ac10x mode with no matching probe
// entry falls back to the corresponding dc probe entry, and in ac-isolate
// mode the adc_factor is taken from the probe-specific entry while
// dac/base_adc/base_voltage come from the base (non-probe) entry of the
// requested mode.
func (c *CalibrationStore) Lookup(mode, probe string, acIsolate bool) (dacVoltage, adcFactor, baseADC, baseVolt float64, err error) {
	baseInfo, haveBase := c.Base[mode]

	var info ProbeEntry
	haveInfo := false
	if probe != "" {
		key := ProbeKey{Mode: mode, Probe: strings.ToLower(strings.TrimSpace(probe))}
		info, haveInfo = c.Overrides[key]
		if !haveInfo && strings.HasPrefix(mode, "ac") {
			key.Mode = "dc" + mode[2:]
			info, haveInfo = c.Overrides[key]
		}
	} else {
		info, haveInfo = baseInfo, haveBase
	}
	if !haveInfo {
		return 0, 0, 0, 0, fmt.Errorf("%w: unknown probe %q for mode %q", herr.ErrConfig, probe, mode)
	}

	adcFactor = info.ADCFactor
	if acIsolate && haveBase {
		// Only use the probe-specific adc_factor in ac-isolate mode;
		// dac/base_adc/base_voltage come from the mode's base entry.
		info = baseInfo
	}
	dacVoltage = info.DACVoltage
	baseADC = info.BaseADC
	if baseADC == 0 {
		baseADC = 255. / 2.
	}
	baseVolt = info.BaseVolt
	return dacVoltage, adcFactor, baseADC, baseVolt, nil
}
