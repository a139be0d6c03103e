package analog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupUsesBaseEntryWhenNoProbeGiven(t *testing.T) {
	cal := DefaultCalibration()
	dacV, adcFactor, baseADC, baseVolt, err := cal.Lookup("dc1x", "", false)
	require.NoError(t, err)
	base := cal.Base["dc1x"]
	assert.Equal(t, base.DACVoltage, dacV)
	assert.Equal(t, base.ADCFactor, adcFactor)
	assert.Equal(t, 255./2., baseADC, "unset base_adc defaults to mid-code")
	assert.Zero(t, baseVolt)
}

func TestLookupAppliesProbeOverride(t *testing.T) {
	cal := DefaultCalibration()
	dacV, adcFactor, _, _, err := cal.Lookup("dc1x", "10x", false)
	require.NoError(t, err)
	override := cal.Overrides[ProbeKey{Mode: "dc1x", Probe: "10x"}]
	assert.Equal(t, override.DACVoltage, dacV)
	assert.Equal(t, override.ADCFactor, adcFactor)
}

func TestLookupACFallsBackToDCOverride(t *testing.T) {
	cal := DefaultCalibration()
	// "ac1x"/"10x" has no direct override, but "dc1x"/"10x" does; the
	// fallback should find it.
	_, adcFactor, _, _, err := cal.Lookup("ac1x", "10x", true)
	require.NoError(t, err)
	dcOverride := cal.Overrides[ProbeKey{Mode: "dc1x", Probe: "10x"}]
	assert.Equal(t, dcOverride.ADCFactor, adcFactor)
}

func TestLookupACIsolateUsesBaseDACAndBaseADC(t *testing.T) {
	cal := DefaultCalibration()
	dacV, _, baseADC, baseVolt, err := cal.Lookup("ac1x", "10x", true)
	require.NoError(t, err)
	acBase := cal.Base["ac1x"]
	assert.Equal(t, acBase.DACVoltage, dacV, "ac-isolate mode takes dac voltage from the base entry, not the probe override")
	assert.Equal(t, 255./2., baseADC)
	assert.Zero(t, baseVolt)
}

func TestLookupUnknownProbeErrors(t *testing.T) {
	cal := DefaultCalibration()
	_, _, _, _, err := cal.Lookup("dc1x", "nonexistent-probe", false)
	assert.Error(t, err)
}

func TestLoadCalibrationEmptyPathReturnsDefault(t *testing.T) {
	cal, err := LoadCalibration("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCalibration(), cal)
}

func TestLoadCalibrationMissingFileReturnsDefault(t *testing.T) {
	cal, err := LoadCalibration("/nonexistent/path/calibration.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultCalibration(), cal)
}
