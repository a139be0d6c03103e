package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositTypesKnownBitDepths(t *testing.T) {
	for bits, dt := range DepositTypes {
		assert.GreaterOrEqualf(t, dt.MeasurementsPerSample*int(dt.ShiftBits), bits,
			"bits=%d: measurements_per_sample*shift smaller than bits itself", bits)
	}
	_, ok := DepositTypes[8]
	require.True(t, ok, "expected bits=8 to be a supported deposit type")
}

func TestSortedBitDepths(t *testing.T) {
	got := SortedBitDepths()
	for i := 1; i < len(got); i++ {
		assert.Lessf(t, got[i-1], got[i], "SortedBitDepths() not ascending: %v", got)
	}
}

// extractMeasurements re-implements the measurement-extraction inner loop
// of parseFrameData in isolation, to test the d|(d<<32) pre-extension
// trick against hand-picked bit patterns without a full Engine/Frontend
// fixture.
func extractMeasurements(word uint32, bits int) []uint64 {
	dt := DepositTypes[bits]
	d := uint64(word)
	d = d | (d << 32)
	mask := uint64(1<<uint(bits)) - 1
	out := make([]uint64, dt.MeasurementsPerSample)
	for j := 0; j < dt.MeasurementsPerSample; j++ {
		shift := uint((uint(j) * dt.ShiftBits) & 0x1f)
		out[dt.MeasurementsPerSample-1-j] = (d >> shift) & mask
	}
	return out
}

func TestBitFieldExtractionBits8(t *testing.T) {
	// bits=8: four independent byte-wide measurements, no word-boundary
	// wraparound needed. Fields come out in reverse index order, so the
	// highest byte is first.
	word := uint32(0x44332211)
	got := extractMeasurements(word, 8)
	assert.Equal(t, []uint64{0x44, 0x33, 0x22, 0x11}, got)
}

func TestBitFieldExtractionBits10WithinWord(t *testing.T) {
	// bits=10: three 10-bit fields packed into 32 bits with 2 bits of
	// waste at the top; the highest-shift field (shift=20) still fits
	// entirely within the low 32 bits, so the d|(d<<32) extension isn't
	// exercised here, but the shift/mask arithmetic is.
	dt := DepositTypes[10]
	require.Equal(t, 3, dt.MeasurementsPerSample)
	require.Equal(t, uint(10), dt.ShiftBits)

	word := uint32(0x000 | (0x155 << 10) | (0x2aa << 20))
	got := extractMeasurements(word, 10)
	assert.Equal(t, []uint64{0x2aa, 0x155, 0x000}, got)
}

func TestBitFieldExtractionBits13HighField(t *testing.T) {
	// bits=13, measurements_per_sample=2: the second measurement (shift
	// 13) occupies bits 13..25, still entirely within the 32-bit word, so
	// this checks the shift/mask arithmetic for the high field rather
	// than the d|(d<<32) wraparound.
	dt := DepositTypes[13]
	require.Equal(t, 2, dt.MeasurementsPerSample)
	require.Equal(t, uint(13), dt.ShiftBits)

	word := uint32(0x1fff << 13) // low field clear, high field all ones
	got := extractMeasurements(word, 13)
	assert.Equal(t, []uint64{0x1fff, 0}, got)
}

func TestCalcMeasMaskWidensForChannelDivSum(t *testing.T) {
	e := NewEngine(nil, nil, 125000000, nil)
	e.measBits = 8
	e.channelDiv = 4
	e.doMeasSum = true
	e.calcMeasMask()
	// max_val = 0xff*4 = 0x3fc, needs 10 bits; meas_bits=8 needs 2 extra
	// shift bits, so mask widens by 2 and base becomes 1<<1.
	assert.Equal(t, uint32(0xff<<2), e.measMask)
	assert.Equal(t, uint32(1<<1), e.measBase)
}

func TestCalcMeasMaskClampsBitsWhenNoChannelDiv(t *testing.T) {
	e := NewEngine(nil, nil, 125000000, nil)
	e.measBits = 13
	e.channelDiv = 1
	e.doMeasSum = true
	e.calcMeasMask()
	assert.Equal(t, 8, e.measBits, "measBits should clamp to 8 when channelDiv==1")
}
