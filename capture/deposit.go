// Package capture implements the sample-queue capture engine: frame
// configuration, arming, bulk-mode acquisition, and decode/CSV emission of
// interleaved per-channel measurements (spec.md §4.6).
package capture

// DepositType describes how the FPGA's sample queue packs multiple
// sub-sample measurements into each 32-bit word, keyed by the configured
// bit depth per measurement (spec.md §4.6, hcap.py DEPOSIT_TYPES).
type DepositType struct {
	MeasurementsPerSample int
	ShiftBits             uint
	Code                  byte
}

// DepositTypes enumerates the bit depths the FPGA's deposit logic
// supports. Keys are bits per measurement.
var DepositTypes = map[int]DepositType{
	8:  {MeasurementsPerSample: 4, ShiftBits: 8, Code: 0},
	10: {MeasurementsPerSample: 3, ShiftBits: 10, Code: 1},
	13: {MeasurementsPerSample: 2, ShiftBits: 13, Code: 2},
	5:  {MeasurementsPerSample: 6, ShiftBits: 5, Code: 3},
	6:  {MeasurementsPerSample: 5, ShiftBits: 13, Code: 6},
}

// SortedBitDepths returns the supported bit depths in ascending order, for
// error messages listing valid --bits choices.
func SortedBitDepths() []int {
	depths := make([]int, 0, len(DepositTypes))
	for k := range DepositTypes {
		depths = append(depths, k)
	}
	for i := 1; i < len(depths); i++ {
		for j := i; j > 0 && depths[j-1] > depths[j]; j-- {
			depths[j-1], depths[j] = depths[j], depths[j-1]
		}
	}
	return depths
}
