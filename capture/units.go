package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jbrzusto/haasoscope/herr"
)

// hzSuffixes maps a frequency-string suffix to its multiplier, longest
// suffix first so "mhz" isn't shadowed by a bare "hz" match.
var hzSuffixes = []struct {
	suffix string
	mult   float64
}{
	{"mhz", 1000000.},
	{"khz", 1000.},
	{"hz", 1.},
}

// ParseHz parses a frequency string like "125MHz", "250mhz", or "2000khz"
// (case-insensitive, whitespace-tolerant) into a value in Hz (spec.md §6
// CLI surface, hcap.py _parse_hz).
func ParseHz(s string) (float64, error) {
	val := strings.ToLower(strings.TrimSpace(s))
	mult := 1000000.
	for _, e := range hzSuffixes {
		if strings.HasSuffix(val, e.suffix) {
			val = strings.TrimSpace(val[:len(val)-len(e.suffix)])
			mult = e.mult
			break
		}
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed frequency %q: %v", herr.ErrConfig, s, err)
	}
	return f * mult, nil
}

// timeSuffixes maps a duration-string suffix to its multiplier in seconds.
var timeSuffixes = []struct {
	suffix string
	mult   float64
}{
	{"us", 0.000001},
	{"ms", 0.001},
	{"s", 1.},
}

// ParseTime parses a duration string like "100ms", "2us", or "1.5s" into a
// value in seconds (spec.md §6 CLI surface, hcap.py _parse_time).
func ParseTime(s string) (float64, error) {
	val := strings.ToLower(strings.TrimSpace(s))
	mult := 1.
	for _, e := range timeSuffixes {
		if strings.HasSuffix(val, e.suffix) {
			val = strings.TrimSpace(val[:len(val)-len(e.suffix)])
			mult = e.mult
			break
		}
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed duration %q: %v", herr.ErrConfig, s, err)
	}
	return f * mult, nil
}
