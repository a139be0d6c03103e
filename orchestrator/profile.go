package orchestrator

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/jbrzusto/haasoscope/herr"
)

// CaptureProfile is a named set of capture defaults a calibration/config
// file can provide, which CLI flags then override field-by-field.
// DefaultCaptureProfile supplies the built-in factory defaults when no
// profile file is found.
type CaptureProfile struct {
	QueryRate string              `mapstructure:"query_rate"`
	Bits      int                 `mapstructure:"bits"`
	Duration  string              `mapstructure:"duration"`
	Preface   string              `mapstructure:"preface"`
	Average   int                 `mapstructure:"average"`
	Channels  string              `mapstructure:"channels"`
	Channel   [4]ChannelConfig    `mapstructure:"-"`
}

// DefaultCaptureProfile returns the built-in factory capture defaults,
// identical to the values hcap.py's optparse defaults encode.
func DefaultCaptureProfile() CaptureProfile {
	p := CaptureProfile{
		QueryRate: "125MHz",
		Bits:      8,
		Duration:  "100ms",
		Preface:   "2us",
		Average:   1,
		Channels:  "ch0,ch1,ch2,ch3",
	}
	for ch := range p.Channel {
		p.Channel[ch] = ChannelConfig{Mode: "dc1x"}
	}
	return p
}

// LoadCaptureProfile reads a named capture profile from a YAML/TOML file
// via viper. An empty path, or a file that can't be found, yields
// DefaultCaptureProfile instead of an error — matching config.go's "fall
// back to default (bogus!) config" behaviour rather than failing outright.
func LoadCaptureProfile(path string) (CaptureProfile, error) {
	p := DefaultCaptureProfile()
	if path == "" {
		return p, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return p, nil
	}
	if err := v.UnmarshalKey("capture", &p); err != nil {
		return p, fmt.Errorf("%w: parsing capture profile: %v", herr.ErrConfig, err)
	}
	var channels [4]map[string]string
	if err := v.UnmarshalKey("channels", &channels); err == nil {
		for ch := 0; ch < 4; ch++ {
			if channels[ch] == nil {
				continue
			}
			if m, ok := channels[ch]["mode"]; ok {
				p.Channel[ch].Mode = m
			}
			if pr, ok := channels[ch]["probe"]; ok {
				p.Channel[ch].Probe = pr
			}
			if tr, ok := channels[ch]["trigger"]; ok {
				p.Channel[ch].Trigger = tr
			}
		}
	}
	return p, nil
}

// ApplyDefaults overwrites each field of cfg whose CLI flag is not in
// explicit with p's value (per-channel mode/probe/trigger only when p's
// value is non-empty), so CLI flags the user actually set always win over
// a loaded profile, and a loaded profile always wins over the built-in
// defaults.
func (p CaptureProfile) ApplyDefaults(cfg *Config, explicit map[string]bool) {
	if !explicit["queryrate"] {
		cfg.QueryRate = p.QueryRate
	}
	if !explicit["bits"] {
		cfg.Bits = p.Bits
	}
	if !explicit["duration"] {
		cfg.Duration = p.Duration
	}
	if !explicit["preface"] {
		cfg.Preface = p.Preface
	}
	if !explicit["average"] {
		cfg.Average = p.Average
	}
	if !explicit["channels"] {
		cfg.Channels = p.Channels
	}
	for ch := 0; ch < 4; ch++ {
		name := fmt.Sprintf("ch%d", ch)
		if !explicit[name] && p.Channel[ch].Mode != "" {
			cfg.Channel[ch].Mode = p.Channel[ch].Mode
		}
		if !explicit[name+"probe"] && p.Channel[ch].Probe != "" {
			cfg.Channel[ch].Probe = p.Channel[ch].Probe
		}
		if !explicit[name+"trigger"] && p.Channel[ch].Trigger != "" {
			cfg.Channel[ch].Trigger = p.Channel[ch].Trigger
		}
	}
}
