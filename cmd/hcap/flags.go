package main

import (
	"github.com/spf13/pflag"

	"github.com/jbrzusto/haasoscope/orchestrator"
)

// cliOptions mirrors hcap.py's optparse surface: global sample-queue
// options, per-channel mode/probe/trigger options, and the USB transport
// selectors (spec.md §6).
type cliOptions struct {
	queryRate string
	bits      int
	duration  string
	preface   string
	average   int
	channels  string

	channel [4]struct {
		mode    string
		probe   string
		trigger string
	}

	usbHi     bool
	listUSB   bool
	calibration string
	profile     string
}

// registerFlags installs every CLI flag named in spec.md §6 plus the
// --calibration/--profile additions from SPEC_FULL.md's ambient config
// section, using pflag's GNU-style long-option parsing.
func registerFlags(fs *pflag.FlagSet) *cliOptions {
	o := &cliOptions{}
	fs.StringVarP(&o.queryRate, "queryrate", "q", "125MHz", "Sample query rate")
	fs.IntVarP(&o.bits, "bits", "b", 8, "Number of bits per measurement")
	fs.StringVar(&o.duration, "duration", "100ms", "Duration of data to report")
	fs.StringVar(&o.preface, "preface", "2us", "Time prior to trigger to report")
	fs.IntVar(&o.average, "average", 1, "Average measurements at lower query rates")
	fs.StringVarP(&o.channels, "channels", "c", "ch0,ch1,ch2,ch3", "Channels to capture")

	for ch := 0; ch < 4; ch++ {
		c := &o.channel[ch]
		fs.StringVar(&c.mode, chFlagName(ch), "dc1x", chHelp(ch)+"mode")
		fs.StringVar(&c.probe, chFlagName(ch)+"probe", "", chHelp(ch)+"probe type")
		fs.StringVar(&c.trigger, chFlagName(ch)+"trigger", "", chHelp(ch)+"set trigger")
	}

	fs.BoolVarP(&o.usbHi, "usbhi", "u", false, "use hi-speed usb module")
	fs.BoolVarP(&o.listUSB, "listusb", "l", false, "list hi-speed usb modules")
	fs.StringVar(&o.calibration, "calibration", "", "probe calibration file (YAML/TOML)")
	fs.StringVar(&o.profile, "profile", "", "capture profile file (YAML/TOML)")
	return o
}

func chFlagName(ch int) string {
	return "ch" + string(rune('0'+ch))
}

func chHelp(ch int) string {
	return "Channel " + string(rune('0'+ch)) + " "
}

// toOrchestratorConfig converts the parsed CLI options into an
// orchestrator.Config.
func (o *cliOptions) toOrchestratorConfig() orchestrator.Config {
	cfg := orchestrator.Config{
		QueryRate: o.queryRate,
		Bits:      o.bits,
		Duration:  o.duration,
		Preface:   o.preface,
		Average:   o.average,
		Channels:  o.channels,
	}
	for ch := 0; ch < 4; ch++ {
		cfg.Channel[ch] = orchestrator.ChannelConfig{
			Mode:    o.channel[ch].mode,
			Probe:   o.channel[ch].probe,
			Trigger: o.channel[ch].trigger,
		}
	}
	return cfg
}
