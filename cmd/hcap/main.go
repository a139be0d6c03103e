// Command hcap connects to a Haasoscope-style four-channel digitizer over
// UART or hi-speed USB, configures its analog front end and sample queue
// per the command line, captures one frame, and writes it to a CSV file
// (spec.md §1, §6).
//
// Usage:
//
//	hcap [options] <serialdevice> <output_csv_file>
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/gousb"
	"github.com/spf13/pflag"

	"github.com/jbrzusto/haasoscope/analog"
	"github.com/jbrzusto/haasoscope/orchestrator"
	"github.com/jbrzusto/haasoscope/transport"
)

// usbVendorID and usbProductID identify the FT232H-family hi-speed FIFO
// module the --usbhi backend expects (FTDI's published VID, and the
// PID FTDI's EEPROM configurator assigns FT232H parts by default).
const (
	usbVendorID  = 0x0403
	usbProductID = 0x6014

	usbInterfaceNum = 0
	usbInEndpoint   = 1
	usbOutEndpoint  = 1
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := log.New(os.Stderr)

	fs := pflag.NewFlagSet("hcap", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: hcap [options] <serialdevice> <output_csv_file>")
		fs.PrintDefaults()
	}
	opts := registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}

	if opts.listUSB {
		listUSBDevices(logger)
		return 0
	}

	rest := fs.Args()
	if len(rest) != 2 {
		fs.Usage()
		fmt.Fprintln(os.Stderr, "error: must specify serialdevice and output_csv_file")
		return 2
	}
	serialDevice, csvFilename := rest[0], rest[1]

	cal, err := analog.LoadCalibration(opts.calibration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading calibration: %v\n", err)
		return 1
	}

	profile, err := orchestrator.LoadCaptureProfile(opts.profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading capture profile: %v\n", err)
		return 1
	}
	explicit := map[string]bool{}
	fs.Visit(func(f *pflag.Flag) { explicit[f.Name] = true })
	cfg := opts.toOrchestratorConfig()
	profile.ApplyDefaults(&cfg, explicit)

	t, err := openTransport(opts, serialDevice)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening transport: %v\n", err)
		return 1
	}
	defer t.Close()

	o := orchestrator.New(t, cal, logger)
	if err := o.Configure(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	runErr := o.Run(csvFilename)
	if cleanupErr := o.Cleanup(); cleanupErr != nil {
		logger.Warnf("cleanup: %v", cleanupErr)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		return 1
	}
	return 0
}

// openTransport opens either the UART or hi-speed USB backend per --usbhi.
func openTransport(opts *cliOptions, serialDevice string) (transport.Transport, error) {
	if opts.usbHi {
		return transport.OpenUSBFIFO(gousb.ID(usbVendorID), gousb.ID(usbProductID), usbInterfaceNum, usbInEndpoint, usbOutEndpoint)
	}
	return transport.OpenUART(serialDevice)
}

// listUSBDevices enumerates attached hi-speed FIFO devices, the way the
// original's list_ft232h enumerates FTDI serial numbers (spec.md §6
// --listusb).
func listUSBDevices(logger *log.Logger) {
	found, err := transport.ListUSB(gousb.ID(usbVendorID), gousb.ID(usbProductID))
	if err != nil {
		logger.Warnf("listing USB devices: %v", err)
		return
	}
	if len(found) == 0 {
		fmt.Println("No hi-speed ft232h devices found.")
		return
	}
	fmt.Println("Found the following hi-speed usb devices:")
	for _, id := range found {
		fmt.Printf("  vendor=%#04x product=%#04x\n", uint16(id.Vendor), uint16(id.Product))
	}
}
