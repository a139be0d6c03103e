package transport

import (
	"context"
	"time"

	"github.com/google/gousb"
)

// ReadChunk is the size of a single bulk-IN transfer requested from the
// device's synchronous FIFO interface.
const ReadChunk = 64 * 1024

// usbReadTimeout bounds a single bulk-IN transfer the way the UART
// backend's ReadTimeout bounds a serial read; an idle FIFO returns (0, nil)
// rather than blocking the framer indefinitely.
const usbReadTimeout = time.Millisecond

// USBFIFO is a Transport backed by a hi-speed USB synchronous FIFO
// interface (the hardware family exposed by chips such as the FT232H,
// operated here through a generic USB bulk endpoint pair rather than a
// vendor-specific driver).
type USBFIFO struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	intf   *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	done   func()
	intfDone func()
}

// USBIdentity names a candidate device by USB vendor/product ID, the way
// ListUSB reports candidates before a specific one is opened.
type USBIdentity struct {
	Vendor      gousb.ID
	Product     gousb.ID
	Description string
	Serial      string
}

// ListUSB enumerates attached hi-speed FIFO devices without opening them.
// It reports every device with the given vendor/product ID in enumeration
// order. It does not read product strings, so Haasoscope devices are not
// told apart from other ft232h-family devices, and Description and Serial
// are left empty.
func ListUSB(vendor, product gousb.ID) ([]USBIdentity, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var found []USBIdentity
	_, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == vendor && desc.Product == product {
			found = append(found, USBIdentity{
				Vendor:  desc.Vendor,
				Product: desc.Product,
			})
		}
		// Never actually open from the scan predicate; OpenDevices
		// closes anything for which this returns false.
		return false
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// OpenUSBFIFO opens the device with the given vendor/product ID, claims its
// bulk interface, and configures it for streaming reads/writes on the
// synchronous FIFO endpoint pair.
func OpenUSBFIFO(vendor, product gousb.ID, intfNum, inEP, outEP int) (*USBFIFO, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(vendor, product)
	if err != nil {
		ctx.Close()
		return nil, err
	}
	if dev == nil {
		ctx.Close()
		return nil, errNoUSBDevice
	}
	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	intf, err := cfg.Interface(intfNum, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, err
	}
	in, err := intf.InEndpoint(inEP)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, err
	}
	out, err := intf.OutEndpoint(outEP)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, err
	}
	return &USBFIFO{
		ctx:      ctx,
		dev:      dev,
		intf:     intf,
		in:       in,
		out:      out,
		done:     func() { cfg.Close(); dev.Close(); ctx.Close() },
		intfDone: intf.Close,
	}, nil
}

func (u *USBFIFO) Write(buf []byte) error {
	_, err := u.out.Write(buf)
	return err
}

func (u *USBFIFO) Read(buf []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), usbReadTimeout)
	defer cancel()
	n, err := u.in.ReadContext(ctx, buf)
	if err != nil {
		// A transfer timeout on an idle FIFO is a normal "nothing
		// available yet" condition for the framer, not a fatal error.
		if n == 0 {
			return 0, nil
		}
		return n, err
	}
	return n, nil
}

func (u *USBFIFO) Close() error {
	u.intfDone()
	u.done()
	return nil
}

var errNoUSBDevice = errUSBNotFound{}

type errUSBNotFound struct{}

func (errUSBNotFound) Error() string { return "no matching USB device found" }
