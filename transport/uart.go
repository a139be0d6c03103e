package transport

import (
	"time"

	"github.com/tarm/serial"
)

// BaudRate is the fixed UART baud rate the device's serial link runs at.
const BaudRate = 1500000

// readTimeout is the short, non-blocking-ish read timeout used on the UART
// backend; it bounds how long a single Read call can take when no bytes are
// currently available.
const readTimeout = time.Millisecond

// UART is a Transport backed by a real serial port.
type UART struct {
	port *serial.Port
}

// OpenUART opens the named serial device at the device's fixed baud rate.
func OpenUART(name string) (*UART, error) {
	cfg := &serial.Config{
		Name:        name,
		Baud:        BaudRate,
		ReadTimeout: readTimeout,
	}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	return &UART{port: port}, nil
}

func (u *UART) Write(buf []byte) error {
	_, err := u.port.Write(buf)
	return err
}

func (u *UART) Read(buf []byte) (int, error) {
	n, err := u.port.Read(buf)
	if err != nil {
		// tarm/serial returns io.EOF-like errors on a plain read
		// timeout with no data; the framer treats "nothing read" as
		// a normal, retryable condition rather than a fatal error.
		if n == 0 {
			return 0, nil
		}
		return n, err
	}
	return n, nil
}

func (u *UART) Close() error {
	return u.port.Close()
}
