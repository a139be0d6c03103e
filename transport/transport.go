// Package transport owns the byte-stream connection to the device. It
// presents one capability interface to the framer and two concrete
// backends (UART and hi-speed USB synchronous FIFO) selected at
// construction (see DESIGN.md, "duck-typed transport").
package transport

// Transport is the byte-stream abstraction the framer drives. Read must
// not block indefinitely: backends implement a short timeout and return
// (0, nil) when nothing is available, rather than blocking until data
// arrives.
type Transport interface {
	// Write sends bytes to the device. It blocks until the full buffer
	// has been accepted by the underlying link.
	Write(buf []byte) error

	// Read fills buf with any bytes currently available, returning the
	// count read. It returns (0, nil) on a read timeout with no data
	// available; it never blocks longer than the backend's configured
	// timeout.
	Read(buf []byte) (int, error)

	// Close releases the underlying device handle.
	Close() error
}
