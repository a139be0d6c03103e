// Package herr defines the sentinel and wrapped errors used across the
// host-side control and capture engine. Transient link and protocol faults
// are recoverable locally (framer, i2c); configuration faults are fatal and
// meant to bubble up to cmd/hcap for a user-facing message.
package herr

import "errors"

var (
	// ErrTimeout is returned when a register request exceeds its retry
	// budget without receiving a matching response.
	ErrTimeout = errors.New("request timed out")

	// ErrCRC marks an inbound frame that failed CRC verification. The
	// framer logs it as a warning and rescans; it is not returned.
	ErrCRC = errors.New("frame CRC mismatch")

	// ErrI2CFault is returned when an I2C byte transaction exceeds its
	// retry budget after repeated acknowledge-bit mismatches.
	ErrI2CFault = errors.New("i2c transaction fault")

	// ErrConfig marks a fatal, user-visible configuration error: an
	// unknown mode, unsupported bit depth, or malformed trigger
	// expression.
	ErrConfig = errors.New("invalid configuration")

	// ErrCaptureTimeout marks a sample-queue wait loop that exceeded its
	// hard 30s bound without the device reporting completion or early
	// end. The capture engine logs it as a warning and finalises the
	// capture with whatever data arrived; it is not returned.
	ErrCaptureTimeout = errors.New("capture wait loop exceeded bound")
)
