// Package framer implements the link-layer framing and single-outstanding
// register request/response protocol described in spec.md §4.1: CRC-16
// frame encode/decode, a streaming receive parser tolerant of arbitrary
// byte-arrival grouping, sequence-number tracking with rescan recovery, and
// a bulk-mode read loop used during sample-queue capture.
package framer

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jbrzusto/haasoscope/herr"
	"github.com/jbrzusto/haasoscope/transport"
)

// requestTimeout is the per-request deadline before a flush+resend retry
// (spec.md §4.1 step 3).
const requestTimeout = 250 * time.Millisecond

// maxRequestRetries bounds the previously-unbounded retry loop on request
// timeout (spec.md §9 redesign flag, SPEC_FULL.md §7).
const maxRequestRetries = 250

// pollInterval is the nominal transport polling period. readData does not
// sleep between reads; its pace is set by the transport's own short read
// timeout.
const pollInterval = time.Millisecond

// outstanding describes the single in-flight register request.
type outstanding struct {
	seq     uint8
	isWrite byte
	addr    uint16
	val     byte
}

// Framer owns the byte-stream transport exclusively and multiplexes it
// into named streams by frame header, with a dedicated response-stream
// (0x60) request/response cycle built in.
type Framer struct {
	t   transport.Transport
	log *log.Logger

	txSeq uint8
	rxSeq uint8

	noSeqWarnings bool
	needScan      bool
	buf           []byte

	bulkMode bool

	handlers map[byte]func([]byte)

	cmd       *outstanding
	cmdResult byte
	cmdDone   bool
}

// New constructs a Framer over the given transport. logger may be nil, in
// which case a discarding logger is used.
func New(t transport.Transport, logger *log.Logger) *Framer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	f := &Framer{
		t:        t,
		log:      logger,
		handlers: make(map[byte]func([]byte)),
	}
	f.handlers[respHeader] = f.handleResponse
	return f
}

// RegisterStream installs a callback for a device-originated stream header.
// Passing a nil callback removes any existing registration.
func (f *Framer) RegisterStream(header byte, cb func([]byte)) {
	if cb == nil {
		delete(f.handlers, header)
		return
	}
	f.handlers[header] = cb
}

// SetBulkMode toggles the read loop's throughput optimisation: when true,
// readData keeps pulling from the transport while any non-empty read is
// produced, stopping only on an empty read (spec.md §4.1 "Bulk mode").
func (f *Framer) SetBulkMode(bulk bool) {
	f.bulkMode = bulk
}

// BeginBulkRead and EndBulkRead provide an explicit scoped acquisition of
// bulk mode around a capture, per DESIGN.md / spec.md §9's note that bulk
// mode should not be left as a bare flag flip. Callers should EndBulkRead
// via defer immediately after BeginBulkRead to guarantee release on every
// exit path, including error paths.
func (f *Framer) BeginBulkRead() { f.SetBulkMode(true) }
func (f *Framer) EndBulkRead()   { f.SetBulkMode(false) }

// SuppressSeqWarnings enables or disables sequence-mismatch warnings; the
// first round-trip after Flush necessarily desynchronises tx/rx sequence
// counters and should not warn.
func (f *Framer) SuppressSeqWarnings(suppress bool) {
	f.noSeqWarnings = suppress
}

// Flush sends the flush sentinel (15 zero bytes + terminator) to force the
// device's receive parser into rescan, and clears any outstanding command
// state.
func (f *Framer) Flush() error {
	if err := f.t.Write(flushSentinel()); err != nil {
		return err
	}
	f.cmd = nil
	f.cmdDone = false
	return nil
}

// readData drains the transport and feeds the receive state machine until
// deadline passes or until stopNow reports true (checked right after every
// parse pass, so a response that completes the outstanding command ends
// the wait immediately rather than idling out the rest of the deadline;
// stopNow may be nil). Frames dispatched to stream handlers may themselves
// be the response handler, which can mark an outstanding command complete.
func (f *Framer) readData(deadline time.Time, stopNow func() bool) error {
	chunk := make([]byte, 64*1024)
	for {
		f.parseAvailable()
		if stopNow != nil && stopNow() {
			return nil
		}
		if time.Now().After(deadline) {
			return nil
		}
		n, err := f.t.Read(chunk)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		f.buf = append(f.buf, chunk[:n]...)
		if f.bulkMode {
			// Keep draining while data is arriving; only stop once
			// a read comes back empty.
			for {
				n, err := f.t.Read(chunk)
				if err != nil {
					return err
				}
				if n == 0 {
					break
				}
				f.buf = append(f.buf, chunk[:n]...)
			}
		}
	}
}

// parseAvailable runs the streaming receive state machine over whatever
// bytes are currently buffered, dispatching complete frames to their
// stream handlers and discarding noise when resynchronising.
func (f *Framer) parseAvailable() {
	for {
		if f.needScan {
			idx := indexByte(f.buf, scanChar)
			if idx < 0 {
				if len(f.buf) > 0 {
					f.log.Warnf("Discard %d bytes", len(f.buf))
				}
				f.buf = f.buf[:0]
				return
			}
			f.log.Warnf("Discard %d bytes", idx+1)
			f.buf = f.buf[idx+1:]
			f.needScan = false
			continue
		}
		if len(f.buf) < 3 {
			return
		}
		header := f.buf[0]
		lenSeq := uint16(f.buf[1]) | uint16(f.buf[2])<<8
		dataLen := int(lenSeq >> 6)
		need := dataLen + 6
		if header&streamHighNibbleMask != streamHighNibble {
			f.needScan = true
			continue
		}
		if len(f.buf) < need {
			return
		}
		crcGot := [2]byte{f.buf[dataLen+3], f.buf[dataLen+4]}
		term := f.buf[dataLen+5]
		crcWant := crc16Bytes(f.buf[:dataLen+3])
		if crcGot != crcWant {
			f.log.Warnf("%s: discarding frame and rescanning", herr.ErrCRC)
			f.needScan = true
			continue
		}
		if term != scanChar {
			f.needScan = true
			continue
		}
		seq := uint8(lenSeq & 0x3f)
		if seq != (f.rxSeq+1)&0x3f && !f.noSeqWarnings {
			f.log.Warnf("Receive sequence mismatch (%d vs %d)", seq, f.rxSeq)
		}
		f.rxSeq = seq
		data := make([]byte, dataLen)
		copy(data, f.buf[3:dataLen+3])
		f.buf = f.buf[need:]
		hdlr, ok := f.handlers[header]
		if !ok {
			f.log.Warnf("Message (size %d) with unknown stream id 0x%02x", len(data), header)
			continue
		}
		hdlr(data)
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// handleResponse processes a response-stream (0x60) payload: two bytes
// [err_seq, value] per spec.md §3.
func (f *Framer) handleResponse(data []byte) {
	if len(data) != 2 {
		f.log.Warnf("Unexpected response length %d", len(data))
		return
	}
	errSeq := data[0]
	val := data[1]
	newTxSeq := errSeq & 0x3f
	faulted := errSeq&0x80 != 0

	if f.cmd == nil {
		f.log.Warnf("Unexpected message response (seq %d)", newTxSeq)
		return
	}
	if faulted {
		if !f.noSeqWarnings {
			f.log.Warnf("Send sequence mismatch (seq %d vs %d)", newTxSeq, f.cmd.seq)
		}
		// Rebuild with the device-supplied seq and resend without
		// advancing txSeq (spec.md §4.1 step 4).
		f.cmd.seq = newTxSeq
		msg := buildRequest(f.cmd.seq, f.cmd.isWrite, f.cmd.addr, f.cmd.val)
		if err := f.t.Write(msg); err != nil {
			f.log.Warnf("resend after sequence fault: %v", err)
		}
		return
	}
	if newTxSeq != (f.cmd.seq+1)&0x3f {
		if !f.noSeqWarnings {
			f.log.Warnf("Response to unknown query (seq %d vs %d)", newTxSeq, f.cmd.seq)
		}
		return
	}
	f.txSeq = newTxSeq
	f.cmdResult = val
	f.cmdDone = true
	f.cmd = nil
}

// sendRequest issues a single register transaction and waits for its
// response, flushing and resending on timeout, per spec.md §4.1 steps 1-5.
// isWrite is 0x80 for a write, 0x00 for a read (matching the raw request
// byte the device expects); val is ignored for reads.
func (f *Framer) sendRequest(isWrite byte, addr uint16, val byte) (byte, error) {
	c := &outstanding{seq: f.txSeq, isWrite: isWrite, addr: addr, val: val}
	f.cmd = c
	f.cmdDone = false
	msg := buildRequest(c.seq, c.isWrite, c.addr, c.val)
	if err := f.t.Write(msg); err != nil {
		return 0, err
	}
	deadline := time.Now().Add(requestTimeout)
	for attempt := 0; ; {
		if err := f.readData(deadline, func() bool { return f.cmdDone }); err != nil {
			return 0, err
		}
		if f.cmdDone {
			return f.cmdResult, nil
		}
		attempt++
		if attempt > maxRequestRetries {
			return 0, fmt.Errorf("%w: after %d retries", herr.ErrTimeout, maxRequestRetries)
		}
		f.log.Warn("Timeout in message handler. Retrying.")
		if err := f.Flush(); err != nil {
			return 0, err
		}
		// Flush() clears f.cmd; restore it for the resend and keep
		// the original sequence number (no reassignment — this is a
		// timeout retry, not a sequence-fault resync).
		f.cmd = c
		if err := f.t.Write(msg); err != nil {
			return 0, err
		}
		deadline = time.Now().Add(requestTimeout)
	}
}

// WriteByte issues a single-byte register write transaction.
func (f *Framer) WriteByte(addr uint16, val byte) error {
	_, err := f.sendRequest(0x80, addr, val)
	return err
}

// ReadByte issues a single-byte register read transaction.
func (f *Framer) ReadByte(addr uint16) (byte, error) {
	return f.sendRequest(0x00, addr, 0x00)
}

// Startup performs the boot handshake: flush the connection, then let the
// caller perform its first round-trip (typically a version-register read)
// with sequence warnings suppressed, since the first exchange necessarily
// desynchronises tx/rx counters (spec.md §4.1 "Startup").
func (f *Framer) Startup(firstRoundTrip func() error) error {
	if err := f.Flush(); err != nil {
		return err
	}
	f.SuppressSeqWarnings(true)
	err := firstRoundTrip()
	f.SuppressSeqWarnings(false)
	return err
}

// Drain runs the receive parser for up to d, dispatching any frames that
// arrive to their registered stream handlers without sending anything.
// Used by the sample-queue engine's brief post-arm drain and its
// wait-loop polling.
func (f *Framer) Drain(d time.Duration) error {
	return f.readData(time.Now().Add(d), nil)
}
