package regbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbrzusto/haasoscope/framer"
	"github.com/jbrzusto/haasoscope/regmap"
)

// fakeRegs is a minimal Map used to pin down byte-size and little-endian
// ordering behaviour independent of the real device map in regmap.Default.
var fakeRegs = regmap.Map{
	"mod": {
		Address: 0x10,
		Registers: map[string]regmap.Register{
			"byte1": {Offset: 0x00, Size: 1},
			"word2": {Offset: 0x01, Size: 2},
			"long4": {Offset: 0x03, Size: 4},
		},
	},
}

// wireTransport is a fake device endpoint that understands just enough of
// the request frame format (spec.md §3) to play register file: it parses
// each fixed 10-byte request frame, applies the read/write to an in-memory
// byte map, and queues back a matching response frame. It is deliberately
// independent of framer's unexported wire-format helpers, to exercise
// regbus.Bus through a real *framer.Framer end to end rather than stubbing
// the Framer's internals directly.
type wireTransport struct {
	mem      map[uint16]byte
	seq      uint8
	toRead   []byte
}

func wireCRC16(buf []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range buf {
		d := b
		d ^= byte(crc & 0xff)
		d ^= (d & 0x0f) << 4
		crc = (uint16(d)<<8 | (crc >> 8)) ^ uint16(d>>4) ^ uint16(d)<<3
	}
	return crc
}

func (w *wireTransport) Write(buf []byte) error {
	if len(buf) != 10 {
		// The flush sentinel (15 zero bytes + 0x7e) is the only other frame
		// this protocol sends; nothing to do for it.
		return nil
	}
	seq := buf[1] & 0x3f
	isWrite := buf[3]
	addr := uint16(buf[4]) | uint16(buf[5])<<8
	val := buf[6]
	var result byte
	if isWrite != 0 {
		w.mem[addr] = val
		result = val
	} else {
		result = w.mem[addr]
	}
	w.seq = (seq + 1) & 0x3f
	data := []byte{w.seq, result}
	msg := make([]byte, 3, len(data)+6)
	msg[0] = 0x60
	lenSeq := uint16(len(data))<<6 | uint16(w.seq&0x3f)
	msg[1] = byte(lenSeq)
	msg[2] = byte(lenSeq >> 8)
	msg = append(msg, data...)
	crc := wireCRC16(msg)
	msg = append(msg, byte(crc>>8), byte(crc), 0x7e)
	w.toRead = append(w.toRead, msg...)
	return nil
}

func (w *wireTransport) Read(buf []byte) (int, error) {
	if len(w.toRead) == 0 {
		return 0, nil
	}
	n := copy(buf, w.toRead)
	w.toRead = w.toRead[n:]
	return n, nil
}

func (w *wireTransport) Close() error { return nil }

func newMemFramer() (*framer.Framer, *wireTransport) {
	wt := &wireTransport{mem: make(map[uint16]byte)}
	f := framer.New(wt, nil)
	return f, wt
}

func TestWriteRegSplitsLittleEndianAcrossConsecutiveAddresses(t *testing.T) {
	f, wt := newMemFramer()
	b := New(f, fakeRegs)

	require.NoError(t, b.WriteReg("mod", "long4", 0x11223344))
	base, _, ok := fakeRegs.Resolve("mod", "long4")
	require.True(t, ok)
	assert.Equal(t, byte(0x44), wt.mem[base+0])
	assert.Equal(t, byte(0x33), wt.mem[base+1])
	assert.Equal(t, byte(0x22), wt.mem[base+2])
	assert.Equal(t, byte(0x11), wt.mem[base+3])
}

func TestReadRegReassemblesLittleEndian(t *testing.T) {
	f, wt := newMemFramer()
	b := New(f, fakeRegs)

	base, _, ok := fakeRegs.Resolve("mod", "word2")
	require.True(t, ok)
	wt.mem[base+0] = 0xcd
	wt.mem[base+1] = 0xab

	got, err := b.ReadReg("mod", "word2")
	require.NoError(t, err)
	assert.Equal(t, uint32(0xabcd), got)
}

func TestWriteRegSingleByte(t *testing.T) {
	f, wt := newMemFramer()
	b := New(f, fakeRegs)

	require.NoError(t, b.WriteReg("mod", "byte1", 0xff))
	base, _, ok := fakeRegs.Resolve("mod", "byte1")
	require.True(t, ok)
	assert.Equal(t, byte(0xff), wt.mem[base])
}

func TestResolveUnknownRegisterErrors(t *testing.T) {
	f, _ := newMemFramer()
	b := New(f, fakeRegs)

	_, err := b.ReadReg("mod", "nope")
	assert.Error(t, err)

	_, err = b.ReadReg("nomod", "byte1")
	assert.Error(t, err)
}
