package framer

// Wire-format constants for spec.md §3 Frame definitions.
const (
	reqHeader  byte = 0x52 // host->device frame header
	scanChar   byte = 0x7e // frame terminator / resync marker
	respHeader byte = 0x60 // device->host response stream header
	bulkHeader byte = 0x61 // device->host bulk sample stream header

	streamHighNibbleMask byte = 0xf0
	streamHighNibble     byte = 0x60
)

// buildRequest encodes a host->device request frame: ten bytes ending in
// the scan terminator, CRC covering the first seven bytes (spec.md §3).
func buildRequest(seq uint8, isWrite byte, addr uint16, val byte) []byte {
	msg := make([]byte, 7, 9)
	msg[0] = reqHeader
	msg[1] = seq & 0x3f
	msg[2] = 0x01
	msg[3] = isWrite
	msg[4] = byte(addr)
	msg[5] = byte(addr >> 8)
	msg[6] = val
	crc := crc16Bytes(msg)
	msg = append(msg, crc[0], crc[1], scanChar)
	return msg
}

// flushSentinel is the 16-byte sequence sent to force the device's receive
// parser to resync: fifteen zero bytes followed by the scan terminator.
func flushSentinel() []byte {
	buf := make([]byte, 16)
	buf[15] = scanChar
	return buf
}
