package adcspi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbrzusto/haasoscope/framer"
	"github.com/jbrzusto/haasoscope/regbus"
	"github.com/jbrzusto/haasoscope/regmap"
)

// readyTransport is a fixed-frame fake device that always reports the
// "state"/"status"-style readiness register as zero (not busy), so Master's
// waitReady polling resolves on the first read.
type readyTransport struct {
	mem       map[uint16]byte
	seq       uint8
	toRead    []byte
	stateAddr uint16
}

func crc16For(buf []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range buf {
		d := b
		d ^= byte(crc & 0xff)
		d ^= (d & 0x0f) << 4
		crc = (uint16(d)<<8 | (crc >> 8)) ^ uint16(d>>4) ^ uint16(d)<<3
	}
	return crc
}

func (rt *readyTransport) Write(buf []byte) error {
	if len(buf) != 10 {
		return nil
	}
	seq := buf[1] & 0x3f
	isWrite := buf[3]
	addr := uint16(buf[4]) | uint16(buf[5])<<8
	val := buf[6]
	var result byte
	if isWrite != 0 {
		rt.mem[addr] = val
		result = val
	} else if addr == rt.stateAddr {
		// The real device self-clears its busy bit once the SPI
		// transfer completes; the fake reports immediately ready on
		// every read rather than tracking real transfer latency.
		result = 0
	} else {
		result = rt.mem[addr]
	}
	rt.seq = (seq + 1) & 0x3f
	data := []byte{rt.seq, result}
	msg := make([]byte, 3, len(data)+6)
	msg[0] = 0x60
	lenSeq := uint16(len(data))<<6 | uint16(rt.seq&0x3f)
	msg[1] = byte(lenSeq)
	msg[2] = byte(lenSeq >> 8)
	msg = append(msg, data...)
	crc := crc16For(msg)
	msg = append(msg, byte(crc>>8), byte(crc), 0x7e)
	rt.toRead = append(rt.toRead, msg...)
	return nil
}

func (rt *readyTransport) Read(buf []byte) (int, error) {
	if len(rt.toRead) == 0 {
		return 0, nil
	}
	n := copy(buf, rt.toRead)
	rt.toRead = rt.toRead[n:]
	return n, nil
}

func (rt *readyTransport) Close() error { return nil }

func newReadyBus() (*regbus.Bus, *readyTransport) {
	stateAddr, _, _ := regmap.Default.Resolve("adcspi", "state")
	rt := &readyTransport{mem: make(map[uint16]byte), stateAddr: stateAddr}
	f := framer.New(rt, nil)
	return regbus.New(f, regmap.Default), rt
}

func TestSendProgramsRegAndValAndPulsesState(t *testing.T) {
	bus, rt := newReadyBus()
	m := New(bus)

	require.NoError(t, m.Send(0x05, 0xaa))

	data0Addr, _, _ := regmap.Default.Resolve("adcspi", "data0")
	data1Addr, _, _ := regmap.Default.Resolve("adcspi", "data1")
	assert.Equal(t, byte(0x05), rt.mem[data0Addr])
	assert.Equal(t, byte(0xaa), rt.mem[data1Addr])
}

func TestSendMasksRegTo7Bits(t *testing.T) {
	bus, rt := newReadyBus()
	m := New(bus)

	require.NoError(t, m.Send(0xff, 0x00))
	data0Addr, _, _ := regmap.Default.Resolve("adcspi", "data0")
	assert.Equal(t, byte(0x7f), rt.mem[data0Addr])
}

func TestSetupWritesFullPowerUpSequence(t *testing.T) {
	bus, rt := newReadyBus()
	m := New(bus)

	require.NoError(t, m.Setup())
	data0Addr, _, _ := regmap.Default.Resolve("adcspi", "data0")
	data1Addr, _, _ := regmap.Default.Resolve("adcspi", "data1")
	last := adcSetupSequence[len(adcSetupSequence)-1]
	assert.Equal(t, last[0]&0x7f, rt.mem[data0Addr])
	assert.Equal(t, last[1], rt.mem[data1Addr])
}
