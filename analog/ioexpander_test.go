package analog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingIOExpI2C struct {
	sends [][]byte
	rxr   []byte
}

func (r *recordingIOExpI2C) Send(addr byte, write []byte, readCount int) ([]byte, error) {
	r.sends = append(r.sends, append([]byte(nil), write...))
	if readCount > 0 {
		return r.rxr, nil
	}
	return nil, nil
}

func TestSetOutputSetsDirectionAndLatch(t *testing.T) {
	pins := map[string]uint8{"led": 3}
	rec := &recordingIOExpI2C{}
	e := NewIOExpander(rec, 0x20, pins)

	e.SetOutput("led", true)
	assert.Zero(t, e.iodir&(1<<3), "output pin must be cleared from the all-input reset default")
	assert.NotZero(t, e.iolat&(1<<3))

	e.SetOutput("led", false)
	assert.Zero(t, e.iolat&(1<<3))
}

func TestSetInputSetsDirectionAndPullup(t *testing.T) {
	pins := map[string]uint8{"sw": 5}
	rec := &recordingIOExpI2C{}
	e := NewIOExpander(rec, 0x20, pins)

	e.SetInput("sw", true)
	assert.NotZero(t, e.iodir&(1<<5))
	assert.NotZero(t, e.gppu&(1<<5))

	e.SetInput("sw", false)
	assert.Zero(t, e.gppu&(1<<5))
}

func TestFlushWritesLatchThenDirectionThenPullupInOrder(t *testing.T) {
	pins := map[string]uint8{"a": 0}
	rec := &recordingIOExpI2C{}
	e := NewIOExpander(rec, 0x20, pins)
	e.SetOutput("a", true)

	require.NoError(t, e.Flush())
	require.Len(t, rec.sends, 3)
	assert.Equal(t, byte(0x14), rec.sends[0][0], "iolat register first")
	assert.Equal(t, byte(0x00), rec.sends[1][0], "iodir register second")
	assert.Equal(t, byte(0x0c), rec.sends[2][0], "gppu register third")
}

func TestReadPinsPopulatesInput(t *testing.T) {
	pins := map[string]uint8{"sw": 4}
	rec := &recordingIOExpI2C{rxr: []byte{0x10, 0x00}}
	e := NewIOExpander(rec, 0x20, pins)

	require.NoError(t, e.ReadPins())
	assert.True(t, e.Input("sw"))
}
