package analog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeVoltRoundTrip(t *testing.T) {
	cases := []float64{0, 0.5, 1.0, 2.0, 2.0485, 3.0, 3.3}
	for _, v := range cases {
		code := encodeVolt(v)
		got := decodeVolt(code)
		assert.InDeltaf(t, v, got, 0.002, "round-trip for %.4fV", v)
	}
}

func TestEncodeVoltClampsToRange(t *testing.T) {
	assert.Equal(t, encodeVolt(0), encodeVolt(-1))
	assert.Equal(t, encodeVolt(3.3), encodeVolt(10))
}

func TestEncodeVoltSwitchesGainBitAtThreshold(t *testing.T) {
	below := encodeVolt(2.0484)
	at := encodeVolt(2.0485)
	assert.Zero(t, below&(1<<12), "below 2.0485V should use the low-range reference")
	assert.NotZero(t, at&(1<<12), "at/above 2.0485V should use the high-range reference")
}

type recordingI2C struct {
	addr  byte
	write []byte
}

func (r *recordingI2C) Send(addr byte, write []byte, readCount int) ([]byte, error) {
	r.addr = addr
	r.write = append([]byte(nil), write...)
	return nil, nil
}

func TestSetChannelEncodesChannelSelectAndValue(t *testing.T) {
	rec := &recordingI2C{}
	d := NewDAC(rec, 0x60)

	require.NoError(t, d.SetChannel(2, 1.5))
	assert.Equal(t, byte(0x60), rec.addr)
	require.Len(t, rec.write, 3)
	assert.Equal(t, byte(0x40|(2<<1)), rec.write[0], "command byte selects channel 2")

	value := encodeVolt(1.5)
	assert.Equal(t, byte((value>>8)&0x1f)|0x80, rec.write[1])
	assert.Equal(t, byte(value), rec.write[2])
}

func TestCalcVoltMatchesSetChannelQuantisation(t *testing.T) {
	d := NewDAC(&recordingI2C{}, 0x60)
	assert.Equal(t, decodeVolt(encodeVolt(1.234)), d.CalcVolt(1.234))
}
