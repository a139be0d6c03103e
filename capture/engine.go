package capture

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jbrzusto/haasoscope/analog"
	"github.com/jbrzusto/haasoscope/framer"
	"github.com/jbrzusto/haasoscope/herr"
	"github.com/jbrzusto/haasoscope/regbus"
)

// bulkStreamHeader is the device-originated stream carrying raw sample
// queue words during a capture (spec.md §3, §4.6).
const bulkStreamHeader = 0x61

// Engine drives the FPGA's sample queue: per-channel accumulator setup,
// frame sizing, the bulk-mode acquisition loop, and decode/CSV emission of
// the captured frame data (spec.md §4.6).
type Engine struct {
	bus *regbus.Bus
	fr  *framer.Framer
	log *log.Logger

	fpgaFreq float64

	framePreface float64 // seconds ahead of trigger to report
	frameTime    float64 // seconds of data to report
	channelDiv   int     // FPGA-clock cycles per sample query
	queryRate    float64 // sample-queue entry rate over all captured channels, Hz
	prefaceTime  float64

	interleave bool
	measBits   int
	measMask   uint32
	measBase   uint32
	doMeasSum  bool

	frameDatas  [][]byte
	csvFilename string
}

// NewEngine constructs a sample-queue engine over bus/fr for a device
// running at fpgaFreq Hz, with factory defaults: 2us preface, 100ms
// duration, no channel division, 8 bits per measurement, averaging enabled.
func NewEngine(bus *regbus.Bus, fr *framer.Framer, fpgaFreq float64, logger *log.Logger) *Engine {
	return &Engine{
		bus:          bus,
		fr:           fr,
		log:          logger,
		fpgaFreq:     fpgaFreq,
		framePreface: 0.000002,
		prefaceTime:  0.000002,
		frameTime:    0.100,
		channelDiv:   1,
		queryRate:    fpgaFreq,
		measBits:     8,
		measMask:     0xff,
		doMeasSum:    true,
	}
}

// Configure parses the CLI's capture-shape options (spec.md §6): a query
// rate string ("125MHz"), bits per measurement, a capture duration string
// ("100ms"), a pre-trigger preface string ("2us"), and an averaging flag.
// A query rate of exactly 250MHz enables interleaved double-rate capture,
// halving the effective per-channel rate (spec.md §4.6, hcap.py
// note_cmdline_options).
func (e *Engine) Configure(queryRate string, bits int, duration, preface string, average int) error {
	qrate, err := ParseHz(queryRate)
	if err != nil {
		return err
	}
	if qrate == 250000000. {
		e.interleave = true
		qrate /= 2.
	}
	if _, ok := DepositTypes[bits]; !ok {
		return fmt.Errorf("%w: unsupported bit depth %d (available: %v)", herr.ErrConfig, bits, SortedBitDepths())
	}
	e.measBits = bits
	e.doMeasSum = average != 0
	div := int(e.fpgaFreq / qrate)
	if div < 1 {
		div = 1
	}
	if div > 0x100 {
		div = 0x100
	}
	e.channelDiv = div
	ftime, err := ParseTime(duration)
	if err != nil {
		return err
	}
	e.frameTime = ftime
	ptime, err := ParseTime(preface)
	if err != nil {
		return err
	}
	e.prefaceTime = ptime
	return nil
}

// IsInterleaving reports whether the engine is configured for interleaved
// double-rate capture.
func (e *Engine) IsInterleaving() bool { return e.interleave }

// Status returns a human-readable summary of the engine's current frame
// configuration, matching the fields reported in the CSV header block
// (spec.md §6, hcap.py get_status).
func (e *Engine) Status() string {
	return fmt.Sprintf(
		"Hz=%.0f interleave=%v preface=%.6fs duration=%.6f\n"+
			"  meas_sum=%v meas_bits=%d meas_mask=%x meas_base=%d\n",
		e.fpgaFreq/float64(e.channelDiv), e.interleave,
		e.prefaceTime, e.frameTime,
		e.doMeasSum, e.measBits, e.measMask, e.measBase)
}

// calcMeasMask computes the measurement bitmask and rounding base applied
// to each deposited measurement, widening the mask to absorb the extra
// headroom bits a channel-divided accumulator sum needs (spec.md §4.6,
// hcap.py _calc_meas_mask). When channel_div is 1 (no averaging possible),
// the configured bit depth is clamped to 8.
func (e *Engine) calcMeasMask() {
	measBits := e.measBits
	if e.channelDiv == 1 {
		if measBits > 8 {
			measBits = 8
		}
		e.measBits = measBits
	}
	measMask := uint32(1<<uint(measBits)) - 1
	measBase := uint32(0)
	maxVal := uint32(0xff)
	if e.doMeasSum {
		maxVal *= uint32(e.channelDiv)
	}
	maxValBits := bitLength(maxVal)
	if maxValBits > measBits {
		needShift := uint(maxValBits - measBits)
		measMask <<= needShift
		measBase = 1 << (needShift - 1)
	}
	e.measMask = measMask
	e.measBase = measBase
}

func bitLength(v uint32) int {
	n := 0
	for v != 0 {
		n++
		v >>= 1
	}
	return n
}

func (e *Engine) noteFrameData(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	e.frameDatas = append(e.frameDatas, cp)
}

// CaptureFrame runs one full capture cycle against the given channel
// frontends: arming each channel's accumulator, sizing the frame, driving
// the bulk-mode acquisition loop until completion or the 30-second wait
// budget expires, and finally decoding and writing the CSV file (spec.md
// §4.6, hcap.py capture_frame).
func (e *Engine) CaptureFrame(channels []*analog.Frontend, csvFilename string, forceTrigger bool) error {
	e.csvFilename = csvFilename
	e.frameDatas = e.frameDatas[:0]
	e.calcMeasMask()
	e.log.Info(e.Status())

	dt := DepositTypes[e.measBits]
	numChannels := 0
	for ch := 0; ch < 4; ch++ {
		isCapturing := channels[ch].CheckIsCapturing()
		if isCapturing {
			numChannels++
		}
		chname := fmt.Sprintf("ch%d", ch)
		if err := e.bus.WriteReg(chname, "status", 0x00); err != nil {
			return err
		}
		if err := e.bus.WriteReg(chname, "acc_cnt", uint32(e.channelDiv-1)); err != nil {
			return err
		}
		if err := e.bus.WriteReg(chname, "sum_mask", e.measMask); err != nil {
			return err
		}
		if err := e.bus.WriteReg(chname, "initial_sum", e.measBase); err != nil {
			return err
		}
		status := boolBit(isCapturing) | (boolBit(e.doMeasSum) << 1) | (uint32(dt.Code) << 4)
		if err := e.bus.WriteReg(chname, "status", status); err != nil {
			return err
		}
	}
	if numChannels == 0 {
		return fmt.Errorf("%w: no channel selected for capture", herr.ErrConfig)
	}

	qrate := e.fpgaFreq * float64(numChannels) / (float64(dt.MeasurementsPerSample) * float64(e.channelDiv))
	e.queryRate = qrate

	frameSize := clampU32(int64(e.frameTime*qrate), 16, 0xffffffff)
	if err := e.bus.WriteReg("sq", "frame_size", frameSize); err != nil {
		return err
	}
	framePrefix := clampU32(int64(e.prefaceTime*qrate), 8, 0x1f00)
	if err := e.bus.WriteReg("sq", "frame_preface", framePrefix); err != nil {
		return err
	}

	e.log.Info(" START SAMPLING")
	if err := e.bus.WriteReg("sq", "status", 0x81); err != nil {
		return err
	}
	startPos, err := e.bus.ReadReg("sq", "reg_fifo_position")
	if err != nil {
		return err
	}

	e.fr.RegisterStream(bulkStreamHeader, e.noteFrameData)
	defer e.fr.RegisterStream(bulkStreamHeader, nil)
	if err := e.fr.Drain(20 * time.Millisecond); err != nil {
		return err
	}

	e.fr.BeginBulkRead()
	defer e.fr.EndBulkRead()
	e.log.Info(" START CAPTURE")
	startTime := time.Now()
	if forceTrigger {
		err = e.bus.WriteReg("sq", "status", 0x07)
	} else {
		err = e.bus.WriteReg("sq", "status", 0x03)
	}
	if err != nil {
		return err
	}

	completed := false
	for i := 0; i < 3000; i++ {
		deadline := startTime.Add(time.Duration(i+1) * 10 * time.Millisecond)
		if err := e.fr.Drain(time.Until(deadline)); err != nil {
			return err
		}
		sts, err := e.bus.ReadReg("sq", "status")
		if err != nil {
			return err
		}
		if sts&0x0a == 0x00 {
			if sts&0x01 != 0 {
				e.log.Info(" CAPTURE COMPLETE")
			} else {
				e.log.Warnf(" CAPTURE EARLY END (t=%.3f)", time.Since(startTime).Seconds())
			}
			completed = true
			break
		}
	}
	if !completed {
		e.log.Warnf("%v after %.3fs, finalising with whatever arrived", herr.ErrCaptureTimeout, time.Since(startTime).Seconds())
	}

	framePos, err := e.bus.ReadReg("sq", "reg_fifo_position")
	if err != nil {
		return err
	}
	e.log.Info(" FINALIZE CAPTURE")
	e.fr.EndBulkRead()
	if err := e.bus.WriteReg("sq", "status", 0x00); err != nil {
		return err
	}

	frameDiff := int64(framePos) - int64(startPos) - int64(framePrefix) - 1
	frameSlot := uint32(frameDiff & 0xffffffff)
	return e.parseFrameData(channels, frameSlot)
}

// Setup resets the sample-queue status register to idle.
func (e *Engine) Setup() error {
	return e.bus.WriteReg("sq", "status", 0x00)
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func clampU32(v int64, lo, hi int64) uint32 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return uint32(v)
}
