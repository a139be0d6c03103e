package capture

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/jbrzusto/haasoscope/analog"
)

// channelSlot names one captured channel's position within a sample-queue
// entry's interleaved 4-byte-per-channel layout.
type channelSlot struct {
	frontend *analog.Frontend
	channel  int
	offset   int
}

// parseFrameData decodes the accumulated bulk-stream frame data into
// per-channel voltage traces and writes them to e.csvFilename, following
// the exact bit-field layout and frame-slot realignment of spec.md §4.6
// (hcap.py _parse_frame_data). frameSlot is the fifo-position delta
// computed by CaptureFrame, used to determine how many whole 4-byte
// sample-queue entries at the start of the data belong to the previous
// channel group and are skipped.
func (e *Engine) parseFrameData(channels []*analog.Frontend, frameSlot uint32) error {
	interleave := e.interleave
	var cmap []channelSlot
	hdrDesc := make([]string, 4)
	numChannels := 0
	for ch := 0; ch < 4; ch++ {
		hdr := fmt.Sprintf("unused%d", ch)
		if channels[ch].CheckIsCapturing() {
			cmap = append(cmap, channelSlot{frontend: channels[ch], channel: ch, offset: numChannels * 4})
			numChannels++
			if !interleave || ch < 2 {
				hdr = fmt.Sprintf("ch%d", ch)
			}
		}
		hdrDesc[ch] = hdr
	}
	if numChannels == 0 {
		return fmt.Errorf("no channels captured")
	}

	dt := DepositTypes[e.measBits]
	measPerSample := dt.MeasurementsPerSample
	measShift := dt.ShiftBits
	measMask := uint64(e.measMask)
	measMult := 1.0
	if e.doMeasSum {
		measMult = 1. / float64(e.channelDiv)
	}

	totalBytes := 0
	for _, fd := range e.frameDatas {
		totalBytes += len(fd)
	}
	sampleCount := totalBytes / 4
	skipStart := (numChannels - int(frameSlot)%numChannels) % numChannels
	sampleCount -= skipStart
	sampleCount -= sampleCount % numChannels
	stime := float64(e.channelDiv) / e.fpgaFreq
	if interleave {
		stime /= 2.
	}
	totalSampleGroups := sampleCount / numChannels
	totalLines := totalSampleGroups * measPerSample

	e.log.Infof("Total bytes %d (%d sample queue) %d lines (%.9fs)",
		totalBytes, totalBytes/4, totalLines, float64(totalLines)*stime)

	f, err := os.Create(e.csvFilename)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	fmt.Fprintf(w, "; HSoft data capture '%s'\n", time.Now().Format(time.ANSIC))
	fmt.Fprintln(w, ";")
	for _, line := range splitLines(e.Status()) {
		fmt.Fprintf(w, "; %s\n", line)
	}
	for _, ch := range channels {
		for _, line := range splitLines(ch.Status()) {
			fmt.Fprintf(w, "; %s\n", line)
		}
	}
	fmt.Fprintf(w, "time,%s,%s,%s,%s\n", hdrDesc[0], hdrDesc[1], hdrDesc[2], hdrDesc[3])

	var frameData []byte
	framesPos := 0
	lineData := make([][4]float64, measPerSample)
	lineNum, sampleGroupNum := 0, 0
	basePos := skipStart * 4
	for sampleGroupNum < totalSampleGroups {
		if len(frameData) < basePos+4*numChannels {
			if basePos > 0 && len(frameData) > basePos {
				frameData = frameData[basePos:]
				basePos = 0
			}
			frameData = append(frameData, e.frameDatas[framesPos]...)
			framesPos++
			continue
		}
		for _, slot := range cmap {
			spos := basePos + slot.offset
			d := uint64(frameData[spos]) | uint64(frameData[spos+1])<<8 |
				uint64(frameData[spos+2])<<16 | uint64(frameData[spos+3])<<24
			d = d | (d << 32)
			for j := 0; j < measPerSample; j++ {
				shift := uint((uint(j) * measShift) & 0x1f)
				m := (d >> shift) & measMask
				v := slot.frontend.CalcProbeVolt(float64(m) * measMult)
				lineData[measPerSample-1-j][slot.channel] = v
			}
		}
		sampleGroupNum++
		basePos += 4 * numChannels

		if interleave {
			for _, ld := range lineData {
				fmt.Fprintf(w, "%.9f,%.6f,%.6f,0,0\n%.9f,%.6f,%.6f,0,0\n",
					float64(lineNum)*stime, ld[0], ld[1],
					float64(lineNum+1)*stime, ld[2], ld[3])
				lineNum += 2
			}
		} else {
			for _, ld := range lineData {
				fmt.Fprintf(w, "%.9f,%.6f,%.6f,%.6f,%.6f\n",
					float64(lineNum)*stime, ld[0], ld[1], ld[2], ld[3])
				lineNum++
			}
		}
	}
	fmt.Fprintf(w, "; End of capture (%d data lines)\n", lineNum)
	return w.Flush()
}

// splitLines splits a multi-line status string into its constituent
// trimmed lines, dropping any trailing blank line, for prefixing each with
// a "; " comment marker in the CSV header block.
func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			line := trimRight(s[start:i])
			if line != "" {
				lines = append(lines, line)
			}
			start = i + 1
		}
	}
	if start < len(s) {
		line := trimRight(s[start:])
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func trimRight(s string) string {
	end := len(s)
	for end > 0 && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\r') {
		end--
	}
	start := 0
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	return s[start:end]
}
