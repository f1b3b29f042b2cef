package pitch

import (
	"fmt"

	"github.com/cwbudde/algo-vocal/dsp"
	"github.com/cwbudde/algo-vocal/mel"
)

// fcpeFrameRate is the native output rate of the FCPE model in frames/s.
const fcpeFrameRate = 100.0

// FCPE wraps a neural F0 session emitting Hz directly at 100 fps on 16 kHz
// input. Output is realigned to vocoder frames with voiced-aware linear
// interpolation.
type FCPE struct {
	session InferenceSession
}

// NewFCPE wraps an inference session. A nil session means the model file was
// not available; Extract then reports ErrModelMissing.
func NewFCPE(session InferenceSession) *FCPE {
	return &FCPE{session: session}
}

// Extract implements Detector.
func (d *FCPE) Extract(samples []float64, sampleRate int, numFrames int) ([]float64, []bool, error) {
	if d.session == nil {
		f0, voiced := zeroResult(numFrames)
		return f0, voiced, ErrModelMissing
	}
	if len(samples) == 0 || numFrames == 0 {
		f0, voiced := zeroResult(numFrames)
		return f0, voiced, nil
	}

	in := dsp.ResampleLinear(samples, sampleRate, detectorRate)
	rows, err := d.session.Run(in)
	if err != nil {
		f0, voiced := zeroResult(numFrames)
		return f0, voiced, fmt.Errorf("pitch: fcpe inference: %w", err)
	}

	native := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) > 0 && row[0] > 0 {
			native[i] = row[0]
		}
	}

	frameRate := float64(mel.SampleRate) / float64(mel.HopSize)
	f0 := resampleVoicedAware(native, fcpeFrameRate, frameRate, numFrames)
	return f0, voicedMaskFromF0(f0), nil
}
