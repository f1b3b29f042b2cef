package pitch

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vocal/dsp"
	"github.com/cwbudde/algo-vocal/mel"
)

const (
	// rmvpeClasses is the size of the pitch posteriorgram.
	rmvpeClasses = 360
	// rmvpeFrameRate is the native output rate in frames/s (16 kHz, hop 160).
	rmvpeFrameRate = 100.0
	// rmvpeThreshold is the voicing confidence floor on the posterior peak.
	rmvpeThreshold = 0.03
	// rmvpeDecodeRadius is the half-width of the local averaging window
	// around the argmax class.
	rmvpeDecodeRadius = 4
	// rmvpeCentBase aligns class 0 with ~32.7 Hz (C1); class i covers
	// rmvpeCentBase + 20*i cents above 10 Hz.
	rmvpeCentBase = 1997.3794084376191
)

// RMVPE wraps a neural session emitting a 360-class pitch posteriorgram that
// is decoded to Hz with a thresholded local weighted average.
type RMVPE struct {
	session InferenceSession
	cents   []float64
}

// NewRMVPE wraps an inference session. centTable may override the default
// class-to-cent mapping (an auxiliary model tensor); pass nil for the
// built-in table.
func NewRMVPE(session InferenceSession, centTable []float64) *RMVPE {
	cents := centTable
	if len(cents) != rmvpeClasses {
		cents = make([]float64, rmvpeClasses)
		for i := range cents {
			cents[i] = rmvpeCentBase + 20.0*float64(i)
		}
	}
	return &RMVPE{session: session, cents: cents}
}

// Extract implements Detector.
func (d *RMVPE) Extract(samples []float64, sampleRate int, numFrames int) ([]float64, []bool, error) {
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
		return f0, voiced, fmt.Errorf("pitch: rmvpe inference: %w", err)
	}

	native := make([]float64, len(rows))
	for i, row := range rows {
		native[i] = d.decodeFrame(row)
	}

	frameRate := float64(mel.SampleRate) / float64(mel.HopSize)
	f0 := resampleVoicedAware(native, rmvpeFrameRate, frameRate, numFrames)
	return f0, voicedMaskFromF0(f0), nil
}

// decodeFrame turns one posterior row into Hz (0 = unvoiced).
func (d *RMVPE) decodeFrame(post []float64) float64 {
	if len(post) != rmvpeClasses {
		return 0
	}
	peak := 0
	for i := 1; i < rmvpeClasses; i++ {
		if post[i] > post[peak] {
			peak = i
		}
	}
	if post[peak] < rmvpeThreshold {
		return 0
	}

	lo := peak - rmvpeDecodeRadius
	hi := peak + rmvpeDecodeRadius
	if lo < 0 {
		lo = 0
	}
	if hi > rmvpeClasses-1 {
		hi = rmvpeClasses - 1
	}
	var wsum, csum float64
	for i := lo; i <= hi; i++ {
		wsum += post[i]
		csum += post[i] * d.cents[i]
	}
	if wsum <= 0 {
		return 0
	}
	cents := csum / wsum
	return 10.0 * math.Exp2(cents/1200.0)
}
