// Package pitch estimates per-frame fundamental frequency and voicing for a
// monophonic vocal track. Three interchangeable detectors are provided: a
// CPU autocorrelation fallback (YIN) and two session-backed neural variants
// (FCPE, RMVPE). All detectors emit series aligned to the vocoder frame rate.
package pitch

import (
	"errors"
	"fmt"
	"math"
)

// Method selects an F0 detector variant.
type Method int

const (
	MethodYIN Method = iota
	MethodFCPE
	MethodRMVPE
)

func (m Method) String() string {
	switch m {
	case MethodYIN:
		return "yin"
	case MethodFCPE:
		return "fcpe"
	case MethodRMVPE:
		return "rmvpe"
	default:
		return "unknown"
	}
}

// ParseMethod maps a config string to a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "yin":
		return MethodYIN, nil
	case "fcpe":
		return MethodFCPE, nil
	case "rmvpe":
		return MethodRMVPE, nil
	default:
		return MethodYIN, fmt.Errorf("pitch: unknown detector %q", s)
	}
}

// ErrModelMissing indicates a session-backed detector has no usable model.
// Callers must treat it as a fatal analysis error (or fall back to YIN),
// never as silence.
var ErrModelMissing = errors.New("pitch: model not loaded")

// detectorRate is the input sample rate the neural detectors require.
const detectorRate = 16000

// Detector estimates F0 and voicing at the vocoder frame rate.
//
// Extract analyzes samples recorded at sampleRate and returns exactly
// numFrames values of f0 in Hz (0 = unvoiced) and a voicing mask with
// voiced[i] implying f0[i] > 0.
type Detector interface {
	Extract(samples []float64, sampleRate int, numFrames int) (f0 []float64, voiced []bool, err error)
}

// InferenceSession abstracts the neural runtime behind the process boundary.
// FCPE sessions return one row per native frame with a single Hz value;
// RMVPE sessions return one 360-class posterior row per native frame.
type InferenceSession interface {
	Run(samples []float64) ([][]float64, error)
	Close() error
}

// voicedMaskFromF0 is the fallback mask when a variant has no explicit one.
func voicedMaskFromF0(f0 []float64) []bool {
	mask := make([]bool, len(f0))
	for i, v := range f0 {
		mask[i] = v > 0
	}
	return mask
}

// zeroResult returns the all-unvoiced result used when a model is absent.
func zeroResult(numFrames int) ([]float64, []bool) {
	return make([]float64, numFrames), make([]bool, numFrames)
}

// resampleVoicedAware maps a native-rate f0 series onto numFrames target
// frames. Interpolation is linear but only inside voiced-to-voiced pairs;
// a pair spanning an unvoiced frame yields the voiced endpoint, and an
// all-unvoiced neighborhood yields 0. This prevents phantom pitches across
// syllable boundaries.
func resampleVoicedAware(src []float64, srcRate, dstRate float64, numFrames int) []float64 {
	out := make([]float64, numFrames)
	if len(src) == 0 || srcRate <= 0 || dstRate <= 0 {
		return out
	}
	ratio := srcRate / dstRate
	for i := 0; i < numFrames; i++ {
		pos := float64(i) * ratio
		i0 := int(pos)
		if i0 >= len(src)-1 {
			out[i] = src[len(src)-1]
			continue
		}
		i1 := i0 + 1
		v0, v1 := src[i0], src[i1]
		switch {
		case v0 > 0 && v1 > 0:
			frac := pos - float64(i0)
			out[i] = v0 + frac*(v1-v0)
		case v0 > 0:
			out[i] = v0
		case v1 > 0:
			out[i] = v1
		default:
			out[i] = 0
		}
	}
	return out
}

// InterpolateThroughUV returns a continuous curve where unvoiced runs are
// filled by log-linear interpolation between the surrounding voiced frames.
// Leading and trailing unvoiced runs hold the nearest voiced value. An
// all-unvoiced input is returned unchanged.
func InterpolateThroughUV(f0 []float64, voiced []bool) []float64 {
	out := make([]float64, len(f0))
	copy(out, f0)

	first := -1
	for i, v := range voiced {
		if v && f0[i] > 0 {
			first = i
			break
		}
	}
	if first < 0 {
		return out
	}
	last := first
	for i := len(f0) - 1; i > first; i-- {
		if voiced[i] && f0[i] > 0 {
			last = i
			break
		}
	}

	for i := 0; i < first; i++ {
		out[i] = f0[first]
	}
	for i := last + 1; i < len(out); i++ {
		out[i] = f0[last]
	}

	prev := first
	for i := first + 1; i <= last; i++ {
		if !voiced[i] || f0[i] <= 0 {
			continue
		}
		if i > prev+1 {
			lo := math.Log(f0[prev])
			hi := math.Log(f0[i])
			span := float64(i - prev)
			for j := prev + 1; j < i; j++ {
				t := float64(j-prev) / span
				out[j] = math.Exp(lo + t*(hi-lo))
			}
		}
		prev = i
	}
	return out
}
