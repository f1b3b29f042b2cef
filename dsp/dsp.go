package dsp

import "math"

// MidiToFreq converts a (possibly fractional) MIDI note number to Hz.
// A4 (note 69) = 440 Hz.
func MidiToFreq(note float64) float64 {
	return 440.0 * math.Exp2((note-69.0)/12.0)
}

// FreqToMidi converts a frequency in Hz to a fractional MIDI note number.
// Non-positive frequencies map to 0 (unvoiced convention).
func FreqToMidi(freq float64) float64 {
	if freq <= 0 {
		return 0
	}
	return 69.0 + 12.0*math.Log2(freq/440.0)
}

// RMS returns the root-mean-square of x, or 0 for empty input.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// MaxAbs returns the largest absolute value in x.
func MaxAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		a := math.Abs(v)
		if a > m {
			m = a
		}
	}
	return m
}

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ClampInt limits x to [lo, hi].
func ClampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ResampleLinear resamples in from fromRate to toRate by linear
// interpolation. Detector front-ends use this deliberately simple form;
// the file I/O boundary uses the polyphase resampler instead.
func ResampleLinear(in []float64, fromRate, toRate int) []float64 {
	if len(in) == 0 || fromRate <= 0 || toRate <= 0 {
		return nil
	}
	if fromRate == toRate {
		out := make([]float64, len(in))
		copy(out, in)
		return out
	}
	n := int(math.Ceil(float64(len(in)) * float64(toRate) / float64(fromRate)))
	if n < 1 {
		n = 1
	}
	ratio := float64(fromRate) / float64(toRate)
	out := make([]float64, n)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = in[idx] + frac*(in[idx+1]-in[idx])
	}
	return out
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
