package pitch

import (
	"math"

	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"

	"github.com/cwbudde/algo-vocal/dsp"
	"github.com/cwbudde/algo-vocal/mel"
)

// YIN is the CPU fallback detector: classic cumulative-mean-normalized
// autocorrelation with parabolic lag refinement. It needs no model files.
type YIN struct {
	// WindowSize is the per-frame analysis window in samples.
	WindowSize int
	// MinFreq and MaxFreq bound the pitch search range in Hz.
	MinFreq float64
	MaxFreq float64
	// Threshold is the CMND dip threshold for period selection.
	Threshold float64
	// VoicingThreshold is the aperiodicity ceiling for a frame to count as
	// voiced; the CMND value at the chosen lag must stay below it.
	VoicingThreshold float64
	// GateRMS mutes frames whose window RMS falls below this level.
	GateRMS float64
}

// NewYIN returns a detector with the standard vocal-range configuration.
func NewYIN() *YIN {
	return &YIN{
		WindowSize:       2048,
		MinFreq:          50.0,
		MaxFreq:          1100.0,
		Threshold:        0.10,
		VoicingThreshold: 0.25,
		GateRMS:          1e-3,
	}
}

// Extract implements Detector.
func (y *YIN) Extract(samples []float64, sampleRate int, numFrames int) ([]float64, []bool, error) {
	f0 := make([]float64, numFrames)
	voiced := make([]bool, numFrames)
	if len(samples) == 0 || numFrames == 0 {
		return f0, voiced, nil
	}

	// YIN runs at the engine rate; normalize other sources first.
	if sampleRate != mel.SampleRate {
		samples = dsp.ResampleLinear(samples, sampleRate, mel.SampleRate)
		sampleRate = mel.SampleRate
	}

	w := y.WindowSize
	tauMin := int(float64(sampleRate) / y.MaxFreq)
	tauMax := int(float64(sampleRate) / y.MinFreq)
	if tauMin < 2 {
		tauMin = 2
	}
	if tauMax > w/2 {
		tauMax = w / 2
	}

	frame := make([]float64, w)
	for t := 0; t < numFrames; t++ {
		center := t * mel.HopSize
		fillWindow(frame, samples, center-w/2)

		if dsp.RMS(frame) < y.GateRMS {
			continue
		}

		tau, aperiodicity, ok := y.bestLag(frame, tauMin, tauMax)
		if !ok || aperiodicity >= y.VoicingThreshold {
			continue
		}
		f0[t] = float64(sampleRate) / tau
		voiced[t] = true
	}
	return f0, voiced, nil
}

// bestLag evaluates the CMND over [tauMin, tauMax] and returns the refined
// fractional lag plus its CMND value.
func (y *YIN) bestLag(frame []float64, tauMin, tauMax int) (float64, float64, bool) {
	d := differenceFunction(frame, tauMax)
	if d == nil {
		return 0, 0, false
	}

	// Cumulative mean normalization: d'(0)=1, d'(t)=d(t)*t/sum(d[1..t]).
	cmnd := make([]float64, tauMax+1)
	cmnd[0] = 1
	running := 0.0
	for tau := 1; tau <= tauMax; tau++ {
		running += d[tau]
		if running <= 0 {
			cmnd[tau] = 1
		} else {
			cmnd[tau] = d[tau] * float64(tau) / running
		}
	}

	best := -1
	for tau := tauMin; tau <= tauMax; tau++ {
		if cmnd[tau] < y.Threshold {
			// Walk down to the local minimum of this dip.
			for tau+1 <= tauMax && cmnd[tau+1] < cmnd[tau] {
				tau++
			}
			best = tau
			break
		}
	}
	if best < 0 {
		// No dip under threshold: fall back to the global minimum.
		best = tauMin
		for tau := tauMin + 1; tau <= tauMax; tau++ {
			if cmnd[tau] < cmnd[best] {
				best = tau
			}
		}
	}

	refined := parabolicRefine(cmnd, best, tauMin, tauMax)
	return refined, cmnd[best], true
}

// differenceFunction computes the YIN difference d(tau) for tau in [0, tauMax]
// using the autocorrelation identity d(t) = E0(W-t) + Et(W) - 2*r(t), with the
// correlation term evaluated through the FFT-backed autocorrelation.
func differenceFunction(frame []float64, tauMax int) []float64 {
	w := len(frame)
	if tauMax >= w {
		return nil
	}
	ac, err := dspconv.AutoCorrelate(frame)
	if err != nil {
		return nil
	}
	zero := len(frame) - 1 // zero-lag index of the full correlation

	// Prefix energy sums for the two shrinking windows.
	prefix := make([]float64, w+1)
	for i, v := range frame {
		prefix[i+1] = prefix[i] + v*v
	}

	d := make([]float64, tauMax+1)
	for tau := 0; tau <= tauMax; tau++ {
		head := prefix[w-tau]           // sum x[0..w-tau)
		tail := prefix[w] - prefix[tau] // sum x[tau..w)
		r := ac[zero+tau]
		v := head + tail - 2*r
		if v < 0 {
			v = 0 // numeric guard
		}
		d[tau] = v
	}
	return d
}

// parabolicRefine interpolates the true minimum position around lag.
func parabolicRefine(cmnd []float64, lag, tauMin, tauMax int) float64 {
	if lag <= tauMin || lag >= tauMax {
		return float64(lag)
	}
	s0 := cmnd[lag-1]
	s1 := cmnd[lag]
	s2 := cmnd[lag+1]
	den := s0 + s2 - 2*s1
	if math.Abs(den) < 1e-12 {
		return float64(lag)
	}
	offset := 0.5 * (s0 - s2) / den
	if offset > 0.5 {
		offset = 0.5
	}
	if offset < -0.5 {
		offset = -0.5
	}
	return float64(lag) + offset
}

// fillWindow copies samples[start:start+len(dst)) into dst, zero-padding
// outside the waveform.
func fillWindow(dst, samples []float64, start int) {
	for i := range dst {
		j := start + i
		if j < 0 || j >= len(samples) {
			dst[i] = 0
			continue
		}
		dst[i] = samples[j]
	}
}
