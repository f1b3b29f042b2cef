// Package mel produces the fixed-hop log-mel feature stream the vocoder was
// trained on. SampleRate, HopSize, FFTSize and NumBands are compile-time
// contracts shared with the vocoder; changing them desynchronizes features
// from the model's input distribution.
package mel

import (
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"

	dspwindow "github.com/cwbudde/algo-dsp/dsp/window"
)

const (
	// SampleRate is the internal engine sample rate in Hz.
	SampleRate = 44100
	// HopSize is the frame hop in samples; one pitch/mel frame per hop.
	HopSize = 512
	// FFTSize is the STFT transform size.
	FFTSize = 2048
	// WindowSize is the Hann analysis window length.
	WindowSize = 2048
	// NumBands is the number of mel filterbank bands.
	NumBands = 128
	// FMin and FMax bound the filterbank in Hz.
	FMin = 40.0
	FMax = 16000.0

	logFloor = 1e-5
)

// NumFrames returns the frame count for a waveform of numSamples samples.
func NumFrames(numSamples int) int {
	if numSamples <= 0 {
		return 0
	}
	return (numSamples + HopSize - 1) / HopSize
}

// FramesToSeconds converts a frame index to seconds.
func FramesToSeconds(frame int) float64 {
	return float64(frame) * HopSize / SampleRate
}

// SecondsToFrames converts seconds to a (floored) frame index.
func SecondsToFrames(sec float64) int {
	return int(sec * SampleRate / HopSize)
}

// realPlan is the slice of the algo-fft real-input plan surface we use.
type realPlan interface {
	Forward(dst []complex128, src []float64) error
}

// Extractor computes log-mel spectrograms at the engine frame rate.
type Extractor struct {
	plan   realPlan
	window []float64
	bank   [][]bankEntry
}

type bankEntry struct {
	bin    int
	weight float64
}

// NewExtractor builds an extractor with the compile-time analysis contract.
func NewExtractor() (*Extractor, error) {
	plan, err := algofft.NewPlanReal64(FFTSize)
	if err != nil {
		return nil, fmt.Errorf("mel: fft plan: %w", err)
	}
	win, err := dspwindow.Hann(WindowSize)
	if err != nil {
		return nil, fmt.Errorf("mel: hann window: %w", err)
	}
	e := &Extractor{
		plan:   plan,
		window: win,
	}
	e.bank = buildFilterbank(NumBands, FFTSize, SampleRate, FMin, FMax)
	return e, nil
}

// Compute returns the log-mel spectrogram of x as [NumFrames(len(x))][NumBands].
// An empty input yields an empty output.
func (e *Extractor) Compute(x []float64) ([][]float64, error) {
	frames := NumFrames(len(x))
	if frames == 0 {
		return nil, nil
	}

	out := make([][]float64, frames)
	buf := make([]float64, FFTSize)
	spec := make([]complex128, FFTSize/2+1)
	power := make([]float64, FFTSize/2+1)

	half := FFTSize / 2
	for t := 0; t < frames; t++ {
		center := t * HopSize
		for i := 0; i < FFTSize; i++ {
			buf[i] = sampleReflected(x, center-half+i) * e.window[i]
		}
		if err := e.plan.Forward(spec, buf); err != nil {
			return nil, fmt.Errorf("mel: fft forward: %w", err)
		}
		for k := range spec {
			power[k] = cmplx.Abs(spec[k])
		}

		row := make([]float64, NumBands)
		for m, entries := range e.bank {
			var sum float64
			for _, en := range entries {
				sum += power[en.bin] * en.weight
			}
			row[m] = math.Log(math.Max(logFloor, sum))
		}
		out[t] = row
	}
	return out, nil
}

// sampleReflected reads x[i] with reflection at both edges, so windows that
// overhang the waveform see mirrored content instead of zeros.
func sampleReflected(x []float64, i int) float64 {
	n := len(x)
	if n == 1 {
		return x[0]
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return x[i]
}

func hzToMel(f float64) float64 {
	return 2595.0 * math.Log10(1.0+f/700.0)
}

func melToHz(m float64) float64 {
	return 700.0 * (math.Pow(10.0, m/2595.0) - 1.0)
}

// buildFilterbank creates triangular mel filters as sparse (bin, weight)
// lists over the magnitude spectrum bins.
func buildFilterbank(numBands, fftSize, sampleRate int, fmin, fmax float64) [][]bankEntry {
	numBins := fftSize/2 + 1
	binHz := float64(sampleRate) / float64(fftSize)

	melLo := hzToMel(fmin)
	melHi := hzToMel(fmax)
	centers := make([]float64, numBands+2)
	for i := range centers {
		m := melLo + (melHi-melLo)*float64(i)/float64(numBands+1)
		centers[i] = melToHz(m)
	}

	bank := make([][]bankEntry, numBands)
	for m := 0; m < numBands; m++ {
		lo := centers[m]
		mid := centers[m+1]
		hi := centers[m+2]
		var entries []bankEntry
		for k := 0; k < numBins; k++ {
			f := float64(k) * binHz
			var w float64
			switch {
			case f <= lo || f >= hi:
				continue
			case f <= mid:
				w = (f - lo) / (mid - lo)
			default:
				w = (hi - f) / (hi - mid)
			}
			if w > 0 {
				entries = append(entries, bankEntry{bin: k, weight: w})
			}
		}
		bank[m] = entries
	}
	return bank
}
