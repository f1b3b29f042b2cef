package vocoder

import (
	"math"

	"github.com/cwbudde/algo-approx"

	"github.com/cwbudde/algo-vocal/mel"
)

// Harmonic is the model-free fallback backend: additive synthesis driven by
// the f0 curve, with per-frame loudness taken from the mel energies. Not a
// substitute for the neural vocoder in quality, but deterministic and
// dependency-free, so editing keeps working when no model file is present.
type Harmonic struct {
	// MaxHarmonics caps the partial count per voiced frame.
	MaxHarmonics int
	// Rolloff sets the exponential amplitude decay across partials.
	Rolloff float64
	// Gain scales the final output.
	Gain float64
}

// NewHarmonic returns a fallback backend with the default voicing timbre.
func NewHarmonic() *Harmonic {
	return &Harmonic{
		MaxHarmonics: 24,
		Rolloff:      0.35,
		Gain:         0.5,
	}
}

func (h *Harmonic) Close() error { return nil }

// Synthesize renders len(f0)*HopSize samples. Unvoiced frames render as
// silence; voiced runs keep phase continuity across frame boundaries.
func (h *Harmonic) Synthesize(melSpec [][]float64, f0 []float64) ([]float64, error) {
	t := len(f0)
	out := make([]float64, OutputSamples(t))
	if t == 0 {
		return out, nil
	}

	weights := h.harmonicWeights()
	phases := make([]float64, len(weights))

	nyquist := float64(mel.SampleRate) / 2.0
	prevAmp := 0.0
	for frame := 0; frame < t; frame++ {
		freq0 := f0[frame]
		amp := frameAmplitude(melSpec, frame)
		if freq0 <= 0 {
			amp = 0
		}

		// Linear f0 ramp toward the next voiced frame keeps glides clean.
		freq1 := freq0
		if frame+1 < t && f0[frame+1] > 0 && freq0 > 0 {
			freq1 = f0[frame+1]
		}

		base := frame * mel.HopSize
		inv := 1.0 / float64(mel.HopSize)
		for s := 0; s < mel.HopSize; s++ {
			frac := float64(s) * inv
			freq := freq0 + (freq1-freq0)*frac
			// Short linear amplitude ramp avoids clicks at voicing edges.
			a := prevAmp + (amp-prevAmp)*frac

			var sample float64
			if freq > 0 && a > 0 {
				for k, w := range weights {
					hf := freq * float64(k+1)
					if hf >= nyquist {
						break
					}
					phases[k] += 2.0 * math.Pi * hf / float64(mel.SampleRate)
					if phases[k] > 2.0*math.Pi {
						phases[k] -= 2.0 * math.Pi
					}
					sample += w * math.Sin(phases[k])
				}
			}
			out[base+s] = h.Gain * a * sample
		}
		prevAmp = amp
	}
	return out, nil
}

// harmonicWeights returns the normalized partial amplitudes.
func (h *Harmonic) harmonicWeights() []float64 {
	n := h.MaxHarmonics
	if n < 1 {
		n = 1
	}
	w := make([]float64, n)
	var sum float64
	for i := range w {
		w[i] = float64(approx.FastExp(float32(-h.Rolloff * float64(i))))
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// frameAmplitude derives a loudness estimate from the log-mel bands.
func frameAmplitude(melSpec [][]float64, frame int) float64 {
	if frame >= len(melSpec) || len(melSpec[frame]) == 0 {
		return 0
	}
	var energy float64
	for _, v := range melSpec[frame] {
		energy += math.Exp(v)
	}
	energy /= float64(len(melSpec[frame]))
	a := math.Sqrt(energy)
	if a > 1 {
		a = 1
	}
	return a
}
