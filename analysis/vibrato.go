package analysis

import (
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"

	"github.com/cwbudde/algo-vocal/vocal"
)

// Vibrato fitting bounds, in natural units before normalization.
const (
	vibratoMinRateHz = 3.0
	vibratoMaxRateHz = 9.0
	vibratoMaxDepth  = 2.0 // semitones
)

// FitVibrato estimates a sinusoidal vibrato (rate, depth, phase) from a
// note's delta curve. frameRate is the analysis frame rate in Hz. The fit
// is deterministic for a fixed seed. Returns Enabled=false when the best
// sinusoid explains too little of the curve's energy.
func FitVibrato(delta []float64, frameRate float64, seed int64) vocal.Vibrato {
	if len(delta) < 8 || frameRate <= 0 {
		return vocal.Vibrato{}
	}

	// Remove the mean so a pitch offset does not masquerade as depth.
	mean := 0.0
	for _, v := range delta {
		mean += v
	}
	mean /= float64(len(delta))
	centered := make([]float64, len(delta))
	var energy float64
	for i, v := range delta {
		centered[i] = v - mean
		energy += centered[i] * centered[i]
	}
	if energy < 1e-9 {
		return vocal.Vibrato{}
	}

	evaluate := func(rate, depth, phase float64) float64 {
		var sse float64
		for i, v := range centered {
			sec := float64(i) / frameRate
			model := depth * math.Sin(2*math.Pi*rate*sec+phase)
			d := v - model
			sse += d * d
		}
		return sse
	}

	cfg := mayfly.NewDefaultConfig()
	cfg.ProblemSize = 3
	cfg.LowerBound = 0.0
	cfg.UpperBound = 1.0
	cfg.MaxIterations = 60
	cfg.NPop = 20
	cfg.NPopF = 20
	cfg.NC = 40
	cfg.NM = 1
	cfg.Rand = rand.New(rand.NewSource(seed))

	best := struct {
		rate, depth, phase float64
		sse                float64
	}{sse: math.Inf(1)}

	cfg.ObjectiveFunc = func(pos []float64) float64 {
		rate := vibratoMinRateHz + pos[0]*(vibratoMaxRateHz-vibratoMinRateHz)
		depth := pos[1] * vibratoMaxDepth
		phase := pos[2] * 2 * math.Pi
		sse := evaluate(rate, depth, phase)
		if sse < best.sse {
			best.rate, best.depth, best.phase, best.sse = rate, depth, phase, sse
		}
		return sse
	}

	if _, err := mayfly.Optimize(cfg); err != nil || math.IsInf(best.sse, 1) {
		return vocal.Vibrato{}
	}

	// Accept only when the sinusoid removes at least half the energy.
	if best.sse > 0.5*energy || best.depth < 0.05 {
		return vocal.Vibrato{}
	}
	return vocal.Vibrato{
		Enabled:        true,
		RateHz:         best.rate,
		DepthSemitones: best.depth,
		PhaseRadians:   best.phase,
	}
}
