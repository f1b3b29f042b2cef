package vocal

import (
	"math"

	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"

	"github.com/cwbudde/algo-vocal/dsp"
	"github.com/cwbudde/algo-vocal/mel"
)

// Base-pitch smoothing contract: the raw note step function is built on a
// 1 ms grid, convolved with a cosine kernel of support +-SmoothWindowSec and
// resampled back to frame time. The identity between composed f0 and the
// analysis source depends on this exact envelope; do not substitute a
// linear ramp.
const (
	// SmoothWindowSec is the half-support of the smoothing kernel.
	SmoothWindowSec = 0.12
	// smoothGridMs is the smoothing grid resolution.
	smoothGridMs = 1
)

// RebuildCurvesFromSource recomputes base from the note list, derives delta
// as midi(src)-base on voiced frames, and composes the stored F0. Called
// once after analysis with the detector output as src.
func (p *Project) RebuildCurvesFromSource(src []float64) {
	t := len(src)
	p.ensureCurveLengths(t)
	p.rebuildBase()

	for i := 0; i < t; i++ {
		if p.Audio.VoicedMask[i] && src[i] > 0 {
			p.Audio.DeltaPitch[i] = dsp.FreqToMidi(src[i]) - p.Audio.BasePitch[i]
		} else {
			p.Audio.DeltaPitch[i] = 0
		}
	}
	p.ComposeF0InPlace(true)
}

// RebuildBaseFromNotes recomputes base while preserving delta, then
// recomposes the stored F0. Called after any note-pitch change.
func (p *Project) RebuildBaseFromNotes() {
	p.ensureCurveLengths(p.Audio.NumFrames())
	p.rebuildBase()
	p.ComposeF0InPlace(true)
}

// ComposeF0 produces the composed F0 curve without mutating base or delta:
// freq(base + delta + globalOffset + vibrato + drag offsets). When
// applyUvMask is true, unvoiced frames yield 0.
func (p *Project) ComposeF0(applyUvMask bool, globalOffset float64) []float64 {
	return p.ComposeF0Range(0, p.Audio.NumFrames(), applyUvMask, globalOffset)
}

// ComposeF0Range composes frames [start, end), clamped to [0, T).
func (p *Project) ComposeF0Range(start, end int, applyUvMask bool, globalOffset float64) []float64 {
	t := p.Audio.NumFrames()
	start = dsp.ClampInt(start, 0, t)
	end = dsp.ClampInt(end, start, t)
	out := make([]float64, end-start)
	if start == end {
		return out
	}

	for i := start; i < end; i++ {
		if applyUvMask && !p.Audio.VoicedMask[i] {
			continue
		}
		out[i-start] = dsp.MidiToFreq(p.Audio.BasePitch[i] + p.Audio.DeltaPitch[i] + globalOffset)
	}

	// Per-note contributions: transient drag offsets and parametric vibrato.
	frameRate := float64(mel.SampleRate) / float64(mel.HopSize)
	for _, n := range p.Notes {
		if n.Rest {
			continue
		}
		if n.EndFrame <= start || n.StartFrame >= end {
			continue
		}
		ratio := math.Exp2(n.PitchOffset / 12.0)
		lo := dsp.ClampInt(n.StartFrame, start, end)
		hi := dsp.ClampInt(n.EndFrame, start, end)
		for i := lo; i < hi; i++ {
			v := out[i-start]
			if v <= 0 {
				continue
			}
			if n.PitchOffset != 0 {
				v *= ratio
			}
			if n.Vibrato.Enabled && n.Vibrato.DepthSemitones != 0 {
				sec := float64(i-n.StartFrame) / frameRate
				mod := n.Vibrato.DepthSemitones *
					math.Sin(2*math.Pi*n.Vibrato.RateHz*sec+n.Vibrato.PhaseRadians)
				v *= math.Exp2(mod / 12.0)
			}
			out[i-start] = v
		}
	}
	return out
}

// ComposeF0InPlace writes the composed curve into AudioData.F0 using the
// project's global pitch offset.
func (p *Project) ComposeF0InPlace(applyUvMask bool) {
	composed := p.ComposeF0(applyUvMask, p.GlobalPitchOffset)
	copy(p.Audio.F0, composed)
}

// ensureCurveLengths sizes the curve slices to t frames, preserving content
// when already sized.
func (p *Project) ensureCurveLengths(t int) {
	grow := func(s []float64) []float64 {
		if len(s) == t {
			return s
		}
		out := make([]float64, t)
		copy(out, s)
		return out
	}
	p.Audio.F0 = grow(p.Audio.F0)
	p.Audio.BasePitch = grow(p.Audio.BasePitch)
	p.Audio.DeltaPitch = grow(p.Audio.DeltaPitch)
	p.Audio.BaseF0 = grow(p.Audio.BaseF0)
	if len(p.Audio.VoicedMask) != t {
		mask := make([]bool, t)
		copy(mask, p.Audio.VoicedMask)
		p.Audio.VoicedMask = mask
	}
}

// rebuildBase recomputes BasePitch and BaseF0 from the note list.
func (p *Project) rebuildBase() {
	t := p.Audio.NumFrames()
	for i := range p.Audio.BasePitch {
		p.Audio.BasePitch[i] = 0
		p.Audio.BaseF0[i] = 0
	}
	notes := p.activeNotes()
	if len(notes) == 0 || t == 0 {
		return
	}

	smoothed := smoothNoteStep(notes, t)

	// Resample the ms grid back to frame time and mask uncovered frames.
	msPerFrame := float64(mel.HopSize) / float64(mel.SampleRate) * 1000.0
	for i := 0; i < t; i++ {
		if p.NoteAt(i) == nil {
			continue
		}
		pos := float64(i) * msPerFrame / float64(smoothGridMs)
		p.Audio.BasePitch[i] = sampleLinear(smoothed, pos)
		p.Audio.BaseF0[i] = dsp.MidiToFreq(p.Audio.BasePitch[i])
	}
}

// activeNotes returns the non-rest notes in start order.
func (p *Project) activeNotes() []*Note {
	var out []*Note
	for _, n := range p.Notes {
		if !n.Rest && n.StartFrame < n.EndFrame {
			out = append(out, n)
		}
	}
	return out
}

// smoothNoteStep renders the note pitches as a step function on a 1 ms grid
// (switching at the midpoint between adjacent notes) and convolves it with
// the normalized cosine kernel.
func smoothNoteStep(notes []*Note, numFrames int) []float64 {
	msTotal := int(math.Ceil(mel.FramesToSeconds(numFrames)*1000.0)) + 1
	step := make([]float64, msTotal)

	frameToMs := func(f int) int {
		return int(math.Round(mel.FramesToSeconds(f) * 1000.0))
	}

	// Switch points: midpoint of each adjacent note pair; grid edges
	// extend the first/last pitch outward.
	bounds := make([]int, 0, len(notes)+1)
	bounds = append(bounds, 0)
	for i := 1; i < len(notes); i++ {
		mid := (frameToMs(notes[i-1].EndFrame) + frameToMs(notes[i].StartFrame)) / 2
		bounds = append(bounds, dsp.ClampInt(mid, 0, msTotal))
	}
	bounds = append(bounds, msTotal)

	// Transient drag offsets are applied at composition time, not here,
	// so a drag in progress never forces a re-smoothing pass.
	for i, n := range notes {
		pitch := n.MidiNote
		for ms := bounds[i]; ms < bounds[i+1]; ms++ {
			step[ms] = pitch
		}
	}

	// Extend the edges by half the kernel support before convolving so the
	// first and last pitches hold flat instead of decaying toward zero.
	half := kernelHalfWidth()
	padded := make([]float64, msTotal+2*half)
	for i := 0; i < half; i++ {
		padded[i] = step[0]
		padded[len(padded)-1-i] = step[msTotal-1]
	}
	copy(padded[half:], step)

	smoothed, err := dspconv.ConvolveMode(padded, cosineKernel(), dspconv.ModeSame)
	if err != nil {
		return step
	}
	return smoothed[half : half+msTotal]
}

func kernelHalfWidth() int {
	return int(SmoothWindowSec * 1000.0 / float64(smoothGridMs))
}

// cosineKernel returns the normalized raised-cosine smoothing kernel on the
// ms grid, support [-SmoothWindowSec, +SmoothWindowSec].
func cosineKernel() []float64 {
	half := kernelHalfWidth()
	k := make([]float64, 2*half+1)
	var sum float64
	for i := range k {
		x := float64(i-half) / float64(half)
		k[i] = 0.5 * (1.0 + math.Cos(math.Pi*x))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// sampleLinear reads x at a fractional position with edge clamping.
func sampleLinear(x []float64, pos float64) float64 {
	if len(x) == 0 {
		return 0
	}
	if pos <= 0 {
		return x[0]
	}
	idx := int(pos)
	if idx >= len(x)-1 {
		return x[len(x)-1]
	}
	frac := pos - float64(idx)
	return x[idx] + frac*(x[idx+1]-x[idx])
}
