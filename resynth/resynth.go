// Package resynth re-renders only the edited part of the waveform. Edits
// mark frames dirty; Trigger expands the dirty range to utterance
// boundaries, synthesizes that slice and splices it back.
package resynth

import (
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cwbudde/algo-vocal/dsp"
	"github.com/cwbudde/algo-vocal/internal/logging"
	"github.com/cwbudde/algo-vocal/mel"
	"github.com/cwbudde/algo-vocal/vocal"
	"github.com/cwbudde/algo-vocal/vocoder"
)

const (
	// MinSilenceFrames is the run length that counts as an utterance
	// boundary when expanding the dirty range.
	MinSilenceFrames = 5
	// CrossfadeSamples is the blend length used when a region edge could
	// not be expanded to silence.
	CrossfadeSamples = 256
)

// Synthesizer owns the re-synthesis state for one project.
type Synthesizer struct {
	runner *vocoder.Runner

	mu     sync.Mutex
	cancel *atomic.Bool // the in-flight job's flag; identity marks it current

	// Locker, when set, is held around the in-place waveform write. A
	// shell sharing the buffer with a player points this at the lock its
	// render path try-locks.
	Locker sync.Locker

	// OnSpliced, when set, is called after a successful splice with the
	// affected sample range. Runs on the vocoder worker goroutine, after
	// Locker has been released.
	OnSpliced func(sampleStart, sampleEnd int)
}

func New(runner *vocoder.Runner) *Synthesizer {
	return &Synthesizer{runner: runner}
}

// Trigger starts re-synthesis of the project's dirty region. Returns false
// when nothing is dirty. A still-running previous job is cancelled; its
// late completion is discarded.
func (s *Synthesizer) Trigger(p *vocal.Project) bool {
	ds, de, ok := p.DirtyRange()
	if !ok {
		return false
	}
	t := p.Audio.NumFrames()

	ds, de, foundLo, foundHi := expandToSilence(p.Audio.VoicedMask, ds, de)
	fadeLo := !foundLo && ds > 0
	fadeHi := !foundHi && de < t

	// Job-scoped snapshot of the row headers. Analysis replaces the mel
	// matrix wholesale, so the rows themselves are immutable.
	melSlice := append([][]float64(nil), p.Audio.Mel[ds:de]...)
	f0Slice := p.ComposeF0Range(ds, de, false, p.GlobalPitchOffset)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel.Store(true)
	}
	jobCancel := &atomic.Bool{}
	s.cancel = jobCancel
	s.mu.Unlock()

	job := &vocoder.Job{
		Mel:    melSlice,
		F0:     f0Slice,
		Cancel: jobCancel,
	}
	job.Done = func(pcm []float64, err error) {
		s.mu.Lock()
		stale := s.cancel != jobCancel
		s.mu.Unlock()
		if stale {
			return
		}
		if err != nil {
			logging.Warn("incremental synthesis failed", zap.Error(err))
			return
		}
		if len(pcm) == 0 {
			return
		}
		s.splice(p, ds, pcm, fadeLo, fadeHi)
	}

	s.runner.InferAsync(job)
	return true
}

// splice writes pcm into the waveform at the region start, crossfading at
// edges that could not be anchored in silence, and clears dirty state.
func (s *Synthesizer) splice(p *vocal.Project, startFrame int, pcm []float64, fadeLo, fadeHi bool) {
	start := startFrame * mel.HopSize
	end := start + len(pcm)
	if start >= len(p.Audio.Waveform) {
		return
	}
	if end > len(p.Audio.Waveform) {
		end = len(p.Audio.Waveform)
		pcm = pcm[:end-start]
	}

	if s.Locker != nil {
		s.Locker.Lock()
	}
	old := p.Audio.Waveform[start:end]
	if fadeLo || fadeHi {
		matchRMS(pcm, old)
	}
	if fadeLo {
		crossfadeIn(pcm, old)
	}
	if fadeHi {
		crossfadeOut(pcm, old)
	}
	copy(p.Audio.Waveform[start:end], pcm)
	p.ClearDirty()
	if s.Locker != nil {
		s.Locker.Unlock()
	}

	if s.OnSpliced != nil {
		s.OnSpliced(start, end)
	}
}

// expandToSilence widens [ds, de) outward to the nearest runs of at least
// MinSilenceFrames consecutive unvoiced frames. The returned bools report
// whether each edge found such a run; edges that did not are clamped to
// the buffer bounds.
func expandToSilence(voiced []bool, ds, de int) (int, int, bool, bool) {
	t := len(voiced)
	ds = dsp.ClampInt(ds, 0, t)
	de = dsp.ClampInt(de, ds, t)

	foundLo := false
	run := 0
	for i := ds - 1; i >= 0; i-- {
		if voiced[i] {
			run = 0
			continue
		}
		run++
		if run >= MinSilenceFrames {
			ds = i + MinSilenceFrames
			foundLo = true
			break
		}
	}
	if !foundLo {
		ds = 0
	}

	foundHi := false
	run = 0
	for i := de; i < t; i++ {
		if voiced[i] {
			run = 0
			continue
		}
		run++
		if run >= MinSilenceFrames {
			de = i - MinSilenceFrames + 1
			foundHi = true
			break
		}
	}
	if !foundHi {
		de = t
	}
	return ds, de, foundLo, foundHi
}

// matchRMS scales pcm to the loudness of the material it replaces.
func matchRMS(pcm, old []float64) {
	oldRMS := dsp.RMS(old)
	newRMS := dsp.RMS(pcm)
	if oldRMS <= 1e-9 || newRMS <= 1e-9 {
		return
	}
	gain := oldRMS / newRMS
	if gain > 4 {
		gain = 4
	}
	for i := range pcm {
		pcm[i] *= gain
	}
}

// crossfadeIn blends from the old audio into pcm over the leading edge
// with an equal-power pair.
func crossfadeIn(pcm, old []float64) {
	n := CrossfadeSamples
	if n > len(pcm) {
		n = len(pcm)
	}
	for i := 0; i < n; i++ {
		theta := math.Pi / 2 * float64(i) / float64(n)
		pcm[i] = old[i]*math.Cos(theta) + pcm[i]*math.Sin(theta)
	}
}

// crossfadeOut blends from pcm back into the old audio over the trailing
// edge.
func crossfadeOut(pcm, old []float64) {
	n := CrossfadeSamples
	if n > len(pcm) {
		n = len(pcm)
	}
	base := len(pcm) - n
	for i := 0; i < n; i++ {
		theta := math.Pi / 2 * float64(i) / float64(n)
		pcm[base+i] = pcm[base+i]*math.Cos(theta) + old[base+i]*math.Sin(theta)
	}
}
