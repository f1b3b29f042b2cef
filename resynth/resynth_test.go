package resynth

import (
	"sync"
	"testing"

	"github.com/cwbudde/algo-vocal/dsp"
	"github.com/cwbudde/algo-vocal/mel"
	"github.com/cwbudde/algo-vocal/vocal"
	"github.com/cwbudde/algo-vocal/vocoder"
)

// fillBackend renders each job's composed f0[0] as a constant, so a
// sample identifies the job that produced it. Gates optionally block
// calls until released so tests can overlap jobs deterministically.
type fillBackend struct {
	mu    sync.Mutex
	calls int
	gates []chan struct{}
}

func (b *fillBackend) Synthesize(melSpec [][]float64, f0 []float64) ([]float64, error) {
	b.mu.Lock()
	call := b.calls
	b.calls++
	var gate chan struct{}
	if call < len(b.gates) {
		gate = b.gates[call]
	}
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}
	pcm := make([]float64, vocoder.OutputSamples(len(f0)))
	fill := 0.0
	if len(f0) > 0 {
		fill = f0[0]
	}
	for i := range pcm {
		pcm[i] = fill
	}
	return pcm, nil
}

func (b *fillBackend) Close() error { return nil }

func newTestProject(numFrames int, voiced []bool) *vocal.Project {
	p := vocal.NewProject("test")
	p.Audio.F0 = make([]float64, numFrames)
	p.Audio.VoicedMask = voiced
	p.Audio.BasePitch = make([]float64, numFrames)
	p.Audio.DeltaPitch = make([]float64, numFrames)
	p.Audio.BaseF0 = make([]float64, numFrames)
	p.Audio.Mel = make([][]float64, numFrames)
	for i := range p.Audio.Mel {
		p.Audio.Mel[i] = make([]float64, mel.NumBands)
	}
	p.Audio.Waveform = make([]float64, numFrames*mel.HopSize)
	for i := range p.Audio.Waveform {
		p.Audio.Waveform[i] = -0.5
	}
	return p
}

func TestExpandToSilence(t *testing.T) {
	voiced := make([]bool, 90)
	for i := 10; i <= 40; i++ {
		voiced[i] = true
	}
	for i := 51; i <= 80; i++ {
		voiced[i] = true
	}

	ds, de, lo, hi := expandToSilence(voiced, 20, 30)
	if !lo || !hi {
		t.Fatalf("silence runs not found: lo=%v hi=%v", lo, hi)
	}
	if ds != 10 || de != 41 {
		t.Fatalf("expanded to [%d, %d), want [10, 41)", ds, de)
	}
}

func TestExpandToSilenceClampsWithoutRuns(t *testing.T) {
	voiced := make([]bool, 50)
	for i := range voiced {
		voiced[i] = true
	}
	ds, de, lo, hi := expandToSilence(voiced, 20, 30)
	if lo || hi {
		t.Fatalf("found silence in a fully voiced mask")
	}
	if ds != 0 || de != 50 {
		t.Fatalf("expanded to [%d, %d), want clamp to [0, 50)", ds, de)
	}
}

func TestTriggerNoDirtyIsNoOp(t *testing.T) {
	r := vocoder.NewRunner(&fillBackend{})
	defer r.Close()
	s := New(r)

	p := newTestProject(40, make([]bool, 40))
	if s.Trigger(p) {
		t.Fatalf("trigger fired with nothing dirty")
	}
}

func TestSpliceContainment(t *testing.T) {
	voiced := make([]bool, 90)
	for i := 10; i <= 40; i++ {
		voiced[i] = true
	}
	for i := 51; i <= 80; i++ {
		voiced[i] = true
	}
	p := newTestProject(90, voiced)
	p.MarkF0Dirty(20, 30)

	r := vocoder.NewRunner(&fillBackend{})
	s := New(r)
	if !s.Trigger(p) {
		t.Fatalf("trigger did not fire")
	}
	r.Close()

	lo := 10 * mel.HopSize
	hi := 41 * mel.HopSize
	fill := dsp.MidiToFreq(0)
	for i, v := range p.Audio.Waveform {
		inside := i >= lo && i < hi
		if inside && v != fill {
			t.Fatalf("sample %d inside region is %.3f, want synthesized %.3f", i, v, fill)
		}
		if !inside && v != -0.5 {
			t.Fatalf("sample %d outside region changed to %.3f", i, v)
		}
	}
	if p.HasDirty() {
		t.Fatalf("dirty state survived a successful splice")
	}
}

func TestStaleJobDiscarded(t *testing.T) {
	voiced := make([]bool, 60)
	for i := range voiced {
		voiced[i] = true
	}
	p := newTestProject(60, voiced)
	p.MarkF0Dirty(10, 20)

	gate := make(chan struct{})
	backend := &fillBackend{gates: []chan struct{}{gate}}
	r := vocoder.NewRunner(backend)
	s := New(r)

	if !s.Trigger(p) {
		t.Fatalf("first trigger did not fire")
	}
	// Second edit supersedes the in-flight job. The offset change makes
	// the two jobs compose different f0 values, so their output differs
	// whether or not the first ever reaches the backend.
	p.GlobalPitchOffset = 12
	if !s.Trigger(p) {
		t.Fatalf("second trigger did not fire")
	}
	close(gate)
	r.Close()

	// Fully voiced mask clamps the region to the whole buffer, so the
	// surviving job's fill must cover everything.
	oldFill := dsp.MidiToFreq(0)
	newFill := dsp.MidiToFreq(12)
	for i, v := range p.Audio.Waveform {
		if v == oldFill {
			t.Fatalf("sample %d kept the superseded job's output", i)
		}
		if v != newFill {
			t.Fatalf("sample %d is %.3f, want %.3f from the new job", i, v, newFill)
		}
	}
}

type countingLocker struct {
	mu    sync.Mutex
	locks int
}

func (l *countingLocker) Lock() {
	l.mu.Lock()
	l.locks++
}

func (l *countingLocker) Unlock() {
	l.mu.Unlock()
}

func TestSpliceHoldsWriterLock(t *testing.T) {
	voiced := make([]bool, 90)
	for i := 10; i <= 40; i++ {
		voiced[i] = true
	}
	p := newTestProject(90, voiced)
	p.MarkF0Dirty(20, 30)

	r := vocoder.NewRunner(&fillBackend{})
	s := New(r)
	locker := &countingLocker{}
	s.Locker = locker
	released := false
	s.OnSpliced = func(start, end int) {
		// Acquiring here proves the lock is released before the
		// callback fires.
		locker.Lock()
		released = true
		locker.Unlock()
	}

	if !s.Trigger(p) {
		t.Fatalf("trigger did not fire")
	}
	r.Close()

	if locker.locks != 2 {
		t.Fatalf("lock acquired %d times, want 2 (splice + callback)", locker.locks)
	}
	if !released {
		t.Fatalf("splice callback did not run")
	}
	if p.HasDirty() {
		t.Fatalf("dirty state survived the locked splice")
	}
}
