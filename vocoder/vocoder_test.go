package vocoder

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cwbudde/algo-vocal/mel"
)

type stubBackend struct {
	mu        sync.Mutex
	inFlight  int
	maxActive int
	calls     int
	fail      error
}

func (s *stubBackend) Synthesize(melSpec [][]float64, f0 []float64) ([]float64, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxActive {
		s.maxActive = s.inFlight
	}
	s.calls++
	s.mu.Unlock()

	pcm := make([]float64, OutputSamples(len(f0)))

	s.mu.Lock()
	s.inFlight--
	fail := s.fail
	s.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return pcm, nil
}

func (s *stubBackend) Close() error { return nil }

func testInput(frames int, hz float64) ([][]float64, []float64) {
	melSpec := make([][]float64, frames)
	f0 := make([]float64, frames)
	for i := range f0 {
		melSpec[i] = make([]float64, mel.NumBands)
		f0[i] = hz
	}
	return melSpec, f0
}

func TestRunnerSerializesJobs(t *testing.T) {
	backend := &stubBackend{}
	r := NewRunner(backend)
	defer r.Close()

	var wg sync.WaitGroup
	melSpec, f0 := testInput(4, 220)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		r.InferAsync(&Job{Mel: melSpec, F0: f0, Done: func(pcm []float64, err error) {
			defer wg.Done()
			if err != nil {
				t.Errorf("job failed: %v", err)
			}
			if len(pcm) != OutputSamples(4) {
				t.Errorf("pcm length %d, want %d", len(pcm), OutputSamples(4))
			}
		}})
	}
	wg.Wait()

	if backend.maxActive != 1 {
		t.Fatalf("observed %d concurrent inferences, want 1", backend.maxActive)
	}
	if backend.calls != 8 {
		t.Fatalf("backend ran %d times, want 8", backend.calls)
	}
}

func TestRunnerNoModel(t *testing.T) {
	r := NewRunner(nil)
	defer r.Close()

	melSpec, f0 := testInput(2, 220)
	pcm, err := r.Infer(melSpec, f0)
	if !errors.Is(err, ErrNoModel) {
		t.Fatalf("err = %v, want ErrNoModel", err)
	}
	if len(pcm) != 0 {
		t.Fatalf("got %d samples without a model, want empty", len(pcm))
	}
}

func TestRunnerCancelledJobCompletesEmpty(t *testing.T) {
	backend := &stubBackend{}
	r := NewRunner(backend)
	defer r.Close()

	var cancel atomic.Bool
	cancel.Store(true)

	done := make(chan int, 1)
	melSpec, f0 := testInput(2, 220)
	r.InferAsync(&Job{Mel: melSpec, F0: f0, Cancel: &cancel,
		Done: func(pcm []float64, err error) {
			done <- len(pcm)
		}})
	if got := <-done; got != 0 {
		t.Fatalf("cancelled job delivered %d samples, want 0", got)
	}
}

func TestRunnerBackendError(t *testing.T) {
	backend := &stubBackend{fail: errors.New("runtime exploded")}
	r := NewRunner(backend)
	defer r.Close()

	melSpec, f0 := testInput(2, 220)
	pcm, err := r.Infer(melSpec, f0)
	if err == nil {
		t.Fatalf("backend error not surfaced")
	}
	if len(pcm) != 0 {
		t.Fatalf("got %d samples on error, want empty", len(pcm))
	}
}

func TestRunnerCloseDrains(t *testing.T) {
	backend := &stubBackend{}
	r := NewRunner(backend)

	var completed atomic.Int32
	melSpec, f0 := testInput(2, 220)
	for i := 0; i < 5; i++ {
		r.InferAsync(&Job{Mel: melSpec, F0: f0, Done: func(pcm []float64, err error) {
			completed.Add(1)
		}})
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := completed.Load(); got != 5 {
		t.Fatalf("%d jobs completed after close, want 5", got)
	}

	done := make(chan error, 1)
	r.InferAsync(&Job{Mel: melSpec, F0: f0, Done: func(pcm []float64, err error) {
		done <- err
	}})
	if err := <-done; err == nil {
		t.Fatalf("job after close succeeded, want error")
	}
}

func TestParseProvider(t *testing.T) {
	cases := []struct {
		in   string
		want Provider
		ok   bool
	}{
		{"", CPU, true},
		{"cpu", CPU, true},
		{"cuda", CUDA, true},
		{"dml", DirectML, true},
		{"directml", DirectML, true},
		{"tpu", CPU, false},
	}
	for _, c := range cases {
		got, err := ParseProvider(c.in)
		if (err == nil) != c.ok {
			t.Fatalf("ParseProvider(%q) err = %v, want ok=%v", c.in, err, c.ok)
		}
		if c.ok && got != c.want {
			t.Fatalf("ParseProvider(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestHarmonicOutput(t *testing.T) {
	h := NewHarmonic()
	defer h.Close()

	const frames = 40
	melSpec := make([][]float64, frames)
	f0 := make([]float64, frames)
	for i := range f0 {
		melSpec[i] = make([]float64, mel.NumBands)
		for j := range melSpec[i] {
			melSpec[i][j] = -2.0
		}
		if i < 20 {
			f0[i] = 220
		}
	}

	pcm, err := h.Synthesize(melSpec, f0)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(pcm) != OutputSamples(frames) {
		t.Fatalf("pcm length %d, want %d", len(pcm), OutputSamples(frames))
	}

	var voicedEnergy, tailEnergy float64
	for i := 0; i < 20*mel.HopSize; i++ {
		voicedEnergy += pcm[i] * pcm[i]
	}
	// Skip one frame after the voicing edge for the de-click ramp.
	for i := 21 * mel.HopSize; i < len(pcm); i++ {
		tailEnergy += pcm[i] * pcm[i]
	}
	if voicedEnergy <= 0 {
		t.Fatalf("voiced region is silent")
	}
	if tailEnergy != 0 {
		t.Fatalf("unvoiced tail has energy %g, want silence", tailEnergy)
	}

	again, err := h.Synthesize(melSpec, f0)
	if err != nil {
		t.Fatalf("synthesize again: %v", err)
	}
	for i := range pcm {
		if pcm[i] != again[i] {
			t.Fatalf("sample %d differs between identical runs", i)
		}
	}

	for _, v := range pcm {
		if math.IsNaN(v) || math.Abs(v) > 1.0 {
			t.Fatalf("sample out of range: %v", v)
		}
	}
}

type stubSession struct {
	pad    int
	err    error
	closed bool
}

func (s *stubSession) Run(melSpec [][]float64, f0 []float64) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return make([]float64, len(f0)*mel.HopSize+s.pad), nil
}

func (s *stubSession) Close() error {
	s.closed = true
	return nil
}

func TestSessionBackend(t *testing.T) {
	melSpec := make([][]float64, 4)
	for i := range melSpec {
		melSpec[i] = make([]float64, mel.NumBands)
	}
	f0 := make([]float64, 4)

	b := NewSessionBackend(nil, Options{})
	if _, err := b.Synthesize(melSpec, f0); !errors.Is(err, ErrNoModel) {
		t.Fatalf("nil session err = %v, want ErrNoModel", err)
	}

	sess := &stubSession{pad: 17}
	b = NewSessionBackend(sess, Options{})
	pcm, err := b.Synthesize(melSpec, f0)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(pcm) != OutputSamples(len(f0)) {
		t.Fatalf("padded output not trimmed: got %d, want %d", len(pcm), OutputSamples(len(f0)))
	}

	if _, err := b.Synthesize(melSpec[:2], f0); err == nil {
		t.Fatalf("frame mismatch accepted")
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sess.closed {
		t.Fatalf("session not closed")
	}
}
