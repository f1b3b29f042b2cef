// Package vocoder runs mel+f0 to PCM synthesis behind a serialized job
// queue. The neural backend is injected by the caller; a deterministic
// harmonic backend is provided as a model-free fallback.
package vocoder

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-vocal/mel"
)

// Provider selects the execution backend for neural inference.
type Provider int

const (
	CPU Provider = iota
	CUDA
	DirectML
)

func (p Provider) String() string {
	switch p {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	case DirectML:
		return "directml"
	}
	return fmt.Sprintf("provider(%d)", int(p))
}

// ParseProvider maps a config string to a Provider.
func ParseProvider(s string) (Provider, error) {
	switch s {
	case "", "cpu":
		return CPU, nil
	case "cuda":
		return CUDA, nil
	case "directml", "dml":
		return DirectML, nil
	}
	return CPU, fmt.Errorf("vocoder: unknown provider %q", s)
}

// Options configure backend construction.
type Options struct {
	Provider Provider
	DeviceID int
}

// Backend converts a mel spectrogram and matching f0 curve into PCM at the
// engine rate. Synthesize must be deterministic for fixed inputs. Output
// length is len(f0) * mel.HopSize.
type Backend interface {
	Synthesize(melSpec [][]float64, f0 []float64) ([]float64, error)
	Close() error
}

// ErrNoModel is returned when no backend is attached.
var ErrNoModel = errors.New("vocoder: no model loaded")

// Job is an asynchronous synthesis request. Done is invoked exactly once,
// on the worker goroutine, with an empty buffer when the job was
// cancelled or failed.
type Job struct {
	Mel    [][]float64
	F0     []float64
	Done   func(pcm []float64, err error)
	Cancel *atomic.Bool
}

// Runner serializes synthesis on a single worker goroutine. At most one
// inference runs at a time; further requests queue in submission order.
type Runner struct {
	mu      sync.Mutex // guards backend
	sendMu  sync.Mutex // guards jobs channel lifecycle
	backend Backend
	jobs    chan *Job
	done    chan struct{}
	closed  atomic.Bool
}

// NewRunner starts the worker. backend may be nil; jobs then complete
// empty with ErrNoModel until SetBackend installs one.
func NewRunner(backend Backend) *Runner {
	r := &Runner{
		backend: backend,
		jobs:    make(chan *Job, 16),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// SetBackend swaps the synthesis backend. The previous backend, if any, is
// closed once the current inference finishes.
func (r *Runner) SetBackend(b Backend) {
	r.mu.Lock()
	old := r.backend
	r.backend = b
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// Infer synthesizes synchronously, waiting behind any queued work.
func (r *Runner) Infer(melSpec [][]float64, f0 []float64) ([]float64, error) {
	type result struct {
		pcm []float64
		err error
	}
	ch := make(chan result, 1)
	r.InferAsync(&Job{
		Mel: melSpec,
		F0:  f0,
		Done: func(pcm []float64, err error) {
			ch <- result{pcm, err}
		},
	})
	res := <-ch
	return res.pcm, res.err
}

// InferAsync queues a job. When the runner is closed the job completes
// immediately with an empty buffer.
func (r *Runner) InferAsync(j *Job) {
	r.sendMu.Lock()
	if r.closed.Load() {
		r.sendMu.Unlock()
		r.complete(j, nil, errors.New("vocoder: runner closed"))
		return
	}
	r.jobs <- j
	r.sendMu.Unlock()
}

// Close drains outstanding jobs (completing them, cancelled ones empty)
// and then closes the backend.
func (r *Runner) Close() error {
	r.sendMu.Lock()
	if r.closed.Swap(true) {
		r.sendMu.Unlock()
		return nil
	}
	close(r.jobs)
	r.sendMu.Unlock()
	<-r.done

	r.mu.Lock()
	b := r.backend
	r.backend = nil
	r.mu.Unlock()
	if b != nil {
		return b.Close()
	}
	return nil
}

func (r *Runner) loop() {
	defer close(r.done)
	for j := range r.jobs {
		if j.Cancel != nil && j.Cancel.Load() {
			r.complete(j, nil, nil)
			continue
		}
		r.mu.Lock()
		b := r.backend
		r.mu.Unlock()
		if b == nil {
			r.complete(j, nil, ErrNoModel)
			continue
		}
		if len(j.F0) == 0 || len(j.Mel) != len(j.F0) {
			r.complete(j, nil, fmt.Errorf("vocoder: mel frames %d do not match f0 frames %d",
				len(j.Mel), len(j.F0)))
			continue
		}
		pcm, err := b.Synthesize(j.Mel, j.F0)
		if j.Cancel != nil && j.Cancel.Load() {
			r.complete(j, nil, nil)
			continue
		}
		if err != nil {
			r.complete(j, nil, err)
			continue
		}
		r.complete(j, pcm, nil)
	}
}

func (r *Runner) complete(j *Job, pcm []float64, err error) {
	if j.Done == nil {
		return
	}
	if pcm == nil {
		pcm = []float64{}
	}
	j.Done(pcm, err)
}

// OutputSamples reports the PCM length a frame count synthesizes to.
func OutputSamples(numFrames int) int {
	return numFrames * mel.HopSize
}
