// Package analysis drives the feature pipeline: mel extraction, pitch
// detection, note segmentation and the initial curve decomposition. The
// pipeline runs on a worker goroutine, reports progress and can be
// cancelled at each stage boundary.
package analysis

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cwbudde/algo-vocal/internal/logging"
	"github.com/cwbudde/algo-vocal/mel"
	"github.com/cwbudde/algo-vocal/pitch"
	"github.com/cwbudde/algo-vocal/segment"
	"github.com/cwbudde/algo-vocal/vocal"
)

// ErrCancelled is returned when the cancel flag was set between stages.
var ErrCancelled = errors.New("analysis: cancelled")

// Progress reports pipeline advancement. Stage values are localization
// keys, not display strings. Fractions are advisory.
type Progress struct {
	Fraction float64
	Stage    string
}

// Stage keys.
const (
	StageMel    = "analysis.stage.mel"
	StagePitch  = "analysis.stage.pitch"
	StageNotes  = "analysis.stage.notes"
	StageCurves = "analysis.stage.curves"
)

// Options select the detectors and report sinks for a run.
type Options struct {
	Method pitch.Method

	// Sessions for the neural detectors; nil means unavailable.
	FCPESession  pitch.InferenceSession
	RMVPESession pitch.InferenceSession

	// Transcriber for model-based segmentation; nil selects rule-based.
	SegSession segment.Session

	OnProgress func(Progress)
	Cancel     *atomic.Bool
}

// Result carries everything the pipeline produced.
type Result struct {
	Mel    [][]float64
	F0     []float64
	Voiced []bool
	Events []segment.NoteEvent

	// MethodUsed differs from the requested method after a fallback.
	MethodUsed pitch.Method
}

// Run executes the pipeline synchronously. Callers wanting a worker wrap
// it in RunAsync.
func Run(samples []float64, opts Options) (*Result, error) {
	report := func(fraction float64, stage string) {
		if opts.OnProgress != nil {
			opts.OnProgress(Progress{Fraction: fraction, Stage: stage})
		}
	}
	cancelled := func() bool {
		return opts.Cancel != nil && opts.Cancel.Load()
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("analysis: empty input")
	}

	report(0.0, StageMel)
	extractor, err := mel.NewExtractor()
	if err != nil {
		return nil, err
	}
	melSpec, err := extractor.Compute(samples)
	if err != nil {
		return nil, err
	}
	if cancelled() {
		return nil, ErrCancelled
	}

	report(0.4, StagePitch)
	numFrames := len(melSpec)
	detector, methodUsed := selectDetector(opts)
	f0, voiced, err := detector.Extract(samples, mel.SampleRate, numFrames)
	if errors.Is(err, pitch.ErrModelMissing) && methodUsed != pitch.MethodYIN {
		logging.Warn("pitch model unavailable, falling back",
			zap.String("requested", methodUsed.String()))
		methodUsed = pitch.MethodYIN
		f0, voiced, err = pitch.NewYIN().Extract(samples, mel.SampleRate, numFrames)
	}
	if err != nil {
		return nil, err
	}
	if cancelled() {
		return nil, ErrCancelled
	}

	report(0.8, StageNotes)
	var events []segment.NoteEvent
	if opts.SegSession != nil {
		events, err = segment.NewModelBased(opts.SegSession).Segment(samples)
		if errors.Is(err, segment.ErrModelMissing) {
			logging.Warn("segmentation model unavailable, using rule-based segmenter")
			events, err = segment.NewRuleBased().Segment(f0, voiced)
		}
	} else {
		events, err = segment.NewRuleBased().Segment(f0, voiced)
	}
	if err != nil {
		return nil, err
	}
	if cancelled() {
		return nil, ErrCancelled
	}

	report(1.0, StageCurves)
	return &Result{
		Mel:        melSpec,
		F0:         f0,
		Voiced:     voiced,
		Events:     events,
		MethodUsed: methodUsed,
	}, nil
}

// RunAsync runs the pipeline on its own goroutine. done is invoked exactly
// once with the result or the error.
func RunAsync(samples []float64, opts Options, done func(*Result, error)) {
	go func() {
		res, err := Run(samples, opts)
		done(res, err)
	}()
}

// Publish installs a pipeline result into the project and rebuilds the
// pitch curves from the detected f0.
func Publish(p *vocal.Project, res *Result) {
	t := len(res.Mel)
	p.Audio.Mel = res.Mel
	p.Audio.F0 = append([]float64{}, res.F0...)
	p.Audio.VoicedMask = append([]bool{}, res.Voiced...)
	p.Audio.BasePitch = make([]float64, t)
	p.Audio.DeltaPitch = make([]float64, t)
	p.Audio.BaseF0 = make([]float64, t)
	p.SetNotesFromEvents(res.Events)
	p.RebuildCurvesFromSource(res.F0)
}

func selectDetector(opts Options) (pitch.Detector, pitch.Method) {
	switch opts.Method {
	case pitch.MethodFCPE:
		return pitch.NewFCPE(opts.FCPESession), pitch.MethodFCPE
	case pitch.MethodRMVPE:
		return pitch.NewRMVPE(opts.RMVPESession, nil), pitch.MethodRMVPE
	default:
		return pitch.NewYIN(), pitch.MethodYIN
	}
}
