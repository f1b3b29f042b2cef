package analysis

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/cwbudde/algo-vocal/mel"
	"github.com/cwbudde/algo-vocal/pitch"
	"github.com/cwbudde/algo-vocal/vocal"
)

func sineSamples(seconds, hz float64) []float64 {
	n := int(seconds * mel.SampleRate)
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*hz*float64(i)/mel.SampleRate)
	}
	return out
}

func TestRunSinePipeline(t *testing.T) {
	samples := sineSamples(2.0, 440)

	var stages []string
	lastFraction := -1.0
	res, err := Run(samples, Options{
		Method: pitch.MethodYIN,
		OnProgress: func(p Progress) {
			stages = append(stages, p.Stage)
			if p.Fraction < lastFraction {
				t.Errorf("progress went backwards: %.2f after %.2f", p.Fraction, lastFraction)
			}
			lastFraction = p.Fraction
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	wantFrames := mel.NumFrames(len(samples))
	if len(res.Mel) != wantFrames || len(res.F0) != wantFrames || len(res.Voiced) != wantFrames {
		t.Fatalf("frame counts mel=%d f0=%d voiced=%d, want %d",
			len(res.Mel), len(res.F0), len(res.Voiced), wantFrames)
	}

	voicedCount := 0
	for i, v := range res.Voiced {
		if !v {
			continue
		}
		voicedCount++
		if math.Abs(res.F0[i]-440) > 2 {
			t.Fatalf("frame %d: f0 %.2f, want within 2 Hz of 440", i, res.F0[i])
		}
	}
	if float64(voicedCount) < 0.95*float64(wantFrames) {
		t.Fatalf("%d of %d frames voiced, want >= 95%%", voicedCount, wantFrames)
	}

	var pitched int
	for _, ev := range res.Events {
		if ev.IsRest {
			continue
		}
		pitched++
		if got := math.Round(ev.MidiNote); got != 69 {
			t.Fatalf("note midi %.2f rounds to %.0f, want 69", ev.MidiNote, got)
		}
	}
	if pitched != 1 {
		t.Fatalf("got %d pitched notes, want 1", pitched)
	}

	if len(stages) == 0 || stages[0] != StageMel || stages[len(stages)-1] != StageCurves {
		t.Fatalf("stage sequence %v", stages)
	}
}

func TestRunPublishesConsistentProject(t *testing.T) {
	samples := sineSamples(1.0, 330)
	res, err := Run(samples, Options{Method: pitch.MethodYIN})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	p := vocal.NewProject("test")
	p.Audio.Waveform = samples
	p.Audio.SampleRate = mel.SampleRate
	Publish(p, res)

	if err := p.Audio.Validate(); err != nil {
		t.Fatalf("published project invalid: %v", err)
	}
	composed := p.ComposeF0(false, 0)
	for i, v := range res.Voiced {
		if !v {
			continue
		}
		rel := math.Abs(composed[i]-res.F0[i]) / res.F0[i]
		if rel > 1e-4 {
			t.Fatalf("frame %d: composed %.4f, detected %.4f", i, composed[i], res.F0[i])
		}
	}
}

func TestRunCancelled(t *testing.T) {
	samples := sineSamples(0.5, 440)
	var cancel atomic.Bool
	cancel.Store(true)

	_, err := Run(samples, Options{Method: pitch.MethodYIN, Cancel: &cancel})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestRunFallsBackWithoutModel(t *testing.T) {
	samples := sineSamples(0.5, 440)
	res, err := Run(samples, Options{Method: pitch.MethodFCPE})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.MethodUsed != pitch.MethodYIN {
		t.Fatalf("method used %v, want fallback to YIN", res.MethodUsed)
	}
}

func TestFitVibratoRecoversSinusoid(t *testing.T) {
	const frameRate = 86.13
	delta := make([]float64, 300)
	for i := range delta {
		sec := float64(i) / frameRate
		delta[i] = 0.3 + 0.5*math.Sin(2*math.Pi*5.5*sec+1.0)
	}

	v := FitVibrato(delta, frameRate, 1)
	if !v.Enabled {
		t.Fatalf("fit did not detect the vibrato")
	}
	if math.Abs(v.RateHz-5.5) > 1.0 {
		t.Fatalf("rate %.2f Hz, want near 5.5", v.RateHz)
	}
	if math.Abs(v.DepthSemitones-0.5) > 0.3 {
		t.Fatalf("depth %.2f st, want near 0.5", v.DepthSemitones)
	}
}

func TestFitVibratoRejectsFlatCurve(t *testing.T) {
	delta := make([]float64, 200)
	for i := range delta {
		delta[i] = 0.25
	}
	if v := FitVibrato(delta, 86.13, 1); v.Enabled {
		t.Fatalf("flat curve fitted as vibrato: %+v", v)
	}
}
