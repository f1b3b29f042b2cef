package segment

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-vocal/dsp"
	"github.com/cwbudde/algo-vocal/mel"
)

func constantF0(frames int, hz float64) ([]float64, []bool) {
	f0 := make([]float64, frames)
	voiced := make([]bool, frames)
	for i := range f0 {
		f0[i] = hz
		voiced[i] = true
	}
	return f0, voiced
}

func TestRuleBasedSingleNote(t *testing.T) {
	f0, voiced := constantF0(100, 440.0)
	events, err := NewRuleBased().Segment(f0, voiced)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 note, got %d", len(events))
	}
	ev := events[0]
	if ev.StartFrame != 0 || ev.EndFrame != 100 {
		t.Fatalf("span mismatch: [%d,%d) want [0,100)", ev.StartFrame, ev.EndFrame)
	}
	if math.Round(ev.MidiNote) != 69 {
		t.Fatalf("midi note mismatch: got=%f want~69", ev.MidiNote)
	}
	if ev.IsRest {
		t.Fatalf("expected non-rest note")
	}
}

func TestRuleBasedSplitsOnPitchStep(t *testing.T) {
	// 50 frames at A4 then 50 frames at B4 (2 semitones up).
	f0 := make([]float64, 100)
	voiced := make([]bool, 100)
	for i := range f0 {
		voiced[i] = true
		if i < 50 {
			f0[i] = 440.0
		} else {
			f0[i] = dsp.MidiToFreq(71)
		}
	}
	events, err := NewRuleBased().Segment(f0, voiced)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(events))
	}
	if math.Round(events[0].MidiNote) != 69 || math.Round(events[1].MidiNote) != 71 {
		t.Fatalf("pitch mismatch: got %f and %f", events[0].MidiNote, events[1].MidiNote)
	}
	if events[0].EndFrame < 48 || events[0].EndFrame > 52 {
		t.Fatalf("split point %d too far from 50", events[0].EndFrame)
	}
	if events[1].StartFrame != events[0].EndFrame {
		t.Fatalf("expected adjacent notes, got gap [%d,%d)", events[0].EndFrame, events[1].StartFrame)
	}
}

func TestRuleBasedClosesOnVoicingDrop(t *testing.T) {
	f0 := make([]float64, 60)
	voiced := make([]bool, 60)
	for i := 0; i < 25; i++ {
		f0[i] = 330
		voiced[i] = true
	}
	for i := 35; i < 60; i++ {
		f0[i] = 330
		voiced[i] = true
	}
	events, err := NewRuleBased().Segment(f0, voiced)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 notes across the gap, got %d", len(events))
	}
	if events[0].EndFrame != 25 || events[1].StartFrame != 35 {
		t.Fatalf("gap boundaries mismatch: [%d, %d]", events[0].EndFrame, events[1].StartFrame)
	}
}

func TestRuleBasedDiscardsShortNotes(t *testing.T) {
	f0 := make([]float64, 20)
	voiced := make([]bool, 20)
	for i := 8; i < 11; i++ { // 3 frames, below the 5-frame minimum
		f0[i] = 440
		voiced[i] = true
	}
	events, err := NewRuleBased().Segment(f0, voiced)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected short note discarded, got %d events", len(events))
	}
}

func TestRuleBasedVibratoDoesNotSplit(t *testing.T) {
	// A4 with 0.4 st vibrato at 5.5 Hz stays one note.
	frames := 200
	f0 := make([]float64, frames)
	voiced := make([]bool, frames)
	frameRate := float64(mel.SampleRate) / float64(mel.HopSize)
	for i := range f0 {
		sec := float64(i) / frameRate
		f0[i] = dsp.MidiToFreq(69 + 0.4*math.Sin(2*math.Pi*5.5*sec))
		voiced[i] = true
	}
	events, err := NewRuleBased().Segment(f0, voiced)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("vibrato split the note: got %d events", len(events))
	}
}

type fakeTranscriber struct {
	events []NoteEvent
	calls  int
}

func (f *fakeTranscriber) Transcribe(samples []float64, sampleRate int) ([]NoteEvent, error) {
	f.calls++
	return f.events, nil
}

func (f *fakeTranscriber) Close() error { return nil }

func TestModelBasedMissingSession(t *testing.T) {
	s := NewModelBased(nil)
	_, err := s.Segment(make([]float64, 4096))
	if !errors.Is(err, ErrModelMissing) {
		t.Fatalf("expected ErrModelMissing, got %v", err)
	}
}

func TestModelBasedStitchesIslandOffsets(t *testing.T) {
	// Two loud islands separated by a long silent gap.
	samples := make([]float64, 100*mel.HopSize)
	fill := func(fromFrame, toFrame int) {
		for i := fromFrame * mel.HopSize; i < toFrame*mel.HopSize; i++ {
			samples[i] = 0.5 * math.Sin(float64(i)*0.05)
		}
	}
	fill(0, 30)
	fill(60, 90)

	tr := &fakeTranscriber{events: []NoteEvent{{StartFrame: 0, EndFrame: 10, MidiNote: 60}}}
	s := NewModelBased(tr)
	events, err := s.Segment(samples)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if tr.calls != 2 {
		t.Fatalf("expected 2 islands transcribed, got %d calls", tr.calls)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 stitched events, got %d", len(events))
	}
	if events[0].StartFrame != 0 {
		t.Fatalf("first island offset mismatch: %d", events[0].StartFrame)
	}
	if events[1].StartFrame != 60 {
		t.Fatalf("second island offset mismatch: got=%d want=60", events[1].StartFrame)
	}
}

func TestSortEventsTieBreak(t *testing.T) {
	events := []NoteEvent{
		{StartFrame: 10, EndFrame: 30},
		{StartFrame: 10, EndFrame: 20},
		{StartFrame: 5, EndFrame: 50},
	}
	sortEvents(events)
	if events[0].StartFrame != 5 {
		t.Fatalf("start order wrong")
	}
	if events[1].EndFrame != 20 || events[2].EndFrame != 30 {
		t.Fatalf("equal starts must order shorter end first: got %d then %d", events[1].EndFrame, events[2].EndFrame)
	}
}
