// Package segment groups an F0 trajectory into discrete note events, either
// with a rule-based walker over the voicing mask or with a sequence model
// applied to silence-separated voiced islands.
package segment

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-vocal/dsp"
	"github.com/cwbudde/algo-vocal/mel"
)

// NoteEvent is one segmented note in frame coordinates (half-open range).
type NoteEvent struct {
	StartFrame int
	EndFrame   int
	MidiNote   float64
	IsRest     bool
}

// ErrModelMissing indicates the model-based segmenter has no usable session.
var ErrModelMissing = errors.New("segment: model not loaded")

const (
	// minNoteFrames discards notes shorter than this.
	minNoteFrames = 5
	// splitSemitones breaks a note when the running quantized pitch departs
	// this far from the note's pitch...
	splitSemitones = 0.5
	// ...for at least splitHoldFrames consecutive frames.
	splitHoldFrames = 3
)

// sortEvents establishes the output ordering contract: start-frame ascending,
// equal starts tie-break by shorter end-frame first.
func sortEvents(events []NoteEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].StartFrame != events[j].StartFrame {
			return events[i].StartFrame < events[j].StartFrame
		}
		return events[i].EndFrame < events[j].EndFrame
	})
}

// RuleBased segments on voicing transitions and sustained pitch deviation.
type RuleBased struct{}

// NewRuleBased returns the fallback segmenter; it needs no model files.
func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

// Segment walks f0 with its voicing mask. A note opens on the first voiced
// frame, closes when voicing drops or when the quantized semitone stays
// >= 0.5 st away from the note for >= 3 consecutive frames. Notes shorter
// than 5 frames are discarded; each note takes the mean of its voiced F0
// as MidiNote.
func (s *RuleBased) Segment(f0 []float64, voiced []bool) ([]NoteEvent, error) {
	if len(f0) != len(voiced) {
		return nil, fmt.Errorf("segment: length mismatch: f0=%d voiced=%d", len(f0), len(voiced))
	}

	var events []NoteEvent
	openStart := -1
	var refMidi float64
	deviant := 0

	closeNote := func(end int) {
		if openStart < 0 {
			return
		}
		if ev, ok := finalizeNote(f0, voiced, openStart, end); ok {
			events = append(events, ev)
		}
		openStart = -1
		deviant = 0
	}

	for i := range f0 {
		if !voiced[i] || f0[i] <= 0 {
			closeNote(i)
			continue
		}
		m := dsp.FreqToMidi(f0[i])
		if openStart < 0 {
			openStart = i
			refMidi = m
			deviant = 0
			continue
		}
		if math.Abs(m-refMidi) >= splitSemitones {
			deviant++
			if deviant >= splitHoldFrames {
				split := i - deviant + 1
				closeNote(split)
				openStart = split
				refMidi = dsp.FreqToMidi(f0[split])
				deviant = 0
			}
		} else {
			deviant = 0
			// Track the running pitch slowly so vibrato does not split notes.
			refMidi += 0.02 * (m - refMidi)
		}
	}
	closeNote(len(f0))

	sortEvents(events)
	return events, nil
}

// finalizeNote builds the event for [start, end) or reports it too short.
func finalizeNote(f0 []float64, voiced []bool, start, end int) (NoteEvent, bool) {
	if end-start < minNoteFrames {
		return NoteEvent{}, false
	}
	var sum float64
	n := 0
	for i := start; i < end; i++ {
		if voiced[i] && f0[i] > 0 {
			sum += dsp.FreqToMidi(f0[i])
			n++
		}
	}
	if n == 0 {
		return NoteEvent{}, false
	}
	return NoteEvent{
		StartFrame: start,
		EndFrame:   end,
		MidiNote:   sum / float64(n),
	}, true
}

// Session abstracts the sequence model behind the process boundary. The
// model sees one voiced island at a time; returned events use island-local
// frame coordinates.
type Session interface {
	Transcribe(samples []float64, sampleRate int) ([]NoteEvent, error)
	Close() error
}

// ModelBased slices the waveform at silence and feeds each voiced island to
// a sequence model, stitching the per-slice outputs back with their offsets.
type ModelBased struct {
	session Session

	// GateRMS is the silence threshold on per-frame window RMS.
	GateRMS float64
	// MinGapFrames is the shortest silent run that separates islands.
	MinGapFrames int
}

// NewModelBased wraps a transcription session. A nil session means the model
// file was not available; Segment then reports ErrModelMissing.
func NewModelBased(session Session) *ModelBased {
	return &ModelBased{
		session:      session,
		GateRMS:      1e-3,
		MinGapFrames: 8,
	}
}

// Segment implements model-based note segmentation over waveform samples at
// the engine rate.
func (s *ModelBased) Segment(samples []float64) ([]NoteEvent, error) {
	if s.session == nil {
		return nil, ErrModelMissing
	}
	numFrames := mel.NumFrames(len(samples))
	if numFrames == 0 {
		return nil, nil
	}

	islands := s.findIslands(samples, numFrames)
	var events []NoteEvent
	for _, is := range islands {
		lo := is[0] * mel.HopSize
		hi := is[1] * mel.HopSize
		if hi > len(samples) {
			hi = len(samples)
		}
		sliceEvents, err := s.session.Transcribe(samples[lo:hi], mel.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("segment: transcribe island [%d,%d): %w", is[0], is[1], err)
		}
		for _, ev := range sliceEvents {
			ev.StartFrame += is[0]
			ev.EndFrame += is[0]
			if ev.EndFrame > is[1] {
				ev.EndFrame = is[1]
			}
			if ev.StartFrame >= ev.EndFrame {
				continue
			}
			events = append(events, ev)
		}
	}

	sortEvents(events)
	return events, nil
}

// findIslands returns half-open frame ranges of non-silent content separated
// by at least MinGapFrames silent frames.
func (s *ModelBased) findIslands(samples []float64, numFrames int) [][2]int {
	loud := make([]bool, numFrames)
	buf := make([]float64, mel.HopSize)
	for t := 0; t < numFrames; t++ {
		lo := t * mel.HopSize
		hi := lo + mel.HopSize
		if hi > len(samples) {
			hi = len(samples)
		}
		n := copy(buf, samples[lo:hi])
		loud[t] = dsp.RMS(buf[:n]) >= s.GateRMS
	}

	var islands [][2]int
	start := -1
	gap := 0
	for t := 0; t < numFrames; t++ {
		if loud[t] {
			if start < 0 {
				start = t
			}
			gap = 0
			continue
		}
		if start < 0 {
			continue
		}
		gap++
		if gap >= s.MinGapFrames {
			islands = append(islands, [2]int{start, t - gap + 1})
			start = -1
			gap = 0
		}
	}
	if start >= 0 {
		islands = append(islands, [2]int{start, numFrames})
	}
	return islands
}
