// Package vocal holds the pitch-editing data model: the analyzed audio data,
// the note list, the three-layer base/delta/F0 pitch decomposition and the
// undo stack. A Project is owned by the editing shell and mutated only on
// the UI goroutine; background workers operate on snapshots.
package vocal

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-vocal/mel"
	"github.com/cwbudde/algo-vocal/segment"
)

// Vibrato is a per-note parametric vibrato, applied during composition and
// never baked into the stored curves. Phase is relative to the note start.
type Vibrato struct {
	Enabled        bool
	RateHz         float64
	DepthSemitones float64
	PhaseRadians   float64
}

// Note is one segmented pitch unit. Frames are half-open [StartFrame,
// EndFrame). PitchOffset is a transient drag offset that is folded into
// MidiNote when the drag ends. DeltaSlice optionally captures the global
// delta curve over the note span at drag start and is cleared on commit.
type Note struct {
	StartFrame  int
	EndFrame    int
	MidiNote    float64
	PitchOffset float64
	DeltaSlice  []float64
	Vibrato     Vibrato
	Selected    bool
	Dirty       bool
	Rest        bool
	Lyric       string
	Phoneme     string
}

// Frames returns the note length in frames.
func (n *Note) Frames() int {
	return n.EndFrame - n.StartFrame
}

// Contains reports whether frame lies inside the note span.
func (n *Note) Contains(frame int) bool {
	return frame >= n.StartFrame && frame < n.EndFrame
}

// AudioData owns the analyzed feature streams. All per-frame slices share
// the same length T = NumFrames().
type AudioData struct {
	Waveform   []float64
	SampleRate int

	F0         []float64 // Hz, 0 = unvoiced
	VoicedMask []bool
	BasePitch  []float64 // semitones, 0 where no note covers
	DeltaPitch []float64 // semitone offset from base
	BaseF0     []float64 // cached MidiToFreq(BasePitch), 0 where base is 0
	Mel        [][]float64
}

// NumFrames returns T, the shared frame count of the feature streams.
func (a *AudioData) NumFrames() int {
	return len(a.F0)
}

// Validate checks the length-alignment invariant across feature streams.
func (a *AudioData) Validate() error {
	t := len(a.F0)
	if len(a.VoicedMask) != t || len(a.BasePitch) != t ||
		len(a.DeltaPitch) != t || len(a.BaseF0) != t || len(a.Mel) != t {
		return fmt.Errorf("vocal: feature length mismatch: f0=%d voiced=%d base=%d delta=%d baseF0=%d mel=%d",
			len(a.F0), len(a.VoicedMask), len(a.BasePitch), len(a.DeltaPitch), len(a.BaseF0), len(a.Mel))
	}
	if want := mel.NumFrames(len(a.Waveform)); t != 0 && want != t {
		return fmt.Errorf("vocal: frame count %d does not match waveform frames %d", t, want)
	}
	for i, v := range a.VoicedMask {
		if v && a.F0[i] <= 0 {
			return fmt.Errorf("vocal: voiced frame %d has non-positive f0", i)
		}
	}
	return nil
}

// LoopRange is the playback loop region in seconds.
type LoopRange struct {
	Enabled  bool
	StartSec float64
	EndSec   float64
}

// Project is the editing session root.
type Project struct {
	ID        string
	Name      string
	AudioPath string

	Audio AudioData
	Notes []*Note

	GlobalPitchOffset float64 // semitones, applied during composition only
	FormantShift      float64 // reserved
	VolumeDB          float64
	Loop              LoopRange

	// Free-hand draw dirty interval in frames; -1/-1 when empty.
	f0DirtyStart int
	f0DirtyEnd   int

	undo *UndoStack
}

// NewProject creates an empty project.
func NewProject(name string) *Project {
	return &Project{
		ID:           uuid.NewString(),
		Name:         name,
		f0DirtyStart: -1,
		f0DirtyEnd:   -1,
		undo:         NewUndoStack(defaultUndoDepth),
	}
}

// Undo exposes the project's undo stack.
func (p *Project) Undo() *UndoStack {
	return p.undo
}

// SetNotesFromEvents replaces the note list with segmented events.
func (p *Project) SetNotesFromEvents(events []segment.NoteEvent) {
	p.Notes = p.Notes[:0]
	for _, ev := range events {
		p.Notes = append(p.Notes, &Note{
			StartFrame: ev.StartFrame,
			EndFrame:   ev.EndFrame,
			MidiNote:   ev.MidiNote,
			Rest:       ev.IsRest,
		})
	}
	p.sortNotes()
}

// InsertNote adds a note keeping start-frame order. It rejects spans that
// overlap an existing non-rest note.
func (p *Project) InsertNote(n *Note) error {
	if n.StartFrame >= n.EndFrame {
		return fmt.Errorf("vocal: invalid note span [%d,%d)", n.StartFrame, n.EndFrame)
	}
	for _, other := range p.Notes {
		if other.Rest || n.Rest {
			continue
		}
		if n.StartFrame < other.EndFrame && other.StartFrame < n.EndFrame {
			return fmt.Errorf("vocal: note [%d,%d) overlaps [%d,%d)",
				n.StartFrame, n.EndFrame, other.StartFrame, other.EndFrame)
		}
	}
	p.Notes = append(p.Notes, n)
	p.sortNotes()
	return nil
}

func (p *Project) sortNotes() {
	sort.SliceStable(p.Notes, func(i, j int) bool {
		if p.Notes[i].StartFrame != p.Notes[j].StartFrame {
			return p.Notes[i].StartFrame < p.Notes[j].StartFrame
		}
		return p.Notes[i].EndFrame < p.Notes[j].EndFrame
	})
}

// NoteAt returns the first non-rest note covering frame, or nil.
func (p *Project) NoteAt(frame int) *Note {
	for _, n := range p.Notes {
		if n.Rest {
			continue
		}
		if n.Contains(frame) {
			return n
		}
		if n.StartFrame > frame {
			break
		}
	}
	return nil
}

// SelectedNotes returns indices of selected notes.
func (p *Project) SelectedNotes() []int {
	var out []int
	for i, n := range p.Notes {
		if n.Selected {
			out = append(out, i)
		}
	}
	return out
}

// MarkF0Dirty extends the free-hand dirty interval to include [start, end).
func (p *Project) MarkF0Dirty(start, end int) {
	if start >= end {
		return
	}
	if p.f0DirtyStart < 0 || start < p.f0DirtyStart {
		p.f0DirtyStart = start
	}
	if end > p.f0DirtyEnd {
		p.f0DirtyEnd = end
	}
}

// HasDirty reports whether any note or the F0 interval awaits re-synthesis.
func (p *Project) HasDirty() bool {
	if p.f0DirtyStart >= 0 {
		return true
	}
	for _, n := range p.Notes {
		if n.Dirty {
			return true
		}
	}
	return false
}

// DirtyRange returns the union of dirty note spans and the F0 dirty
// interval, clamped to [0, T). ok is false when nothing is dirty.
func (p *Project) DirtyRange() (start, end int, ok bool) {
	t := p.Audio.NumFrames()
	start, end = -1, -1
	grow := func(s, e int) {
		if start < 0 || s < start {
			start = s
		}
		if e > end {
			end = e
		}
	}
	for _, n := range p.Notes {
		if n.Dirty {
			grow(n.StartFrame, n.EndFrame)
		}
	}
	if p.f0DirtyStart >= 0 {
		grow(p.f0DirtyStart, p.f0DirtyEnd)
	}
	if start < 0 {
		return 0, 0, false
	}
	if end > t {
		end = t
	}
	if start >= end {
		return 0, 0, false
	}
	return start, end, true
}

// ClearDirty resets all dirty state after a successful splice.
func (p *Project) ClearDirty() {
	for _, n := range p.Notes {
		n.Dirty = false
	}
	p.f0DirtyStart = -1
	p.f0DirtyEnd = -1
}
