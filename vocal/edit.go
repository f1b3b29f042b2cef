package vocal

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vocal/dsp"
	"github.com/cwbudde/algo-vocal/mel"
)

// Edit operations. Each committed edit pushes a reversible action onto the
// undo stack and marks the affected frame range dirty so the incremental
// synthesizer picks it up.

// BeginNoteDrag snapshots the global delta over each selected note so the
// local expressive deviation survives the base rebuild at drag end.
func (p *Project) BeginNoteDrag() {
	for _, idx := range p.SelectedNotes() {
		n := p.Notes[idx]
		n.DeltaSlice = make([]float64, n.Frames())
		lo := dsp.ClampInt(n.StartFrame, 0, len(p.Audio.DeltaPitch))
		hi := dsp.ClampInt(n.EndFrame, 0, len(p.Audio.DeltaPitch))
		copy(n.DeltaSlice, p.Audio.DeltaPitch[lo:hi])
	}
}

// UpdateNoteDrag sets the transient offset on the dragged notes and
// recomposes f0. Base is not rebuilt here; the offset rides on top of the
// existing curve until the drag commits.
func (p *Project) UpdateNoteDrag(offsetSemitones float64) {
	for _, idx := range p.SelectedNotes() {
		p.Notes[idx].PitchOffset = offsetSemitones
	}
	p.ComposeF0InPlace(true)
}

// EndNoteDrag folds the transient offset into each dragged note's pitch,
// restores the snapshotted delta, rebuilds base and recomposes. Records a
// single undoable action covering all dragged notes.
func (p *Project) EndNoteDrag() {
	sel := p.SelectedNotes()
	if len(sel) == 0 {
		return
	}
	act := &noteDragAction{}
	var changed bool
	for _, idx := range sel {
		n := p.Notes[idx]
		if n.PitchOffset == 0 && n.DeltaSlice == nil {
			continue
		}
		act.edits = append(act.edits, noteDragEdit{
			noteIndex: idx,
			oldMidi:   n.MidiNote,
			newMidi:   n.MidiNote + n.PitchOffset,
		})
		if n.PitchOffset != 0 {
			changed = true
		}
		n.MidiNote += n.PitchOffset
		n.PitchOffset = 0
		p.restoreDeltaSlice(n)
		n.DeltaSlice = nil
		n.Dirty = true
	}
	p.RebuildBaseFromNotes()
	if changed {
		p.undo.Push(act)
	}
}

func (p *Project) restoreDeltaSlice(n *Note) {
	if n.DeltaSlice == nil {
		return
	}
	lo := dsp.ClampInt(n.StartFrame, 0, len(p.Audio.DeltaPitch))
	hi := dsp.ClampInt(n.EndFrame, 0, len(p.Audio.DeltaPitch))
	copy(p.Audio.DeltaPitch[lo:hi], n.DeltaSlice)
}

type noteDragEdit struct {
	noteIndex int
	oldMidi   float64
	newMidi   float64
}

type noteDragAction struct {
	edits []noteDragEdit
}

func (a *noteDragAction) Name() string { return "note pitch drag" }

func (a *noteDragAction) Apply(p *Project) {
	for _, e := range a.edits {
		n := p.Notes[e.noteIndex]
		n.MidiNote = e.newMidi
		n.Dirty = true
	}
	p.RebuildBaseFromNotes()
}

func (a *noteDragAction) Revert(p *Project) {
	for _, e := range a.edits {
		n := p.Notes[e.noteIndex]
		n.MidiNote = e.oldMidi
		n.Dirty = true
	}
	p.RebuildBaseFromNotes()
}

// DrawPitch paints target frequencies over [startFrame, startFrame+len).
// Touched frames are forced voiced and their delta adjusted so the composed
// f0 reproduces the drawn curve. Any note delta snapshot overlapping the
// range is dropped, since the draw supersedes it.
func (p *Project) DrawPitch(startFrame int, targetHz []float64) {
	t := p.Audio.NumFrames()
	if startFrame < 0 || startFrame >= t || len(targetHz) == 0 {
		return
	}
	end := startFrame + len(targetHz)
	if end > t {
		end = t
	}

	act := &drawAction{startFrame: startFrame, endFrame: end}
	for i := startFrame; i < end; i++ {
		target := targetHz[i-startFrame]
		if target <= 0 {
			continue
		}
		edit := drawFrameEdit{
			frame:     i,
			oldF0:     p.Audio.F0[i],
			oldDelta:  p.Audio.DeltaPitch[i],
			oldVoiced: p.Audio.VoicedMask[i],
			newVoiced: true,
		}
		edit.newDelta = dsp.FreqToMidi(target) - p.Audio.BasePitch[i] -
			p.GlobalPitchOffset - p.noteAdjustmentAt(i)
		p.Audio.DeltaPitch[i] = edit.newDelta
		p.Audio.VoicedMask[i] = true
		edit.newF0 = p.composeFrame(i)
		p.Audio.F0[i] = edit.newF0
		act.frames = append(act.frames, edit)
	}
	if len(act.frames) == 0 {
		return
	}

	for _, n := range p.Notes {
		if n.DeltaSlice != nil && n.StartFrame < end && n.EndFrame > startFrame {
			n.DeltaSlice = nil
		}
	}
	p.MarkF0Dirty(startFrame, end)
	p.undo.Push(act)
}

// noteAdjustmentAt reports the note-local semitone adjustment (transient
// drag offset plus vibrato modulation) at a frame, 0 outside any note.
func (p *Project) noteAdjustmentAt(frame int) float64 {
	n := p.NoteAt(frame)
	if n == nil || n.Rest {
		return 0
	}
	adj := n.PitchOffset
	if n.Vibrato.Enabled && n.Vibrato.DepthSemitones != 0 {
		frameRate := float64(mel.SampleRate) / float64(mel.HopSize)
		sec := float64(frame-n.StartFrame) / frameRate
		adj += n.Vibrato.DepthSemitones *
			math.Sin(2*math.Pi*n.Vibrato.RateHz*sec+n.Vibrato.PhaseRadians)
	}
	return adj
}

// composeFrame evaluates the composed f0 at a single frame with the
// project's global offset and whatever note covers it.
func (p *Project) composeFrame(i int) float64 {
	m := p.Audio.BasePitch[i] + p.Audio.DeltaPitch[i] + p.GlobalPitchOffset +
		p.noteAdjustmentAt(i)
	return dsp.MidiToFreq(m)
}

type drawFrameEdit struct {
	frame     int
	oldF0     float64
	newF0     float64
	oldDelta  float64
	newDelta  float64
	oldVoiced bool
	newVoiced bool
}

type drawAction struct {
	startFrame int
	endFrame   int
	frames     []drawFrameEdit
}

func (a *drawAction) Name() string { return "pitch draw" }

func (a *drawAction) Apply(p *Project) {
	for _, e := range a.frames {
		p.Audio.F0[e.frame] = e.newF0
		p.Audio.DeltaPitch[e.frame] = e.newDelta
		p.Audio.VoicedMask[e.frame] = e.newVoiced
	}
	p.MarkF0Dirty(a.startFrame, a.endFrame)
}

func (a *drawAction) Revert(p *Project) {
	for _, e := range a.frames {
		p.Audio.F0[e.frame] = e.oldF0
		p.Audio.DeltaPitch[e.frame] = e.oldDelta
		p.Audio.VoicedMask[e.frame] = e.oldVoiced
	}
	p.MarkF0Dirty(a.startFrame, a.endFrame)
}

// SplitNote divides the note at noteIndex into two notes meeting at frame.
// Both halves keep the original pitch and vibrato parameters; vibrato phase
// restarts at each half's own start. Fails when frame is not strictly
// inside the note.
func (p *Project) SplitNote(noteIndex, frame int) error {
	if noteIndex < 0 || noteIndex >= len(p.Notes) {
		return fmt.Errorf("split: note index %d out of range", noteIndex)
	}
	orig := p.Notes[noteIndex]
	if frame <= orig.StartFrame || frame >= orig.EndFrame {
		return fmt.Errorf("split: frame %d outside note (%d, %d)",
			frame, orig.StartFrame, orig.EndFrame)
	}

	left := cloneNoteShallow(orig)
	left.EndFrame = frame
	right := cloneNoteShallow(orig)
	right.StartFrame = frame

	act := &splitAction{
		noteIndex: noteIndex,
		original:  orig,
		left:      left,
		right:     right,
	}
	act.Apply(p)
	p.undo.Push(act)
	return nil
}

func cloneNoteShallow(n *Note) *Note {
	c := *n
	c.DeltaSlice = nil
	c.PitchOffset = 0
	return &c
}

type splitAction struct {
	noteIndex int
	original  *Note
	left      *Note
	right     *Note
}

func (a *splitAction) Name() string { return "note split" }

func (a *splitAction) Apply(p *Project) {
	notes := append([]*Note{}, p.Notes[:a.noteIndex]...)
	notes = append(notes, a.left, a.right)
	notes = append(notes, p.Notes[a.noteIndex+1:]...)
	p.Notes = notes
	a.left.Dirty = true
	a.right.Dirty = true
	p.RebuildBaseFromNotes()
}

func (a *splitAction) Revert(p *Project) {
	notes := append([]*Note{}, p.Notes[:a.noteIndex]...)
	notes = append(notes, a.original)
	notes = append(notes, p.Notes[a.noteIndex+2:]...)
	p.Notes = notes
	a.original.Dirty = true
	p.RebuildBaseFromNotes()
}

// MergeNotes joins the notes at noteIndex and noteIndex+1 into one note
// spanning both. The merged pitch is the duration-weighted mean; vibrato,
// lyric and phoneme come from the earlier note. Fails when either note is
// a rest or the two do not touch.
func (p *Project) MergeNotes(noteIndex int) error {
	if noteIndex < 0 || noteIndex+1 >= len(p.Notes) {
		return fmt.Errorf("merge: note index %d out of range", noteIndex)
	}
	left, right := p.Notes[noteIndex], p.Notes[noteIndex+1]
	if left.Rest || right.Rest {
		return fmt.Errorf("merge: cannot merge rests")
	}
	if left.EndFrame != right.StartFrame {
		return fmt.Errorf("merge: notes (%d, %d) and (%d, %d) not adjacent",
			left.StartFrame, left.EndFrame, right.StartFrame, right.EndFrame)
	}

	merged := cloneNoteShallow(left)
	merged.EndFrame = right.EndFrame
	lw := float64(left.Frames())
	rw := float64(right.Frames())
	merged.MidiNote = (left.MidiNote*lw + right.MidiNote*rw) / (lw + rw)

	act := &mergeAction{
		noteIndex: noteIndex,
		left:      left,
		right:     right,
		merged:    merged,
	}
	act.Apply(p)
	p.undo.Push(act)
	return nil
}

type mergeAction struct {
	noteIndex int
	left      *Note
	right     *Note
	merged    *Note
}

func (a *mergeAction) Name() string { return "note merge" }

func (a *mergeAction) Apply(p *Project) {
	notes := append([]*Note{}, p.Notes[:a.noteIndex]...)
	notes = append(notes, a.merged)
	notes = append(notes, p.Notes[a.noteIndex+2:]...)
	p.Notes = notes
	a.merged.Dirty = true
	p.RebuildBaseFromNotes()
}

func (a *mergeAction) Revert(p *Project) {
	notes := append([]*Note{}, p.Notes[:a.noteIndex]...)
	notes = append(notes, a.left, a.right)
	notes = append(notes, p.Notes[a.noteIndex+1:]...)
	p.Notes = notes
	a.left.Dirty = true
	a.right.Dirty = true
	p.RebuildBaseFromNotes()
}

// SetGlobalPitchOffset changes the project-wide offset and recomposes. The
// offset lives only inside composition and is never folded into base or
// delta.
func (p *Project) SetGlobalPitchOffset(semitones float64) {
	if semitones == p.GlobalPitchOffset {
		return
	}
	act := &globalOffsetAction{before: p.GlobalPitchOffset, after: semitones}
	act.Apply(p)
	p.undo.Push(act)
}

type globalOffsetAction struct {
	before float64
	after  float64
}

func (a *globalOffsetAction) Name() string { return "global pitch offset" }

func (a *globalOffsetAction) Apply(p *Project) {
	p.GlobalPitchOffset = a.after
	p.ComposeF0InPlace(true)
	p.MarkF0Dirty(0, p.Audio.NumFrames())
}

func (a *globalOffsetAction) Revert(p *Project) {
	p.GlobalPitchOffset = a.before
	p.ComposeF0InPlace(true)
	p.MarkF0Dirty(0, p.Audio.NumFrames())
}
