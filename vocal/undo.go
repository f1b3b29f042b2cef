package vocal

// defaultUndoDepth bounds the undo history; the oldest entry is evicted
// when a new action would exceed it.
const defaultUndoDepth = 64

// Action is a reversible edit applied to a project. Redo must reproduce the
// exact state the original Apply left behind.
type Action interface {
	Apply(p *Project)
	Revert(p *Project)
	Name() string
}

// UndoStack is a bounded LIFO of applied actions. Pushing a new action
// clears the redo side.
type UndoStack struct {
	depth int
	done  []Action
	redo  []Action
}

func NewUndoStack(depth int) *UndoStack {
	if depth < 1 {
		depth = 1
	}
	return &UndoStack{depth: depth}
}

// Push records an already-applied action.
func (u *UndoStack) Push(a Action) {
	if len(u.done) >= u.depth {
		copy(u.done, u.done[1:])
		u.done = u.done[:len(u.done)-1]
	}
	u.done = append(u.done, a)
	u.redo = u.redo[:0]
}

// Undo reverts the most recent action. Returns false when the stack is
// empty.
func (u *UndoStack) Undo(p *Project) bool {
	if len(u.done) == 0 {
		return false
	}
	a := u.done[len(u.done)-1]
	u.done = u.done[:len(u.done)-1]
	a.Revert(p)
	u.redo = append(u.redo, a)
	return true
}

// Redo re-applies the most recently undone action.
func (u *UndoStack) Redo(p *Project) bool {
	if len(u.redo) == 0 {
		return false
	}
	a := u.redo[len(u.redo)-1]
	u.redo = u.redo[:len(u.redo)-1]
	a.Apply(p)
	u.done = append(u.done, a)
	return true
}

func (u *UndoStack) CanUndo() bool { return len(u.done) > 0 }
func (u *UndoStack) CanRedo() bool { return len(u.redo) > 0 }

// Len reports the number of undoable actions.
func (u *UndoStack) Len() int { return len(u.done) }

// Clear drops both histories, for example after loading a project file.
func (u *UndoStack) Clear() {
	u.done = u.done[:0]
	u.redo = u.redo[:0]
}
