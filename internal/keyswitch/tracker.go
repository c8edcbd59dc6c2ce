// Package keyswitch tracks the currently selected switch key of one engine
// instance.
package keyswitch

import "sync/atomic"

// Range is an inclusive key range.
type Range struct {
	Lo, Hi int
}

func (r Range) Contains(key int) bool { return key >= r.Lo && key <= r.Hi }

// Tracker holds the last note that landed inside any trigger range. The
// active key is a single atomically updated value, so one writer (the event
// dispatcher) and any number of readers (matching) never observe a torn state.
// The zero value has no trigger ranges and no active switch.
type Tracker struct {
	active   atomic.Int32 // key+1, 0 when no switch is active
	triggers atomic.Pointer[[]Range]
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Reset installs the trigger ranges of a freshly loaded instrument and the
// initial switch. Pass a negative initial key for "no active switch".
func (t *Tracker) Reset(triggers []Range, initial int) {
	cp := make([]Range, len(triggers))
	copy(cp, triggers)
	t.triggers.Store(&cp)
	if initial < 0 || initial > 127 {
		t.active.Store(0)
		return
	}
	t.active.Store(int32(initial) + 1)
}

// NoteOn selects note as the active switch when it lies inside any trigger
// range, whether or not some region is keyed to that exact note.
func (t *Tracker) NoteOn(note int) bool {
	tr := t.triggers.Load()
	if tr == nil {
		return false
	}
	for _, r := range *tr {
		if r.Contains(note) {
			t.active.Store(int32(note) + 1)
			return true
		}
	}
	return false
}

// NoteOff never changes the selected switch.
func (t *Tracker) NoteOff(note int) {}

// Active returns the selected switch key, if any.
func (t *Tracker) Active() (int, bool) {
	v := t.active.Load()
	if v == 0 {
		return 0, false
	}
	return int(v) - 1, true
}

// Within reports whether the active switch lies inside r.
func (t *Tracker) Within(r Range) bool {
	key, ok := t.Active()
	return ok && r.Contains(key)
}
