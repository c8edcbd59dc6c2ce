package keyswitch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerStartsWithoutSwitch(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.Active()
	assert.False(t, ok)
	assert.False(t, tr.NoteOn(40), "no trigger ranges installed")
}

func TestTrackerDefaultAndTransitions(t *testing.T) {
	tr := NewTracker()
	tr.Reset([]Range{{Lo: 40, Hi: 42}}, 40)

	key, ok := tr.Active()
	assert.True(t, ok)
	assert.Equal(t, 40, key)

	assert.True(t, tr.NoteOn(41))
	tr.NoteOff(41)
	key, _ = tr.Active()
	assert.Equal(t, 41, key, "note-off keeps the switch")

	assert.False(t, tr.NoteOn(60))
	key, _ = tr.Active()
	assert.Equal(t, 41, key, "notes outside every range are ignored")

	assert.True(t, tr.Within(Range{Lo: 41, Hi: 41}))
	assert.False(t, tr.Within(Range{Lo: 40, Hi: 40}))
}

func TestTrackerResetWithoutDefault(t *testing.T) {
	tr := NewTracker()
	tr.Reset([]Range{{Lo: 36, Hi: 38}}, 37)
	tr.Reset([]Range{{Lo: 36, Hi: 38}}, -1)
	_, ok := tr.Active()
	assert.False(t, ok)
	assert.False(t, tr.Within(Range{Lo: 0, Hi: 127}))
}

func TestTrackerConcurrentReaders(t *testing.T) {
	tr := NewTracker()
	tr.Reset([]Range{{Lo: 0, Hi: 127}}, 0)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.NoteOn(i % 128)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if key, ok := tr.Active(); ok {
				assert.True(t, key >= 0 && key <= 127)
			}
		}
	}()
	wg.Wait()
}
