package sequencer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	Type    EventType
	Frame   int64
	Channel int
	Key     int
	Value   int
}

type countingTarget struct {
	frame  int64
	calls  []call
	active int
	// decay is the number of frames each voice stays active after its note-off.
	decay   int
	release []int
}

func (c *countingTarget) NoteOn(channel, note, velocity int) {
	c.calls = append(c.calls, call{NoteOn, c.frame, channel, note, velocity})
	c.active++
}

func (c *countingTarget) NoteOff(channel, note, velocity int) {
	c.calls = append(c.calls, call{NoteOff, c.frame, channel, note, velocity})
	if c.active > 0 {
		c.active--
		c.release = append(c.release, c.decay)
	}
}

func (c *countingTarget) ControlChange(channel, cc, value int) {
	c.calls = append(c.calls, call{ControlChange, c.frame, channel, cc, value})
}

func (c *countingTarget) AllNotesOff() {
	c.calls = append(c.calls, call{Type: AllNotesOff, Frame: c.frame})
	c.active = 0
}

func (c *countingTarget) RenderFrame() (float32, float32) {
	c.frame++
	j := 0
	for _, r := range c.release {
		if r > 1 {
			c.release[j] = r - 1
			j++
		}
	}
	c.release = c.release[:j]
	if c.active > 0 {
		return 0.5, -0.5
	}
	return 0, 0
}

func (c *countingTarget) ActiveVoiceCount() int { return c.active + len(c.release) }

func TestSequencerAppliesEventsAtTheirFrame(t *testing.T) {
	target := &countingTarget{}
	seq := New(target, 1000, []Event{
		{Frame: 10, Type: NoteOff, Channel: 1, Key: 60},
		{Frame: 0, Type: ControlChange, Channel: 1, Key: 64, Value: 127},
		{Frame: 2, Type: NoteOn, Channel: 1, Key: 60, Value: 100},
	})
	buf := make([]float32, 20*2)
	seq.Process(buf)

	require.Len(t, target.calls, 3)
	assert.Equal(t, call{ControlChange, 0, 1, 64, 127}, target.calls[0])
	assert.Equal(t, call{NoteOn, 2, 1, 60, 100}, target.calls[1])
	assert.Equal(t, call{NoteOff, 10, 1, 60, 0}, target.calls[2])

	assert.Zero(t, buf[0])
	assert.Equal(t, float32(0.5), buf[2*2])
	assert.Equal(t, float32(-0.5), buf[2*2+1])
	assert.Zero(t, buf[10*2])
	assert.Equal(t, int64(20), seq.Frame())
	assert.Equal(t, int64(10), seq.Duration())
}

func TestSequencerKeepsOrderWithinAFrame(t *testing.T) {
	target := &countingTarget{}
	seq := New(target, 1000, []Event{
		{Frame: 5, Type: NoteOn, Channel: 1, Key: 40, Value: 1},
		{Frame: 5, Type: NoteOn, Channel: 1, Key: 60, Value: 1},
		{Frame: 5, Type: NoteOff, Channel: 1, Key: 40},
	})
	seq.Process(make([]float32, 10*2))
	require.Len(t, target.calls, 3)
	assert.Equal(t, 40, target.calls[0].Key)
	assert.Equal(t, 60, target.calls[1].Key)
	assert.Equal(t, NoteOff, target.calls[2].Type)
}

func TestSequencerNoteOnWithZeroVelocityReleases(t *testing.T) {
	target := &countingTarget{}
	seq := New(target, 1000, []Event{
		{Frame: 0, Type: NoteOn, Channel: 2, Key: 60, Value: 90},
		{Frame: 1, Type: NoteOn, Channel: 2, Key: 60, Value: 0},
	})
	seq.Process(make([]float32, 4))
	require.Len(t, target.calls, 2)
	assert.Equal(t, NoteOff, target.calls[1].Type)
}

func TestSequencerEndsAfterReleaseTail(t *testing.T) {
	target := &countingTarget{decay: 5}
	var events []EventKind
	seq := NewWithOptions(target, 1000, []Event{
		{Frame: 0, Type: NoteOn, Channel: 1, Key: 60, Value: 100},
		{Frame: 10, Type: NoteOff, Channel: 1, Key: 60},
	}, Options{
		ReleaseTailFrames: 3,
		OnEvent:           func(k EventKind) { events = append(events, k) },
	})

	seq.Process(make([]float32, 16*2))
	assert.Empty(t, events, "voice still decaying")
	assert.False(t, seq.Finished())

	seq.Process(make([]float32, 10*2))
	assert.Equal(t, []EventKind{EventPlaybackEnded}, events)
	assert.True(t, seq.Finished())

	seq.Process(make([]float32, 10*2))
	assert.Len(t, events, 1, "ended fires once")
}

func TestSequencerLoopsScheduleWhenEnabled(t *testing.T) {
	target := &countingTarget{}
	loops := 0
	seq := NewWithOptions(target, 1000, []Event{
		{Frame: 0, Type: NoteOn, Channel: 1, Key: 60, Value: 100},
		{Frame: 5, Type: NoteOff, Channel: 1, Key: 60},
	}, Options{
		LoopSchedule:      true,
		ReleaseTailFrames: 5,
		OnEvent: func(k EventKind) {
			if k == EventLoopCompleted {
				loops++
			}
		},
	})
	seq.Process(make([]float32, 100*2))
	assert.GreaterOrEqual(t, loops, 2)

	noteOns := 0
	for _, c := range target.calls {
		if c.Type == NoteOn {
			noteOns++
		}
	}
	assert.Greater(t, noteOns, 2, "schedule retriggers")
	assert.False(t, seq.Finished())
}

func TestSequencerLiveEvents(t *testing.T) {
	target := &countingTarget{}
	var ended bool
	seq := NewWithOptions(target, 1000, nil, Options{
		Live:              true,
		ReleaseTailFrames: 1,
		OnEvent:           func(EventKind) { ended = true },
	})
	seq.Process(make([]float32, 8))
	assert.False(t, ended, "live sequencers never end on their own")

	seq.Push(Event{Type: NoteOn, Channel: 1, Key: 64, Value: 80})
	seq.Push(Event{Type: AllNotesOff})
	seq.Process(make([]float32, 8))
	require.Len(t, target.calls, 2)
	assert.Equal(t, call{NoteOn, 4, 1, 64, 80}, target.calls[0])
	assert.Equal(t, AllNotesOff, target.calls[1].Type)
	assert.False(t, ended)
}

func TestFramesAt(t *testing.T) {
	assert.Equal(t, int64(48000), FramesAt(time.Second, 48000))
	assert.Equal(t, int64(22050), FramesAt(500*time.Millisecond, 44100))
	assert.Equal(t, int64(0), FramesAt(0, 44100))
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "note_on", NoteOn.String())
	assert.Equal(t, "control_change", ControlChange.String())
	assert.Equal(t, "unknown", EventType(42).String())
}
