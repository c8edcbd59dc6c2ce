// Package sequencer plays frame-stamped note and controller events into a
// voice target while rendering its audio.
package sequencer

import (
	"sort"
	"sync"
	"time"
)

// Target receives events and renders the voices they start.
type Target interface {
	NoteOn(channel, note, velocity int)
	NoteOff(channel, note, velocity int)
	ControlChange(channel, cc, value int)
	// AllNotesOff releases every sounding voice.
	AllNotesOff()
	RenderFrame() (float32, float32)
	// ActiveVoiceCount returns the number of voices still sounding, release
	// tails included. Used to detect when playback has fully ended.
	ActiveVoiceCount() int
}

// EventType identifies a scheduled event.
type EventType int

const (
	NoteOn EventType = iota
	NoteOff
	ControlChange
	AllNotesOff
)

func (t EventType) String() string {
	switch t {
	case NoteOn:
		return "note_on"
	case NoteOff:
		return "note_off"
	case ControlChange:
		return "control_change"
	case AllNotesOff:
		return "all_notes_off"
	}
	return "unknown"
}

// Event is one scheduled event. Frame is the output frame it applies at;
// Key is the note or controller number and Value the velocity or controller
// value. Channel is 1-based.
type Event struct {
	Frame   int64
	Type    EventType
	Channel int
	Key     int
	Value   int
}

// EventKind identifies sequencer lifecycle events.
type EventKind int

const (
	EventLoopCompleted EventKind = iota
	EventPlaybackEnded
)

type Options struct {
	// LoopSchedule restarts the schedule once it and every release tail
	// have finished.
	LoopSchedule bool
	// Live keeps the sequencer running after the schedule is exhausted, for
	// events pushed from an input device.
	Live              bool
	OnEvent           func(EventKind)
	ReleaseTailFrames int // extra frames to render after the last voice ends (0 = 0.5s)
}

type Sequencer struct {
	target     Target
	sampleRate int
	events     []Event
	next       int
	frame      int64

	loopSchedule       bool
	live               bool
	onEvent            func(EventKind)
	tailFrames         int
	releaseTailFrames  int
	loopPending        bool
	loopTailCountdown  int
	commandExhausted   bool
	playbackEndedFired bool

	mu      sync.Mutex
	pending []Event
	drain   []Event
}

func New(target Target, sampleRate int, events []Event) *Sequencer {
	return NewWithOptions(target, sampleRate, events, Options{})
}

// NewWithOptions creates a sequencer over a copy of events, ordered by frame.
// Events sharing a frame keep their relative order.
func NewWithOptions(target Target, sampleRate int, events []Event, opts Options) *Sequencer {
	tailFrames := opts.ReleaseTailFrames
	if tailFrames <= 0 {
		tailFrames = sampleRate / 2
	}
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })
	return &Sequencer{
		target:            target,
		sampleRate:        sampleRate,
		events:            sorted,
		loopSchedule:      opts.LoopSchedule,
		live:              opts.Live,
		onEvent:           opts.OnEvent,
		tailFrames:        tailFrames,
		releaseTailFrames: tailFrames,
		loopTailCountdown: tailFrames,
	}
}

// Push queues an event to apply at the start of the next Process call. It is
// safe to call from any goroutine; the event's Frame is ignored.
func (s *Sequencer) Push(ev Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
}

// Frame returns the number of frames rendered since the schedule (re)started.
func (s *Sequencer) Frame() int64 { return s.frame }

// Duration is the frame of the last scheduled event.
func (s *Sequencer) Duration() int64 {
	if len(s.events) == 0 {
		return 0
	}
	return s.events[len(s.events)-1].Frame
}

// Finished reports whether playback has ended: the schedule is exhausted and
// every voice tail has been rendered.
func (s *Sequencer) Finished() bool { return s.playbackEndedFired }

// Process renders len(dst)/2 interleaved stereo frames, applying events as
// their frames come due.
func (s *Sequencer) Process(dst []float32) {
	s.applyPending()
	frames := len(dst) / 2
	for f := 0; f < frames; f++ {
		for s.next < len(s.events) && s.events[s.next].Frame <= s.frame {
			s.apply(s.events[s.next])
			s.next++
		}
		if s.next >= len(s.events) && !s.live {
			if s.loopSchedule {
				s.loopPending = true
			} else {
				s.commandExhausted = true
			}
		}
		l, r := s.target.RenderFrame()
		dst[f*2] = l
		dst[f*2+1] = r
		s.frame++

		if s.loopPending && s.target.ActiveVoiceCount() == 0 {
			if s.loopTailCountdown <= 0 {
				s.restart()
				if s.onEvent != nil {
					s.onEvent(EventLoopCompleted)
				}
			} else {
				s.loopTailCountdown--
			}
		}
		if s.commandExhausted && !s.playbackEndedFired && s.target.ActiveVoiceCount() == 0 {
			if s.releaseTailFrames <= 0 {
				s.playbackEndedFired = true
				if s.onEvent != nil {
					s.onEvent(EventPlaybackEnded)
				}
			} else {
				s.releaseTailFrames--
			}
		}
	}
}

func (s *Sequencer) applyPending() {
	s.mu.Lock()
	s.drain, s.pending = s.pending, s.drain[:0]
	s.mu.Unlock()
	for _, ev := range s.drain {
		s.apply(ev)
	}
}

func (s *Sequencer) apply(ev Event) {
	switch ev.Type {
	case NoteOn:
		if ev.Value == 0 {
			s.target.NoteOff(ev.Channel, ev.Key, 0)
			return
		}
		s.target.NoteOn(ev.Channel, ev.Key, ev.Value)
	case NoteOff:
		s.target.NoteOff(ev.Channel, ev.Key, ev.Value)
	case ControlChange:
		s.target.ControlChange(ev.Channel, ev.Key, ev.Value)
	case AllNotesOff:
		s.target.AllNotesOff()
	}
}

func (s *Sequencer) restart() {
	s.loopPending = false
	s.loopTailCountdown = s.tailFrames
	s.next = 0
	s.frame = 0
}

// FramesAt converts a time offset to a frame position at sampleRate.
func FramesAt(d time.Duration, sampleRate int) int64 {
	return int64(d.Seconds()*float64(sampleRate) + 0.5)
}
