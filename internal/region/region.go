package region

import (
	"math"

	"github.com/cbegin/sfzplay-go/internal/gain"
	"github.com/cbegin/sfzplay-go/internal/keyswitch"
	"github.com/cbegin/sfzplay-go/internal/lfo"
	"github.com/cbegin/sfzplay-go/internal/opcode"
)

// CCState is a snapshot of the 128 MIDI controller values.
type CCState [128]uint8

type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopOneShot
	LoopContinuous
	LoopSustain
)

func (m LoopMode) String() string {
	switch m {
	case LoopOneShot:
		return "one_shot"
	case LoopContinuous:
		return "loop_continuous"
	case LoopSustain:
		return "loop_sustain"
	default:
		return "no_loop"
	}
}

type Trigger int

const (
	TriggerAttack Trigger = iota
	TriggerRelease
	TriggerFirst
	TriggerLegato
)

func (t Trigger) String() string {
	switch t {
	case TriggerRelease:
		return "release"
	case TriggerFirst:
		return "first"
	case TriggerLegato:
		return "legato"
	default:
		return "attack"
	}
}

// Range is an inclusive integer range, always stored with Lo <= Hi.
type Range = keyswitch.Range

// RandRange is the half-open random layer interval [Lo, Hi).
type RandRange struct {
	Lo, Hi float64
}

func (r RandRange) Contains(draw float64) bool {
	return draw >= r.Lo && (draw < r.Hi || r.Hi >= 1 && draw <= 1)
}

type CCCondition struct {
	CC    int
	Range Range
}

type CCCrossfade struct {
	CC int
	gain.Axis
}

// EventKind says whether an event comes from a key press or a key release.
type EventKind int

const (
	NoteOnEvent EventKind = iota
	NoteOffEvent
)

// Event is what a region is matched against. Channel is 1-based as in the
// instrument text. Legato is true when other notes were held at note-on.
type Event struct {
	Kind     EventKind
	Note     int
	Velocity int
	Channel  int
	Legato   bool
}

// Region is one fully resolved sample rule. It is immutable once built; the
// only live state it consults is passed in by the caller.
type Region struct {
	Sample   string
	LoopMode LoopMode
	Stereo   bool

	KeyRange      Range
	VelocityRange Range
	ChannelRange  Range
	CCConditions  []CCCondition
	RandRange     RandRange
	Trigger       Trigger

	KeyCrossfade gain.Axis
	VelCrossfade gain.Axis
	CCCrossfades []CCCrossfade
	AmpVeltrack  float64

	SwitchRange    Range // sw_lokey..sw_hikey
	HasSwitchRange bool
	SwitchLast     int
	HasSwitchLast  bool
	SwitchDefault  int
	HasSwitchDef   bool

	Volume         float64 // dB
	Amplitude      float64 // percent
	AmplitudeCC    int
	AmplitudeDepth float64 // percent, applied when HasAmplitudeCC
	HasAmplitudeCC bool
	Pan            float64
	Width          float64
	Delay          float64 // seconds
	PitchKeycenter int
	Tune           int // cents
	Transpose      int
	Offset         int64
	LoopStart      int64
	LoopEnd        int64 // 0 means end of sample
	AmpegRelease   float64
	AmpLFO         lfo.Params // depth in dB
	PitchLFO       lfo.Params // depth in cents
	Group          int
	OffBy          int

	// Opcodes is the merged opcode set the region was built from, unknown
	// opcodes included.
	Opcodes []opcode.Opcode
}

// Matches reports whether the region fires for ev. draw is the caller's random
// number in [0, 1) for this event. It has no side effects.
func (r *Region) Matches(ev Event, cc *CCState, draw float64, sw *keyswitch.Tracker) bool {
	if !r.triggerMatches(ev) {
		return false
	}
	if !r.KeyRange.Contains(ev.Note) || !r.VelocityRange.Contains(ev.Velocity) {
		return false
	}
	if !r.ChannelRange.Contains(ev.Channel) {
		return false
	}
	for _, c := range r.CCConditions {
		if !c.Range.Contains(int(cc[c.CC])) {
			return false
		}
	}
	if !r.IsSwitchedOn(sw) {
		return false
	}
	return r.RandRange.Contains(draw)
}

func (r *Region) triggerMatches(ev Event) bool {
	switch r.Trigger {
	case TriggerRelease:
		return ev.Kind == NoteOffEvent
	case TriggerFirst:
		return ev.Kind == NoteOnEvent && !ev.Legato
	case TriggerLegato:
		return ev.Kind == NoteOnEvent && ev.Legato
	default:
		return ev.Kind == NoteOnEvent
	}
}

// NoteGain is velocity tracking times the key and velocity crossfades.
func (r *Region) NoteGain(note, velocity int) float64 {
	g := gain.VelocityTrack(r.AmpVeltrack, velocity)
	g *= r.KeyCrossfade.Gain(float64(note))
	g *= r.VelCrossfade.Gain(float64(velocity))
	return g
}

// CrossfadeGain multiplies the crossfades of every configured controller.
func (r *Region) CrossfadeGain(cc *CCState) float64 {
	g := 1.0
	for i := range r.CCCrossfades {
		x := &r.CCCrossfades[i]
		g *= x.Gain(float64(cc[x.CC]))
	}
	return g
}

// BaseGain is the static amplitude from volume and amplitude, scaled by the
// amplitude controller when one is configured.
func (r *Region) BaseGain(cc *CCState) float64 {
	g := math.Pow(10, r.Volume/20) * r.Amplitude / 100
	if r.HasAmplitudeCC {
		g *= float64(cc[r.AmplitudeCC]) / 127 * r.AmplitudeDepth / 100
	}
	return g
}

// KeyswitchTrigger is the range of notes this region contributes to the set
// that moves the switch: sw_lokey..sw_hikey, else its own sw_last key.
func (r *Region) KeyswitchTrigger() (Range, bool) {
	if r.HasSwitchRange {
		return r.SwitchRange, true
	}
	if r.HasSwitchLast {
		return Range{Lo: r.SwitchLast, Hi: r.SwitchLast}, true
	}
	return Range{}, false
}

// keyswitchOn is the range the active switch must fall in for the region to
// play: sw_last when given, else sw_lokey..sw_hikey.
func (r *Region) keyswitchOn() (Range, bool) {
	if r.HasSwitchLast {
		return Range{Lo: r.SwitchLast, Hi: r.SwitchLast}, true
	}
	if r.HasSwitchRange {
		return r.SwitchRange, true
	}
	return Range{}, false
}

// IsSwitchedOn is true for regions without keyswitch settings, and otherwise
// only while the tracker's active switch lies in the region's on-range.
func (r *Region) IsSwitchedOn(sw *keyswitch.Tracker) bool {
	on, ok := r.keyswitchOn()
	if !ok {
		return true
	}
	return sw != nil && sw.Within(on)
}
