// Package sampler renders the regions picked by the matcher: sample playback
// with pitch, loop, pan and release handling, plus the built-in generators.
package sampler

import (
	"math"
	"math/rand/v2"
	"sync/atomic"

	"github.com/cbegin/sfzplay-go/internal/lfo"
	"github.com/cbegin/sfzplay-go/internal/region"
)

const (
	twoPi     = math.Pi * 2
	maxVoices = 256
)

// Params controls the sampler engine.
type Params struct {
	Polyphony  int
	MasterGain float64
	AttackSec  float64 // fade-in applied to every voice
	ChokeSec   float64 // release time used when a voice is cut by off_by
}

// DefaultParams returns sensible defaults for sample playback.
func DefaultParams() Params {
	return Params{
		Polyphony:  64,
		MasterGain: 0.8,
		AttackSec:  0.001,
		ChokeSec:   0.006,
	}
}

// Note starts one voice for a selected region.
type Note struct {
	Region *region.Region
	// Path is the resolved sample path used to look the sample up in the
	// bank. Generators use the region's sample name.
	Path     string
	Channel  int
	Note     int
	Velocity int
	// Gain is the linear gain of the voice: note, crossfade and base gain
	// combined.
	Gain float64
}

type envState int

const (
	envAttack envState = iota
	envSustain
	envRelease
	envOff
)

type voice struct {
	active   bool
	id       int
	channel  int
	note     int
	group    int
	offBy    int
	oneShot  bool // ignores note-off
	sustain  bool // loops only until released
	sample   *Sample
	gen      generator
	pos      float64
	step     float64
	end      float64
	loopFrom float64
	loopTo   float64
	looping  bool
	delay    int
	gain     float64
	panL     float64
	panR     float64
	width    float64
	env      float64
	envState envState
	relStep  float64
	ampLFO   lfo.LFO // dB
	pitchLFO lfo.LFO // cents
}

// Engine mixes sample voices. It is driven from a single goroutine, except
// SetMasterGain and SetBank which may be called from anywhere.
type Engine struct {
	sampleRate float64
	params     Params
	voices     []voice
	nextID     int
	masterGain uint64
	bank       atomic.Pointer[Bank]
}

// New creates a sampler at the given sample rate with an empty bank.
func New(sampleRate int, params Params) *Engine {
	if params.Polyphony <= 0 {
		params.Polyphony = DefaultParams().Polyphony
	}
	if params.Polyphony > maxVoices {
		params.Polyphony = maxVoices
	}
	e := &Engine{
		sampleRate: float64(sampleRate),
		params:     params,
		voices:     make([]voice, params.Polyphony),
		masterGain: math.Float64bits(params.MasterGain),
	}
	e.bank.Store(NewBank())
	return e
}

func (e *Engine) SampleRate() int { return int(e.sampleRate) }

// SetBank swaps the sample bank. Voices already playing keep their sample.
func (e *Engine) SetBank(b *Bank) {
	if b == nil {
		b = NewBank()
	}
	e.bank.Store(b)
}

func (e *Engine) Bank() *Bank { return e.bank.Load() }

// Start begins a voice for n and returns its id, or -1 when the region has no
// playable sample.
func (e *Engine) Start(n Note) int {
	r := n.Region
	if r == nil {
		return -1
	}
	v := voice{
		channel: n.Channel,
		note:    n.Note,
		group:   r.Group,
		offBy:   r.OffBy,
		oneShot: r.LoopMode == region.LoopOneShot || r.Trigger == region.TriggerRelease,
		sustain: r.LoopMode == region.LoopSustain,
		gain:    n.Gain,
		width:   r.Width / 100,
		delay:   int(r.Delay * e.sampleRate),

		ampLFO:   lfo.New(r.AmpLFO, e.sampleRate),
		pitchLFO: lfo.New(r.PitchLFO, e.sampleRate),
	}
	ratio := math.Pow(2, (float64(n.Note-r.PitchKeycenter+r.Transpose)+float64(r.Tune)/100)/12)

	if region.IsGenerator(r.Sample) {
		gen, ok := newGenerator(r.Sample)
		if !ok {
			return -1
		}
		v.gen = gen
		freq := midiToFreq(n.Note+r.Transpose) * math.Pow(2, float64(r.Tune)/1200)
		v.step = freq / e.sampleRate
	} else {
		s, ok := e.bank.Load().Get(n.Path)
		if !ok || s.Frames == 0 {
			return -1
		}
		v.sample = s
		v.step = ratio
		v.end = float64(s.Frames)
		v.pos = math.Min(float64(r.Offset)*s.Scale, v.end)
		if r.LoopMode == region.LoopContinuous || r.LoopMode == region.LoopSustain {
			from := float64(r.LoopStart) * s.Scale
			to := v.end
			if r.LoopEnd > 0 {
				to = math.Min(float64(r.LoopEnd+1)*s.Scale, v.end)
			}
			if to > from {
				v.loopFrom, v.loopTo, v.looping = from, to, true
			}
		}
	}

	// Equal-power stereo panning.
	angle := ((r.Pan + 100) / 200) * (math.Pi / 2)
	v.panL = math.Cos(angle)
	v.panR = math.Sin(angle)

	if r.Group != 0 {
		e.choke(r.Group)
	}

	slot := e.stealVoice()
	v.active = true
	v.id = e.nextID
	e.nextID++
	if e.params.AttackSec > 0 {
		v.envState = envAttack
	} else {
		v.env = 1
		v.envState = envSustain
	}
	v.relStep = 1 / math.Max(r.AmpegRelease*e.sampleRate, 1)
	e.voices[slot] = v
	return v.id
}

// Release moves the voices held by a note into their release stage. One-shot
// voices play on.
func (e *Engine) Release(channel, note int) {
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active || v.oneShot || v.channel != channel || v.note != note {
			continue
		}
		v.release()
	}
}

// ReleaseAll releases every voice, one-shots included.
func (e *Engine) ReleaseAll() {
	for i := range e.voices {
		if e.voices[i].active {
			e.voices[i].release()
		}
	}
}

func (e *Engine) choke(group int) {
	step := 1 / math.Max(e.params.ChokeSec*e.sampleRate, 1)
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.offBy == group && v.envState != envRelease {
			v.release()
			v.relStep = math.Max(v.relStep, step)
		}
	}
}

func (v *voice) release() {
	if v.envState == envRelease {
		return
	}
	v.envState = envRelease
	if v.sustain {
		v.looping = false
	}
}

// RenderFrame produces one stereo sample pair.
func (e *Engine) RenderFrame() (float32, float32) {
	master := e.masterGainValue()
	var l, r float64
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active {
			continue
		}
		if v.delay > 0 {
			v.delay--
			continue
		}
		env := e.advanceEnv(v)
		if !v.active {
			continue
		}
		sl, sr, ok := v.next()
		if !ok {
			v.active = false
			continue
		}
		g := env * v.gain * master
		if v.ampLFO.Active() {
			g *= math.Pow(10, v.ampLFO.Sample()/20)
		}
		l += sl * v.panL * g
		r += sr * v.panR * g
	}
	return float32(clamp(l, -1, 1)), float32(clamp(r, -1, 1))
}

// next reads the voice's current frame and advances it.
func (v *voice) next() (float64, float64, bool) {
	step := v.step
	if v.pitchLFO.Active() {
		step *= math.Pow(2, v.pitchLFO.Sample()/1200)
	}
	if v.gen != nil {
		s := v.gen.sample(v.pos)
		v.pos += step
		if v.pos >= 1 {
			v.pos -= math.Floor(v.pos)
		}
		return s, s, true
	}
	if v.pos >= v.end {
		return 0, 0, false
	}
	data := v.sample.Data
	idx := math.Floor(v.pos)
	frac := v.pos - idx
	i0 := int(idx)
	i1 := i0 + 1
	if v.looping && float64(i1) >= v.loopTo {
		i1 = int(v.loopFrom)
	}
	if i1 >= v.sample.Frames {
		i1 = i0
	}
	l := float64(data[i0*2])*(1-frac) + float64(data[i1*2])*frac
	r := float64(data[i0*2+1])*(1-frac) + float64(data[i1*2+1])*frac
	if v.sample.Stereo && v.width != 1 {
		mid := (l + r) / 2
		side := (l - r) / 2 * v.width
		l, r = mid+side, mid-side
	}

	v.pos += step
	if v.looping && v.pos >= v.loopTo {
		v.pos = v.loopFrom + math.Mod(v.pos-v.loopFrom, v.loopTo-v.loopFrom)
	}
	return l, r, true
}

// SetMasterGain sets the master gain atomically.
func (e *Engine) SetMasterGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	atomic.StoreUint64(&e.masterGain, math.Float64bits(gain))
}

func (e *Engine) MasterGain() float64 { return e.masterGainValue() }

// ActiveVoiceCount returns the number of voices still sounding or waiting on
// their delay.
func (e *Engine) ActiveVoiceCount() int {
	n := 0
	for i := range e.voices {
		if e.voices[i].active {
			n++
		}
	}
	return n
}

func (e *Engine) masterGainValue() float64 {
	return math.Float64frombits(atomic.LoadUint64(&e.masterGain))
}

func (e *Engine) stealVoice() int {
	for i := range e.voices {
		if !e.voices[i].active {
			return i
		}
	}
	quiet := 0
	minEnv := e.voices[0].env * e.voices[0].gain
	for i := 1; i < len(e.voices); i++ {
		if lvl := e.voices[i].env * e.voices[i].gain; lvl < minEnv {
			minEnv = lvl
			quiet = i
		}
	}
	return quiet
}

func (e *Engine) advanceEnv(v *voice) float64 {
	switch v.envState {
	case envAttack:
		step := 1.0 / (e.params.AttackSec * e.sampleRate)
		if step <= 0 || math.IsInf(step, 1) {
			step = 1
		}
		v.env += step
		if v.env >= 1 {
			v.env = 1
			v.envState = envSustain
		}
	case envSustain:
		// hold
	case envRelease:
		v.env -= v.relStep
		if v.env <= 0.0001 {
			v.env = 0
			v.envState = envOff
			v.active = false
		}
	case envOff:
		v.active = false
		v.env = 0
	}
	return v.env
}

// generator produces one sample for a phase in [0, 1).
type generator interface {
	sample(phase float64) float64
}

type genFunc func(phase float64) float64

func (f genFunc) sample(phase float64) float64 { return f(phase) }

func newGenerator(name string) (generator, bool) {
	switch name {
	case "*sine":
		return genFunc(func(p float64) float64 { return math.Sin(twoPi * p) }), true
	case "*saw":
		return genFunc(func(p float64) float64 { return 2*p - 1 }), true
	case "*square":
		return genFunc(func(p float64) float64 {
			if p < 0.5 {
				return 1
			}
			return -1
		}), true
	case "*triangle", "*tri":
		return genFunc(func(p float64) float64 { return 1 - 4*math.Abs(p-0.5) }), true
	case "*noise":
		return genFunc(func(float64) float64 { return rand.Float64()*2 - 1 }), true
	case "*silence":
		return genFunc(func(float64) float64 { return 0 }), true
	}
	return nil, false
}

func midiToFreq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
