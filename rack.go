package sfzplay

import (
	"github.com/cbegin/sfzplay-go/internal/effects"
	"github.com/cbegin/sfzplay-go/internal/region"
	"github.com/cbegin/sfzplay-go/internal/sampler"
)

// rack feeds the regions a Synth selects into a sampler engine and runs the
// mix through the instrument's effect chain. It implements sequencer.Target
// and runs on the rendering goroutine.
type rack struct {
	synth   *Synth
	engine  *sampler.Engine
	matches []Match
	cc      region.CCState

	fxFor *Instrument
	fx    *effects.Chain
}

func newRack(s *Synth, engine *sampler.Engine) *rack {
	r := &rack{
		synth:   s,
		engine:  engine,
		matches: make([]Match, 0, 16),
	}
	r.syncEffects()
	return r
}

// syncEffects rebuilds the effect chain when a reload published a new
// instrument. Effect tails restart from silence.
func (r *rack) syncEffects() {
	in := r.synth.Instrument()
	if in == r.fxFor {
		return
	}
	r.fxFor = in
	r.fx = effects.Build(r.engine.SampleRate(), in.Effects(), func(i int, err error) {
		r.synth.log.Warn("effect ignored", "index", i, "error", err)
		r.synth.cfg.metrics.Anomaly("unsupported effect")
	})
}

func (r *rack) NoteOn(channel, note, velocity int) {
	r.matches = r.synth.NoteOn(r.matches[:0], channel, note, velocity)
	r.start(channel, note)
}

func (r *rack) NoteOff(channel, note, velocity int) {
	r.engine.Release(channel, note)
	r.matches = r.synth.NoteOff(r.matches[:0], channel, note, velocity)
	r.start(channel, note)
}

func (r *rack) ControlChange(channel, cc, value int) {
	r.synth.ControlChange(channel, cc, value)
}

func (r *rack) AllNotesOff() {
	r.engine.ReleaseAll()
}

func (r *rack) RenderFrame() (float32, float32) {
	r.syncEffects()
	return r.fx.Process(r.engine.RenderFrame())
}

func (r *rack) ActiveVoiceCount() int {
	return r.engine.ActiveVoiceCount()
}

func (r *rack) start(channel, note int) {
	if len(r.matches) == 0 {
		return
	}
	in := r.synth.Instrument()
	r.synth.CCSnapshot(&r.cc)
	for _, m := range r.matches {
		id := r.engine.Start(sampler.Note{
			Region:   m.Region,
			Path:     in.SamplePath(m.Region.Sample),
			Channel:  channel,
			Note:     note,
			Velocity: m.Velocity,
			Gain:     m.Gain * m.Region.BaseGain(&r.cc),
		})
		if id < 0 {
			r.synth.log.Debug("region has no playable sample", "index", m.Index, "sample", m.Region.Sample)
		}
	}
}
