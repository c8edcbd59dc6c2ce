// Package lfo implements the per-voice low-frequency oscillators behind the
// amplfo_* and pitchlfo_* opcodes.
package lfo

import "math"

// Params describes one oscillator as written in the instrument.
type Params struct {
	Freq  float64 // Hz
	Depth float64 // dB for amplitude, cents for pitch
	Delay float64 // seconds of silence after note-on
	Fade  float64 // seconds to ramp from zero to full depth after the delay
}

// Active reports whether the oscillator modulates anything.
func (p Params) Active() bool { return p.Freq > 0 && p.Depth != 0 }

// LFO is a sine oscillator that starts at note-on. The zero value is
// inactive and always returns 0.
type LFO struct {
	depth    float64
	inc      float64 // phase increment per frame
	phase    float64 // [0, 1)
	wait     int     // frames left in the delay
	fade     float64 // depth scale, ramps to 1
	fadeStep float64
}

func New(p Params, sampleRate float64) LFO {
	if !p.Active() || sampleRate <= 0 {
		return LFO{}
	}
	l := LFO{
		depth: p.Depth,
		inc:   p.Freq / sampleRate,
		wait:  int(p.Delay * sampleRate),
		fade:  1,
	}
	if n := p.Fade * sampleRate; n >= 1 {
		l.fade = 0
		l.fadeStep = 1 / n
	}
	return l
}

func (l *LFO) Active() bool { return l.inc > 0 }

// Sample returns the value for the current frame, in [-depth, depth], and
// advances by one frame.
func (l *LFO) Sample() float64 {
	if l.inc == 0 {
		return 0
	}
	if l.wait > 0 {
		l.wait--
		return 0
	}
	v := math.Sin(2*math.Pi*l.phase) * l.depth * l.fade
	l.phase += l.inc
	if l.phase >= 1 {
		l.phase -= math.Floor(l.phase)
	}
	if l.fade < 1 {
		l.fade = math.Min(1, l.fade+l.fadeStep)
	}
	return v
}
