package effects

// Reverb is a Schroeder reverb: four parallel combs into two allpasses, fed
// from the mono sum.
//
// Opcodes: reverb_size (%), reverb_damp (%), reverb_dry (%), reverb_wet (%).
type Reverb struct {
	combs   [4]comb
	allpass [2]allpass
	dry     float32
	wet     float32
}

type comb struct {
	buf   []float32
	pos   int
	fb    float32
	damp  float32
	store float32
}

type allpass struct {
	buf []float32
	pos int
}

var (
	combRatios    = [4]int{1000, 1117, 1271, 1437}
	allpassRatios = [2]int{347, 213}
)

func newReverb(sampleRate int, p params) *Reverb {
	size := p.float("reverb_size", 50, 0, 100) / 100
	damp := p.percent("reverb_damp", 30)
	// Base comb length spans 10ms to 60ms; decay grows with the room.
	base := max(int(float64(sampleRate)*(0.01+0.05*size)), 10)
	fb := float32(0.6 + 0.34*size)

	r := &Reverb{
		dry: p.percent("reverb_dry", 100),
		wet: p.percent("reverb_wet", 25),
	}
	for i := range r.combs {
		r.combs[i] = comb{
			buf:  make([]float32, base*combRatios[i]/1000),
			fb:   fb,
			damp: damp,
		}
	}
	for i := range r.allpass {
		r.allpass[i] = allpass{buf: make([]float32, max(base*allpassRatios[i]/1000, 1))}
	}
	return r
}

func (r *Reverb) Process(l, rt float32) (float32, float32) {
	in := (l + rt) * 0.5
	var out float32
	for i := range r.combs {
		out += r.combs[i].process(in)
	}
	out *= 0.25
	for i := range r.allpass {
		out = r.allpass[i].process(out)
	}
	return l*r.dry + out*r.wet, rt*r.dry + out*r.wet
}

func (r *Reverb) Reset() {
	for i := range r.combs {
		clear(r.combs[i].buf)
		r.combs[i].pos = 0
		r.combs[i].store = 0
	}
	for i := range r.allpass {
		clear(r.allpass[i].buf)
		r.allpass[i].pos = 0
	}
}

func (c *comb) process(in float32) float32 {
	out := c.buf[c.pos]
	// One-pole lowpass in the feedback path darkens the tail.
	c.store = out*(1-c.damp) + c.store*c.damp
	c.buf[c.pos] = in + c.store*c.fb
	if c.pos++; c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

func (a *allpass) process(in float32) float32 {
	delayed := a.buf[a.pos]
	a.buf[a.pos] = in + delayed*0.5
	if a.pos++; a.pos >= len(a.buf) {
		a.pos = 0
	}
	return delayed - in
}
