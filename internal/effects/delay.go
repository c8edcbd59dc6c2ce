package effects

// Delay is a stereo feedback delay with optional ping-pong crossfeed.
//
// Opcodes: delay_time (s), delay_feedback (%), delay_cross (%), delay_dry
// (%), delay_wet (%).
type Delay struct {
	bufL, bufR []float32
	pos        int
	feedback   float32
	cross      float32
	dry        float32
	wet        float32
}

const maxDelaySeconds = 10

func newDelay(sampleRate int, p params) *Delay {
	n := max(int(p.float("delay_time", 0.25, 0, maxDelaySeconds)*float64(sampleRate)), 1)
	return &Delay{
		bufL:     make([]float32, n),
		bufR:     make([]float32, n),
		feedback: clamp(p.percent("delay_feedback", 30), 0, 0.95),
		cross:    p.percent("delay_cross", 0),
		dry:      p.percent("delay_dry", 100),
		wet:      p.percent("delay_wet", 30),
	}
}

func (d *Delay) Process(l, r float32) (float32, float32) {
	outL, outR := d.bufL[d.pos], d.bufR[d.pos]
	d.bufL[d.pos] = l + d.feedback*(outL*(1-d.cross)+outR*d.cross)
	d.bufR[d.pos] = r + d.feedback*(outR*(1-d.cross)+outL*d.cross)
	if d.pos++; d.pos >= len(d.bufL) {
		d.pos = 0
	}
	return l*d.dry + outL*d.wet, r*d.dry + outR*d.wet
}

func (d *Delay) Reset() {
	clear(d.bufL)
	clear(d.bufR)
	d.pos = 0
}
