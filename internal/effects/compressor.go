package effects

import "math"

// Compressor is a feed-forward peak compressor.
//
// Opcodes: comp_threshold (dB), comp_ratio, comp_attack (s), comp_release
// (s), comp_gain (dB makeup), comp_stlink (on/off).
type Compressor struct {
	threshold float32
	slope     float32 // 1/ratio - 1
	attack    float32
	release   float32
	makeup    float32
	link      bool
	envL      float32
	envR      float32
}

func newCompressor(sampleRate int, p params) *Compressor {
	ratio := p.float("comp_ratio", 1, 1, 50)
	return &Compressor{
		threshold: dbToGain(p.float("comp_threshold", 0, -100, 0)),
		slope:     float32(1/ratio - 1),
		attack:    coefficient(p.float("comp_attack", 0.005, 0, 10), sampleRate),
		release:   coefficient(p.float("comp_release", 0.05, 0, 10), sampleRate),
		makeup:    dbToGain(p.float("comp_gain", 0, -60, 60)),
		link:      p.bool("comp_stlink", false),
	}
}

func (c *Compressor) Process(l, r float32) (float32, float32) {
	c.envL = c.follow(c.envL, abs32(l))
	c.envR = c.follow(c.envR, abs32(r))
	if c.link {
		g := c.gain(max(c.envL, c.envR)) * c.makeup
		return l * g, r * g
	}
	return l * c.gain(c.envL) * c.makeup, r * c.gain(c.envR) * c.makeup
}

func (c *Compressor) follow(env, level float32) float32 {
	if level > env {
		return env + c.attack*(level-env)
	}
	return env + c.release*(level-env)
}

func (c *Compressor) gain(env float32) float32 {
	if env <= c.threshold || c.slope == 0 {
		return 1
	}
	return float32(math.Pow(float64(env/c.threshold), float64(c.slope)))
}

func (c *Compressor) Reset() {
	c.envL, c.envR = 0, 0
}

// coefficient is the one-pole smoothing factor for a time constant in seconds.
// Zero means instantaneous.
func coefficient(seconds float64, sampleRate int) float32 {
	if seconds <= 0 || sampleRate <= 0 {
		return 1
	}
	return float32(1 - math.Exp(-1/(seconds*float64(sampleRate))))
}

func dbToGain(db float64) float32 {
	return float32(math.Pow(10, db/20))
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
