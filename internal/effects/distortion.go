package effects

import "math"

// Distortion is a tanh waveshaper followed by a one-pole tone filter.
//
// Opcodes: disto_depth (%), disto_tone (%), disto_dry (%), disto_wet (%).
type Distortion struct {
	drive    float64
	norm     float32
	alpha    float32
	dry, wet float32
	lpL, lpR float32
}

func newDistortion(sampleRate int, p params) *Distortion {
	drive := 1 + p.float("disto_depth", 0, 0, 100)/5
	// disto_tone sweeps the cutoff from 500 Hz to just under Nyquist.
	tone := p.float("disto_tone", 100, 0, 100) / 100
	nyquist := float64(sampleRate) / 2
	cutoff := 500 * math.Pow(nyquist*0.9/500, tone)
	return &Distortion{
		drive: drive,
		norm:  float32(1 / math.Tanh(drive)),
		alpha: onePole(cutoff, sampleRate),
		dry:   p.percent("disto_dry", 0),
		wet:   p.percent("disto_wet", 100),
	}
}

func (d *Distortion) Process(l, r float32) (float32, float32) {
	sl := float32(math.Tanh(float64(l)*d.drive)) * d.norm
	sr := float32(math.Tanh(float64(r)*d.drive)) * d.norm
	d.lpL += d.alpha * (sl - d.lpL)
	d.lpR += d.alpha * (sr - d.lpR)
	return l*d.dry + d.lpL*d.wet, r*d.dry + d.lpR*d.wet
}

func (d *Distortion) Reset() {
	d.lpL, d.lpR = 0, 0
}

// onePole returns the smoothing factor of an RC lowpass at cutoff Hz.
func onePole(cutoff float64, sampleRate int) float32 {
	if cutoff <= 0 || sampleRate <= 0 {
		return 1
	}
	rc := 1 / (2 * math.Pi * cutoff)
	dt := 1 / float64(sampleRate)
	return float32(dt / (rc + dt))
}
