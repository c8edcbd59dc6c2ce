package effects

// EQ splits the signal into low, mid and high bands with two one-pole
// crossovers and applies a gain to each.
//
// Opcodes: eq1_freq (Hz, low crossover), eq3_freq (Hz, high crossover),
// eq1_gain, eq2_gain, eq3_gain (dB).
type EQ struct {
	gains    [3]float32
	lowA     float32
	highA    float32
	lpL, lpR float32
	hpL, hpR float32
}

func newEQ(sampleRate int, p params) *EQ {
	nyquist := float64(sampleRate) / 2
	low := p.float("eq1_freq", 200, 10, nyquist)
	high := p.float("eq3_freq", 5000, low, nyquist)
	return &EQ{
		gains: [3]float32{
			dbToGain(p.float("eq1_gain", 0, -96, 24)),
			dbToGain(p.float("eq2_gain", 0, -96, 24)),
			dbToGain(p.float("eq3_gain", 0, -96, 24)),
		},
		lowA:  onePole(low, sampleRate),
		highA: onePole(high, sampleRate),
	}
}

func (eq *EQ) Process(l, r float32) (float32, float32) {
	eq.lpL += eq.lowA * (l - eq.lpL)
	eq.lpR += eq.lowA * (r - eq.lpR)
	eq.hpL += eq.highA * (l - eq.hpL)
	eq.hpR += eq.highA * (r - eq.hpR)

	lowL, lowR := eq.lpL, eq.lpR
	highL, highR := l-eq.hpL, r-eq.hpR
	midL, midR := l-lowL-highL, r-lowR-highR
	return lowL*eq.gains[0] + midL*eq.gains[1] + highL*eq.gains[2],
		lowR*eq.gains[0] + midR*eq.gains[1] + highR*eq.gains[2]
}

func (eq *EQ) Reset() {
	eq.lpL, eq.lpR = 0, 0
	eq.hpL, eq.hpR = 0, 0
}
