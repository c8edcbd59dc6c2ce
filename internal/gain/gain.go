// Package gain evaluates crossfade windows and velocity tracking. Every
// function here is total, allocation-free and safe on the audio thread.
package gain

import "math"

// Curve selects the crossfade response.
type Curve int

const (
	// CurvePower is an equal-power fade: sqrt of the linear position.
	CurvePower Curve = iota
	// CurveGain is a linear amplitude fade.
	CurveGain
)

// ParseCurve reads xf_keycurve/xf_velcurve/xf_cccurve values.
func ParseCurve(s string) (Curve, bool) {
	switch s {
	case "power":
		return CurvePower, true
	case "gain":
		return CurveGain, true
	default:
		return CurvePower, false
	}
}

func (c Curve) String() string {
	if c == CurveGain {
		return "gain"
	}
	return "power"
}

// Fraction is the normalized position of v inside [lo, hi], clamped to [0, 1].
// A zero-width window is a step at lo.
func Fraction(v, lo, hi float64) float64 {
	if hi <= lo {
		if v < lo {
			return 0
		}
		return 1
	}
	x := (v - lo) / (hi - lo)
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func apply(x float64, c Curve) float64 {
	if c == CurveGain {
		return x
	}
	return math.Sqrt(x)
}

// FadeIn is 0 below lo, 1 above hi.
func FadeIn(v, lo, hi float64, c Curve) float64 {
	return apply(Fraction(v, lo, hi), c)
}

// FadeOut is 1 below lo, 0 above hi.
func FadeOut(v, lo, hi float64, c Curve) float64 {
	return apply(1-Fraction(v, lo, hi), c)
}

// VelocityTrack returns the amplitude factor for amp_veltrack percent t at
// MIDI velocity v. t=0 ignores velocity, t=100 is full gain at 127 and
// silence at 0, negative t mirrors the velocity axis.
func VelocityTrack(t float64, v int) float64 {
	if t == 0 {
		return 1
	}
	if t > 100 {
		t = 100
	} else if t < -100 {
		t = -100
	}
	if v < 0 {
		v = 0
	} else if v > 127 {
		v = 127
	}
	if t < 0 {
		return 1 + t/100*(1-normVelocity(127-v))
	}
	return 1 - t/100*(1-normVelocity(v))
}

func normVelocity(v int) float64 {
	return float64(v) / 127
}
