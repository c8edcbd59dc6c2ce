package gain

// Window is an optional crossfade range on one axis.
type Window struct {
	Lo, Hi float64
	Set    bool
}

// Normalize orders the bounds.
func (w Window) Normalize() Window {
	if w.Lo > w.Hi {
		w.Lo, w.Hi = w.Hi, w.Lo
	}
	return w
}

func (w Window) FadeIn(v float64, c Curve) float64 {
	if !w.Set {
		return 1
	}
	return FadeIn(v, w.Lo, w.Hi, c)
}

func (w Window) FadeOut(v float64, c Curve) float64 {
	if !w.Set {
		return 1
	}
	return FadeOut(v, w.Lo, w.Hi, c)
}

// Axis holds the fade-in and fade-out windows of one control axis. When both
// are configured their gains multiply.
type Axis struct {
	In, Out Window
	Curve   Curve
}

func (a *Axis) Configured() bool { return a.In.Set || a.Out.Set }

func (a *Axis) Gain(v float64) float64 {
	return a.In.FadeIn(v, a.Curve) * a.Out.FadeOut(v, a.Curve)
}
