package region

import (
	"sort"
	"strings"

	"github.com/cbegin/sfzplay-go/internal/gain"
	"github.com/cbegin/sfzplay-go/internal/opcode"
)

const (
	reasonUnknown   = "unknown opcode"
	reasonMalformed = "malformed value"
	reasonNoIndex   = "missing controller number"
	reasonRange     = "controller number out of range"
)

// Options carries document-level context into Build.
type Options struct {
	// DefaultPath is prefixed to every non-generator sample (<control> default_path).
	DefaultPath string
	// Anomaly is told about every opcode that was ignored or fell back to its
	// default. It may be nil.
	Anomaly func(op opcode.Opcode, reason string)
}

// Default returns a region with every field at its documented default.
func Default() *Region {
	return &Region{
		KeyRange:       Range{Lo: 0, Hi: 127},
		VelocityRange:  Range{Lo: 0, Hi: 127},
		ChannelRange:   Range{Lo: 1, Hi: 16},
		SwitchRange:    Range{Lo: 0, Hi: 127},
		RandRange:      RandRange{Lo: 0, Hi: 1},
		AmpVeltrack:    100,
		Amplitude:      100,
		Width:          100,
		PitchKeycenter: 60,
		AmpegRelease:   0.001,
	}
}

type builder struct {
	r       *Region
	opts    Options
	conds   map[int]*Range
	xfades  map[int]*gain.Axis
	ccCurve gain.Curve
}

// Build converts a resolved opcode set into a typed Region. Opcodes are
// applied in the set's write order, so the most specific scope wins.
func Build(set *opcode.Set, opts Options) *Region {
	b := &builder{r: Default(), opts: opts}
	set.Each(b.apply)
	b.finish()
	b.r.Opcodes = set.Opcodes()
	return b.r
}

func (b *builder) anomaly(op opcode.Opcode, reason string) {
	if b.opts.Anomaly != nil {
		b.opts.Anomaly(op, reason)
	}
}

func (b *builder) apply(op opcode.Opcode) {
	if op.Kind == opcode.KindUnknown {
		b.anomaly(op, reasonUnknown)
		return
	}
	if op.Kind.Indexed() {
		if !op.HasIndex {
			b.anomaly(op, reasonNoIndex)
			return
		}
		if op.Index < 0 || op.Index > 127 {
			b.anomaly(op, reasonRange)
			return
		}
	}

	r := b.r
	switch op.Kind {
	case opcode.KindSample:
		r.Sample = op.Value
	case opcode.KindLoopMode:
		b.loopMode(op)
	case opcode.KindLoopStart:
		b.sampleOffset(op, &r.LoopStart)
	case opcode.KindLoopEnd:
		b.sampleOffset(op, &r.LoopEnd)
	case opcode.KindOffset:
		b.sampleOffset(op, &r.Offset)
	case opcode.KindDelay:
		b.float(op, &r.Delay, 0, 100)

	case opcode.KindKey:
		var k int
		if b.key(op, &k) {
			r.KeyRange = Range{Lo: k, Hi: k}
			r.PitchKeycenter = k
		}
	case opcode.KindLoKey:
		b.key(op, &r.KeyRange.Lo)
	case opcode.KindHiKey:
		b.key(op, &r.KeyRange.Hi)
	case opcode.KindLoVel:
		b.int(op, &r.VelocityRange.Lo, 0, 127)
	case opcode.KindHiVel:
		b.int(op, &r.VelocityRange.Hi, 0, 127)
	case opcode.KindLoChan:
		b.int(op, &r.ChannelRange.Lo, 1, 16)
	case opcode.KindHiChan:
		b.int(op, &r.ChannelRange.Hi, 1, 16)
	case opcode.KindLoCC:
		b.int(op, &b.cond(op.Index).Lo, 0, 127)
	case opcode.KindHiCC:
		b.int(op, &b.cond(op.Index).Hi, 0, 127)
	case opcode.KindLoRand:
		b.float(op, &r.RandRange.Lo, 0, 1)
	case opcode.KindHiRand:
		b.float(op, &r.RandRange.Hi, 0, 1)
	case opcode.KindTrigger:
		b.trigger(op)
	case opcode.KindGroup:
		b.int(op, &r.Group, -1<<31, 1<<31-1)
	case opcode.KindOffBy:
		b.int(op, &r.OffBy, -1<<31, 1<<31-1)

	case opcode.KindSwLoKey:
		if b.key(op, &r.SwitchRange.Lo) {
			b.markSwitchRange()
		}
	case opcode.KindSwHiKey:
		if b.key(op, &r.SwitchRange.Hi) {
			b.markSwitchRange()
		}
	case opcode.KindSwLast:
		if b.key(op, &r.SwitchLast) {
			r.HasSwitchLast = true
		}
	case opcode.KindSwDefault:
		if b.key(op, &r.SwitchDefault) {
			r.HasSwitchDef = true
		}

	case opcode.KindXfinLoKey:
		b.window(op, &r.KeyCrossfade.In, true)
	case opcode.KindXfinHiKey:
		b.window(op, &r.KeyCrossfade.In, false)
	case opcode.KindXfoutLoKey:
		b.window(op, &r.KeyCrossfade.Out, true)
	case opcode.KindXfoutHiKey:
		b.window(op, &r.KeyCrossfade.Out, false)
	case opcode.KindXfinLoVel:
		b.window(op, &r.VelCrossfade.In, true)
	case opcode.KindXfinHiVel:
		b.window(op, &r.VelCrossfade.In, false)
	case opcode.KindXfoutLoVel:
		b.window(op, &r.VelCrossfade.Out, true)
	case opcode.KindXfoutHiVel:
		b.window(op, &r.VelCrossfade.Out, false)
	case opcode.KindXfinLoCC:
		b.window(op, &b.xfade(op.Index).In, true)
	case opcode.KindXfinHiCC:
		b.window(op, &b.xfade(op.Index).In, false)
	case opcode.KindXfoutLoCC:
		b.window(op, &b.xfade(op.Index).Out, true)
	case opcode.KindXfoutHiCC:
		b.window(op, &b.xfade(op.Index).Out, false)
	case opcode.KindXfKeyCurve:
		b.curve(op, &r.KeyCrossfade.Curve)
	case opcode.KindXfVelCurve:
		b.curve(op, &r.VelCrossfade.Curve)
	case opcode.KindXfCCCurve:
		b.curve(op, &b.ccCurve)

	case opcode.KindAmpVeltrack:
		b.float(op, &r.AmpVeltrack, -100, 100)
	case opcode.KindVolume:
		b.float(op, &r.Volume, -144, 6)
	case opcode.KindAmplitude:
		b.float(op, &r.Amplitude, 0, 100)
	case opcode.KindAmplitudeCC:
		if b.float(op, &r.AmplitudeDepth, 0, 100) {
			r.AmplitudeCC = op.Index
			r.HasAmplitudeCC = true
		}
	case opcode.KindPan:
		b.float(op, &r.Pan, -100, 100)
	case opcode.KindWidth:
		b.float(op, &r.Width, -100, 100)
	case opcode.KindPitchKeycenter:
		b.key(op, &r.PitchKeycenter)
	case opcode.KindTune:
		b.int(op, &r.Tune, -100, 100)
	case opcode.KindTranspose:
		b.int(op, &r.Transpose, -127, 127)
	case opcode.KindAmpegRelease:
		b.float(op, &r.AmpegRelease, 0, 100)

	case opcode.KindAmpLFOFreq:
		b.float(op, &r.AmpLFO.Freq, 0, 20)
	case opcode.KindAmpLFODepth:
		b.float(op, &r.AmpLFO.Depth, -10, 10)
	case opcode.KindAmpLFODelay:
		b.float(op, &r.AmpLFO.Delay, 0, 100)
	case opcode.KindAmpLFOFade:
		b.float(op, &r.AmpLFO.Fade, 0, 100)
	case opcode.KindPitchLFOFreq:
		b.float(op, &r.PitchLFO.Freq, 0, 20)
	case opcode.KindPitchLFODepth:
		b.float(op, &r.PitchLFO.Depth, -1200, 1200)
	case opcode.KindPitchLFODelay:
		b.float(op, &r.PitchLFO.Delay, 0, 100)
	case opcode.KindPitchLFOFade:
		b.float(op, &r.PitchLFO.Fade, 0, 100)

	case opcode.KindDefaultPath, opcode.KindSetCC:
		// <control> only; meaningless on a region.
		b.anomaly(op, "control opcode outside <control>")
	}
}

func (b *builder) markSwitchRange() {
	b.r.HasSwitchRange = true
}

func (b *builder) cond(cc int) *Range {
	if b.conds == nil {
		b.conds = make(map[int]*Range)
	}
	c, ok := b.conds[cc]
	if !ok {
		c = &Range{Lo: 0, Hi: 127}
		b.conds[cc] = c
	}
	return c
}

func (b *builder) xfade(cc int) *gain.Axis {
	if b.xfades == nil {
		b.xfades = make(map[int]*gain.Axis)
	}
	x, ok := b.xfades[cc]
	if !ok {
		x = &gain.Axis{}
		b.xfades[cc] = x
	}
	return x
}

func (b *builder) finish() {
	r := b.r
	r.Sample = samplePath(b.opts.DefaultPath, r.Sample)

	r.KeyRange = ordered(r.KeyRange)
	r.VelocityRange = ordered(r.VelocityRange)
	r.ChannelRange = ordered(r.ChannelRange)
	r.SwitchRange = ordered(r.SwitchRange)
	if r.RandRange.Lo > r.RandRange.Hi {
		r.RandRange.Lo, r.RandRange.Hi = r.RandRange.Hi, r.RandRange.Lo
	}

	r.KeyCrossfade.In = r.KeyCrossfade.In.Normalize()
	r.KeyCrossfade.Out = r.KeyCrossfade.Out.Normalize()
	r.VelCrossfade.In = r.VelCrossfade.In.Normalize()
	r.VelCrossfade.Out = r.VelCrossfade.Out.Normalize()

	for cc, c := range b.conds {
		r.CCConditions = append(r.CCConditions, CCCondition{CC: cc, Range: ordered(*c)})
	}
	sort.Slice(r.CCConditions, func(i, j int) bool { return r.CCConditions[i].CC < r.CCConditions[j].CC })

	for cc, x := range b.xfades {
		axis := gain.Axis{In: x.In.Normalize(), Out: x.Out.Normalize(), Curve: b.ccCurve}
		r.CCCrossfades = append(r.CCCrossfades, CCCrossfade{CC: cc, Axis: axis})
	}
	sort.Slice(r.CCCrossfades, func(i, j int) bool { return r.CCCrossfades[i].CC < r.CCCrossfades[j].CC })
}

func ordered(r Range) Range {
	if r.Lo > r.Hi {
		r.Lo, r.Hi = r.Hi, r.Lo
	}
	return r
}

// IsGenerator reports whether a sample name refers to a built-in generator
// such as *sine rather than a file.
func IsGenerator(sample string) bool {
	return strings.HasPrefix(sample, "*")
}

func samplePath(defaultPath, sample string) string {
	sample = strings.ReplaceAll(strings.TrimSpace(sample), `\`, "/")
	if sample == "" || IsGenerator(sample) {
		return sample
	}
	return strings.ReplaceAll(defaultPath, `\`, "/") + sample
}

func (b *builder) int(op opcode.Opcode, dst *int, lo, hi int) bool {
	v, ok := opcode.ParseInt(op.Value)
	if !ok {
		b.anomaly(op, reasonMalformed)
		return false
	}
	*dst = clampInt(v, lo, hi)
	return true
}

func (b *builder) key(op opcode.Opcode, dst *int) bool {
	v, ok := opcode.ParseKey(op.Value)
	if !ok {
		b.anomaly(op, reasonMalformed)
		return false
	}
	*dst = clampInt(v, 0, 127)
	return true
}

func (b *builder) float(op opcode.Opcode, dst *float64, lo, hi float64) bool {
	v, ok := opcode.ParseFloat(op.Value)
	if !ok {
		b.anomaly(op, reasonMalformed)
		return false
	}
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	*dst = v
	return true
}

func (b *builder) sampleOffset(op opcode.Opcode, dst *int64) {
	var v int
	if b.int(op, &v, 0, 1<<31-1) {
		*dst = int64(v)
	}
}

func (b *builder) window(op opcode.Opcode, w *gain.Window, low bool) {
	var v int
	if !b.int(op, &v, 0, 127) {
		return
	}
	if !w.Set {
		// The bound not given spans to the end of the axis.
		w.Lo, w.Hi = 0, 127
		w.Set = true
	}
	if low {
		w.Lo = float64(v)
	} else {
		w.Hi = float64(v)
	}
}

func (b *builder) curve(op opcode.Opcode, dst *gain.Curve) {
	c, ok := gain.ParseCurve(op.Value)
	if !ok {
		b.anomaly(op, reasonMalformed)
	}
	*dst = c
}

func (b *builder) loopMode(op opcode.Opcode) {
	switch op.Value {
	case "no_loop":
		b.r.LoopMode = LoopNone
	case "one_shot":
		b.r.LoopMode = LoopOneShot
	case "loop_continuous":
		b.r.LoopMode = LoopContinuous
	case "loop_sustain":
		b.r.LoopMode = LoopSustain
	default:
		b.anomaly(op, reasonMalformed)
	}
}

func (b *builder) trigger(op opcode.Opcode) {
	switch op.Value {
	case "attack":
		b.r.Trigger = TriggerAttack
	case "release", "release_key":
		b.r.Trigger = TriggerRelease
	case "first":
		b.r.Trigger = TriggerFirst
	case "legato":
		b.r.Trigger = TriggerLegato
	default:
		b.anomaly(op, reasonMalformed)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
