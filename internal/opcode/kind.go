package opcode

// Kind is the closed set of opcode families the engine understands. Anything
// else resolves to KindUnknown: it is carried through the hierarchy but every
// typed consumer skips it.
type Kind int

const (
	KindUnknown Kind = iota

	// sample playback
	KindSample
	KindDefaultPath
	KindLoopMode
	KindLoopStart
	KindLoopEnd
	KindOffset
	KindDelay

	// trigger predicates
	KindKey
	KindLoKey
	KindHiKey
	KindLoVel
	KindHiVel
	KindLoChan
	KindHiChan
	KindLoCC
	KindHiCC
	KindLoRand
	KindHiRand
	KindTrigger
	KindGroup
	KindOffBy

	// keyswitch
	KindSwLoKey
	KindSwHiKey
	KindSwLast
	KindSwDefault

	// crossfades
	KindXfinLoKey
	KindXfinHiKey
	KindXfoutLoKey
	KindXfoutHiKey
	KindXfinLoVel
	KindXfinHiVel
	KindXfoutLoVel
	KindXfoutHiVel
	KindXfinLoCC
	KindXfinHiCC
	KindXfoutLoCC
	KindXfoutHiCC
	KindXfKeyCurve
	KindXfVelCurve
	KindXfCCCurve

	// amplitude and pitch
	KindAmpVeltrack
	KindVolume
	KindAmplitude
	KindAmplitudeCC
	KindPan
	KindWidth
	KindPitchKeycenter
	KindTune
	KindTranspose
	KindAmpegRelease

	// low-frequency oscillators
	KindAmpLFOFreq
	KindAmpLFODepth
	KindAmpLFODelay
	KindAmpLFOFade
	KindPitchLFOFreq
	KindPitchLFODepth
	KindPitchLFODelay
	KindPitchLFOFade

	// control header
	KindSetCC
)

var kindsByName = map[string]Kind{
	"sample":          KindSample,
	"default_path":    KindDefaultPath,
	"loop_mode":       KindLoopMode,
	"loopmode":        KindLoopMode,
	"loop_start":      KindLoopStart,
	"loopstart":       KindLoopStart,
	"loop_end":        KindLoopEnd,
	"loopend":         KindLoopEnd,
	"offset":          KindOffset,
	"delay":           KindDelay,
	"key":             KindKey,
	"lokey":           KindLoKey,
	"hikey":           KindHiKey,
	"lovel":           KindLoVel,
	"hivel":           KindHiVel,
	"lochan":          KindLoChan,
	"hichan":          KindHiChan,
	"locc":            KindLoCC,
	"hicc":            KindHiCC,
	"lorand":          KindLoRand,
	"hirand":          KindHiRand,
	"trigger":         KindTrigger,
	"group":           KindGroup,
	"off_by":          KindOffBy,
	"offby":           KindOffBy,
	"sw_lokey":        KindSwLoKey,
	"sw_hikey":        KindSwHiKey,
	"sw_last":         KindSwLast,
	"sw_default":      KindSwDefault,
	"xfin_lokey":      KindXfinLoKey,
	"xfin_hikey":      KindXfinHiKey,
	"xfout_lokey":     KindXfoutLoKey,
	"xfout_hikey":     KindXfoutHiKey,
	"xfin_lovel":      KindXfinLoVel,
	"xfin_hivel":      KindXfinHiVel,
	"xfout_lovel":     KindXfoutLoVel,
	"xfout_hivel":     KindXfoutHiVel,
	"xfin_locc":       KindXfinLoCC,
	"xfin_hicc":       KindXfinHiCC,
	"xfout_locc":      KindXfoutLoCC,
	"xfout_hicc":      KindXfoutHiCC,
	"xf_keycurve":     KindXfKeyCurve,
	"xf_velcurve":     KindXfVelCurve,
	"xf_cccurve":      KindXfCCCurve,
	"amp_veltrack":    KindAmpVeltrack,
	"volume":          KindVolume,
	"amplitude":       KindAmplitude,
	"amplitude_cc":    KindAmplitudeCC,
	"amplitude_oncc":  KindAmplitudeCC,
	"pan":             KindPan,
	"width":           KindWidth,
	"pitch_keycenter": KindPitchKeycenter,
	"tune":            KindTune,
	"transpose":       KindTranspose,
	"ampeg_release":   KindAmpegRelease,
	"amplfo_freq":     KindAmpLFOFreq,
	"amplfo_depth":    KindAmpLFODepth,
	"amplfo_delay":    KindAmpLFODelay,
	"amplfo_fade":     KindAmpLFOFade,
	"pitchlfo_freq":   KindPitchLFOFreq,
	"pitchlfo_depth":  KindPitchLFODepth,
	"pitchlfo_delay":  KindPitchLFODelay,
	"pitchlfo_fade":   KindPitchLFOFade,
	"set_cc":          KindSetCC,
}

// indexed lists the families whose name carries a numeric suffix.
var indexed = map[Kind]bool{
	KindLoCC:        true,
	KindHiCC:        true,
	KindXfinLoCC:    true,
	KindXfinHiCC:    true,
	KindXfoutLoCC:   true,
	KindXfoutHiCC:   true,
	KindAmplitudeCC: true,
	KindSetCC:       true,
}

// Lookup maps a suffix-free opcode name to its Kind.
func Lookup(name string) Kind {
	return kindsByName[name]
}

// Indexed reports whether opcodes of this kind require a numeric suffix.
func (k Kind) Indexed() bool {
	return indexed[k]
}
