package sfzplay

import (
	"log/slog"
	"path/filepath"

	"github.com/cbegin/sfzplay-go/internal/keyswitch"
	"github.com/cbegin/sfzplay-go/internal/metrics"
	"github.com/cbegin/sfzplay-go/internal/opcode"
	"github.com/cbegin/sfzplay-go/internal/parser"
	"github.com/cbegin/sfzplay-go/internal/region"
	"github.com/cbegin/sfzplay-go/internal/samplefile"
	"github.com/cbegin/sfzplay-go/internal/scope"
)

// Instrument is one immutable load result. A Synth publishes a new Instrument
// on every successful load; holders of an older one keep a consistent view.
type Instrument struct {
	regions   []*region.Region
	files     []string
	dir       string
	initialCC region.CCState
	hasCC     [128]bool
	triggers  []keyswitch.Range
	defaultSw int // -1 when no region sets sw_default
	release   bool
	skipped   int
	effects   []*opcode.Set
}

func (in *Instrument) NumRegions() int { return len(in.regions) }

// Region returns the i-th region in document order. It panics when i is out
// of range.
func (in *Instrument) Region(i int) *region.Region { return in.regions[i] }

// Regions returns the regions in document order.
func (in *Instrument) Regions() []*region.Region {
	out := make([]*region.Region, len(in.regions))
	copy(out, in.regions)
	return out
}

// Files lists every file read to build the instrument, root first.
func (in *Instrument) Files() []string {
	out := make([]string, len(in.files))
	copy(out, in.files)
	return out
}

// Dir is the directory sample paths are relative to.
func (in *Instrument) Dir() string { return in.dir }

// SamplePath resolves a region's sample identifier to a file path. Generator
// samples are returned unchanged.
func (in *Instrument) SamplePath(sample string) string {
	if sample == "" || region.IsGenerator(sample) {
		return sample
	}
	p := filepath.FromSlash(sample)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(in.dir, p)
}

// SamplePaths lists the resolved file paths of every sample the regions use,
// without duplicates or generators, in first-use order.
func (in *Instrument) SamplePaths() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range in.regions {
		if r.Sample == "" || region.IsGenerator(r.Sample) {
			continue
		}
		p := in.SamplePath(r.Sample)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Effects returns the <effect> blocks in document order. The sets must not
// be modified.
func (in *Instrument) Effects() []*opcode.Set {
	out := make([]*opcode.Set, len(in.effects))
	copy(out, in.effects)
	return out
}

// DefaultSwitch is the initial keyswitch set by sw_default, if any.
func (in *Instrument) DefaultSwitch() (int, bool) {
	return in.defaultSw, in.defaultSw >= 0
}

// InitialCC returns the controller values set by <control> set_ccN.
func (in *Instrument) InitialCC() (cc region.CCState, set [128]bool) {
	return in.initialCC, in.hasCC
}

// instrumentBuilder turns a preprocessed document into an Instrument.
type instrumentBuilder struct {
	log     *slog.Logger
	probe   func(path string) (samplefile.Info, error)
	metrics *metrics.Metrics
	probed  map[string]samplefile.Info
}

func (b *instrumentBuilder) build(res *parser.Result, dir string) *Instrument {
	doc := scope.Resolve(res.Tokens, b.log)
	in := &Instrument{
		files:     res.Files,
		dir:       dir,
		defaultSw: -1,
		skipped:   res.SkippedIncludes,
		effects:   doc.Effects,
	}
	for i := 0; i < doc.Dropped; i++ {
		b.metrics.Anomaly("outside scope")
	}
	paths := b.control(in, doc.Controls)

	in.regions = make([]*region.Region, 0, len(doc.Regions))
	for i, set := range doc.Regions {
		opts := region.Options{Anomaly: b.anomaly}
		if c := doc.RegionControl[i]; c >= 0 {
			opts.DefaultPath = paths[c]
		}
		r := region.Build(set, opts)
		b.stereo(in, r)
		if trig, ok := r.KeyswitchTrigger(); ok {
			in.triggers = append(in.triggers, trig)
		}
		if r.HasSwitchDef {
			in.defaultSw = r.SwitchDefault
		}
		if r.Trigger == region.TriggerRelease {
			in.release = true
		}
		in.regions = append(in.regions, r)
	}
	return in
}

// control applies every <control> block in order and returns the
// default_path in effect after each one. A block without default_path keeps
// the previous block's.
func (b *instrumentBuilder) control(in *Instrument, blocks []*opcode.Set) []string {
	paths := make([]string, len(blocks))
	var path string
	for i, set := range blocks {
		path = b.controlBlock(in, set, path)
		paths[i] = path
	}
	return paths
}

func (b *instrumentBuilder) controlBlock(in *Instrument, set *opcode.Set, path string) string {
	set.Each(func(op opcode.Opcode) {
		switch op.Kind {
		case opcode.KindDefaultPath:
			path = op.Value
		case opcode.KindSetCC:
			v, ok := opcode.ParseInt(op.Value)
			if !ok || !op.HasIndex || op.Index < 0 || op.Index > 127 {
				b.anomaly(op, "malformed value")
				return
			}
			in.initialCC[op.Index] = uint8(min(max(v, 0), 127))
			in.hasCC[op.Index] = true
		default:
			b.anomaly(op, "not a control opcode")
		}
	})
	return path
}

func (b *instrumentBuilder) anomaly(op opcode.Opcode, reason string) {
	b.log.Debug("opcode ignored", "opcode", op.String(), "reason", reason)
	b.metrics.Anomaly(reason)
}

// stereo reads the channel count of the region's sample file. Unreadable
// samples are treated as mono; the voice layer reports them when it loads.
func (b *instrumentBuilder) stereo(in *Instrument, r *region.Region) {
	if r.Sample == "" || region.IsGenerator(r.Sample) || b.probe == nil {
		return
	}
	path := in.SamplePath(r.Sample)
	info, ok := b.probed[path]
	if !ok {
		var err error
		info, err = b.probe(path)
		if err != nil {
			b.log.Debug("sample header unreadable, assuming mono", "sample", r.Sample, "error", err)
		}
		b.probed[path] = info
	}
	r.Stereo = info.Stereo()
}
