// Package sfzplay loads SFZ instrument definitions and resolves which regions
// fire, and how loud, for incoming note and controller events.
package sfzplay

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbegin/sfzplay-go/internal/keyswitch"
	"github.com/cbegin/sfzplay-go/internal/metrics"
	"github.com/cbegin/sfzplay-go/internal/parser"
	"github.com/cbegin/sfzplay-go/internal/region"
	"github.com/cbegin/sfzplay-go/internal/samplefile"
)

// Match is one region selected by a note event.
type Match struct {
	Index  int // position in document order
	Region *region.Region
	// Gain is the region's note gain times its controller crossfade gain.
	Gain float64
	// Velocity is the velocity the region was triggered with. Release
	// regions use the velocity of the note-on they answer.
	Velocity int
}

// RegionView binds a region to the keyswitch state of the Synth it came from.
type RegionView struct {
	*region.Region
	sw *keyswitch.Tracker
}

func (v RegionView) IsSwitchedOn() bool { return v.Region.IsSwitchedOn(v.sw) }

// Matches checks the region against a note-on with the given controller
// snapshot and random draw.
func (v RegionView) Matches(channel, note, velocity int, cc *region.CCState, draw float64) bool {
	ev := region.Event{Kind: region.NoteOnEvent, Note: note, Velocity: velocity, Channel: channel}
	return v.Region.Matches(ev, cc, draw, v.sw)
}

// Synth is one engine instance: the published instrument plus the live state
// (keyswitch, controllers, held notes) that matching consults.
//
// Loads may run from any goroutine and are serialized internally; queries are
// safe from any goroutine. The note event methods track held notes and must be
// called from a single dispatcher goroutine.
type Synth struct {
	cfg   synthConfig
	log   *slog.Logger
	guard atomic.Bool

	loadMu sync.Mutex
	inst   atomic.Pointer[Instrument]

	sw *keyswitch.Tracker
	cc [128]atomic.Uint32

	// gen counts publishes; the dispatcher drops its held notes when it
	// sees a newer one.
	gen     atomic.Uint64
	heldGen uint64
	down    [16][128]uint8 // note-on velocity+1, 0 when up
	held    int
}

func New(opts ...Option) *Synth {
	cfg := defaultSynthConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.metrics == nil {
		cfg.metrics = metrics.Default()
	}
	s := &Synth{
		cfg: cfg,
		log: cfg.logger,
		sw:  keyswitch.NewTracker(),
	}
	s.guard.Store(cfg.includeGuard)
	s.inst.Store(&Instrument{defaultSw: -1})
	return s
}

// SetIncludeGuardEnabled changes include-cycle handling for later loads.
func (s *Synth) SetIncludeGuardEnabled(enabled bool) {
	s.guard.Store(enabled)
}

// LoadDocument reads the instrument at path and publishes it. On failure the
// previously published instrument stays in place.
func (s *Synth) LoadDocument(path string) error {
	return s.load(path, func(p *parser.Parser) (*parser.Result, error) {
		return p.Load(path)
	}, filepath.Dir(path))
}

// LoadString parses an in-memory instrument. Includes and samples resolve
// against dir.
func (s *Synth) LoadString(src string, dir string) error {
	return s.load("<memory>", func(p *parser.Parser) (*parser.Result, error) {
		return p.Parse(src, dir)
	}, dir)
}

func (s *Synth) load(name string, read func(*parser.Parser) (*parser.Result, error), dir string) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	start := time.Now()
	p := parser.New(parser.Options{IncludeGuard: s.guard.Load(), Logger: s.log})
	res, err := read(p)
	if err != nil {
		s.cfg.metrics.LoadFailed(time.Since(start))
		return fmt.Errorf("load %s: %w", name, err)
	}
	b := &instrumentBuilder{
		log:     s.log,
		probe:   s.cfg.probe,
		metrics: s.cfg.metrics,
		probed:  make(map[string]samplefile.Info),
	}
	in := b.build(res, dir)
	s.publish(in)

	elapsed := time.Since(start)
	s.cfg.metrics.LoadSucceeded(elapsed, len(in.regions), in.skipped)
	s.log.Info("instrument loaded",
		"source", name,
		"regions", len(in.regions),
		"files", len(in.files),
		"skipped_includes", in.skipped,
		"elapsed", elapsed)
	return nil
}

// publish stores in before resetting the keyswitch and controllers, so a
// concurrent reader sees the new regions with at worst the previous switch
// and CC values, never new trigger ranges against old regions. Held notes
// are dropped by the dispatcher on its next note event.
func (s *Synth) publish(in *Instrument) {
	s.inst.Store(in)
	s.sw.Reset(in.triggers, in.defaultSw)
	for i := range s.cc {
		s.cc[i].Store(uint32(in.initialCC[i]))
	}
	s.gen.Add(1)
}

// syncHeld clears held-note state after a reload. Dispatcher goroutine only.
func (s *Synth) syncHeld() {
	if g := s.gen.Load(); g != s.heldGen {
		s.heldGen = g
		s.down = [16][128]uint8{}
		s.held = 0
	}
}

// Instrument returns the currently published instrument.
func (s *Synth) Instrument() *Instrument { return s.inst.Load() }

func (s *Synth) NumRegions() int { return s.inst.Load().NumRegions() }

// Region returns the i-th region bound to this Synth's keyswitch state. It
// panics when i is out of range.
func (s *Synth) Region(i int) RegionView {
	return RegionView{Region: s.inst.Load().Region(i), sw: s.sw}
}

func (s *Synth) Regions() []RegionView {
	in := s.inst.Load()
	out := make([]RegionView, len(in.regions))
	for i, r := range in.regions {
		out[i] = RegionView{Region: r, sw: s.sw}
	}
	return out
}

// Files lists the files read by the last successful load.
func (s *Synth) Files() []string { return s.inst.Load().Files() }

// Keyswitch returns the active switch key, if any.
func (s *Synth) Keyswitch() (int, bool) { return s.sw.Active() }

// ControlChange records a controller value. Values are clamped to 0..127.
func (s *Synth) ControlChange(channel, cc, value int) {
	if cc < 0 || cc > 127 {
		return
	}
	s.cc[cc].Store(uint32(clamp7(value)))
}

// CC returns the current value of controller cc.
func (s *Synth) CC(cc int) int {
	if cc < 0 || cc > 127 {
		return 0
	}
	return int(s.cc[cc].Load())
}

// CCSnapshot copies the current controller values into dst.
func (s *Synth) CCSnapshot(dst *region.CCState) {
	for i := range s.cc {
		dst[i] = uint8(s.cc[i].Load())
	}
}

// NoteOn updates the keyswitch and appends to dst every region that fires
// for the note. channel is 1-based.
func (s *Synth) NoteOn(dst []Match, channel, note, velocity int) []Match {
	if note < 0 || note > 127 {
		return dst
	}
	velocity = clamp7(velocity)
	s.syncHeld()
	s.sw.NoteOn(note)

	ev := region.Event{
		Kind:     region.NoteOnEvent,
		Note:     note,
		Velocity: velocity,
		Channel:  channel,
		Legato:   s.held > 0,
	}
	if ch := chanIndex(channel); ch >= 0 {
		if s.down[ch][note] == 0 {
			s.held++
		}
		s.down[ch][note] = uint8(velocity) + 1
	}
	n := len(dst)
	dst = s.Select(dst, ev)
	s.cfg.metrics.NoteOn(len(dst) - n)
	return dst
}

// NoteOff appends the release-triggered regions for the note. It never moves
// the keyswitch.
func (s *Synth) NoteOff(dst []Match, channel, note, velocity int) []Match {
	if note < 0 || note > 127 {
		return dst
	}
	s.syncHeld()
	s.sw.NoteOff(note)
	velocity = clamp7(velocity)
	if ch := chanIndex(channel); ch >= 0 {
		if v := s.down[ch][note]; v != 0 {
			velocity = int(v) - 1
			s.down[ch][note] = 0
			s.held--
		}
	}
	if !s.inst.Load().release {
		s.cfg.metrics.NoteOff(0)
		return dst
	}
	ev := region.Event{
		Kind:     region.NoteOffEvent,
		Note:     note,
		Velocity: velocity,
		Channel:  channel,
		Legato:   s.held > 0,
	}
	n := len(dst)
	dst = s.Select(dst, ev)
	s.cfg.metrics.NoteOff(len(dst) - n)
	return dst
}

// Select appends every region of the published instrument matching ev. It
// draws one random number for the whole event and does not touch note or
// keyswitch state.
func (s *Synth) Select(dst []Match, ev region.Event) []Match {
	in := s.inst.Load()
	if len(in.regions) == 0 {
		return dst
	}
	var cc region.CCState
	s.CCSnapshot(&cc)
	draw := s.cfg.rand()
	for i, r := range in.regions {
		if !r.Matches(ev, &cc, draw, s.sw) {
			continue
		}
		dst = append(dst, Match{
			Index:    i,
			Region:   r,
			Gain:     r.NoteGain(ev.Note, ev.Velocity) * r.CrossfadeGain(&cc),
			Velocity: ev.Velocity,
		})
	}
	return dst
}

func chanIndex(channel int) int {
	if channel < 1 || channel > 16 {
		return -1
	}
	return channel - 1
}

func clamp7(v int) int {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return v
}
