package sfzplay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	intaudio "github.com/cbegin/sfzplay-go/internal/audio"
	"github.com/cbegin/sfzplay-go/internal/metrics"
	"github.com/cbegin/sfzplay-go/internal/midiin"
	"github.com/cbegin/sfzplay-go/internal/sampler"
	"github.com/cbegin/sfzplay-go/internal/sequencer"
	"github.com/cbegin/sfzplay-go/internal/watch"
)

// EventKind identifies a PlaybackEvent.
type EventKind int

const (
	// EventLoopCompleted: a looped schedule finished one pass.
	EventLoopCompleted EventKind = iota
	// EventPlaybackEnded: playback finished or was stopped.
	EventPlaybackEnded
	// EventInstrumentReloaded: Reload published a new instrument.
	EventInstrumentReloaded
	// EventReloadFailed: Reload failed; Err says why and the previous
	// instrument stays loaded.
	EventReloadFailed
)

func (k EventKind) String() string {
	switch k {
	case EventLoopCompleted:
		return "loop_completed"
	case EventPlaybackEnded:
		return "playback_ended"
	case EventInstrumentReloaded:
		return "instrument_reloaded"
	case EventReloadFailed:
		return "reload_failed"
	default:
		return "unknown"
	}
}

// PlaybackEvent is delivered to every Watch channel.
type PlaybackEvent struct {
	Kind EventKind
	Err  error
}

// watchBuffer is the capacity of each Watch channel. Events that find a
// channel full are dropped for that subscriber.
const watchBuffer = 8

type PlayerOption func(*playerConfig)

type playerConfig struct {
	loopPlayback bool
	sampleTap    func([]float32)
	synthOpts    []Option
	params       sampler.Params
	bufferSize   time.Duration
	tail         time.Duration
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{params: sampler.DefaultParams(), tail: 500 * time.Millisecond}
}

// WithLoopPlayback restarts a scheduled performance once it and its release
// tails have finished.
func WithLoopPlayback(enabled bool) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.loopPlayback = enabled
	}
}

// WithSampleTap installs a callback that sees every rendered stereo buffer,
// effects included. It runs on the audio goroutine and must not block or
// retain the buffer.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

// WithSynthOptions configures the Synth the player drives.
func WithSynthOptions(opts ...Option) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.synthOpts = append(cfg.synthOpts, opts...)
	}
}

func WithPolyphony(voices int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.params.Polyphony = voices
	}
}

// WithBufferSize sets the audio device buffer length.
func WithBufferSize(d time.Duration) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.bufferSize = d
	}
}

// WithReleaseTail sets how long playback keeps rendering after the last
// voice has ended.
func WithReleaseTail(d time.Duration) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.tail = d
	}
}

// Player plays note events through a Synth and a sample engine on the audio
// device.
type Player struct {
	mu           sync.Mutex
	synth        *Synth
	engine       *sampler.Engine
	params       sampler.Params
	sampleRate   int
	baseGain     float64
	volume       float64
	tailFrames   int
	loopPlayback bool
	sampleTap    func([]float32)
	bufferSize   time.Duration
	path         string
	current      *playback

	watchMu  sync.Mutex
	watchers []chan PlaybackEvent
}

// playback is the audio source of one PlayEvents/PlayLive call. It reports
// Finished once the sequencer has ended, so the stream returns io.EOF.
type playback struct {
	seq     *sequencer.Sequencer
	rack    *rack
	audio   *intaudio.Player
	metrics *metrics.Metrics
	ended   atomic.Bool
	onLoop  func()
	onEnded func()

	done   chan struct{}
	finish func() // closes done once
}

func newPlayback(r *rack, m *metrics.Metrics) *playback {
	pb := &playback{rack: r, metrics: m, done: make(chan struct{})}
	pb.finish = sync.OnceFunc(func() { close(pb.done) })
	return pb
}

func (pb *playback) Process(dst []float32) {
	pb.seq.Process(dst)
	pb.metrics.ActiveVoices(pb.rack.ActiveVoiceCount())
}

func (pb *playback) Finished() bool { return pb.ended.Load() }

func (pb *playback) handle(kind sequencer.EventKind) {
	switch kind {
	case sequencer.EventLoopCompleted:
		if pb.onLoop != nil {
			pb.onLoop()
		}
	case sequencer.EventPlaybackEnded:
		if pb.ended.Swap(true) {
			return
		}
		if pb.onEnded != nil {
			pb.onEnded()
		}
	}
}

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	synth := New(cfg.synthOpts...)
	return &Player{
		synth:        synth,
		engine:       sampler.New(sampleRate, cfg.params),
		params:       cfg.params,
		sampleRate:   sampleRate,
		baseGain:     cfg.params.MasterGain,
		volume:       1,
		tailFrames:   max(int(sequencer.FramesAt(cfg.tail, sampleRate)), 1),
		loopPlayback: cfg.loopPlayback,
		sampleTap:    cfg.sampleTap,
		bufferSize:   cfg.bufferSize,
	}, nil
}

// Synth returns the Synth the player drives.
func (p *Player) Synth() *Synth { return p.synth }

func (p *Player) SampleRate() int { return p.sampleRate }

// LoadInstrument loads the document at path and decodes its samples. Voices
// already sounding keep their samples; a failed load keeps the previous
// instrument.
func (p *Player) LoadInstrument(ctx context.Context, path string) error {
	if err := p.synth.LoadDocument(path); err != nil {
		return err
	}
	bank, err := sampler.LoadBank(ctx, p.sampleRate, p.synth.Instrument().SamplePaths(), p.synth.log)
	if err != nil {
		return fmt.Errorf("load samples: %w", err)
	}
	p.synth.cfg.metrics.BankLoaded(bank.Len(), len(bank.Missing()))
	if missing := bank.Missing(); len(missing) > 0 {
		p.synth.log.Warn("instrument has unplayable samples", "missing", len(missing), "loaded", bank.Len())
	}

	p.mu.Lock()
	p.path = path
	engine := p.engine
	p.mu.Unlock()
	engine.SetBank(bank)
	return nil
}

// Reload reloads the last instrument passed to LoadInstrument and reports the
// outcome on the Watch channel.
func (p *Player) Reload(ctx context.Context) error {
	p.mu.Lock()
	path := p.path
	p.mu.Unlock()
	if path == "" {
		return errors.New("no instrument loaded")
	}
	err := p.LoadInstrument(ctx, path)
	if err != nil {
		p.sendEvent(PlaybackEvent{Kind: EventReloadFailed, Err: err})
		return err
	}
	p.sendEvent(PlaybackEvent{Kind: EventInstrumentReloaded})
	return nil
}

// WatchInstrument reloads the instrument whenever one of its files changes,
// until ctx is done.
func (p *Player) WatchInstrument(ctx context.Context, debounce time.Duration) error {
	w, err := watch.New(p.synth.Files(), debounce, func() ([]string, error) {
		if err := p.Reload(ctx); err != nil {
			return nil, err
		}
		return p.synth.Files(), nil
	}, p.synth.log)
	if err != nil {
		return err
	}
	go func() {
		defer w.Close()
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.synth.log.Warn("instrument watcher stopped", "error", err)
		}
	}()
	return nil
}

// PlayEvents plays a schedule of events, replacing any current playback.
func (p *Player) PlayEvents(events []sequencer.Event) error {
	return p.start(events, false)
}

// PlayMIDIFile plays every track of a Standard MIDI File.
func (p *Player) PlayMIDIFile(path string) error {
	events, err := midiin.ReadFile(path, p.sampleRate)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return p.PlayEvents(events)
}

// PlayLive starts playback that only sounds events delivered through Push
// and runs until Stop.
func (p *Player) PlayLive() error {
	return p.start(nil, true)
}

// Push delivers a live event to the current playback. It is a no-op when
// nothing is playing.
func (p *Player) Push(ev sequencer.Event) {
	p.mu.Lock()
	cur := p.current
	p.mu.Unlock()
	if cur != nil {
		cur.seq.Push(ev)
	}
}

// ListenMIDI forwards the named MIDI input to Push until the returned stop
// function is called.
func (p *Player) ListenMIDI(name string) (stop func(), err error) {
	return midiin.Listen(name, p.Push, p.synth.log)
}

func (p *Player) start(events []sequencer.Event, live bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Fresh engine per playback; no voices carry over.
	engine := sampler.New(p.sampleRate, p.params)
	engine.SetBank(p.engine.Bank())
	engine.SetMasterGain(p.baseGain * p.volume)
	r := newRack(p.synth, engine)

	pb := newPlayback(r, p.synth.cfg.metrics)
	pb.onLoop = func() { p.sendEvent(PlaybackEvent{Kind: EventLoopCompleted}) }
	pb.onEnded = func() {
		p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
		pb.finish()
	}
	pb.seq = sequencer.NewWithOptions(r, p.sampleRate, events, sequencer.Options{
		LoopSchedule:      p.loopPlayback && !live,
		Live:              live,
		OnEvent:           pb.handle,
		ReleaseTailFrames: p.tailFrames,
	})

	backend, err := intaudio.NewPlayer(p.sampleRate, pb, p.bufferSize)
	if err != nil {
		return err
	}
	if p.sampleTap != nil {
		backend.SetTap(p.sampleTap)
	}
	pb.audio = backend

	// The previous playback, if any, is replaced: its Wait callers return.
	if old := p.current; old != nil {
		_ = old.audio.Stop()
		old.finish()
	}
	p.engine = engine
	p.current = pb
	backend.Play()
	return nil
}

// sendEvent delivers ev to every Watch channel without blocking.
func (p *Player) sendEvent(ev PlaybackEvent) {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()
	for _, ch := range p.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.audio.Pause()
	}
}

func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.audio.Play()
	}
}

// Stop ends the current playback and reports EventPlaybackEnded.
func (p *Player) Stop() error {
	p.mu.Lock()
	cur := p.current
	p.current = nil
	p.mu.Unlock()
	if cur == nil {
		return nil
	}
	err := cur.audio.Stop()
	if !cur.ended.Swap(true) {
		p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	}
	cur.finish()
	return err
}

// Wait blocks until the current playback ends. Looping and live playback only
// end through Stop. Wait returns immediately if no playback is active.
func (p *Player) Wait() {
	p.mu.Lock()
	cur := p.current
	p.mu.Unlock()
	if cur != nil {
		<-cur.done
	}
}

// Watch subscribes to playback and reload events. Every call returns a new
// buffered channel and all subscribers receive every event; a subscriber
// that falls behind misses events rather than stalling playback.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, watchBuffer)
	p.watchMu.Lock()
	p.watchers = append(p.watchers, ch)
	p.watchMu.Unlock()
	return ch
}

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	p.engine.SetMasterGain(p.baseGain * p.volume)
}

func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// PlaybackPosition returns the current output position of the audio driver,
// i.e. what the listener actually hears right now. Returns 0 if not playing.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	cur := p.current
	p.mu.Unlock()
	if cur == nil {
		return 0
	}
	return sequencer.FramesAt(cur.audio.Position(), p.sampleRate)
}
