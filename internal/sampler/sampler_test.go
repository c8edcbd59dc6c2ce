package sampler

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/sfzplay-go/internal/lfo"
	"github.com/cbegin/sfzplay-go/internal/region"
	"github.com/cbegin/sfzplay-go/internal/samplefile"
)

func wav16(channels, sampleRate, frames int, value int16) []byte {
	var buf bytes.Buffer
	data := frames * channels * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data))
	for i := 0; i < frames*channels; i++ {
		binary.Write(&buf, binary.LittleEndian, value)
	}
	return buf.Bytes()
}

func decodeBytes(t *testing.T, raw []byte, rate int) *Sample {
	t.Helper()
	info, err := samplefile.Read(bytes.NewReader(raw))
	require.NoError(t, err)
	s, err := Decode(bytes.NewReader(raw), info, rate)
	require.NoError(t, err)
	return s
}

func TestDecodeMonoIsDuplicated(t *testing.T) {
	s := decodeBytes(t, wav16(1, 44100, 32, 16384), 44100)
	assert.Equal(t, 32, s.Frames)
	assert.False(t, s.Stereo)
	assert.Equal(t, 1.0, s.Scale)
	require.Len(t, s.Data, 64)
	assert.InDelta(t, 0.5, s.Data[0], 1e-6)
	assert.InDelta(t, 0.5, s.Data[1], 1e-6)
}

func TestDecodeResamples(t *testing.T) {
	s := decodeBytes(t, wav16(2, 22050, 1000, 0), 44100)
	assert.True(t, s.Stereo)
	assert.Equal(t, 2.0, s.Scale)
	assert.InDelta(t, 2000, s.Frames, 4)
}

func TestLoadBankSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.wav")
	bad := filepath.Join(dir, "bad.wav")
	require.NoError(t, os.WriteFile(good, wav16(2, 44100, 16, 1000), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("not a wave file"), 0o644))
	missing := filepath.Join(dir, "missing.wav")

	bank, err := LoadBank(context.Background(), 44100, []string{good, bad, missing, good}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, bank.Len())
	_, ok := bank.Get(good)
	assert.True(t, ok)
	assert.Equal(t, []string{bad, missing}, bank.Missing())
}

func TestLoadBankCancelled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	require.NoError(t, os.WriteFile(path, wav16(1, 44100, 16, 0), 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LoadBank(ctx, 44100, []string{path}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func constantBank(path string, frames int, value float32, stereo bool) *Bank {
	data := make([]float32, frames*2)
	for i := range data {
		data[i] = value
	}
	b := NewBank()
	b.samples[path] = &Sample{Data: data, Frames: frames, Stereo: stereo, Scale: 1}
	return b
}

func testEngine(bank *Bank) *Engine {
	e := New(1000, Params{Polyphony: 4, MasterGain: 1})
	e.SetBank(bank)
	return e
}

func testRegion(sample string) *region.Region {
	r := region.Default()
	r.Sample = sample
	return r
}

func TestSamplePlaysCenterPanned(t *testing.T) {
	e := testEngine(constantBank("a.wav", 10, 0.5, false))
	id := e.Start(Note{Region: testRegion("a.wav"), Path: "a.wav", Channel: 1, Note: 60, Gain: 1})
	require.GreaterOrEqual(t, id, 0)

	l, r := e.RenderFrame()
	assert.InDelta(t, 0.5*math.Sqrt2/2, l, 1e-5)
	assert.InDelta(t, 0.5*math.Sqrt2/2, r, 1e-5)

	for i := 0; i < 20; i++ {
		e.RenderFrame()
	}
	assert.Equal(t, 0, e.ActiveVoiceCount(), "voice ends with its sample")
}

func TestStartWithoutSample(t *testing.T) {
	e := testEngine(NewBank())
	assert.Equal(t, -1, e.Start(Note{Region: testRegion("a.wav"), Path: "a.wav"}))
	assert.Equal(t, -1, e.Start(Note{Region: testRegion("*unknown")}))
	assert.Equal(t, -1, e.Start(Note{}))
	assert.Equal(t, 0, e.ActiveVoiceCount())
}

func TestPanHardLeft(t *testing.T) {
	e := testEngine(constantBank("a.wav", 10, 0.5, false))
	r := testRegion("a.wav")
	r.Pan = -100
	e.Start(Note{Region: r, Path: "a.wav", Note: 60, Gain: 1})
	l, rr := e.RenderFrame()
	assert.InDelta(t, 0.5, l, 1e-5)
	assert.InDelta(t, 0, rr, 1e-5)
}

func TestPitchFollowsKeycenter(t *testing.T) {
	bank := NewBank()
	bank.samples["ramp"] = &Sample{Data: []float32{0, 0, 0.1, 0.1, 0.2, 0.2, 0.3, 0.3, 0.4, 0.4}, Frames: 5, Scale: 1}
	e := testEngine(bank)
	r := testRegion("ramp")
	r.Pan = -100
	e.Start(Note{Region: r, Path: "ramp", Note: 72, Gain: 1})

	var got []float32
	for i := 0; i < 3; i++ {
		l, _ := e.RenderFrame()
		got = append(got, l)
	}
	// One octave up reads every other frame.
	assert.InDeltaSlice(t, []float32{0, 0.2, 0.4}, got, 1e-5)
}

func TestReleaseFadesOut(t *testing.T) {
	e := testEngine(nil)
	r := testRegion("*sine")
	r.AmpegRelease = 0.01 // ten frames at 1 kHz
	e.Start(Note{Region: r, Channel: 1, Note: 69, Gain: 1})
	for i := 0; i < 100; i++ {
		e.RenderFrame()
	}
	assert.Equal(t, 1, e.ActiveVoiceCount(), "generators sustain until released")

	e.Release(2, 69)
	e.RenderFrame()
	assert.Equal(t, 1, e.ActiveVoiceCount(), "other channel is untouched")

	e.Release(1, 69)
	for i := 0; i < 12; i++ {
		e.RenderFrame()
	}
	assert.Equal(t, 0, e.ActiveVoiceCount())
}

func TestOneShotIgnoresRelease(t *testing.T) {
	e := testEngine(constantBank("a.wav", 50, 0.1, false))
	r := testRegion("a.wav")
	r.LoopMode = region.LoopOneShot
	e.Start(Note{Region: r, Path: "a.wav", Channel: 1, Note: 60, Gain: 1})
	e.Release(1, 60)
	for i := 0; i < 20; i++ {
		e.RenderFrame()
	}
	assert.Equal(t, 1, e.ActiveVoiceCount())

	e.ReleaseAll()
	for i := 0; i < 5; i++ {
		e.RenderFrame()
	}
	assert.Equal(t, 0, e.ActiveVoiceCount())
}

func TestContinuousLoopOutlivesSample(t *testing.T) {
	e := testEngine(constantBank("a.wav", 8, 0.25, false))
	r := testRegion("a.wav")
	r.LoopMode = region.LoopContinuous
	r.LoopStart = 2
	r.LoopEnd = 5
	e.Start(Note{Region: r, Path: "a.wav", Note: 60, Gain: 1})
	for i := 0; i < 100; i++ {
		l, _ := e.RenderFrame()
		require.NotZero(t, l)
	}
	assert.Equal(t, 1, e.ActiveVoiceCount())
}

func TestSustainLoopStopsOnRelease(t *testing.T) {
	e := testEngine(constantBank("a.wav", 8, 0.25, false))
	r := testRegion("a.wav")
	r.LoopMode = region.LoopSustain
	r.AmpegRelease = 1
	e.Start(Note{Region: r, Path: "a.wav", Channel: 1, Note: 60, Gain: 1})
	for i := 0; i < 50; i++ {
		e.RenderFrame()
	}
	require.Equal(t, 1, e.ActiveVoiceCount())

	e.Release(1, 60)
	for i := 0; i < 10; i++ {
		e.RenderFrame()
	}
	assert.Equal(t, 0, e.ActiveVoiceCount(), "runs off the end of the sample once the loop is left")
}

func TestOffByChokesGroup(t *testing.T) {
	e := testEngine(nil)
	open := testRegion("*sine")
	open.Group = 1
	open.OffBy = 2
	open.AmpegRelease = 10
	closed := testRegion("*sine")
	closed.Group = 2

	e.Start(Note{Region: open, Channel: 1, Note: 42, Gain: 1})
	e.RenderFrame()
	e.Start(Note{Region: closed, Channel: 1, Note: 44, Gain: 1})
	for i := 0; i < 10; i++ {
		e.RenderFrame()
	}
	assert.Equal(t, 1, e.ActiveVoiceCount(), "open voice is cut quickly despite its long release")
}

func TestDelayHoldsVoice(t *testing.T) {
	e := testEngine(constantBank("a.wav", 10, 0.5, false))
	r := testRegion("a.wav")
	r.Delay = 0.003
	e.Start(Note{Region: r, Path: "a.wav", Note: 60, Gain: 1})
	for i := 0; i < 3; i++ {
		l, _ := e.RenderFrame()
		assert.Zero(t, l)
	}
	l, _ := e.RenderFrame()
	assert.NotZero(t, l)
}

func TestVoiceStealing(t *testing.T) {
	e := testEngine(nil)
	for n := 0; n < 6; n++ {
		r := testRegion("*sine")
		e.Start(Note{Region: r, Channel: 1, Note: 60 + n, Gain: 1})
	}
	assert.Equal(t, 4, e.ActiveVoiceCount())
}

func TestMasterGain(t *testing.T) {
	e := testEngine(constantBank("a.wav", 10, 0.5, false))
	e.SetMasterGain(-1)
	assert.Zero(t, e.MasterGain())
	e.Start(Note{Region: testRegion("a.wav"), Path: "a.wav", Note: 60, Gain: 1})
	l, r := e.RenderFrame()
	assert.Zero(t, l)
	assert.Zero(t, r)
}

func TestWidthCollapsesStereo(t *testing.T) {
	bank := NewBank()
	bank.samples["st"] = &Sample{Data: []float32{1, -1, 1, -1}, Frames: 2, Stereo: true, Scale: 1}
	e := testEngine(bank)
	r := testRegion("st")
	r.Width = 0
	e.Start(Note{Region: r, Path: "st", Note: 60, Gain: 1})
	l, rr := e.RenderFrame()
	assert.InDelta(t, 0, l, 1e-6)
	assert.InDelta(t, 0, rr, 1e-6)
}

func TestAmpLFOModulatesGain(t *testing.T) {
	e := testEngine(constantBank("a.wav", 10, 0.5, false))
	r := testRegion("a.wav")
	r.Pan = -100
	r.AmpLFO = lfo.Params{Freq: 250, Depth: 6}
	e.Start(Note{Region: r, Path: "a.wav", Note: 60, Gain: 1})

	want := []float64{0.5, 0.5 * math.Pow(10, 6.0/20), 0.5, 0.5 * math.Pow(10, -6.0/20)}
	for i, w := range want {
		l, _ := e.RenderFrame()
		assert.InDelta(t, w, l, 1e-5, "frame %d", i)
	}
}

func TestPitchLFOBendsPlaybackRate(t *testing.T) {
	bank := NewBank()
	data := make([]float32, 16)
	for i := range 8 {
		data[i*2] = float32(i) / 10
		data[i*2+1] = float32(i) / 10
	}
	bank.samples["ramp"] = &Sample{Data: data, Frames: 8, Scale: 1}
	e := testEngine(bank)
	r := testRegion("ramp")
	r.Pan = -100
	r.PitchLFO = lfo.Params{Freq: 250, Depth: 1200}
	e.Start(Note{Region: r, Path: "ramp", Note: 60, Gain: 1})

	var got []float32
	for i := 0; i < 5; i++ {
		l, _ := e.RenderFrame()
		got = append(got, l)
	}
	// +1 octave doubles the step, -1 octave halves it.
	assert.InDeltaSlice(t, []float32{0, 0.1, 0.3, 0.4, 0.45}, got, 1e-5)
}
