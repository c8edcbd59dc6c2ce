package sfzplay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	intaudio "github.com/cbegin/sfzplay-go/internal/audio"
	"github.com/cbegin/sfzplay-go/internal/midiin"
	"github.com/cbegin/sfzplay-go/internal/sampler"
	"github.com/cbegin/sfzplay-go/internal/sequencer"
)

const renderBlockFrames = 512

// RenderOptions controls offline rendering.
type RenderOptions struct {
	Params sampler.Params
	// Tail is the silence kept after the last voice has ended.
	Tail time.Duration
	// MaxTail bounds rendering after the last event, for voices that never
	// end on their own (loops, held generators).
	MaxTail time.Duration
}

func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		Params:  sampler.DefaultParams(),
		Tail:    100 * time.Millisecond,
		MaxTail: 10 * time.Second,
	}
}

// RenderEvents plays events through the instrument currently loaded in s and
// returns interleaved stereo frames. It drives s's note state, so s must not
// be dispatching events elsewhere meanwhile.
func RenderEvents(ctx context.Context, s *Synth, events []sequencer.Event, sampleRate int, opts RenderOptions) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	bank, err := sampler.LoadBank(ctx, sampleRate, s.Instrument().SamplePaths(), s.log)
	if err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	s.cfg.metrics.BankLoaded(bank.Len(), len(bank.Missing()))

	engine := sampler.New(sampleRate, opts.Params)
	engine.SetBank(bank)
	seq := sequencer.NewWithOptions(newRack(s, engine), sampleRate, events, sequencer.Options{
		ReleaseTailFrames: max(int(sequencer.FramesAt(opts.Tail, sampleRate)), 1),
	})
	limit := seq.Duration() + sequencer.FramesAt(opts.MaxTail, sampleRate)

	start := time.Now()
	var out []float32
	block := make([]float32, renderBlockFrames*2)
	for !seq.Finished() && seq.Frame() < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seq.Process(block)
		out = append(out, block...)
	}
	s.log.Debug("render finished",
		"events", len(events),
		"frames", len(out)/2,
		"truncated", !seq.Finished(),
		"elapsed", time.Since(start))
	return out, nil
}

// RenderMIDIFile renders every track of a Standard MIDI File.
func RenderMIDIFile(ctx context.Context, s *Synth, path string, sampleRate int, opts RenderOptions) ([]float32, error) {
	events, err := midiin.ReadFile(path, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return RenderEvents(ctx, s, events, sampleRate, opts)
}

// WriteWAVFloat32LE writes samples as a 32-bit float WAVE stream.
func WriteWAVFloat32LE(w io.Writer, samples []float32, sampleRate int, channels int) error {
	dataSize := len(samples) * 4
	bw := bufio.NewWriter(w)
	header := make([]byte, 44)
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], uint32(36+dataSize))
	copy(header[8:], "WAVE")
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 3) // IEEE float
	binary.LittleEndian.PutUint16(header[22:], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(sampleRate*channels*4))
	binary.LittleEndian.PutUint16(header[32:], uint16(channels*4))
	binary.LittleEndian.PutUint16(header[34:], 32)
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], uint32(dataSize))
	if _, err := bw.Write(header); err != nil {
		return err
	}
	buf := make([]byte, renderBlockFrames*8)
	for len(samples) > 0 {
		chunk := samples[:min(len(samples), renderBlockFrames*2)]
		samples = samples[len(chunk):]
		n := intaudio.PutFloat32LE(buf, chunk)
		if _, err := bw.Write(buf[:n]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// EncodeWAVFloat32LE returns samples as a 32-bit float WAVE file.
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(samples)*4)
	_ = WriteWAVFloat32LE(&buf, samples, sampleRate, channels)
	return buf.Bytes()
}
