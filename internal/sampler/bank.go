package sampler

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio/wav"
	"golang.org/x/sync/errgroup"

	"github.com/cbegin/sfzplay-go/internal/samplefile"
)

// Sample is a decoded sample, interleaved stereo at the engine rate.
type Sample struct {
	Data   []float32
	Frames int
	Stereo bool
	// Scale converts frame positions in the source file (offset, loop
	// points) to positions in Data.
	Scale float64
}

// Bank maps resolved sample paths to decoded audio. A Bank is immutable once
// loaded.
type Bank struct {
	samples map[string]*Sample
	missing []string
}

func NewBank() *Bank {
	return &Bank{samples: make(map[string]*Sample)}
}

func (b *Bank) Get(path string) (*Sample, bool) {
	s, ok := b.samples[path]
	return s, ok
}

func (b *Bank) Len() int { return len(b.samples) }

// Missing lists the paths that could not be decoded, sorted.
func (b *Bank) Missing() []string {
	out := make([]string, len(b.missing))
	copy(out, b.missing)
	return out
}

// LoadBank decodes every path in parallel. Files that cannot be read or
// decoded are logged and left out of the bank; only cancellation of ctx fails
// the load.
func LoadBank(ctx context.Context, sampleRate int, paths []string, log *slog.Logger) (*Bank, error) {
	if log == nil {
		log = slog.Default()
	}
	bank := NewBank()
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if seen[path] {
			continue
		}
		seen[path] = true
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := decodeFile(path, sampleRate)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("sample not loaded", "path", path, "error", err)
				bank.missing = append(bank.missing, path)
				return nil
			}
			bank.samples[path] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(bank.missing)
	return bank, nil
}

func decodeFile(path string, sampleRate int) (*Sample, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := samplefile.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return Decode(bytes.NewReader(raw), info, sampleRate)
}

// Decode converts a WAV stream to a Sample at sampleRate. info is the header
// of the same stream and supplies the source rate and channel count.
func Decode(r io.Reader, info samplefile.Info, sampleRate int) (*Sample, error) {
	if info.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid source sample rate %d", info.SampleRate)
	}
	stream, err := wav.DecodeWithSampleRate(sampleRate, r)
	if err != nil {
		return nil, err
	}
	pcm, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	// 16-bit little endian stereo.
	frames := len(pcm) / 4
	data := make([]float32, frames*2)
	for i := range data {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		data[i] = float32(v) / 32768
	}
	return &Sample{
		Data:   data,
		Frames: frames,
		Stereo: info.Stereo(),
		Scale:  float64(sampleRate) / float64(info.SampleRate),
	}, nil
}
