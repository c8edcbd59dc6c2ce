// Package effects implements the main-bus processors an instrument declares
// with <effect> headers.
package effects

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cbegin/sfzplay-go/internal/opcode"
)

// Effector processes one stereo frame. Implementations keep state between
// calls and run on the rendering goroutine only.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

var (
	ErrNoType      = errors.New("effect has no type")
	ErrUnknownType = errors.New("unknown effect type")
)

// New builds the processor described by one <effect> block.
func New(sampleRate int, block *opcode.Set) (Effector, error) {
	p := params{set: block}
	typ := strings.ToLower(p.str("type"))
	switch typ {
	case "fverb", "reverb":
		return newReverb(sampleRate, p), nil
	case "comp", "compressor":
		return newCompressor(sampleRate, p), nil
	case "delay":
		return newDelay(sampleRate, p), nil
	case "disto", "distortion":
		return newDistortion(sampleRate, p), nil
	case "eq":
		return newEQ(sampleRate, p), nil
	case "":
		return nil, ErrNoType
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, typ)
	}
}

// Chain applies effects in declaration order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

// Build creates a chain from <effect> blocks. Blocks that cannot be built are
// passed to skip and left out.
func Build(sampleRate int, blocks []*opcode.Set, skip func(index int, err error)) *Chain {
	c := &Chain{}
	for i, b := range blocks {
		e, err := New(sampleRate, b)
		if err != nil {
			if skip != nil {
				skip(i, err)
			}
			continue
		}
		c.effects = append(c.effects, e)
	}
	return c
}

func (c *Chain) Len() int { return len(c.effects) }

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

// ProcessBuffer runs the chain over interleaved stereo samples in place.
func (c *Chain) ProcessBuffer(buf []float32) {
	if len(c.effects) == 0 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i], buf[i+1] = c.Process(buf[i], buf[i+1])
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

// params reads typed effect opcodes. Malformed or missing values fall back
// to the default; numeric values are clamped to [lo, hi].
type params struct {
	set *opcode.Set
}

func (p params) str(name string) string {
	if p.set == nil {
		return ""
	}
	op, ok := p.set.Get(name)
	if !ok {
		return ""
	}
	return op.Value
}

func (p params) float(name string, def, lo, hi float64) float64 {
	v, ok := opcode.ParseFloat(p.str(name))
	if !ok {
		return def
	}
	return min(max(v, lo), hi)
}

// percent reads a 0..100 opcode as a 0..1 factor.
func (p params) percent(name string, def float64) float32 {
	return float32(p.float(name, def, 0, 100) / 100)
}

func (p params) bool(name string, def bool) bool {
	switch strings.ToLower(p.str(name)) {
	case "on", "1", "true":
		return true
	case "off", "0", "false":
		return false
	}
	return def
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
