package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rampSource struct {
	next     float32
	finished bool
}

func (s *rampSource) Process(dst []float32) {
	for i := range dst {
		dst[i] = s.next
		s.next += 0.25
	}
}

func (s *rampSource) Finished() bool { return s.finished }

func TestStreamReaderEncodesFloat32(t *testing.T) {
	src := &rampSource{}
	r := NewStreamReader(src)
	var tapped int
	r.SetTap(func(dst []float32) { tapped += len(dst) })

	p := make([]byte, 2*8+3)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 16, n, "only whole frames are written")
	assert.Equal(t, 4, tapped)
	for i, want := range []float32{0, 0.25, 0.5, 0.75} {
		got := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		assert.Equal(t, want, got)
	}

	n, err = r.Read(make([]byte, 7))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStreamReaderEOF(t *testing.T) {
	src := &rampSource{finished: true}
	r := NewStreamReader(src)
	n, err := r.Read(make([]byte, 8))
	assert.Equal(t, 8, n)
	assert.ErrorIs(t, err, io.EOF)

	r = NewStreamReader(&rampSource{})
	require.NoError(t, r.Close())
	n, err = r.Read(make([]byte, 8))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPutFloat32LE(t *testing.T) {
	dst := make([]byte, 12)
	n := PutFloat32LE(dst, []float32{0.5, -1, 0})
	require.Equal(t, 12, n)
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(dst[0:])))
	assert.Equal(t, float32(-1), math.Float32frombits(binary.LittleEndian.Uint32(dst[4:])))
	assert.Zero(t, binary.LittleEndian.Uint32(dst[8:]))
}
