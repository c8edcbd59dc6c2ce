package lfo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZeroValueIsInactive(t *testing.T) {
	var l LFO
	assert.False(t, l.Active())
	assert.Zero(t, l.Sample())

	l = New(Params{Freq: 5}, 1000)
	assert.False(t, l.Active(), "no depth")
	l = New(Params{Depth: 3}, 1000)
	assert.False(t, l.Active(), "no frequency")
}

func TestSineCycle(t *testing.T) {
	l := New(Params{Freq: 250, Depth: 2}, 1000)
	assert.True(t, l.Active())
	want := []float64{0, 2, 0, -2, 0}
	for i, w := range want {
		assert.InDelta(t, w, l.Sample(), 1e-9, "frame %d", i)
	}
}

func TestDelayHoldsAtZero(t *testing.T) {
	l := New(Params{Freq: 250, Depth: 1, Delay: 0.003}, 1000)
	for i := 0; i < 3; i++ {
		assert.Zero(t, l.Sample())
	}
	assert.InDelta(t, 0, l.Sample(), 1e-9)
	assert.InDelta(t, 1, l.Sample(), 1e-9)
}

func TestFadeRampsDepth(t *testing.T) {
	l := New(Params{Freq: 250, Depth: 1, Fade: 0.004}, 1000)
	var peaks []float64
	for i := 0; i < 16; i++ {
		v := l.Sample()
		if i%4 == 1 {
			peaks = append(peaks, v)
		}
	}
	assert.InDelta(t, 0.25, peaks[0], 1e-9)
	assert.InDelta(t, 1, peaks[1], 1e-9)
	assert.InDelta(t, 1, peaks[3], 1e-9)
}

func TestPhaseStaysBounded(t *testing.T) {
	l := New(Params{Freq: 7, Depth: 100}, 48000)
	for i := 0; i < 200000; i++ {
		v := l.Sample()
		if math.Abs(v) > 100 {
			t.Fatalf("frame %d: %f out of range", i, v)
		}
	}
	assert.Less(t, l.phase, 1.0)
}
