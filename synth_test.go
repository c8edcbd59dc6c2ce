package sfzplay

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/sfzplay-go/internal/metrics"
	"github.com/cbegin/sfzplay-go/internal/parser"
	"github.com/cbegin/sfzplay-go/internal/region"
	"github.com/cbegin/sfzplay-go/internal/samplefile"
)

func newTestSynth(t *testing.T, opts ...Option) *Synth {
	t.Helper()
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	}
	return New(append(base, opts...)...)
}

func loadFixture(t *testing.T, s *Synth, name string) {
	t.Helper()
	require.NoError(t, s.LoadDocument(filepath.Join("testdata", filepath.FromSlash(name))))
}

func sampleNames(s *Synth) []string {
	var out []string
	for _, r := range s.Regions() {
		out = append(out, r.Sample)
	}
	return out
}

func TestSingleRegion(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "Regions/regions_one.sfz")
	require.Equal(t, 1, s.NumRegions())
	assert.Equal(t, "dummy.wav", s.Region(0).Sample)
}

func TestMultipleRegions(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "Regions/regions_many.sfz")
	assert.Equal(t, []string{"dummy.wav", "dummy.1.wav", "dummy.2.wav"}, sampleNames(s))
}

func TestBasicOpcodes(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "Regions/regions_opcodes.sfz")
	require.Equal(t, 1, s.NumRegions())
	assert.Equal(t, region.Range{Lo: 2, Hi: 14}, s.Region(0).ChannelRange)
}

func TestUnderscoreOpcodes(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "Regions/underscore_opcodes.sfz")
	require.Equal(t, 1, s.NumRegions())
	assert.Equal(t, region.LoopSustain, s.Region(0).LoopMode)
}

func TestIncludes(t *testing.T) {
	cases := []struct {
		file string
		want []string
	}{
		{"Includes/root_local.sfz", []string{"dummy.wav"}},
		{"Includes/multiple_includes.sfz", []string{"dummy.wav", "dummy2.wav"}},
		{"Includes/multiple_includes_with_comments.sfz", []string{"dummy.wav", "dummy2.wav"}},
		{"Includes/root_subdir.sfz", []string{"dummy_subdir.wav"}},
		{"Includes/root_subdir_win.sfz", []string{"dummy_subdir.wav"}},
	}
	for _, tc := range cases {
		t.Run(filepath.Base(tc.file), func(t *testing.T) {
			s := newTestSynth(t)
			loadFixture(t, s, tc.file)
			assert.Equal(t, tc.want, sampleNames(s))
		})
	}
}

func TestIncludeGuard(t *testing.T) {
	s := newTestSynth(t, WithIncludeGuard(true))
	loadFixture(t, s, "Includes/root_recursive.sfz")
	assert.Equal(t, []string{"dummy_recursive2.wav", "dummy_recursive1.wav"}, sampleNames(s))

	loadFixture(t, s, "Includes/root_loop.sfz")
	assert.Equal(t, []string{"dummy_loop2.wav", "dummy_loop1.wav"}, sampleNames(s))

	// Same region count on every run.
	loadFixture(t, s, "Includes/root_loop.sfz")
	assert.Equal(t, 2, s.NumRegions())
}

func TestIncludeCycleWithoutGuardKeepsPreviousInstrument(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "Regions/regions_many.sfz")

	err := s.LoadDocument(filepath.Join("testdata", "Includes", "root_loop.sfz"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, parser.ErrIncludeDepth))
	assert.Equal(t, 3, s.NumRegions(), "failed load publishes nothing")

	s.SetIncludeGuardEnabled(true)
	loadFixture(t, s, "Includes/root_loop.sfz")
	assert.Equal(t, 2, s.NumRegions())
}

func TestMissingDocument(t *testing.T) {
	s := newTestSynth(t)
	err := s.LoadDocument(filepath.Join("testdata", "nope.sfz"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Zero(t, s.NumRegions())
}

func TestDefines(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "defines.sfz")
	require.Equal(t, 3, s.NumRegions())
	assert.Equal(t, region.Range{Lo: 36, Hi: 36}, s.Region(0).KeyRange)
	assert.Equal(t, region.Range{Lo: 38, Hi: 38}, s.Region(1).KeyRange)
	assert.Equal(t, region.Range{Lo: 42, Hi: 42}, s.Region(2).KeyRange)
}

func TestOverlappingDefineNames(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "SpecificBugs/wrong-replacements.sfz")
	require.Equal(t, 3, s.NumRegions())
	assert.Equal(t, region.Range{Lo: 52, Hi: 52}, s.Region(0).KeyRange)
	assert.Equal(t, region.Range{Lo: 57, Hi: 57}, s.Region(1).KeyRange)
	r := s.Region(2)
	require.True(t, r.HasAmplitudeCC)
	assert.Equal(t, 10, r.AmplitudeCC)
	assert.Equal(t, 34.0, r.AmplitudeDepth)
}

func TestGroupsAVL(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "groups_avl.sfz")
	require.Equal(t, 5, s.NumRegions())
	for _, r := range s.Regions() {
		assert.Equal(t, 6.0, r.Volume)
		assert.Equal(t, region.Range{Lo: 36, Hi: 36}, r.KeyRange)
	}
	want := []region.Range{{Lo: 1, Hi: 26}, {Lo: 27, Hi: 52}, {Lo: 53, Hi: 77}, {Lo: 78, Hi: 102}, {Lo: 103, Hi: 127}}
	for i, w := range want {
		assert.Equal(t, w, s.Region(i).VelocityRange, "region %d", i)
	}
}

func TestFullHierarchy(t *testing.T) {
	for _, file := range []string{"basic_hierarchy.sfz", "basic_hierarchy_antislash.sfz"} {
		t.Run(file, func(t *testing.T) {
			s := newTestSynth(t)
			loadFixture(t, s, file)
			require.Equal(t, 8, s.NumRegions())

			want := []struct {
				pan, delay float64
				key        int
			}{
				{30, 67, 60}, {30, 67, 61}, {30, 56, 50}, {30, 56, 51},
				{-10, 47, 40}, {-10, 47, 41}, {-10, 36, 30}, {-10, 36, 31},
			}
			for i, w := range want {
				r := s.Region(i)
				assert.Equal(t, 40.0, r.Width)
				assert.Equal(t, w.pan, r.Pan, "region %d", i)
				assert.Equal(t, w.delay, r.Delay, "region %d", i)
				assert.Equal(t, region.Range{Lo: w.key, Hi: w.key}, r.KeyRange, "region %d", i)
				if i%2 == 0 {
					assert.Equal(t, "Regions/dummy.wav", r.Sample)
				} else {
					assert.Equal(t, "Regions/dummy.1.wav", r.Sample)
				}
			}
		})
	}
}

func TestReloadIsIdentical(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "basic_hierarchy.sfz")
	first := s.Instrument()
	loadFixture(t, s, "basic_hierarchy.sfz")
	second := s.Instrument()

	require.NotSame(t, first, second)
	require.Equal(t, first.NumRegions(), second.NumRegions())
	for i := 0; i < first.NumRegions(); i++ {
		assert.Equal(t, first.Region(i), second.Region(i))
	}
	assert.Equal(t, 8, first.NumRegions(), "old snapshot is untouched")
}

func TestPizz(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "SpecificBugs/MeatBassPizz/Programs/pizz.sfz")
	require.Equal(t, 4, s.NumRegions())
	for _, r := range s.Regions() {
		assert.Equal(t, region.Range{Lo: 12, Hi: 22}, r.KeyRange)
		assert.Equal(t, region.Range{Lo: 97, Hi: 127}, r.VelocityRange)
		assert.Equal(t, 21, r.PitchKeycenter)
		assert.Equal(t, []region.CCCondition{{CC: 107, Range: region.Range{Lo: 0, Hi: 13}}}, r.CCConditions)
	}
	rand := []region.RandRange{{Lo: 0, Hi: 0.25}, {Lo: 0.25, Hi: 0.5}, {Lo: 0.5, Hi: 0.75}, {Lo: 0.75, Hi: 1}}
	for i, w := range rand {
		assert.Equal(t, w, s.Region(i).RandRange)
	}
	assert.Equal(t, []string{
		"../Samples/pizz/a0_vl4_rr1.wav",
		"../Samples/pizz/a0_vl4_rr2.wav",
		"../Samples/pizz/a0_vl4_rr3.wav",
		"../Samples/pizz/a0_vl4_rr4.wav",
	}, sampleNames(s))
}

func TestPizzRoundRobinUsesInjectedDraw(t *testing.T) {
	draws := []float64{0.1, 0.3, 0.6, 0.9}
	next := 0
	s := newTestSynth(t, WithRand(func() float64 {
		d := draws[next%len(draws)]
		next++
		return d
	}))
	loadFixture(t, s, "SpecificBugs/MeatBassPizz/Programs/pizz.sfz")

	var got []int
	var buf []Match
	for range draws {
		buf = s.NoteOn(buf[:0], 1, 20, 110)
		require.Len(t, buf, 1)
		got = append(got, buf[0].Index)
		s.NoteOff(nil, 1, 20, 0)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, got)

	s.ControlChange(1, 107, 64)
	assert.Empty(t, s.NoteOn(nil, 1, 20, 110), "cc107 outside 0..13")
}

func TestChannels(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "channels.sfz")
	require.Equal(t, 2, s.NumRegions())
	assert.Equal(t, "mono_sample.wav", s.Region(0).Sample)
	assert.False(t, s.Region(0).Stereo)
	assert.Equal(t, "stereo_sample.wav", s.Region(1).Sample)
	assert.True(t, s.Region(1).Stereo)
}

func TestSampleProbeIsCachedPerFile(t *testing.T) {
	calls := map[string]int{}
	probe := func(path string) (samplefile.Info, error) {
		calls[filepath.Base(path)]++
		if filepath.Base(path) == "broken.wav" {
			return samplefile.Info{}, errors.New("truncated header")
		}
		return samplefile.Info{Channels: 2}, nil
	}
	s := newTestSynth(t, WithSampleProbe(probe))
	require.NoError(t, s.LoadString(`
<region> sample=pad.wav key=60
<region> sample=pad.wav key=61
<region> sample=broken.wav key=62
<region> sample=*sine key=63
`, t.TempDir()))

	assert.True(t, s.Region(0).Stereo)
	assert.True(t, s.Region(1).Stereo)
	assert.False(t, s.Region(2).Stereo, "unreadable headers load as mono")
	assert.False(t, s.Region(3).Stereo)
	assert.Equal(t, map[string]int{"pad.wav": 1, "broken.wav": 1}, calls)
}

func TestControlBlocksScopeDefaultPath(t *testing.T) {
	s := newTestSynth(t)
	require.NoError(t, s.LoadString(`
<region> sample=root.wav key=59
<control> default_path=A/ set_cc7=10
<region> sample=x.wav key=60
<control> set_cc7=90
<region> sample=w.wav key=61
<control> default_path=B\
<region> sample=y.wav key=62
`, "."))
	require.Equal(t, 4, s.NumRegions())
	assert.Equal(t, "root.wav", s.Region(0).Sample)
	assert.Equal(t, "A/x.wav", s.Region(1).Sample)
	assert.Equal(t, "A/w.wav", s.Region(2).Sample, "a block without default_path keeps the previous one")
	assert.Equal(t, "B/y.wav", s.Region(3).Sample)
	assert.Equal(t, 90, s.CC(7))
}

func switchedOn(s *Synth) []bool {
	var out []bool
	for _, r := range s.Regions() {
		out = append(out, r.IsSwitchedOn())
	}
	return out
}

func TestSwitchDefault(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "sw_default.sfz")
	require.Equal(t, 4, s.NumRegions())
	assert.Equal(t, []bool{false, true, false, true}, switchedOn(s))
	key, ok := s.Keyswitch()
	assert.True(t, ok)
	assert.Equal(t, 40, key)
}

func TestSwitchDefaultAndPlayingSwitches(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "sw_default.sfz")
	assert.Equal(t, []bool{false, true, false, true}, switchedOn(s))

	s.NoteOn(nil, 1, 41, 64)
	s.NoteOff(nil, 1, 41, 0)
	assert.Equal(t, []bool{true, false, true, false}, switchedOn(s))

	s.NoteOn(nil, 1, 42, 64)
	s.NoteOff(nil, 1, 42, 0)
	assert.Equal(t, []bool{false, false, false, false}, switchedOn(s))

	s.NoteOn(nil, 1, 40, 64)
	s.NoteOff(nil, 1, 40, 64)
	assert.Equal(t, []bool{false, true, false, true}, switchedOn(s))

	// The switch selects which region answers a played note.
	assert.Len(t, s.NoteOn(nil, 1, 62, 100), 1)
	assert.Empty(t, s.NoteOn(nil, 1, 60, 100))
}

func TestReloadResetsSwitch(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "sw_default.sfz")
	s.NoteOn(nil, 1, 41, 64)
	loadFixture(t, s, "sw_default.sfz")
	assert.Equal(t, []bool{false, true, false, true}, switchedOn(s))
}

func TestNoteGainThroughSelect(t *testing.T) {
	s := newTestSynth(t)
	require.NoError(t, s.LoadString(`
<region> sample=*sine xfin_lokey=1 xfin_hikey=5
<region> sample=*sine xfin_lokey=1 xfin_hikey=5 xf_keycurve=gain
<region> sample=*sine amp_veltrack=100
<region> sample=*sine amp_veltrack=-100
`, t.TempDir()))
	require.Equal(t, 4, s.NumRegions())

	m := s.NoteOn(nil, 1, 3, 127)
	require.Len(t, m, 4)
	assert.InDelta(t, 0.70711, m[0].Gain, 1e-5)
	assert.InDelta(t, 0.5, m[1].Gain, 1e-5)

	assert.InDelta(t, 0.0, s.Region(0).NoteGain(1, 127), 1e-5)
	assert.InDelta(t, 1.0, s.Region(0).NoteGain(6, 127), 1e-5)
	assert.InDelta(t, 1.0, s.Region(2).NoteGain(64, 127), 1e-5)
	assert.InDelta(t, 0.0, s.Region(2).NoteGain(64, 0), 1e-4)
	assert.InDelta(t, 0.0, s.Region(3).NoteGain(64, 127), 1e-4)
	assert.InDelta(t, 1.0, s.Region(3).NoteGain(64, 0), 1e-5)
}

func TestCCCrossfadeThroughSelect(t *testing.T) {
	s := newTestSynth(t)
	require.NoError(t, s.LoadString(`
<control> set_cc24=22
<region> sample=*sine amp_veltrack=0 xfin_locc24=20 xfin_hicc24=24
`, ""))
	assert.Equal(t, 22, s.CC(24))
	m := s.NoteOn(nil, 1, 60, 100)
	require.Len(t, m, 1)
	assert.InDelta(t, 0.70711, m[0].Gain, 1e-5)

	s.ControlChange(1, 24, 200)
	assert.Equal(t, 127, s.CC(24))
	m = s.NoteOn(m[:0], 1, 61, 100)
	require.Len(t, m, 1)
	assert.InDelta(t, 1.0, m[0].Gain, 1e-5)
}

func TestReleaseAndLegatoTriggers(t *testing.T) {
	s := newTestSynth(t)
	require.NoError(t, s.LoadString(`
<region> sample=*sine trigger=first
<region> sample=*sine trigger=legato
<region> sample=*sine trigger=release
`, ""))

	m := s.NoteOn(nil, 1, 60, 90)
	require.Len(t, m, 1)
	assert.Equal(t, 0, m[0].Index)

	m = s.NoteOn(nil, 1, 62, 80)
	require.Len(t, m, 1)
	assert.Equal(t, 1, m[0].Index)

	m = s.NoteOff(nil, 1, 60, 0)
	require.Len(t, m, 1)
	assert.Equal(t, 2, m[0].Index)
	assert.Equal(t, 90, m[0].Velocity, "release answers with the note-on velocity")
}

func TestReloadDropsHeldNotes(t *testing.T) {
	const src = `
<region> sample=*sine trigger=first
<region> sample=*sine trigger=legato
<region> sample=*sine trigger=release
`
	s := newTestSynth(t)
	require.NoError(t, s.LoadString(src, ""))
	require.Len(t, s.NoteOn(nil, 1, 60, 90), 1)

	require.NoError(t, s.LoadString(src, ""))
	m := s.NoteOn(nil, 1, 62, 80)
	require.Len(t, m, 1)
	assert.Equal(t, 0, m[0].Index, "notes held before the reload are not legato context")

	m = s.NoteOff(nil, 1, 60, 5)
	require.Len(t, m, 1)
	assert.Equal(t, 5, m[0].Velocity, "velocity of a pre-reload note is forgotten")
	assert.Equal(t, region.TriggerRelease, m[0].Region.Trigger)
}

func TestRegionViewMatches(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "groups_avl.sfz")
	var cc region.CCState
	assert.True(t, s.Region(0).Matches(1, 36, 10, &cc, 0.5))
	assert.False(t, s.Region(0).Matches(1, 36, 30, &cc, 0.5))
	assert.False(t, s.Region(0).Matches(1, 37, 10, &cc, 0.5))
}

func TestFilesTracksIncludes(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "Includes/multiple_includes.sfz")
	files := s.Files()
	require.Len(t, files, 3)
	assert.Equal(t, "multiple_includes.sfz", filepath.Base(files[0]))
	assert.Equal(t, "dummy2.sfz", filepath.Base(files[2]))
}

func TestInstrumentSamplePath(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "SpecificBugs/MeatBassPizz/Programs/pizz.sfz")
	in := s.Instrument()
	got := in.SamplePath(in.Region(0).Sample)
	assert.Equal(t, filepath.Join("testdata", "SpecificBugs", "MeatBassPizz", "Samples", "pizz", "a0_vl4_rr1.wav"), got)
	assert.Equal(t, "*sine", in.SamplePath("*sine"))
}

func TestInstrumentSamplePaths(t *testing.T) {
	s := newTestSynth(t)
	loadFixture(t, s, "SpecificBugs/MeatBassPizz/Programs/pizz.sfz")
	paths := s.Instrument().SamplePaths()
	require.Len(t, paths, 4)
	assert.Equal(t, "a0_vl4_rr4.wav", filepath.Base(paths[3]))

	require.NoError(t, s.LoadString("<region> sample=*sine <region> sample=a.wav <region> sample=a.wav", "dir"))
	assert.Equal(t, []string{filepath.Join("dir", "a.wav")}, s.Instrument().SamplePaths())
}
