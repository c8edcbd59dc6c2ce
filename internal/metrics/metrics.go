// Package metrics exposes instrument load and event counters to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors of one engine. Collectors are registered on the
// registerer given to New.
type Metrics struct {
	loads        *prometheus.CounterVec
	loadDuration prometheus.Histogram
	regions      prometheus.Gauge
	anomalies    *prometheus.CounterVec
	skipped      prometheus.Counter
	noteEvents   *prometheus.CounterVec
	matches      prometheus.Counter
	samples      *prometheus.GaugeVec
	voices       prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		loads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sfzplay_loads_total",
			Help: "Instrument loads by result",
		}, []string{"result"}),
		loadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sfzplay_load_duration_seconds",
			Help:    "Instrument load duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}),
		regions: f.NewGauge(prometheus.GaugeOpts{
			Name: "sfzplay_regions",
			Help: "Regions in the currently published instrument",
		}),
		anomalies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sfzplay_opcode_anomalies_total",
			Help: "Opcodes ignored or defaulted during load, by reason",
		}, []string{"reason"}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "sfzplay_includes_skipped_total",
			Help: "Includes skipped by the include guard",
		}),
		noteEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sfzplay_note_events_total",
			Help: "Note events dispatched, by kind",
		}, []string{"kind"}),
		matches: f.NewCounter(prometheus.CounterOpts{
			Name: "sfzplay_region_matches_total",
			Help: "Regions selected by note events",
		}),
		samples: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sfzplay_samples",
			Help: "Samples in the current bank, by state",
		}, []string{"state"}),
		voices: f.NewGauge(prometheus.GaugeOpts{
			Name: "sfzplay_active_voices",
			Help: "Voices sounding at the end of the last rendered buffer",
		}),
	}
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns the process-wide collectors registered on the default
// Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultM = New(prometheus.DefaultRegisterer)
	})
	return defaultM
}

func (m *Metrics) LoadSucceeded(d time.Duration, regions int, skippedIncludes int) {
	m.loads.WithLabelValues("ok").Inc()
	m.loadDuration.Observe(d.Seconds())
	m.regions.Set(float64(regions))
	m.skipped.Add(float64(skippedIncludes))
}

func (m *Metrics) LoadFailed(d time.Duration) {
	m.loads.WithLabelValues("error").Inc()
	m.loadDuration.Observe(d.Seconds())
}

func (m *Metrics) Anomaly(reason string) {
	m.anomalies.WithLabelValues(reason).Inc()
}

func (m *Metrics) NoteOn(matched int) {
	m.noteEvents.WithLabelValues("on").Inc()
	m.matches.Add(float64(matched))
}

func (m *Metrics) NoteOff(matched int) {
	m.noteEvents.WithLabelValues("off").Inc()
	m.matches.Add(float64(matched))
}

func (m *Metrics) BankLoaded(loaded, missing int) {
	m.samples.WithLabelValues("loaded").Set(float64(loaded))
	m.samples.WithLabelValues("missing").Set(float64(missing))
}

func (m *Metrics) ActiveVoices(n int) {
	m.voices.Set(float64(n))
}
