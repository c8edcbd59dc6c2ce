package sfzplay

import (
	"log/slog"
	"math/rand/v2"

	"github.com/cbegin/sfzplay-go/internal/metrics"
	"github.com/cbegin/sfzplay-go/internal/samplefile"
)

type Option func(*synthConfig)

type synthConfig struct {
	includeGuard bool
	logger       *slog.Logger
	rand         func() float64
	probe        func(path string) (samplefile.Info, error)
	metrics      *metrics.Metrics
}

func defaultSynthConfig() synthConfig {
	return synthConfig{
		logger: slog.Default(),
		rand:   rand.Float64,
		probe:  samplefile.Probe,
	}
}

// WithIncludeGuard makes includes that re-enter a file already being expanded
// a no-op instead of a fatal nesting error.
func WithIncludeGuard(enabled bool) Option {
	return func(cfg *synthConfig) {
		cfg.includeGuard = enabled
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cfg *synthConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithRand replaces the random source used for random-layer selection. It must
// return values in [0, 1) and is called once per note event.
func WithRand(draw func() float64) Option {
	return func(cfg *synthConfig) {
		if draw != nil {
			cfg.rand = draw
		}
	}
}

// WithSampleProbe replaces the sample header reader used to find stereo samples.
func WithSampleProbe(probe func(path string) (samplefile.Info, error)) Option {
	return func(cfg *synthConfig) {
		cfg.probe = probe
	}
}

// WithMetrics reports loads and events to m instead of the default registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cfg *synthConfig) {
		cfg.metrics = m
	}
}
