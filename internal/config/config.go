// Package config holds the settings of the sfzplay command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the command configuration. Priority is flags > environment >
// file > defaults; flags are applied by the command itself.
type Config struct {
	SampleRate   int           `yaml:"sample_rate"`
	Polyphony    int           `yaml:"polyphony"`
	IncludeGuard bool          `yaml:"include_guard"`
	MasterVolume float64       `yaml:"master_volume"`
	TailSeconds  float64       `yaml:"tail_seconds"`
	BufferSize   time.Duration `yaml:"buffer_size"`
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format"`
	MIDIInput    string        `yaml:"midi_input"`
	MetricsAddr  string        `yaml:"metrics_addr"`
	Watch        WatchConfig   `yaml:"watch"`
}

// WatchConfig controls reloading the instrument when its files change.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

func Default() Config {
	return Config{
		SampleRate:   48000,
		Polyphony:    64,
		IncludeGuard: true,
		MasterVolume: 1,
		TailSeconds:  2,
		BufferSize:   50 * time.Millisecond,
		LogLevel:     "info",
		LogFormat:    "text",
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: 200 * time.Millisecond,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies SFZPLAY_*
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := Decode(bytes.NewReader(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Decode reads YAML into cfg, keeping the values of keys the document does
// not mention. Unknown keys are an error.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("SFZPLAY_SAMPLE_RATE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.SampleRate = i
		}
	}
	if v := getenv("SFZPLAY_POLYPHONY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Polyphony = i
		}
	}
	if v := getenv("SFZPLAY_INCLUDE_GUARD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.IncludeGuard = b
		}
	}
	if v := getenv("SFZPLAY_MASTER_VOLUME"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MasterVolume = f
		}
	}
	if v := getenv("SFZPLAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("SFZPLAY_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := getenv("SFZPLAY_MIDI_INPUT"); v != "" {
		cfg.MIDIInput = v
	}
	if v := getenv("SFZPLAY_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

func (c Config) Validate() error {
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", c.SampleRate)
	}
	if c.Polyphony < 1 || c.Polyphony > 256 {
		return fmt.Errorf("polyphony must be between 1 and 256, got %d", c.Polyphony)
	}
	if c.MasterVolume < 0 {
		return fmt.Errorf("master_volume must be >= 0")
	}
	if c.TailSeconds < 0 {
		return fmt.Errorf("tail_seconds must be >= 0")
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer_size must be >= 0")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.Watch.Enabled && c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be > 0 when watching")
	}
	return nil
}
