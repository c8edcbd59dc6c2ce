package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cbegin/sfzplay-go"
	"github.com/cbegin/sfzplay-go/internal/sequencer"
)

func (a *app) renderCmd() *cobra.Command {
	var (
		midiPath string
		output   string
		note     int
		velocity int
		channel  int
		hold     time.Duration
		maxTail  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "render <file.sfz>",
		Short: "Render a MIDI file or a single note to a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New("--output is required")
			}
			s := sfzplay.New(a.synthOptions()...)
			if err := s.LoadDocument(args[0]); err != nil {
				return err
			}
			opts := sfzplay.DefaultRenderOptions()
			opts.Params.Polyphony = a.cfg.Polyphony
			opts.Params.MasterGain *= a.cfg.MasterVolume
			opts.MaxTail = maxTail
			rate := a.cfg.SampleRate

			var (
				samples []float32
				err     error
			)
			if midiPath != "" {
				samples, err = sfzplay.RenderMIDIFile(cmd.Context(), s, midiPath, rate, opts)
			} else {
				events := []sequencer.Event{
					{Frame: 0, Type: sequencer.NoteOn, Channel: channel, Key: note, Value: velocity},
					{Frame: sequencer.FramesAt(hold, rate), Type: sequencer.NoteOff, Channel: channel, Key: note},
				}
				samples, err = sfzplay.RenderEvents(cmd.Context(), s, events, rate, opts)
			}
			if err != nil {
				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := sfzplay.WriteWAVFloat32LE(f, samples, rate, 2); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", output, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.log.Info("rendered", "output", output, "frames", len(samples)/2, "sample_rate", rate)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", "output WAV file")
	f.StringVar(&midiPath, "midi", "", "Standard MIDI File to render")
	f.IntVar(&note, "note", 60, "key to render when no MIDI file is given")
	f.IntVar(&velocity, "velocity", 100, "velocity for --note")
	f.IntVar(&channel, "channel", 1, "MIDI channel (1-16) for --note")
	f.DurationVar(&hold, "hold", time.Second, "time --note is held before note-off")
	f.DurationVar(&maxTail, "max-tail", 10*time.Second, "longest rendering after the last event")
	return cmd
}
