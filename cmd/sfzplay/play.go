package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cbegin/sfzplay-go"
	"github.com/cbegin/sfzplay-go/internal/midiin"
)

func (a *app) playCmd() *cobra.Command {
	var (
		midiPath   string
		input      string
		listInputs bool
		loop       bool
		loops      int
		watchFiles bool
	)
	cmd := &cobra.Command{
		Use:   "play <file.sfz>",
		Short: "Play an instrument from a MIDI file or a live MIDI input",
		Long: `Plays a Standard MIDI File through the instrument, or, with --input,
sounds a live MIDI device until interrupted. With --watch the instrument is
reloaded whenever one of its files changes.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if listInputs {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if listInputs {
				for _, name := range midiin.InputNames() {
					fmt.Fprintln(out, name)
				}
				return nil
			}
			if !cmd.Flags().Changed("input") {
				input = a.cfg.MIDIInput
			}
			if !cmd.Flags().Changed("watch") {
				watchFiles = a.cfg.Watch.Enabled
			}
			if midiPath == "" && input == "" {
				return errors.New("need --midi or --input")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if a.cfg.MetricsAddr != "" {
				stop := a.serveMetrics(a.cfg.MetricsAddr)
				defer stop()
			}

			pl, err := sfzplay.NewPlayer(a.cfg.SampleRate,
				sfzplay.WithSynthOptions(a.synthOptions()...),
				sfzplay.WithPolyphony(a.cfg.Polyphony),
				sfzplay.WithBufferSize(a.cfg.BufferSize),
				sfzplay.WithReleaseTail(time.Duration(a.cfg.TailSeconds*float64(time.Second))),
				sfzplay.WithLoopPlayback(loop),
			)
			if err != nil {
				return err
			}
			pl.SetMasterVolume(a.cfg.MasterVolume)
			if err := pl.LoadInstrument(ctx, args[0]); err != nil {
				return err
			}
			if watchFiles {
				if err := pl.WatchInstrument(ctx, a.cfg.Watch.Debounce); err != nil {
					return err
				}
			}

			ch := pl.Watch()
			if input != "" {
				if err := pl.PlayLive(); err != nil {
					return err
				}
				stopMIDI, err := pl.ListenMIDI(input)
				if err != nil {
					_ = pl.Stop()
					return err
				}
				defer stopMIDI()
			} else if err := pl.PlayMIDIFile(midiPath); err != nil {
				return err
			}

			loopCount := 0
			for {
				select {
				case <-ctx.Done():
					a.log.Info("stopping playback")
					return pl.Stop()
				case ev := <-ch:
					switch ev.Kind {
					case sfzplay.EventPlaybackEnded:
						fmt.Fprintln(out, "playback completed")
						pl.Wait()
						return nil
					case sfzplay.EventLoopCompleted:
						loopCount++
						fmt.Fprintf(out, "loop %d completed\n", loopCount)
						if loops > 0 && loopCount >= loops {
							if err := pl.Stop(); err != nil {
								return err
							}
						}
					case sfzplay.EventInstrumentReloaded:
						a.log.Info("instrument reloaded", "regions", pl.Synth().NumRegions())
					case sfzplay.EventReloadFailed:
						a.log.Warn("reload failed, keeping previous instrument", "error", ev.Err)
					}
				}
			}
		},
	}
	f := cmd.Flags()
	f.StringVar(&midiPath, "midi", "", "Standard MIDI File to play")
	f.StringVar(&input, "input", "", "live MIDI input port name")
	f.BoolVar(&listInputs, "list-inputs", false, "list MIDI input ports and exit")
	f.BoolVar(&loop, "loop", false, "loop the MIDI file")
	f.IntVar(&loops, "loops", 0, "stop after this many loops (0 = forever)")
	f.BoolVar(&watchFiles, "watch", false, "reload the instrument when its files change")
	return cmd
}

// serveMetrics exposes /metrics on addr until the returned stop is called.
func (a *app) serveMetrics(addr string) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	a.log.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
