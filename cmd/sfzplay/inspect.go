package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cbegin/sfzplay-go"
	"github.com/cbegin/sfzplay-go/internal/region"
)

func (a *app) inspectCmd() *cobra.Command {
	var (
		note     int
		velocity int
		channel  int
	)
	cmd := &cobra.Command{
		Use:   "inspect <file.sfz>",
		Short: "List the regions of an instrument",
		Long: `Loads an SFZ document and prints its files and resolved regions.
With --note, also prints the regions a note-on would trigger and their gains.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := sfzplay.New(a.synthOptions()...)
			if err := s.LoadDocument(args[0]); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			in := s.Instrument()
			fmt.Fprintf(out, "files:\n")
			for _, f := range in.Files() {
				fmt.Fprintf(out, "  %s\n", f)
			}
			if sw, ok := in.DefaultSwitch(); ok {
				fmt.Fprintf(out, "default keyswitch: %d\n", sw)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "#\tSAMPLE\tKEYS\tVEL\tTRIGGER\tSWITCHED\n")
			for i, v := range s.Regions() {
				r := v.Region
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%t\n",
					i, r.Sample, formatRange(r.KeyRange), formatRange(r.VelocityRange), r.Trigger, v.IsSwitchedOn())
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if !cmd.Flags().Changed("note") {
				return nil
			}
			matches := s.NoteOn(nil, channel, note, velocity)
			fmt.Fprintf(out, "note %d velocity %d channel %d: %d region(s)\n", note, velocity, channel, len(matches))
			var cc region.CCState
			s.CCSnapshot(&cc)
			for _, m := range matches {
				fmt.Fprintf(out, "  #%d %s gain=%.4f base=%.4f\n",
					m.Index, in.SamplePath(m.Region.Sample), m.Gain, m.Region.BaseGain(&cc))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&note, "note", 60, "simulate a note-on for this key")
	cmd.Flags().IntVar(&velocity, "velocity", 100, "velocity for --note")
	cmd.Flags().IntVar(&channel, "channel", 1, "MIDI channel (1-16) for --note")
	return cmd
}

func formatRange(r region.Range) string {
	if r.Lo == r.Hi {
		return fmt.Sprint(r.Lo)
	}
	return fmt.Sprintf("%d-%d", r.Lo, r.Hi)
}
