// Command sfzplay inspects, renders and plays SFZ instruments.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cbegin/sfzplay-go"
	"github.com/cbegin/sfzplay-go/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// app carries the resolved configuration shared by every subcommand.
type app struct {
	configPath string
	cfg        config.Config
	log        *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "sfzplay",
		Short:        "Inspect, render and play SFZ instruments",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.String("log-level", "", "log level: debug|info|warn|error")
	pf.String("log-format", "", "log format: text|json")
	pf.Int("sample-rate", 0, "output sample rate")
	pf.Int("polyphony", 0, "maximum simultaneous voices")
	pf.Bool("include-guard", true, "skip includes that re-enter a file being expanded")

	root.AddCommand(a.inspectCmd(), a.renderCmd(), a.playCmd())
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	if flags.Changed("sample-rate") {
		cfg.SampleRate, _ = flags.GetInt("sample-rate")
	}
	if flags.Changed("polyphony") {
		cfg.Polyphony, _ = flags.GetInt("polyphony")
	}
	if flags.Changed("include-guard") {
		cfg.IncludeGuard, _ = flags.GetBool("include-guard")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	a.cfg = cfg
	a.log = newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	return nil
}

func (a *app) synthOptions() []sfzplay.Option {
	return []sfzplay.Option{
		sfzplay.WithIncludeGuard(a.cfg.IncludeGuard),
		sfzplay.WithLogger(a.log),
	}
}
