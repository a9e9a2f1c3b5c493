package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/conneroisu/agentwire/pkg/agentwire"
	"github.com/conneroisu/agentwire/pkg/agentwire/adapters/stdio"
	"github.com/conneroisu/agentwire/pkg/agentwire/options"
	"github.com/conneroisu/agentwire/pkg/agentwire/permissions"
	"github.com/conneroisu/agentwire/pkg/agentwire/record"
)

// probeConfig is the YAML config file for the probe subcommand. Flags
// override file values.
type probeConfig struct {
	Command        string            `json:"command"`
	Args           []string          `json:"args"`
	Env            map[string]string `json:"env"`
	Dir            string            `json:"dir"`
	Model          string            `json:"model"`
	PermissionMode string            `json:"permissionMode"`
	ControlTimeout string            `json:"controlTimeout"`
}

func newProbeCmd() *cobra.Command {
	var configPath, model, recordPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "probe <command> [args...] -- <prompt>",
		Short: "Spawn an agent over stdio, run one prompt, and print its events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := probeConfig{}
			if configPath != "" {
				data, err := os.ReadFile(configPath)
				if err != nil {
					return err
				}
				if err := yaml.Unmarshal(data, &cfg); err != nil {
					return fmt.Errorf("parse config %s: %w", configPath, err)
				}
			}

			prompt := args[len(args)-1]
			if cfg.Command == "" {
				if len(args) < 2 {
					return fmt.Errorf("need a command and a prompt, or --config")
				}
				cfg.Command = args[0]
				cfg.Args = args[1 : len(args)-1]
			}
			if model != "" {
				cfg.Model = model
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel(verbose),
			}))

			opts := options.Options{
				Logger:         logger,
				Model:          cfg.Model,
				PermissionMode: permissions.Mode(cfg.PermissionMode),
			}
			if cfg.ControlTimeout != "" {
				d, err := time.ParseDuration(cfg.ControlTimeout)
				if err != nil {
					return fmt.Errorf("parse controlTimeout: %w", err)
				}
				opts.ControlTimeout = d
			}
			if recordPath != "" {
				f, err := os.Create(recordPath)
				if err != nil {
					return err
				}
				defer f.Close()
				opts.Recorder = record.NewRecorder(f)
			}

			transport := stdio.New(stdio.Config{
				Command: cfg.Command,
				Args:    cfg.Args,
				Env:     envSlice(cfg.Env),
				Dir:     cfg.Dir,
				Logger:  logger,
			})

			session, err := agentwire.Connect(cmd.Context(), transport, opts)
			if err != nil {
				return err
			}
			defer session.Close()

			turn, err := session.SubmitPrompt(cmd.Context(), prompt)
			if err != nil {
				return err
			}
			for ev := range turn.Events() {
				renderEvent(ev)
			}
			if err := turn.Err(); err != nil {
				return err
			}

			if stats, err := transport.Stats(); err == nil {
				metaColor.Printf("\nprocess: pid=%d uptime=%s cpu=%.1f%% rss=%dMiB\n",
					stats.PID, stats.Uptime.Round(time.Millisecond),
					stats.CPUPercent, stats.RSSBytes/(1024*1024))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file for the agent process")
	cmd.Flags().StringVar(&model, "model", "", "model to request during the handshake")
	cmd.Flags().StringVar(&recordPath, "record", "", "write an NDJSON transcript of the session")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")
	return cmd
}

func logLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := os.Environ()
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
