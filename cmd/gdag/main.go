// Command gdag drives the DAG consensus engine over simulated committees.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gordian-engine/gdag/cmd/gdag/internal/gdagcmd"
	"github.com/gordian-engine/gdag/dg/dgengine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := mainE(); err != nil {
		os.Exit(1)
	}
}

func mainE() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	root := NewRootCmd(logger)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Info("Failure", "err", err)
		os.Stderr.Sync()
		return err
	}

	return nil
}

func NewRootCmd(log *slog.Logger) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("GDAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use: "gdag SUBCOMMAND",

		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},

		Long: `gdag runs the DAG consensus engine against a simulated committee.

Every setting may be given as a flag, as a GDAG_ prefixed environment variable
(for example GDAG_WAVE_LENGTH=4), or in the file named by --config.
Flags take precedence over the environment, which takes precedence over the file.
`,

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}

			if path := v.GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read config file %q: %w", path, err)
				}
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "optional configuration file (any format viper reads)")
	gdagcmd.AddConsensusFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newSimulateCmd(log, v),
		newReplayCmd(log, v),
		newServeCmd(log, v),
		newCommitteeCmd(v),
	)

	return rootCmd
}

func newSimulateCmd(log *slog.Logger, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use: "simulate",

		Short: "Generate a DAG, run it through the engine, and print the commit sequence",

		Long: `simulate builds a committee with deterministic keys,
generates a DAG for the requested number of rounds,
and delivers each authority's blocks from its own goroutine.

With --db, blocks and commits persist to sqlite,
and a later simulate or replay against the same file resumes from them.
`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := gdagcmd.LoadConfig(v)
			if err != nil {
				return err
			}
			sim, pace := gdagcmd.LoadSimConfig(v)

			_, err = gdagcmd.RunSimulate(cmd.Context(), log, cmd.OutOrStdout(), cfg, sim, pace)
			return err
		},
	}

	gdagcmd.AddSimFlags(cmd.Flags(), 0)

	return cmd
}

func newReplayCmd(log *slog.Logger, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use: "replay",

		Short: "Recover engine state from a sqlite database and print a summary",

		Long: `replay runs the same recovery the engine runs at startup,
without starting the engine, and reports the recovered watermarks and scores.

The consensus flags must match those the database was written with.
`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := gdagcmd.LoadConfig(v)
			if err != nil {
				return err
			}

			_, err = gdagcmd.RunReplay(cmd.Context(), log, cmd.OutOrStdout(), cfg)
			return err
		},
	}

	return cmd
}

func newServeCmd(log *slog.Logger, v *viper.Viper) *cobra.Command {
	const keyListen = "listen"

	cmd := &cobra.Command{
		Use: "serve",

		Short: "Run a paced simulation while serving engine state over HTTP",

		Long: `serve runs a simulation at a human pace and exposes:

  GET /status            engine watermarks
  GET /scores            the current reputation scores
  GET /commits/{index}   a committed sub-dag
  GET /metrics           prometheus metrics

The server keeps running after the simulation ends, until interrupted.
`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := gdagcmd.LoadConfig(v)
			if err != nil {
				return err
			}
			sim, pace := gdagcmd.LoadSimConfig(v)

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			n, err := gdagcmd.StartNode(ctx, log, cfg, dgengine.WithPrometheusRegisterer(reg))
			if err != nil {
				return err
			}
			defer func() {
				if err := n.Stop(); err != nil {
					log.Warn("Error stopping node", "err", err)
				}
			}()

			byAuthor, err := gdagcmd.GenerateDAG(n.Fx, sim)
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", v.GetString(keyListen))
			if err != nil {
				return fmt.Errorf("failed to listen: %w", err)
			}

			sCtx, cancel := context.WithCancel(ctx)
			h := gdagcmd.NewHTTPServer(sCtx, log.With("sys", "http"), gdagcmd.HTTPServerConfig{
				Listener: ln,
				Engine:   n.Engine,
				Gatherer: reg,
			})
			defer h.Wait()
			defer cancel()

			log.Info("Serving", "addr", ln.Addr().String())

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				if err := gdagcmd.Feed(egCtx, log, n.Engine, byAuthor, pace); err != nil {
					return err
				}
				log.Info("Simulation fed; still serving until interrupted")
				return nil
			})
			eg.Go(func() error {
				for {
					select {
					case <-egCtx.Done():
						return nil
					case c := <-n.Commits:
						log.Info("Committed", "commit", c.Commit)
					}
				}
			})

			if err := eg.Wait(); err != nil && ctx.Err() == nil {
				return err
			}
			log.Info("Received ^c")
			return nil
		},
	}

	cmd.Flags().String(keyListen, "127.0.0.1:9090", "HTTP listen address")
	gdagcmd.AddSimFlags(cmd.Flags(), 250*time.Millisecond)

	return cmd
}

func newCommitteeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use: "committee",

		Short: "Print the simulated committee's public keys",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := gdagcmd.LoadConfig(v)
			if err != nil {
				return err
			}
			fx, err := gdagcmd.NewCommitteeFixture(cfg.Passphrase, cfg.Authorities)
			if err != nil {
				return err
			}

			for _, a := range fx.Committee.Authorities() {
				// Logs go to stderr, but the keys go to stdout.
				fmt.Fprintf(cmd.OutOrStdout(), "%d %s %x\n", a.Index, a.Hostname, a.PubKey.PubKeyBytes())
			}
			return nil
		},
	}

	return cmd
}
