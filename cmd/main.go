package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/polish/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{
		ConfigPath: "config.toml",
		Logger:     logger,
	})
	defer runner.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runner.app().Run(ctx, os.Args); err != nil {
		runner.Close()
		logger.Fatalf("application error: %v", err)
	}
}

// app is the root command. Global flags are read by every subcommand.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "polish",
		Usage:   "Sort, deduplicate and schedule maintenance for Spotify playlists",
		Version: "0.1.0",
		Writer:  r.output,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("POLISH_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Owner the command acts for (defaults to credentials.spotify.user_id)",
				Sources: cli.EnvVars("POLISH_USER"),
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
		},
		Before:   r.loadConfig,
		Commands: r.register(),
	}
}
