package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/polish/internal/shared"
	"github.com/desertthunder/polish/internal/ui"
	"github.com/urfave/cli/v3"
)

// SortWatch launches the interactive job UI, on one job when an id is given or on the recent list.
//
// Jobs are polled from the database, so this follows jobs run by serve or another sort start.
func (r *Runner) SortWatch(ctx context.Context, cmd *cli.Command) error {
	owner := ""
	jobID := cmd.StringArg("job")
	if jobID == "" {
		var err error
		if owner, err = r.owner(ctx, cmd); err != nil {
			return err
		}
	}

	s, err := r.build(ctx, stackOpts{})
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/polish-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	model := ui.NewModel(ctx, s.runner, ui.Options{OwnerID: owner, JobID: jobID, Interval: cmd.Duration("interval")})
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return model.Err()
}
