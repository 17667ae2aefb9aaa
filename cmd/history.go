package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/polish/internal/formatter"
	"github.com/desertthunder/polish/internal/oplog"
	"github.com/urfave/cli/v3"
)

// Undo reverses the newest undoable change to a playlist.
func (r *Runner) Undo(ctx context.Context, cmd *cli.Command) error {
	playlistID, err := requireArg(cmd, "playlist")
	if err != nil {
		return err
	}
	owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	s, err := r.build(ctx, stackOpts{remote: true})
	if err != nil {
		return err
	}

	result, err := s.log.Undo(ctx, playlistID, owner)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}
	r.writePlain("✓ %s\n", result.Message)
	r.writePlain("  Undid: #%d %s\n", result.Operation.ID, result.Operation.Summary())
	return nil
}

// History lists recorded changes for a playlist, or for every playlist with --all.
// With --export it writes the tracks removed by one entry to a file instead.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("export") {
		return r.exportRemoved(ctx, cmd, owner)
	}

	all := cmd.Bool("all")
	playlistID := cmd.StringArg("playlist")
	if !all && playlistID == "" {
		if _, err := requireArg(cmd, "playlist"); err != nil {
			return fmt.Errorf("%w (or pass --all)", err)
		}
	}

	s, err := r.build(ctx, stackOpts{remote: true})
	if err != nil {
		return err
	}

	var entries []oplog.Entry
	if all {
		entries, err = s.log.AllHistory(ctx, owner, cmd.Int("limit"))
	} else {
		entries, err = s.log.History(ctx, playlistID, owner, cmd.Int("limit"))
	}
	if err != nil {
		return err
	}
	return r.write(cmd, entries, func() []byte { return formatter.HistoryTable(entries) })
}

func (r *Runner) exportRemoved(ctx context.Context, cmd *cli.Command, owner string) error {
	s, err := r.build(ctx, stackOpts{})
	if err != nil {
		return err
	}

	op, err := s.log.Get(ctx, cmd.Int64("export"), owner)
	if err != nil {
		return err
	}
	path, err := formatter.WriteRemovedExport(op, cmd.String("output"))
	if err != nil {
		return err
	}
	r.logger.Info("removed tracks exported", "operation", op.ID, "path", path)

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"operation_id": op.ID, "path": path}, cmd.Bool("pretty"))
	}
	return r.writePlain("✓ Exported removed tracks to %s\n", path)
}
