package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/polish/internal/formatter"
	"github.com/desertthunder/polish/internal/shared"
	"github.com/desertthunder/polish/internal/tasks"
	"github.com/urfave/cli/v3"
)

// DedupeFind lists repeated tracks in a playlist.
func (r *Runner) DedupeFind(ctx context.Context, cmd *cli.Command) error {
	playlistID, err := requireArg(cmd, "playlist")
	if err != nil {
		return err
	}
	s, err := r.build(ctx, stackOpts{remote: true})
	if err != nil {
		return err
	}

	groups, err := s.dedupe.Find(ctx, playlistID, cmd.Bool("similar"))
	if err != nil {
		return fmt.Errorf("failed to find duplicates: %w", err)
	}
	return r.write(cmd, groups, func() []byte { return formatter.DuplicatesText(groups) })
}

// DedupeRemove deletes duplicates and records an undo entry. Without --position every occurrence
// after the first of each group is removed; with it, only the listed 1-based positions are.
func (r *Runner) DedupeRemove(ctx context.Context, cmd *cli.Command) error {
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

	groups, err := s.dedupe.Find(ctx, playlistID, cmd.Bool("similar"))
	if err != nil {
		return fmt.Errorf("failed to find duplicates: %w", err)
	}

	selections, err := r.selectDuplicates(groups, cmd.IntSlice("position"))
	if err != nil {
		return err
	}

	result, err := s.dedupe.Remove(ctx, playlistID, owner, selections)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	r.writePlain("✓ %s\n", result.Message)
	if result.Operation != nil {
		r.writePlain("  Undo with 'polish undo %s' (history entry #%d)\n", playlistID, result.Operation.ID)
	}
	return nil
}

// selectDuplicates picks the occurrences to delete. Requested positions that are not part of any
// duplicate group are rejected.
func (r *Runner) selectDuplicates(groups []tasks.DuplicateGroup, positions []int) ([]tasks.Selection, error) {
	var selections []tasks.Selection
	if len(positions) == 0 {
		for _, g := range groups {
			for _, o := range g.Occurrences[1:] {
				selections = append(selections, tasks.Selection{URI: o.URI, Position: o.Position})
			}
		}
		return selections, nil
	}

	listed := map[int]tasks.Occurrence{}
	for _, g := range groups {
		for _, o := range g.Occurrences {
			listed[o.Position+1] = o
		}
	}
	for _, p := range positions {
		o, ok := listed[p]
		if !ok {
			return nil, fmt.Errorf("%w: position %d is not a duplicate", shared.ErrInvalidArgument, p)
		}
		selections = append(selections, tasks.Selection{URI: o.URI, Position: o.Position})
	}
	return selections, nil
}
