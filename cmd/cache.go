package main

import (
	"context"
	"time"

	"github.com/desertthunder/polish/internal/models"
	"github.com/urfave/cli/v3"
)

func daysFlag(cmd *cli.Command, name string, fallback time.Duration) time.Duration {
	if n := cmd.Int(name); n > 0 {
		return time.Duration(n) * 24 * time.Hour
	}
	return fallback
}

// JobsCleanup deletes finished jobs older than --older-than days.
func (r *Runner) JobsCleanup(ctx context.Context, cmd *cli.Command) error {
	s, err := r.build(ctx, stackOpts{})
	if err != nil {
		return err
	}

	olderThan := daysFlag(cmd, "older-than", r.config.Jobs.Retention())
	n, err := s.runner.Cleanup(ctx, olderThan)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"deleted": n, "older_than_hours": olderThan.Hours()}, cmd.Bool("pretty"))
	}
	return r.writePlain("✓ Deleted %d finished jobs older than %s\n", n, olderThan)
}

// CacheClear drops cached tracks older than the TTL.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	s, err := r.build(ctx, stackOpts{})
	if err != nil {
		return err
	}

	ttl := daysFlag(cmd, "ttl-days", r.config.Cache.TTL())
	n, err := s.cache.ClearExpired(ctx, ttl, r.now())
	if err != nil {
		return err
	}
	r.logger.Info("track cache cleared", "deleted", n, "ttl", ttl)

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"deleted": n}, cmd.Bool("pretty"))
	}
	return r.writePlain("✓ Removed %d cached tracks\n", n)
}

// CacheStats shows how many tracks are cached and how many jobs are in each state.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	s, err := r.build(ctx, stackOpts{})
	if err != nil {
		return err
	}

	tracks, err := s.cache.Count(ctx)
	if err != nil {
		return err
	}
	jobs := map[models.JobStatus]int{}
	statuses := []models.JobStatus{
		models.JobPending, models.JobInProgress, models.JobCompleted, models.JobFailed, models.JobCancelled,
	}
	for _, st := range statuses {
		if jobs[st], err = s.jobs.CountByStatus(ctx, st); err != nil {
			return err
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"cached_tracks": tracks, "jobs": jobs}, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Local state")
	r.writePlain("Cached tracks: %d\n", tracks)
	for _, st := range statuses {
		r.writePlain("Jobs %-12s %d\n", string(st)+":", jobs[st])
	}
	return nil
}
