package main

import (
	"context"
	"time"

	"github.com/desertthunder/polish/internal/scheduler"
	"github.com/desertthunder/polish/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Serve runs the worker pool, the scheduler and periodic job cleanup until interrupted.
//
// Jobs left pending or in progress by a previous process are failed first; nothing else would ever
// finish them.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	s, err := r.build(ctx, stackOpts{remote: true})
	if err != nil {
		return err
	}

	if _, err := s.runner.Recover(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	s.runner.Start(ctx)
	g.Go(func() error {
		<-ctx.Done()
		s.runner.Wait()
		return nil
	})

	if r.config.Scheduler.Enabled {
		sched := scheduler.New(s.schedules, s.runner, s.cache, scheduler.Config{
			Interval:  r.config.Scheduler.PollInterval(),
			BatchSize: r.config.Scheduler.BatchSize,
			CacheTTL:  r.config.Cache.TTL(),
			Logger:    shared.WithLogger(r.logger, "component", "scheduler"),
			Now:       r.now,
		})
		g.Go(func() error {
			sched.Run(ctx)
			return nil
		})
	} else {
		r.logger.Info("scheduler disabled")
	}

	interval := cmd.Duration("cleanup-interval")
	if interval <= 0 {
		interval = time.Hour
	}
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := s.runner.Cleanup(ctx, r.config.Jobs.Retention()); err != nil && ctx.Err() == nil {
					r.logger.Error("job cleanup failed", "error", err)
				}
			}
		}
	})

	r.logger.Info("serving", "workers", r.config.Jobs.Workers, "scheduler", r.config.Scheduler.Enabled)
	err = g.Wait()
	r.logger.Info("stopped")
	return err
}
