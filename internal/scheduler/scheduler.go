// Package scheduler runs recurring playlist maintenance.
//
// A single loop polls for due schedules on a fixed interval. Sort schedules go through the same
// admission path as manual sorts; cache maintenance runs inline. Every run records its outcome
// on the schedule and computes the next run from the schedule's recurrence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/repositories"
	"github.com/desertthunder/polish/internal/tasks"
)

const (
	DefaultInterval  = time.Minute
	DefaultBatchSize = 10
	DefaultCacheTTL  = 30 * 24 * time.Hour
)

var errUnsupportedAction = errors.New("Unsupported action")

// Submitter admits sort jobs. Implemented by [tasks.JobRunner].
type Submitter interface {
	Active(ctx context.Context, collectionID, ownerID string) (*models.Job, error)
	Submit(ctx context.Context, req tasks.SubmitRequest) (*models.Job, bool, error)
}

// CacheSweeper drops expired cache entries. Implemented by [repositories.TrackCache].
type CacheSweeper interface {
	ClearExpired(ctx context.Context, ttl time.Duration, now time.Time) (int64, error)
}

// Config tunes a [Scheduler]. Zero values take the package defaults.
type Config struct {
	Interval  time.Duration
	BatchSize int
	CacheTTL  time.Duration
	Logger    *log.Logger
	Now       func() time.Time
}

// Scheduler dispatches due schedules.
type Scheduler struct {
	repo   *repositories.ScheduleRepository
	jobs   Submitter
	cache  CacheSweeper
	cfg    Config
	logger *log.Logger
}

func New(repo *repositories.ScheduleRepository, jobs Submitter, cache CacheSweeper, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{repo: repo, jobs: jobs, cache: cache, cfg: cfg, logger: cfg.Logger}
}

// Run ticks until ctx is done. The first round runs immediately.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.cfg.Interval, "batch", s.cfg.BatchSize)
	s.round(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.round(ctx)
		}
	}
}

func (s *Scheduler) round(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler tick failed", "error", err)
	}
}

// Tick recomputes cleared run times, then dispatches up to BatchSize due schedules.
// It returns how many were dispatched. Per schedule failures are recorded on the schedule.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	if err := s.reschedule(ctx); err != nil {
		return 0, err
	}

	due, err := s.repo.Due(ctx, s.cfg.Now(), s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch due schedules: %w", err)
	}

	for _, sched := range due {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		err := s.dispatch(ctx, sched)
		s.markRun(ctx, sched, err)
	}
	return len(due), nil
}

func (s *Scheduler) reschedule(ctx context.Context) error {
	scheds, err := s.repo.Unscheduled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list unscheduled: %w", err)
	}
	for _, sched := range scheds {
		next := nextRun(s.logger, s.cfg.Now(), sched)
		if err := s.repo.SetNextRun(ctx, sched.ID, next); err != nil {
			s.logger.Warn("failed to store next run", "id", sched.ID, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, sched *models.Schedule) error {
	logger := s.logger.With("schedule_id", sched.ID, "action", sched.Action)

	switch p := sched.Params.(type) {
	case models.SortParams:
		active, err := s.jobs.Active(ctx, sched.CollectionID, sched.OwnerID)
		if err != nil {
			return err
		}
		if active != nil {
			logger.Info("sort already active, skipping", "playlist", sched.CollectionID, "job_id", active.ID)
			return nil
		}

		job, existing, err := s.jobs.Submit(ctx, tasks.SubmitRequest{
			CollectionID: sched.CollectionID,
			OwnerID:      sched.OwnerID,
			Spec:         p.Spec(),
			Source:       models.SourceScheduled,
			ScheduleID:   sched.ID,
		})
		if err != nil {
			return err
		}
		logger.Info("scheduled sort submitted", "job_id", job.ID, "existing", existing)
		return nil

	case models.CacheClearParams:
		ttl := s.cfg.CacheTTL
		if p.TTLDays > 0 {
			ttl = time.Duration(p.TTLDays) * 24 * time.Hour
		}
		n, err := s.cache.ClearExpired(ctx, ttl, s.cfg.Now())
		if err != nil {
			return err
		}
		logger.Info("scheduled cache cleanup", "removed", n)
		return nil

	default:
		logger.Warn("unsupported scheduled action")
		return errUnsupportedAction
	}
}

// markRun stores the outcome of a run and when the schedule is next due.
func (s *Scheduler) markRun(ctx context.Context, sched *models.Schedule, runErr error) {
	now := s.cfg.Now().UTC()
	next := nextRun(s.logger, now, sched)

	status, lastError := models.ScheduleOK, ""
	if runErr != nil {
		status, lastError = models.ScheduleFailed, runErr.Error()
		s.logger.Error("scheduled action failed", "schedule_id", sched.ID, "error", runErr)
	}

	if err := s.repo.MarkRun(context.WithoutCancel(ctx), sched.ID, now, &next, status, lastError); err != nil {
		s.logger.Error("failed to mark schedule run", "schedule_id", sched.ID, "error", err)
	}
}
