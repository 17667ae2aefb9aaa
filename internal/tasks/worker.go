package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/oplog"
	"github.com/desertthunder/polish/internal/services"
	"github.com/desertthunder/polish/internal/shared"
	"github.com/desertthunder/polish/internal/sorter"
)

var errStopped = errors.New("job cancelled")

// execution is the state of one job on one worker.
type execution struct {
	r      *JobRunner
	job    *models.Job
	logger *log.Logger
}

// run claims a queued job and drives it to a terminal state.
func (r *JobRunner) run(ctx context.Context, id string) {
	logger := shared.WithLogger(r.logger, "job_id", id)

	ok, err := r.jobs.Transition(ctx, id, models.JobPending, models.JobInProgress, msgFetching, r.now())
	if err != nil {
		logger.Error("failed to claim job", "error", err)
		return
	}
	if !ok {
		logger.Debug("job no longer pending, skipping")
		return
	}

	r.registry.Register(id)
	defer r.registry.Clear(id)

	job, err := r.jobs.Get(ctx, id)
	if err != nil {
		logger.Error("failed to load claimed job", "error", err)
		return
	}

	e := &execution{r: r, job: job, logger: logger}
	defer func() {
		if p := recover(); p != nil {
			logger.Error("worker panicked", "panic", p)
			e.fail(ctx, fmt.Errorf("internal error: %v", p))
		}
	}()

	logger.Info("job started", "playlist", job.CollectionID, "spec", job.Spec)
	e.execute(ctx)
}

func (e *execution) cancelled() bool {
	return e.r.registry.Cancelled(e.job.ID)
}

// update persists progress. A row cancelled from elsewhere raises the local flag.
func (e *execution) update(ctx context.Context, u models.JobUpdate, event ProgressUpdate) {
	stored, err := e.r.jobs.Update(ctx, e.job.ID, u, e.r.now())
	if err != nil {
		e.logger.Warn("failed to persist progress", "error", err)
	} else {
		e.job = stored
		if stored.Status == models.JobCancelled {
			e.r.registry.Signal(e.job.ID)
		}
	}
	e.r.sendProgress(event)
}

func (e *execution) execute(ctx context.Context) {
	r, job := e.r, e.job
	collection := job.CollectionID
	spec := job.Spec

	r.sendProgress(fetchStartUpdate(job.ID))

	before, err := r.remote.VersionToken(ctx, collection)
	if err != nil {
		e.fail(ctx, err)
		return
	}

	items, err := services.FetchAll(ctx, r.remote, collection, func(loaded, total int) error {
		ev := fetchedUpdate(job.ID, loaded, total)
		e.update(ctx, models.JobUpdate{Message: &ev.Message}, ev)
		if e.cancelled() {
			return errStopped
		}
		return nil
	})
	if errors.Is(err, errStopped) {
		e.cancel(ctx, 0)
		return
	}
	if err != nil {
		e.fail(ctx, err)
		return
	}

	if r.opts.Cache != nil {
		if err := r.opts.Cache.Put(ctx, items, r.now()); err != nil {
			e.logger.Warn("failed to cache track metadata", "error", err)
		}
	}

	order := sorter.TargetOrder(items, spec.Field, spec.Direction)
	moves := sorter.MovesNeeded(items, sorter.Apply(items, order))
	estimate := sorter.EstimateSeconds(spec.Method, len(items), moves)

	// A fast sort rewrites every track, so its progress is counted in tracks rather than moves.
	total := moves
	if spec.Method == models.MethodFast {
		total = len(items)
	}

	ev := analyzedUpdate(job.ID, moves, total, estimate)
	e.update(ctx, models.JobUpdate{
		Progress:         models.Ptr(0),
		Total:            models.Ptr(total),
		EstimatedSeconds: models.Ptr(estimate),
		Message:          &ev.Message,
	}, ev)
	e.logger.Info("playlist analyzed", "tracks", len(items), "moves", moves, "estimate_s", estimate)

	if e.cancelled() {
		e.cancel(ctx, 0)
		return
	}

	res := sorter.Result{SnapshotAfter: before}
	if moves > 0 {
		res, err = sorter.Run(ctx, r.remote, collection, spec.Method, items, order, before, sorter.Options{
			Progress: func(done int) {
				step := min(done, total)
				ev := executeUpdate(job.ID, spec.Method, step, total)
				e.update(ctx, models.JobUpdate{Progress: models.Ptr(step), Message: &ev.Message}, ev)
			},
			Cancelled: e.cancelled,
			Pause:     r.opts.Pause,
		})
		if err != nil {
			e.fail(ctx, err)
			return
		}
		if res.Cancelled {
			e.cancel(ctx, min(res.Moves, total))
			return
		}
	}

	final := context.WithoutCancel(ctx)
	after := res.SnapshotAfter
	if moves > 0 {
		if token, err := r.remote.VersionToken(final, collection); err != nil {
			e.logger.Warn("failed to re-read version token, using last reported", "error", err)
		} else {
			after = token
		}
	}

	if r.log != nil {
		_, err := r.log.Record(final, oplog.RecordRequest{
			CollectionID:   collection,
			OwnerID:        job.OwnerID,
			SnapshotBefore: before,
			SnapshotAfter:  after,
			Payload: models.SortReorderPayload{
				OriginalOrder: models.URIs(items),
				SortBy:        spec.Field,
				Direction:     spec.Direction,
				Method:        spec.Method,
				Source:        job.Source,
				ScheduleID:    job.ScheduleID,
				TracksMoved:   moves,
			},
			ChangesMade: moves > 0,
		})
		if err != nil {
			e.logger.Warn("failed to record undo entry", "error", err)
		}
	}

	e.complete(final, len(items), moves, total)
}

func (e *execution) complete(ctx context.Context, items, moves, total int) {
	ev := completedUpdate(e.job.ID, items, total, moves > 0)
	e.finish(ctx, models.JobCompleted, ev, models.JobUpdate{Progress: models.Ptr(total)})
	e.logger.Info("job completed", "tracks", items, "moves", moves)
}

func (e *execution) cancel(ctx context.Context, progress int) {
	ev := cancelledUpdate(e.job.ID, progress, e.job.Total)
	e.finish(context.WithoutCancel(ctx), models.JobCancelled, ev, models.JobUpdate{Progress: models.Ptr(progress)})
	e.logger.Info("job cancelled", "progress", progress)
}

func (e *execution) fail(ctx context.Context, err error) {
	final := context.WithoutCancel(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		ev := ProgressUpdate{JobID: e.job.ID, Phase: Finished, Message: msgInterrupted, Status: models.JobFailed}
		e.finish(final, models.JobFailed, ev, models.JobUpdate{Error: models.Ptr(errInterrupted)})
		e.logger.Warn("job interrupted by shutdown")
		return
	}

	ev := failedUpdate(e.job.ID, err)
	e.finish(final, models.JobFailed, ev, models.JobUpdate{Error: models.Ptr(err.Error())})
	e.logger.Error("job failed", "error", err)
}

// finish moves the job out of in_progress. A job already cancelled from elsewhere keeps that state.
func (e *execution) finish(ctx context.Context, to models.JobStatus, ev ProgressUpdate, extra models.JobUpdate) {
	ok, err := e.r.jobs.Transition(ctx, e.job.ID, models.JobInProgress, to, ev.Message, e.r.now())
	if err != nil {
		e.logger.Error("failed to finish job", "status", to, "error", err)
		return
	}
	if !ok {
		current, err := e.r.jobs.Get(ctx, e.job.ID)
		if err == nil {
			ev.Status = current.Status
			ev.Message = current.Message
		}
		e.r.sendProgress(ev)
		return
	}

	if _, err := e.r.jobs.Update(ctx, e.job.ID, extra, e.r.now()); err != nil {
		e.logger.Warn("failed to persist final counters", "error", err)
	}
	e.r.sendProgress(ev)
}
