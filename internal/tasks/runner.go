package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/oplog"
	"github.com/desertthunder/polish/internal/repositories"
	"github.com/desertthunder/polish/internal/services"
	"github.com/desertthunder/polish/internal/shared"
)

const (
	DefaultWorkers          = 4
	DefaultMaxActivePerUser = 2
	DefaultRetention        = 7 * 24 * time.Hour
	queueSize               = 64
)

// Options configures a [JobRunner].
type Options struct {
	Workers          int
	MaxActivePerUser int

	// Updates receives every progress event. Sends never block; events are dropped when full.
	Updates chan<- ProgressUpdate
	// Cache, when set, stores the metadata of every fetched item.
	Cache  *repositories.TrackCache
	Logger *log.Logger
	Now    func() time.Time
	// Pause replaces the sleep between preserve move bursts.
	Pause func(ctx context.Context, d time.Duration) error
}

// SubmitRequest asks for a playlist to be sorted.
type SubmitRequest struct {
	CollectionID string
	OwnerID      string
	Spec         models.SortSpec
	Source       models.Source
	ScheduleID   string
}

// JobRunner admits sort jobs, persists their state and executes them on a fixed worker pool.
type JobRunner struct {
	jobs     *repositories.JobRepository
	log      *oplog.Log
	remote   services.Collection
	registry *CancellationRegistry
	opts     Options
	logger   *log.Logger

	// admit serializes the check-then-create of Submit.
	admit sync.Mutex
	queue chan string
	wg    sync.WaitGroup
}

func NewJobRunner(jobs *repositories.JobRepository, opLog *oplog.Log, remote services.Collection, opts Options) *JobRunner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxActivePerUser <= 0 {
		opts.MaxActivePerUser = DefaultMaxActivePerUser
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &JobRunner{
		jobs:     jobs,
		log:      opLog,
		remote:   remote,
		registry: NewCancellationRegistry(),
		opts:     opts,
		logger:   opts.Logger,
		queue:    make(chan string, queueSize),
	}
}

// Registry exposes the runner's cancellation flags.
func (r *JobRunner) Registry() *CancellationRegistry { return r.registry }

func (r *JobRunner) now() time.Time { return r.opts.Now().UTC() }

func (r *JobRunner) sendProgress(update ProgressUpdate) {
	if r.opts.Updates == nil {
		return
	}
	select {
	case r.opts.Updates <- update:
	default:
	}
}

// Start launches the worker pool. Workers exit when ctx is done; use [JobRunner.Wait] to join them.
func (r *JobRunner) Start(ctx context.Context) {
	for i := 0; i < r.opts.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	r.logger.Info("worker pool started", "workers", r.opts.Workers)
}

// Wait blocks until every worker has exited.
func (r *JobRunner) Wait() {
	r.wg.Wait()
}

func (r *JobRunner) worker(ctx context.Context, n int) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			r.run(ctx, id)
		}
	}
}

// Submit admits a new job or returns the job already active for the playlist.
//
// Checks run in order: an owner at the concurrency limit gets [shared.ErrAdmission], even when
// resubmitting a playlist they are already sorting; an active job for the playlist is returned with
// existing=true; an invalid sort gets [shared.ErrValidation]. A full queue is refused with
// [shared.ErrAdmission] rather than waited on.
func (r *JobRunner) Submit(ctx context.Context, req SubmitRequest) (*models.Job, bool, error) {
	total := r.trackCount(ctx, req.CollectionID)

	r.admit.Lock()
	defer r.admit.Unlock()

	count, err := r.jobs.CountActiveForOwner(ctx, req.OwnerID)
	if err != nil {
		return nil, false, err
	}
	if count >= r.opts.MaxActivePerUser {
		return nil, false, fmt.Errorf("%w: %d sorts already running, wait for one to finish", shared.ErrAdmission, count)
	}

	active, err := r.activeForCollection(ctx, req.CollectionID)
	if err != nil {
		return nil, false, err
	}
	if active != nil {
		return active, true, nil
	}

	spec := req.Spec
	if err := spec.Validate(); err != nil {
		return nil, false, err
	}

	if len(r.queue) >= cap(r.queue) {
		return nil, false, fmt.Errorf("%w: too many sorts queued, try again shortly", shared.ErrAdmission)
	}

	job := models.NewJob(req.CollectionID, req.OwnerID, spec, r.now())
	if req.Source != "" {
		job.Source = req.Source
	}
	job.ScheduleID = req.ScheduleID
	job.Total = total
	if err := r.jobs.Create(ctx, job); err != nil {
		return nil, false, err
	}

	select {
	case r.queue <- job.ID:
	default:
		final := context.WithoutCancel(ctx)
		if _, err := r.jobs.Transition(final, job.ID, models.JobPending, models.JobFailed, errQueueFull, r.now()); err != nil {
			r.logger.Error("failed to release unqueued job", "job_id", job.ID, "error", err)
		} else if _, err := r.jobs.Update(final, job.ID, models.JobUpdate{Error: models.Ptr(errQueueFull)}, r.now()); err != nil {
			r.logger.Error("failed to release unqueued job", "job_id", job.ID, "error", err)
		}
		return nil, false, fmt.Errorf("%w: too many sorts queued, try again shortly", shared.ErrAdmission)
	}

	r.logger.Info("job queued", "job_id", job.ID, "playlist", job.CollectionID, "spec", job.Spec, "source", job.Source, "tracks", job.Total)
	r.sendProgress(ProgressUpdate{JobID: job.ID, Phase: Queued, Message: job.Message, Status: job.Status})
	return job, false, nil
}

// trackCount reads the playlist size so a pending job's stale timeout scales with it.
// Failures leave the count at zero; the worker reports the real error when it runs.
func (r *JobRunner) trackCount(ctx context.Context, collection string) int {
	if r.remote == nil {
		return 0
	}
	page, err := r.remote.Items(ctx, collection, 0, 1)
	if err != nil {
		r.logger.Warn("failed to read playlist size", "playlist", collection, "error", err)
		return 0
	}
	return page.Total
}

// staleTimeout is how long a pending job may wait for a worker, scaled by its size.
func staleTimeout(total int) time.Duration {
	switch {
	case total < 100:
		return 2 * time.Minute
	case total < 500:
		return 5 * time.Minute
	case total < 1000:
		return 10 * time.Minute
	default:
		return 15 * time.Minute
	}
}

// expireStale fails job if it has been pending past its timeout and reports whether it did.
func (r *JobRunner) expireStale(ctx context.Context, job *models.Job) (*models.Job, error) {
	if job.Status != models.JobPending || r.now().Sub(job.StartedAt) <= staleTimeout(job.Total) {
		return job, nil
	}

	ok, err := r.jobs.Transition(ctx, job.ID, models.JobPending, models.JobFailed, errStaleTimeout, r.now())
	if err != nil {
		return nil, err
	}
	if ok {
		if _, err := r.jobs.Update(ctx, job.ID, models.JobUpdate{Error: models.Ptr(errStaleTimeout)}, r.now()); err != nil {
			return nil, err
		}
		r.logger.Warn("pending job timed out", "job_id", job.ID, "waited", r.now().Sub(job.StartedAt))
	}
	return r.jobs.Get(ctx, job.ID)
}

func (r *JobRunner) activeForCollection(ctx context.Context, collectionID string) (*models.Job, error) {
	job, err := r.jobs.ActiveForCollection(ctx, collectionID)
	if err != nil || job == nil {
		return nil, err
	}
	if job, err = r.expireStale(ctx, job); err != nil {
		return nil, err
	}
	if !job.Status.Active() {
		return nil, nil
	}
	return job, nil
}

// Status returns a job, first failing it if it has waited too long for a worker.
func (r *JobRunner) Status(ctx context.Context, id string) (*models.Job, error) {
	job, err := r.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.expireStale(ctx, job)
}

// Active returns the job running on the playlist, or nil. A non-empty ownerID hides other owners' jobs.
func (r *JobRunner) Active(ctx context.Context, collectionID, ownerID string) (*models.Job, error) {
	job, err := r.activeForCollection(ctx, collectionID)
	if err != nil || job == nil {
		return nil, err
	}
	if ownerID != "" && job.OwnerID != ownerID {
		return nil, nil
	}
	return job, nil
}

// Recent lists the owner's jobs, newest first.
func (r *JobRunner) Recent(ctx context.Context, ownerID string, limit int) ([]*models.Job, error) {
	return r.jobs.Recent(ctx, ownerID, limit)
}

// Cancel asks a job to stop.
//
// A job held by a local worker is flagged and stops at its next checkpoint. A job no local worker
// holds is moved to cancelled directly; a worker in another process notices on its next progress write.
func (r *JobRunner) Cancel(ctx context.Context, id string) (*models.Job, error) {
	job, err := r.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, fmt.Errorf("%w: %s is %s", shared.ErrTerminal, id, job.Status)
	}

	if r.registry.Signal(id) {
		r.logger.Info("cancellation requested", "job_id", id)
		return job, nil
	}

	ok, err := r.jobs.Transition(ctx, id, job.Status, models.JobCancelled, msgCancelled, r.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// Claimed or finished between the read and the write.
		if r.registry.Signal(id) {
			return r.jobs.Get(ctx, id)
		}
	}
	r.logger.Info("job cancelled", "job_id", id, "was", job.Status)
	return r.jobs.Get(ctx, id)
}

// Recover fails every job left pending or in progress by a previous process.
func (r *JobRunner) Recover(ctx context.Context) (int64, error) {
	n, err := r.jobs.FailActive(ctx, errInterrupted, msgInterrupted, r.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Warn("interrupted jobs marked failed", "count", n)
	}
	return n, nil
}

// Cleanup removes finished jobs older than olderThan, defaulting to [DefaultRetention].
func (r *JobRunner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = DefaultRetention
	}
	n, err := r.jobs.DeleteFinishedBefore(ctx, r.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("old jobs removed", "count", n)
	}
	return n, nil
}
