package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/polish/internal/formatter"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/shared"
	"github.com/desertthunder/polish/internal/tasks"
	"github.com/desertthunder/polish/internal/ui"
	"github.com/urfave/cli/v3"
)

// statusPoll is how often SortStart re-reads the job in case a progress event was dropped.
const statusPoll = 2 * time.Second

func specFromFlags(cmd *cli.Command) (models.SortSpec, error) {
	return models.ParseSortSpec(cmd.String("by"), cmd.String("direction"), cmd.String("method"))
}

// SortAnalyze reports what a sort would do without changing the playlist.
func (r *Runner) SortAnalyze(ctx context.Context, cmd *cli.Command) error {
	playlistID, err := requireArg(cmd, "playlist")
	if err != nil {
		return err
	}
	spec, err := specFromFlags(cmd)
	if err != nil {
		return err
	}

	s, err := r.build(ctx, stackOpts{remote: true})
	if err != nil {
		return err
	}

	analysis, err := s.runner.Analyze(ctx, playlistID, spec)
	if err != nil {
		return fmt.Errorf("failed to analyze playlist: %w", err)
	}
	return r.write(cmd, analysis, func() []byte { return formatter.AnalysisText(analysis) })
}

// SortStart submits a sort and runs it in this process until it finishes.
//
// A job already running for the playlist (e.g. under serve) is reported instead of starting a second one.
func (r *Runner) SortStart(ctx context.Context, cmd *cli.Command) error {
	playlistID, err := requireArg(cmd, "playlist")
	if err != nil {
		return err
	}
	spec, err := specFromFlags(cmd)
	if err != nil {
		return err
	}
	owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	watch := cmd.Bool("watch") && !cmd.Bool("json")
	if watch {
		fileLogger, err := shared.NewFileLogger("./tmp/polish-tui.log")
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		r.SetLogger(fileLogger)
	}

	updates := make(chan tasks.ProgressUpdate, 256)
	s, err := r.build(ctx, stackOpts{remote: true, updates: updates, workers: 1})
	if err != nil {
		return err
	}

	workerCtx, stop := context.WithCancel(ctx)
	defer func() {
		stop()
		s.runner.Wait()
	}()
	s.runner.Start(workerCtx)

	job, existing, err := s.runner.Submit(ctx, tasks.SubmitRequest{
		CollectionID: playlistID,
		OwnerID:      owner,
		Spec:         spec,
		Source:       models.SourceManual,
	})
	if err != nil {
		return err
	}
	if existing {
		r.logger.Warn("a sort is already running for this playlist", "job_id", job.ID)
		return r.write(cmd, job, func() []byte {
			return append([]byte("A sort is already running for this playlist.\n\n"), formatter.JobText(job)...)
		})
	}

	if watch {
		model := ui.NewModel(ctx, s.runner, ui.Options{JobID: job.ID, Updates: updates})
		if _, err := tea.NewProgram(model).Run(); err != nil {
			return fmt.Errorf("error running TUI: %w", err)
		}
		if model.Job() != nil && !model.Job().Status.Terminal() {
			// The UI was closed early; the job keeps running until it finishes here.
			r.logger.Info("waiting for job to finish", "job_id", job.ID)
		}
	}

	final, err := r.waitForJob(ctx, s.runner, job.ID, updates, !watch && !cmd.Bool("json"))
	if err != nil {
		return err
	}
	if err := r.write(cmd, final, func() []byte { return formatter.JobText(final) }); err != nil {
		return err
	}
	if final.Status == models.JobFailed {
		return fmt.Errorf("sort %s failed: %s", final.ID, final.Error)
	}
	return nil
}

// waitForJob drains progress events until job id reaches a terminal state, echoing each event's
// message when echo is set. The job is re-read periodically so a dropped event cannot stall it.
func (r *Runner) waitForJob(ctx context.Context, runner *tasks.JobRunner, id string, updates <-chan tasks.ProgressUpdate, echo bool) (*models.Job, error) {
	ticker := time.NewTicker(statusPoll)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case u := <-updates:
			if u.JobID != id {
				continue
			}
			if echo && u.Message != "" && u.Message != last {
				r.writePlain("[%s] %s\n", u.Phase, u.Message)
				last = u.Message
			}
			if u.Phase != tasks.Finished {
				continue
			}
		case <-ticker.C:
		}

		job, err := runner.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
	}
}

// SortStatus shows one job.
func (r *Runner) SortStatus(ctx context.Context, cmd *cli.Command) error {
	jobID, err := requireArg(cmd, "job")
	if err != nil {
		return err
	}
	s, err := r.build(ctx, stackOpts{})
	if err != nil {
		return err
	}

	job, err := s.runner.Status(ctx, jobID)
	if err != nil {
		return err
	}
	return r.write(cmd, job, func() []byte { return formatter.JobText(job) })
}

// SortCancel asks a pending or running job to stop.
func (r *Runner) SortCancel(ctx context.Context, cmd *cli.Command) error {
	jobID, err := requireArg(cmd, "job")
	if err != nil {
		return err
	}
	s, err := r.build(ctx, stackOpts{})
	if err != nil {
		return err
	}

	job, err := s.runner.Cancel(ctx, jobID)
	if err != nil {
		return err
	}
	r.logger.Info("cancellation requested", "job_id", job.ID, "status", job.Status)
	return r.write(cmd, job, func() []byte { return formatter.JobText(job) })
}

// SortActive shows the job currently running for a playlist.
func (r *Runner) SortActive(ctx context.Context, cmd *cli.Command) error {
	playlistID, err := requireArg(cmd, "playlist")
	if err != nil {
		return err
	}
	owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	s, err := r.build(ctx, stackOpts{})
	if err != nil {
		return err
	}

	job, err := s.runner.Active(ctx, playlistID, owner)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"active": job != nil, "job": job}, cmd.Bool("pretty"))
	}
	if job == nil {
		return r.writePlain("No sort running for %s\n", playlistID)
	}
	return r.write(cmd, job, func() []byte { return formatter.JobText(job) })
}

// SortRecent lists the owner's latest jobs.
func (r *Runner) SortRecent(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	s, err := r.build(ctx, stackOpts{})
	if err != nil {
		return err
	}

	jobs, err := s.runner.Recent(ctx, owner, cmd.Int("limit"))
	if err != nil {
		return err
	}
	return r.write(cmd, jobs, func() []byte { return formatter.JobsTable(jobs) })
}
