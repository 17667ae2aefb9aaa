package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/polish/internal/models"
)

const jobColumns = `
	id, collection_id, owner_id, sort_by, direction, method, status,
	progress, total, estimated_seconds, message, error, source, schedule_id,
	started_at, updated_at, completed_at
`

// JobRepository persists sort jobs.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new JobRepository with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.CollectionID,
		job.OwnerID,
		string(job.Spec.Field),
		string(job.Spec.Direction),
		string(job.Spec.Method),
		string(job.Status),
		job.Progress,
		job.Total,
		job.EstimatedSeconds,
		job.Message,
		nullString(job.Error),
		string(job.Source),
		nullString(job.ScheduleID),
		job.StartedAt.UTC(),
		job.UpdatedAt.UTC(),
		nullTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID.
func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "job", id)
	}
	return job, nil
}

// Update applies a partial change to a job and returns the stored result.
func (r *JobRepository) Update(ctx context.Context, id string, update models.JobUpdate, now time.Time) (*models.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "job", id)
	}

	update.Apply(job, now)

	query := `
		UPDATE jobs
		SET status = ?, progress = ?, total = ?, estimated_seconds = ?, message = ?,
			error = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`
	_, err = tx.ExecContext(ctx, query,
		string(job.Status),
		job.Progress,
		job.Total,
		job.EstimatedSeconds,
		job.Message,
		nullString(job.Error),
		job.UpdatedAt,
		nullTime(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job update: %w", err)
	}
	return job, nil
}

// Transition moves a job from one status to another only if it is still in the expected status.
// It reports whether the row changed, which lets a cancel request and a worker race safely.
func (r *JobRepository) Transition(ctx context.Context, id string, from, to models.JobStatus, message string, now time.Time) (bool, error) {
	now = now.UTC()
	var completedAt any
	if to.Terminal() {
		completedAt = now
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, message = ?, updated_at = ?, completed_at = COALESCE(?, completed_at)
		WHERE id = ? AND status = ?
	`, string(to), message, now, completedAt, id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to transition job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

// ActiveForCollection returns the newest pending or in-progress job for a playlist, or nil.
func (r *JobRepository) ActiveForCollection(ctx context.Context, collectionID string) (*models.Job, error) {
	query := `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE collection_id = ? AND status IN ('pending', 'in_progress')
		ORDER BY started_at DESC
		LIMIT 1
	`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, collectionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}
	return job, nil
}

// CountActiveForOwner counts the owner's pending and in-progress jobs.
func (r *JobRepository) CountActiveForOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE owner_id = ? AND status IN ('pending', 'in_progress')`,
		ownerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return count, nil
}

// CountByStatus counts jobs in the given status across all owners.
func (r *JobRepository) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status = ?`, string(status)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// Recent lists the owner's jobs, newest first.
func (r *JobRepository) Recent(ctx context.Context, ownerID string, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = ? ORDER BY started_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

// FailActive marks every pending or in-progress job failed and returns how many changed.
//
// Used once at startup: work that was running when the process died cannot be resumed safely.
func (r *JobRepository) FailActive(ctx context.Context, errText, message string, now time.Time) (int64, error) {
	now = now.UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed', error = ?, message = ?, updated_at = ?, completed_at = ?
		WHERE status IN ('pending', 'in_progress')
	`, errText, message, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to fail active jobs: %w", err)
	}
	return result.RowsAffected()
}

// DeleteFinishedBefore removes terminal jobs completed before cutoff.
func (r *JobRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < ?
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}
	return result.RowsAffected()
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job         models.Job
		errText     sql.NullString
		scheduleID  sql.NullString
		completedAt sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.CollectionID,
		&job.OwnerID,
		&job.Spec.Field,
		&job.Spec.Direction,
		&job.Spec.Method,
		&job.Status,
		&job.Progress,
		&job.Total,
		&job.EstimatedSeconds,
		&job.Message,
		&errText,
		&job.Source,
		&scheduleID,
		&job.StartedAt,
		&job.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Error = errText.String
	job.ScheduleID = scheduleID.String
	job.StartedAt = job.StartedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	job.CompletedAt = timePtr(completedAt)
	return &job, nil
}
