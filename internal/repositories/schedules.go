package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/polish/internal/models"
)

const scheduleColumns = `
	id, collection_id, owner_id, action, params, frequency_minutes,
	next_run_at, last_run_at, enabled, status, last_error, created_at, updated_at
`

// ScheduleRepository persists recurring schedules.
type ScheduleRepository struct {
	db *sql.DB
}

// NewScheduleRepository creates a new ScheduleRepository with the given database connection
func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Replace stores s, deleting any existing schedule for the same (playlist, owner, action) first.
func (r *ScheduleRepository) Replace(ctx context.Context, s *models.Schedule) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	params, err := models.EncodeParams(s.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM schedules WHERE collection_id = ? AND owner_id = ? AND action = ?`,
		s.CollectionID, s.OwnerID, string(s.Action),
	)
	if err != nil {
		return fmt.Errorf("failed to delete previous schedule: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO schedules (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.CollectionID,
		s.OwnerID,
		string(s.Action),
		string(params),
		s.FrequencyMinutes,
		nullTime(s.NextRunAt),
		nullTime(s.LastRunAt),
		s.Enabled,
		string(s.Status),
		nullString(s.LastError),
		s.CreatedAt.UTC(),
		s.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schedule: %w", err)
	}
	return nil
}

// Get retrieves a schedule by ID.
func (r *ScheduleRepository) Get(ctx context.Context, id string) (*models.Schedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "schedule", id)
	}
	return s, nil
}

// Update writes every mutable field of s.
func (r *ScheduleRepository) Update(ctx context.Context, s *models.Schedule) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	params, err := models.EncodeParams(s.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET params = ?, frequency_minutes = ?, next_run_at = ?, last_run_at = ?,
			enabled = ?, status = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`,
		string(params),
		s.FrequencyMinutes,
		nullTime(s.NextRunAt),
		nullTime(s.LastRunAt),
		s.Enabled,
		string(s.Status),
		nullString(s.LastError),
		s.UpdatedAt.UTC(),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return affected(result, "schedule", s.ID)
}

// Delete removes a schedule owned by ownerID.
func (r *ScheduleRepository) Delete(ctx context.Context, id, ownerID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return affected(result, "schedule", id)
}

// List returns the owner's schedules, optionally limited to one playlist.
func (r *ScheduleRepository) List(ctx context.Context, ownerID, collectionID string) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE owner_id = ?`
	args := []any{ownerID}
	if collectionID != "" {
		query += " AND collection_id = ?"
		args = append(args, collectionID)
	}
	query += " ORDER BY created_at ASC"
	return r.list(ctx, query, args...)
}

// Due returns enabled schedules whose next run is at or before now, soonest first.
func (r *ScheduleRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.Schedule, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT ` + scheduleColumns + ` FROM schedules
		WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, now.UTC(), limit)
}

// Unscheduled returns enabled schedules whose next run has been cleared and must be recomputed.
func (r *ScheduleRepository) Unscheduled(ctx context.Context) ([]*models.Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE enabled = 1 AND next_run_at IS NULL`)
}

// MarkRun records the outcome of a run and the next time it is due.
func (r *ScheduleRepository) MarkRun(ctx context.Context, id string, ranAt time.Time, next *time.Time, status models.ScheduleStatus, lastError string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET last_run_at = ?, next_run_at = ?, status = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, ranAt.UTC(), nullTime(next), string(status), nullString(lastError), ranAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark schedule run: %w", err)
	}
	return affected(result, "schedule", id)
}

// SetNextRun stores a recomputed next run time.
func (r *ScheduleRepository) SetNextRun(ctx context.Context, id string, next time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE schedules SET next_run_at = ? WHERE id = ?`, next.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set next run: %w", err)
	}
	return affected(result, "schedule", id)
}

func (r *ScheduleRepository) list(ctx context.Context, query string, args ...any) ([]*models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}
	return schedules, nil
}

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	var (
		s         models.Schedule
		action    string
		params    string
		status    string
		nextRun   sql.NullTime
		lastRun   sql.NullTime
		lastError sql.NullString
	)

	err := row.Scan(
		&s.ID,
		&s.CollectionID,
		&s.OwnerID,
		&action,
		&params,
		&s.FrequencyMinutes,
		&nextRun,
		&lastRun,
		&s.Enabled,
		&status,
		&lastError,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Action = models.ActionType(action)
	s.Status = models.ScheduleStatus(status)
	s.NextRunAt = timePtr(nextRun)
	s.LastRunAt = timePtr(lastRun)
	s.LastError = lastError.String
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	s.Params, err = models.DecodeParams(s.Action, []byte(params))
	if err != nil {
		return nil, err
	}
	return &s, nil
}
