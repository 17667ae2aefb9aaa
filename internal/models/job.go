package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/polish/internal/shared"
)

// JobStatus is the lifecycle state of a [Job].
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Active reports whether the job still counts against admission limits.
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobInProgress
}

// Source records who asked for a job.
type Source string

const (
	SourceManual    Source = "manual"
	SourceScheduled Source = "scheduled"
)

// Job is one bulk reorder attempt against a playlist.
type Job struct {
	ID               string     `json:"id"`
	CollectionID     string     `json:"playlist_id"`
	OwnerID          string     `json:"user_id"`
	Spec             SortSpec   `json:"spec"`
	Status           JobStatus  `json:"status"`
	Progress         int        `json:"progress"`
	Total            int        `json:"total"`
	EstimatedSeconds int        `json:"estimated_seconds"`
	Message          string     `json:"message"`
	Error            string     `json:"error,omitempty"`
	Source           Source     `json:"source"`
	ScheduleID       string     `json:"schedule_id,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a pending job with a fresh id.
func NewJob(collectionID, ownerID string, spec SortSpec, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:           shared.NewJobID(),
		CollectionID: collectionID,
		OwnerID:      ownerID,
		Spec:         spec,
		Status:       JobPending,
		Message:      "Job queued",
		Source:       SourceManual,
		StartedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate checks the job can be persisted.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("%w: job id is required", shared.ErrValidation)
	}
	if j.CollectionID == "" {
		return fmt.Errorf("%w: playlist id is required", shared.ErrValidation)
	}
	if j.OwnerID == "" {
		return fmt.Errorf("%w: user id is required", shared.ErrValidation)
	}
	return j.Spec.Validate()
}

// Percent returns progress as a value in [0, 1].
func (j *Job) Percent() float64 {
	if j.Total <= 0 {
		if j.Status == JobCompleted {
			return 1
		}
		return 0
	}
	p := float64(j.Progress) / float64(j.Total)
	if p > 1 {
		return 1
	}
	return p
}

// JobUpdate carries a partial change to a job. Nil fields are left untouched.
type JobUpdate struct {
	Status           *JobStatus
	Progress         *int
	Total            *int
	EstimatedSeconds *int
	Message          *string
	Error            *string
}

// Apply copies the set fields onto j and stamps UpdatedAt, setting CompletedAt on a terminal transition.
func (u JobUpdate) Apply(j *Job, now time.Time) {
	now = now.UTC()
	if u.Status != nil {
		j.Status = *u.Status
		if j.Status.Terminal() && j.CompletedAt == nil {
			j.CompletedAt = &now
		}
	}
	if u.Progress != nil {
		j.Progress = *u.Progress
	}
	if u.Total != nil {
		j.Total = *u.Total
	}
	if u.EstimatedSeconds != nil {
		j.EstimatedSeconds = *u.EstimatedSeconds
	}
	if u.Message != nil {
		j.Message = *u.Message
	}
	if u.Error != nil {
		j.Error = *u.Error
	}
	j.UpdatedAt = now
}

// Ptr returns a pointer to v, for building a [JobUpdate].
func Ptr[T any](v T) *T {
	return &v
}
