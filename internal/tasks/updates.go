package tasks

import (
	"fmt"

	"github.com/desertthunder/polish/internal/models"
)

// ProgressUpdate represents a progress event of a running job.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	JobID   string           // Job the event belongs to
	Phase   Phase            // Execution phase
	Step    int              // Current step number within phase
	Total   int              // Total steps in this phase
	Message string           // Human-readable message for display
	Status  models.JobStatus // Job status after this event
}

// Execution phase enumeration
type Phase int

const (
	Queued Phase = iota
	Fetching
	Analyzing
	Executing
	Finished
)

func (p Phase) String() string {
	switch p {
	case Queued:
		return "queued"
	case Fetching:
		return "fetching"
	case Analyzing:
		return "analyzing"
	case Executing:
		return "executing"
	case Finished:
		return "finished"
	default:
		return ""
	}
}

const (
	msgFetching       = "Fetching playlist tracks..."
	msgAlreadySorted  = "Playlist already sorted."
	msgCancelled      = "Sort cancelled by user"
	msgInterrupted    = "Job interrupted by service restart"
	errInterrupted    = "Service restarted while job was running"
	errStaleTimeout   = "Job timed out waiting to start"
	errQueueFull      = "Sort queue is full"
	fastResetsWarning = "Fast sort rewrites the playlist: every track's added date is reset."
)

func fetchStartUpdate(id string) ProgressUpdate {
	return ProgressUpdate{JobID: id, Phase: Fetching, Message: msgFetching, Status: models.JobInProgress}
}

func fetchedUpdate(id string, loaded, total int) ProgressUpdate {
	return ProgressUpdate{
		JobID:   id,
		Phase:   Fetching,
		Step:    loaded,
		Total:   total,
		Message: fmt.Sprintf("Fetching tracks... (%d loaded)", loaded),
		Status:  models.JobInProgress,
	}
}

func analyzedUpdate(id string, moves, total, estimate int) ProgressUpdate {
	return ProgressUpdate{
		JobID:   id,
		Phase:   Analyzing,
		Total:   total,
		Message: fmt.Sprintf("Analyzing: %d tracks need repositioning (est. %ds)", moves, estimate),
		Status:  models.JobInProgress,
	}
}

func executeUpdate(id string, method models.Method, step, total int) ProgressUpdate {
	msg := fmt.Sprintf("Moved %d/%d tracks", step, total)
	if method == models.MethodFast {
		msg = fmt.Sprintf("Wrote %d/%d tracks", step, total)
	}
	return ProgressUpdate{JobID: id, Phase: Executing, Step: step, Total: total, Message: msg, Status: models.JobInProgress}
}

func completedUpdate(id string, items, total int, changed bool) ProgressUpdate {
	msg := msgAlreadySorted
	if changed {
		msg = fmt.Sprintf("Sort completed successfully! %d tracks sorted.", items)
	}
	return ProgressUpdate{JobID: id, Phase: Finished, Step: total, Total: total, Message: msg, Status: models.JobCompleted}
}

func cancelledUpdate(id string, step, total int) ProgressUpdate {
	return ProgressUpdate{JobID: id, Phase: Finished, Step: step, Total: total, Message: msgCancelled, Status: models.JobCancelled}
}

func failedUpdate(id string, err error) ProgressUpdate {
	return ProgressUpdate{JobID: id, Phase: Finished, Message: fmt.Sprintf("Sort failed: %v", err), Status: models.JobFailed}
}
