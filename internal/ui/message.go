package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgJobsFetched MsgKind = iota
	MsgJobFetched
	MsgProgressUpdate
	MsgCancelRequested
	MsgPoll
)

type jobsResult struct {
	jobs []*models.Job
	err  error
}

type jobResult struct {
	job *models.Job
	err error
}

// jobsFetchedMsg is the constructor for [MsgJobsFetched]
func jobsFetchedMsg(jobs []*models.Job, err error) Msg {
	return Msg{kind: MsgJobsFetched, data: jobsResult{jobs, err}}
}

// jobFetchedMsg is the constructor for [MsgJobFetched]
func jobFetchedMsg(job *models.Job, err error) Msg {
	return Msg{kind: MsgJobFetched, data: jobResult{job, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// cancelRequestedMsg is the constructor for [MsgCancelRequested]
func cancelRequestedMsg(job *models.Job, err error) Msg {
	return Msg{kind: MsgCancelRequested, data: jobResult{job, err}}
}

// pollMsg is the constructor for [MsgPoll]. id ties the tick to the job being watched when it fired.
func pollMsg(id string) Msg {
	return Msg{kind: MsgPoll, data: id}
}
