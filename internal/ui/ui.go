package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/shared"
	"github.com/desertthunder/polish/internal/tasks"
)

// DefaultPollInterval is how often a watched job is re-read.
const DefaultPollInterval = time.Second

const recentLimit = 20

// JobSource reads and cancels sort jobs. Implemented by [tasks.JobRunner].
type JobSource interface {
	Status(ctx context.Context, id string) (*models.Job, error)
	Recent(ctx context.Context, ownerID string, limit int) ([]*models.Job, error)
	Cancel(ctx context.Context, id string) (*models.Job, error)
}

// ViewState represents the current view in the TUI.
type ViewState int

const (
	JobListView ViewState = iota
	WatchView
	DoneView
)

// Options selects what the TUI starts on. With JobID set it opens straight on that job;
// otherwise it lists OwnerID's recent jobs.
type Options struct {
	OwnerID  string
	JobID    string
	Updates  <-chan tasks.ProgressUpdate
	Interval time.Duration
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	jobs     JobSource
	opts     Options
	view     ViewState
	width    int
	height   int
	jobList  list.Model
	job      *models.Job
	event    *tasks.ProgressUpdate
	notice   string
	err      error
	spinner  spinner.Model
	progress progress.Model
	help     help.Model
	keys     keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, jobs JobSource, opts Options) *Model {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	m := &Model{
		ctx:      ctx,
		jobs:     jobs,
		opts:     opts,
		view:     JobListView,
		jobList:  list.New(nil, list.NewDefaultDelegate(), 0, 0),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.title.UnsetMarginBottom())),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:     help.New(),
		keys:     newKeyMap(),
	}
	m.jobList.Title = "Sort Jobs"
	m.jobList.SetShowHelp(false)
	if opts.JobID != "" {
		m.view = WatchView
		m.job = &models.Job{ID: opts.JobID, Status: models.JobPending}
	}
	return m
}

// Job returns the last state read of the watched job.
func (m *Model) Job() *models.Job { return m.job }

// Err returns the error that stopped the TUI, if any.
func (m *Model) Err() error { return m.err }

// State returns the current view.
func (m *Model) State() ViewState { return m.view }

// Init starts polling the watched job, or fetches the job list.
func (m *Model) Init() tea.Cmd {
	if m.view == WatchView {
		return tea.Batch(m.spinner.Tick, m.fetchJob(m.job.ID), m.waitForProgress())
	}
	return m.fetchJobs()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(10, min(msg.Width-4, 60))
		m.jobList.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case JobListView:
			return m.handleListKeys(msg)
		case WatchView:
			return m.handleWatchKeys(msg)
		case DoneView:
			return m.handleDoneKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != WatchView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateList(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgJobsFetched:
		res := msg.data.(jobsResult)
		if res.err != nil {
			m.err = res.err
			return m, tea.Quit
		}
		items := make([]list.Item, len(res.jobs))
		for i, job := range res.jobs {
			items[i] = jobItem{job: job}
		}
		return m, m.jobList.SetItems(items)

	case MsgJobFetched:
		res := msg.data.(jobResult)
		if m.view != WatchView {
			return m, nil
		}
		if res.err != nil {
			m.err = res.err
			return m, tea.Quit
		}
		if res.job.ID != m.job.ID {
			return m, nil
		}
		m.job = res.job
		if m.job.Status.Terminal() {
			m.view = DoneView
			return m, nil
		}
		return m, m.poll(m.job.ID)

	case MsgPoll:
		if id := msg.data.(string); m.view == WatchView && id == m.job.ID {
			return m, m.fetchJob(id)
		}
		return m, nil

	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		if m.job != nil && update.JobID == m.job.ID {
			m.event = &update
		}
		return m, m.waitForProgress()

	case MsgCancelRequested:
		res := msg.data.(jobResult)
		if res.err != nil {
			m.notice = fmt.Sprintf("Cancel failed: %v", res.err)
			return m, nil
		}
		m.notice = "Cancellation requested"
		if res.job != nil && res.job.ID == m.job.ID {
			m.job = res.job
			if m.job.Status.Terminal() {
				m.view = DoneView
			}
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.jobList.FilterState() == list.Filtering {
		return m.updateList(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchJobs()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.jobList.SelectedItem().(jobItem); ok {
			return m, m.watch(item.job)
		}
		return m, nil
	}
	return m.updateList(msg)
}

func (m *Model) handleWatchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.cancel):
		if m.job.Status.Terminal() {
			return m, nil
		}
		m.notice = "Cancelling..."
		return m, m.cancelJob(m.job.ID)
	case key.Matches(msg, m.keys.back):
		return m.back()
	}
	return m, nil
}

func (m *Model) handleDoneKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.enter):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		return m.back()
	}
	return m, nil
}

// back returns to the job list when the TUI was started on one.
func (m *Model) back() (tea.Model, tea.Cmd) {
	if m.opts.JobID != "" {
		return m, nil
	}
	m.view = JobListView
	m.notice = ""
	m.event = nil
	return m, m.fetchJobs()
}

func (m *Model) watch(job *models.Job) tea.Cmd {
	m.view = WatchView
	m.job = job
	m.event = nil
	m.notice = ""
	if job.Status.Terminal() {
		m.view = DoneView
		return nil
	}
	return tea.Batch(m.spinner.Tick, m.fetchJob(job.ID))
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.view != JobListView {
		return m, nil
	}
	var cmd tea.Cmd
	m.jobList, cmd = m.jobList.Update(msg)
	return m, cmd
}

func (m *Model) fetchJobs() tea.Cmd {
	return func() tea.Msg {
		jobs, err := m.jobs.Recent(m.ctx, m.opts.OwnerID, recentLimit)
		return jobsFetchedMsg(jobs, err)
	}
}

func (m *Model) fetchJob(id string) tea.Cmd {
	return func() tea.Msg {
		job, err := m.jobs.Status(m.ctx, id)
		return jobFetchedMsg(job, err)
	}
}

func (m *Model) cancelJob(id string) tea.Cmd {
	return func() tea.Msg {
		job, err := m.jobs.Cancel(m.ctx, id)
		return cancelRequestedMsg(job, err)
	}
}

func (m *Model) poll(id string) tea.Cmd {
	return tea.Tick(m.opts.Interval, func(time.Time) tea.Msg { return pollMsg(id) })
}

func (m *Model) waitForProgress() tea.Cmd {
	if m.opts.Updates == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-m.opts.Updates
		if !ok {
			return nil
		}
		return progressUpdateMsg(update)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case JobListView:
		return m.renderList()
	case WatchView:
		return m.renderWatch()
	case DoneView:
		return m.renderDone()
	default:
		return ""
	}
}

func (m *Model) renderList() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.refresh, m.keys.quit})
	if len(m.jobList.Items()) == 0 {
		return fmt.Sprintf("%s\n%s\n\n%s", styles.title.Render("Sort Jobs"), styles.help.Render("No recent jobs."), helpView)
	}
	return fmt.Sprintf("%s\n\n%s", m.jobList.View(), helpView)
}

func (m *Model) details() string {
	j := m.job
	rows := []string{
		styles.label.Render("Job") + j.ID,
		styles.label.Render("Playlist") + j.CollectionID,
	}
	if j.Spec.Field != "" {
		rows = append(rows, styles.label.Render("Sort")+fmt.Sprintf("%s %s (%s)", j.Spec.Field, j.Spec.Direction, j.Spec.Method))
	}
	rows = append(rows, styles.label.Render("Status")+styles.status(j.Status).Render(string(j.Status)))
	return strings.Join(rows, "\n")
}

func (m *Model) renderWatch() string {
	title := styles.title.Render("Sorting Playlist")

	message := m.job.Message
	if m.event != nil && m.event.Message != "" {
		message = m.event.Message
	}
	status := fmt.Sprintf("%s %s", m.spinner.View(), message)

	bar := m.progress.ViewAs(m.job.Percent())
	counts := fmt.Sprintf("%d/%d", m.job.Progress, m.job.Total)
	if m.job.EstimatedSeconds > 0 {
		counts = fmt.Sprintf("%s • est. %s", counts, shared.FormatSeconds(m.job.EstimatedSeconds))
	}

	var notice string
	if m.notice != "" {
		notice = "\n" + styles.warn.Render(m.notice) + "\n"
	}

	helpKeys := []key.Binding{m.keys.cancel, m.keys.quit}
	if m.opts.JobID == "" {
		helpKeys = []key.Binding{m.keys.cancel, m.keys.back, m.keys.quit}
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s\n%s\n%s\n%s", title, m.details(), status, bar, styles.help.Render(counts), notice, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderDone() string {
	var title string
	switch m.job.Status {
	case models.JobCompleted:
		title = styles.ok.Render("✓ Sort Complete!")
	case models.JobCancelled:
		title = styles.warn.Render("Sort Cancelled")
	default:
		title = styles.err.Render("Sort Failed")
	}

	info := m.job.Message
	if m.job.Error != "" {
		info = fmt.Sprintf("%s\n%s", info, styles.err.Render(m.job.Error))
	}

	helpKeys := []key.Binding{m.keys.quit}
	if m.opts.JobID == "" {
		helpKeys = []key.Binding{m.keys.back, m.keys.quit}
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n%s\n\n%s", title, m.details(), info, m.progress.ViewAs(m.job.Percent()), m.help.ShortHelpView(helpKeys))
}
