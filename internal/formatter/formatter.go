// package formatter renders jobs, history, schedules and duplicate reports for the terminal and
// exports removed tracks to CSV, Markdown or JSON files
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/oplog"
	"github.com/desertthunder/polish/internal/shared"
	"github.com/desertthunder/polish/internal/tasks"
)

const timeLayout = "2006-01-02 15:04 MST"

var removedHeaders = []string{"Position", "URI", "Name", "Artists", "Album", "AddedAt"}

// ExportRemovedCSV writes removed tracks as CSV with columns: Position, URI, Name, Artists, Album, AddedAt.
// Artists are joined with "; ".
func ExportRemovedCSV(items []models.RemovedItem) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(removedHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range items {
		record := []string{
			strconv.Itoa(item.Position),
			item.URI,
			item.Name,
			strings.Join(item.Artists, "; "),
			item.Album,
			item.AddedAt,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportRemovedMarkdown lists the tracks a removal dropped, one per line, by original position.
func ExportRemovedMarkdown(op *models.Operation) ([]byte, error) {
	p, err := removedPayload(op)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Removed from %s\n\n", op.CollectionID)
	fmt.Fprintf(&buf, "**Operation**: %d\n", op.ID)
	fmt.Fprintf(&buf, "**Removed**: %s\n", op.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&buf, "**Tracks**: %d\n\n", len(p.RemovedItems))

	for _, item := range p.RemovedItems {
		albumPart := ""
		if item.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", item.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s\n", item.Position+1, strings.Join(item.Artists, ", "), item.Name, albumPart)
	}
	return buf.Bytes(), nil
}

type removedExport struct {
	PlaylistID   string               `json:"playlist_id"`
	OperationID  int64                `json:"operation_id"`
	CreatedAt    time.Time            `json:"created_at"`
	RemovedItems []models.RemovedItem `json:"removed_items"`
}

// ExportRemovedJSON is the removal payload with the playlist and operation it came from.
func ExportRemovedJSON(op *models.Operation) ([]byte, error) {
	p, err := removedPayload(op)
	if err != nil {
		return nil, err
	}
	return shared.MarshalJSON(removedExport{
		PlaylistID:   op.CollectionID,
		OperationID:  op.ID,
		CreatedAt:    op.CreatedAt.UTC(),
		RemovedItems: p.RemovedItems,
	}, true)
}

func removedPayload(op *models.Operation) (models.DuplicatesRemovePayload, error) {
	if op == nil {
		return models.DuplicatesRemovePayload{}, fmt.Errorf("%w: no operation", shared.ErrInvalidArgument)
	}
	p, ok := op.Payload.(models.DuplicatesRemovePayload)
	if !ok {
		return models.DuplicatesRemovePayload{}, fmt.Errorf("%w: operation %d is a %s, only removals can be exported",
			shared.ErrInvalidArgument, op.ID, op.Type)
	}
	return p, nil
}

// WriteRemovedExport writes the tracks a removal dropped to path and returns the path written.
//
// The format follows the extension: .md for Markdown, .json for JSON, anything else CSV.
// Defaults to {playlist}_{operation}_removed.csv in the working directory.
func WriteRemovedExport(op *models.Operation, path string) (string, error) {
	p, err := removedPayload(op)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = fmt.Sprintf("%s_%d_removed.csv", op.CollectionID, op.ID)
	}

	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		data, err = ExportRemovedMarkdown(op)
	case ".json":
		data, err = ExportRemovedJSON(op)
	default:
		data, err = ExportRemovedCSV(p.RemovedItems)
	}
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...)
}

func render(t *table.Table) []byte {
	return []byte(t.Render() + "\n")
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

// JobText describes one sort job.
func JobText(job *models.Job) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Job:       %s\n", job.ID)
	fmt.Fprintf(&buf, "Playlist:  %s\n", job.CollectionID)
	fmt.Fprintf(&buf, "Sort:      %s %s (%s)\n", job.Spec.Field, job.Spec.Direction, job.Spec.Method)
	fmt.Fprintf(&buf, "Status:    %s\n", job.Status)
	fmt.Fprintf(&buf, "Progress:  %d/%d (%.0f%%)\n", job.Progress, job.Total, job.Percent()*100)
	if job.EstimatedSeconds > 0 && !job.Status.Terminal() {
		fmt.Fprintf(&buf, "Estimate:  %s\n", shared.FormatSeconds(job.EstimatedSeconds))
	}
	if job.Message != "" {
		fmt.Fprintf(&buf, "Message:   %s\n", job.Message)
	}
	if job.Error != "" {
		fmt.Fprintf(&buf, "Error:     %s\n", job.Error)
	}
	if job.Source == models.SourceScheduled {
		fmt.Fprintf(&buf, "Schedule:  %s\n", job.ScheduleID)
	}
	fmt.Fprintf(&buf, "Started:   %s\n", formatTime(&job.StartedAt))
	if job.CompletedAt != nil {
		fmt.Fprintf(&buf, "Finished:  %s\n", formatTime(job.CompletedAt))
	}
	return buf.Bytes()
}

// JobsTable lists jobs, newest first as given.
func JobsTable(jobs []*models.Job) []byte {
	t := newTable("ID", "Playlist", "Sort", "Status", "Progress", "Source", "Started")
	for _, j := range jobs {
		t.Row(
			j.ID,
			j.CollectionID,
			fmt.Sprintf("%s %s", j.Spec.Field, j.Spec.Direction),
			string(j.Status),
			fmt.Sprintf("%d/%d", j.Progress, j.Total),
			string(j.Source),
			formatTime(&j.StartedAt),
		)
	}
	return render(t)
}

// HistoryTable lists undo log entries.
func HistoryTable(entries []oplog.Entry) []byte {
	t := newTable("ID", "Playlist", "When", "Action", "Undoable")
	for _, e := range entries {
		undoable := "no"
		switch {
		case e.Undone:
			undoable = "undone"
		case e.Undoable:
			undoable = "yes"
		}
		t.Row(
			strconv.FormatInt(e.ID, 10),
			e.CollectionID,
			formatTime(&e.CreatedAt),
			e.Summary(),
			undoable,
		)
	}
	return render(t)
}

// DescribeRecurrence is a short human form of r, e.g. "weekly on mon at 09:00 UTC+01:00".
func DescribeRecurrence(r models.Recurrence) string {
	zone := "UTC"
	if off := r.TimezoneOffsetMinutes; off != 0 {
		sign := "+"
		if off < 0 {
			sign, off = "-", -off
		}
		zone = fmt.Sprintf("UTC%s%02d:%02d", sign, off/60, off%60)
	}
	at := fmt.Sprintf("at %02d:00 %s", r.HourOfDay, zone)

	switch r.Type {
	case models.RecurDaily, "":
		return "daily " + at
	case models.RecurWeekly:
		return fmt.Sprintf("weekly on %s %s", r.DayOfWeek, at)
	case models.RecurMonthly:
		return fmt.Sprintf("monthly on day %d %s", min(r.DayOfMonth, 28), at)
	case models.RecurCron:
		return fmt.Sprintf("cron %q %s", r.Expr, zone)
	default:
		return string(r.Type)
	}
}

func describeAction(s *models.Schedule) string {
	switch p := s.Params.(type) {
	case models.SortParams:
		spec := p.Spec()
		return fmt.Sprintf("sort %s %s (%s)", spec.Field, spec.Direction, spec.Method)
	case models.CacheClearParams:
		if p.TTLDays > 0 {
			return fmt.Sprintf("cache clear (%dd)", p.TTLDays)
		}
		return "cache clear"
	default:
		return string(s.Action)
	}
}

// SchedulesTable lists schedules with their next and last runs.
func SchedulesTable(scheds []*models.Schedule) []byte {
	t := newTable("ID", "Playlist", "Action", "When", "Next run", "Last run", "Status", "Enabled")
	for _, s := range scheds {
		status := string(s.Status)
		if status == "" {
			status = "never run"
		}
		enabled := "yes"
		if !s.Enabled {
			enabled = "no"
		}
		t.Row(
			s.ID,
			s.CollectionID,
			describeAction(s),
			DescribeRecurrence(s.Params.Timing()),
			formatTime(s.NextRunAt),
			formatTime(s.LastRunAt),
			status,
			enabled,
		)
	}
	return render(t)
}

// ScheduleText describes one schedule, including the last error when the last run failed.
func ScheduleText(s *models.Schedule) []byte {
	var buf bytes.Buffer
	buf.Write(SchedulesTable([]*models.Schedule{s}))
	if s.LastError != "" {
		fmt.Fprintf(&buf, "Last error: %s\n", s.LastError)
	}
	return buf.Bytes()
}

// AnalysisText describes a dry run.
func AnalysisText(a *tasks.Analysis) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist:  %s\n", a.CollectionID)
	fmt.Fprintf(&buf, "Sort:      %s %s (%s)\n", a.Spec.Field, a.Spec.Direction, a.Spec.Method)
	fmt.Fprintf(&buf, "Tracks:    %d\n", a.Total)
	if a.Sorted() {
		buf.WriteString("Already sorted, nothing to do.\n")
		return buf.Bytes()
	}
	fmt.Fprintf(&buf, "Moves:     %d\n", a.MovesNeeded)
	fmt.Fprintf(&buf, "Estimate:  %s\n", shared.FormatSeconds(a.EstimatedSeconds))
	if a.Warning != "" {
		fmt.Fprintf(&buf, "\nWarning: %s\n", a.Warning)
	}
	return buf.Bytes()
}

// DuplicatesText lists each group with its occurrences. Positions are shown 1-based; the first
// occurrence is the one kept.
func DuplicatesText(groups []tasks.DuplicateGroup) []byte {
	var buf bytes.Buffer
	if len(groups) == 0 {
		buf.WriteString("No duplicates found.\n")
		return buf.Bytes()
	}

	extra := 0
	for _, g := range groups {
		extra += g.Extra()
	}
	fmt.Fprintf(&buf, "%d duplicated tracks, %d extra copies\n\n", len(groups), extra)

	for _, g := range groups {
		fmt.Fprintf(&buf, "%s - %s\n", strings.Join(g.Artists, ", "), g.Title)
		for i, o := range g.Occurrences {
			marker := "keep"
			if i > 0 {
				marker = string(o.Reason)
			}
			fmt.Fprintf(&buf, "  #%-5d %-8s %s [%s]\n", o.Position+1, marker, o.URI, shared.FormatDuration(o.DurationMS))
		}
	}
	return buf.Bytes()
}
