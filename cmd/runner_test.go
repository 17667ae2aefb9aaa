package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/shared"
	th "github.com/desertthunder/polish/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	runner *Runner
	remote *th.MockCollection
	output *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: shared.MemoryDatabase})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	config := shared.DefaultConfig()
	config.Database.Path = shared.MemoryDatabase
	config.Credentials.Spotify.UserID = "u1"

	remote := th.NewMockCollection()
	remote.Seed("pl1", th.MakeItems(base, "c", "a", "b"))

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: filepath.Join(t.TempDir(), "config.toml"),
		DB:         db,
		Remote:     remote,
		Logger:     shared.NewLogger(&bytes.Buffer{}),
		Output:     output,
	})
	return &harness{runner: runner, remote: remote, output: output}
}

// run executes one command line and returns what it printed.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	h.output.Reset()
	err := h.runner.app().Run(context.Background(), append([]string{"polish"}, args...))
	return h.output.String(), err
}

func (h *harness) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := h.run(t, append([]string{"--json"}, args...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestNewRunner(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		r := NewRunner(RunnerOpts{})
		assert.NotNil(t, r.logger)
		assert.Equal(t, os.Stdout, r.output)
		assert.NotNil(t, r.now)
		assert.NoError(t, r.Close(), "closing without a database is a no-op")
	})

	t.Run("registers every command", func(t *testing.T) {
		names := []string{}
		for _, c := range NewRunner(RunnerOpts{}).register() {
			names = append(names, c.Name)
		}
		assert.Equal(t, []string{"setup", "sort", "undo", "history", "dedupe", "schedule", "jobs", "cache", "serve"}, names)
	})
}

func TestOwner(t *testing.T) {
	t.Run("flag wins over config", func(t *testing.T) {
		h := newHarness(t)
		var jobs []*models.Job
		h.runJSON(t, &jobs, "--user", "someone-else", "sort", "recent")
		assert.Empty(t, jobs)
	})

	t.Run("missing everywhere", func(t *testing.T) {
		h := newHarness(t)
		h.runner.config.Credentials.Spotify.UserID = "me"
		_, err := h.run(t, "sort", "recent")
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})
}

func TestSort(t *testing.T) {
	t.Run("analyze does not change the playlist", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.run(t, "sort", "analyze", "--by", "title", "--direction", "asc", "pl1")
		require.NoError(t, err)
		assert.Contains(t, out, "Tracks:    3")
		assert.Contains(t, out, "Moves:")
		assert.Zero(t, h.remote.Mutations())
	})

	t.Run("analyze rejects an unknown field", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run(t, "sort", "analyze", "--by", "loudness", "pl1")
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("missing playlist", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run(t, "sort", "start")
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})

	t.Run("start then undo", func(t *testing.T) {
		h := newHarness(t)

		var job models.Job
		h.runJSON(t, &job, "sort", "start", "--by", "title", "--direction", "asc", "pl1")
		assert.Equal(t, models.JobCompleted, job.Status)
		assert.Equal(t, []string{"t1", "t2", "t0"}, h.remote.IDs("pl1"))

		out, err := h.run(t, "sort", "status", job.ID)
		require.NoError(t, err)
		assert.Contains(t, out, "Status:    completed")

		out, err = h.run(t, "sort", "recent")
		require.NoError(t, err)
		assert.Contains(t, out, job.ID)

		out, err = h.run(t, "sort", "active", "pl1")
		require.NoError(t, err)
		assert.Contains(t, out, "No sort running for pl1")

		out, err = h.run(t, "history", "pl1")
		require.NoError(t, err)
		assert.Contains(t, out, "sort by title asc")
		assert.Contains(t, out, "yes")

		out, err = h.run(t, "undo", "pl1")
		require.NoError(t, err)
		assert.Contains(t, out, "Restored previous order")
		assert.Equal(t, []string{"t0", "t1", "t2"}, h.remote.IDs("pl1"))

		_, err = h.run(t, "undo", "pl1")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("cancel finished job", func(t *testing.T) {
		h := newHarness(t)
		var job models.Job
		h.runJSON(t, &job, "sort", "start", "--by", "title", "pl1")

		_, err := h.run(t, "sort", "cancel", job.ID)
		assert.ErrorIs(t, err, shared.ErrTerminal)
	})

	t.Run("status of unknown job", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.run(t, "sort", "status", "sort_missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestDedupe(t *testing.T) {
	h := newHarness(t)
	items := th.MakeItems(base, "a", "b", "a")
	items[2].ID, items[2].URI = items[0].ID, items[0].URI
	h.remote.Seed("pl2", items)

	out, err := h.run(t, "dedupe", "find", "pl2")
	require.NoError(t, err)
	assert.Contains(t, out, "1 duplicated tracks, 1 extra copies")

	_, err = h.run(t, "dedupe", "remove", "--position", "2", "pl2")
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)

	var result struct {
		Removed   int               `json:"removed"`
		Operation *struct {
			ID int64 `json:"id"`
		} `json:"operation"`
	}
	h.runJSON(t, &result, "dedupe", "remove", "pl2")
	assert.Equal(t, 1, result.Removed)
	require.NotNil(t, result.Operation)
	assert.Equal(t, []string{"t0", "t1"}, h.remote.IDs("pl2"))

	path := filepath.Join(t.TempDir(), "removed.md")
	_, err = h.run(t, "history", "--export", "1", "--output", path)
	require.NoError(t, err)
	th.AssertFileExists(t, path)
	assert.Contains(t, th.MustReadFile(t, path), "# Removed from pl2")

	_, err = h.run(t, "--user", "u2", "history", "--export", "1")
	assert.ErrorIs(t, err, shared.ErrNotFound, "other owners' entries are hidden")

	_, err = h.run(t, "undo", "pl2")
	require.NoError(t, err)
	assert.Equal(t, []string{"t0", "t1", "t0"}, h.remote.IDs("pl2"))
}

func TestSchedule(t *testing.T) {
	h := newHarness(t)

	var sched struct {
		ID        string            `json:"id"`
		Action    models.ActionType `json:"action_type"`
		Enabled   bool              `json:"enabled"`
		NextRunAt *time.Time        `json:"next_run_at"`
	}
	h.runJSON(t, &sched, "schedule", "create", "--type", "weekly", "--day-of-week", "fri", "--hour", "7", "--by", "title", "pl1")
	require.NotEmpty(t, sched.ID)
	assert.Equal(t, models.ActionSort, sched.Action)
	assert.True(t, sched.Enabled)
	assert.NotNil(t, sched.NextRunAt)

	out, err := h.run(t, "schedule", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "weekly on fri at 07:00 UTC")
	assert.Contains(t, out, "sort title")

	out, err = h.run(t, "schedule", "update", "--enabled=false", sched.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "no")

	_, err = h.run(t, "schedule", "update", "--first-run", "tomorrow", sched.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = h.run(t, "schedule", "create", "--action", "cache_clear", "--ttl-days", "14")
	require.NoError(t, err, "cache schedules need no playlist")

	out, err = h.run(t, "schedule", "delete", sched.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	_, err = h.run(t, "schedule", "delete", sched.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestHousekeeping(t *testing.T) {
	h := newHarness(t)
	var job models.Job
	h.runJSON(t, &job, "sort", "start", "--by", "title", "pl1")

	out, err := h.run(t, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Cached tracks: 3")
	assert.Contains(t, out, "completed:")

	var cleared map[string]int
	h.runJSON(t, &cleared, "cache", "clear")
	assert.Equal(t, 0, cleared["deleted"], "fresh entries survive the default ttl")

	var cleanup map[string]float64
	h.runJSON(t, &cleanup, "jobs", "cleanup", "--older-than", "1")
	assert.Equal(t, float64(0), cleanup["deleted"])
	assert.Equal(t, float64(24), cleanup["older_than_hours"])
}

func TestSetup(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "setup")
	require.NoError(t, err)
	th.AssertFileExists(t, h.runner.configPath)
	assert.Contains(t, out, "schema version")
}
