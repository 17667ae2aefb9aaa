package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/repositories"
	"github.com/desertthunder/polish/internal/shared"
	"github.com/desertthunder/polish/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = at("2024-01-01T23:00:00Z")

type fakeJobs struct {
	mu        sync.Mutex
	active    map[string]*models.Job
	submitErr error
	submitted []tasks.SubmitRequest
}

func (f *fakeJobs) Active(_ context.Context, collectionID, ownerID string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[collectionID+"/"+ownerID], nil
}

func (f *fakeJobs) Submit(_ context.Context, req tasks.SubmitRequest) (*models.Job, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, false, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return models.NewJob(req.CollectionID, req.OwnerID, req.Spec, now), false, nil
}

type fakeCache struct {
	calls []time.Duration
	err   error
}

func (f *fakeCache) ClearExpired(_ context.Context, ttl time.Duration, _ time.Time) (int64, error) {
	f.calls = append(f.calls, ttl)
	return 3, f.err
}

type fixture struct {
	repo    *repositories.ScheduleRepository
	service *Service
	sched   *Scheduler
	jobs    *fakeJobs
	cache   *fakeCache
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := shared.NewDatabase(shared.MemoryDatabase)
	require.NoError(t, err)
	require.NoError(t, shared.RunMigrations(db))
	t.Cleanup(func() { db.Close() })

	clock := func() time.Time { return now }
	logger := log.New(io.Discard)

	f := &fixture{
		repo:  repositories.NewScheduleRepository(db),
		jobs:  &fakeJobs{active: map[string]*models.Job{}},
		cache: &fakeCache{},
	}
	f.service = NewService(f.repo, logger, clock)
	f.sched = New(f.repo, f.jobs, f.cache, Config{Logger: logger, Now: clock, CacheTTL: 48 * time.Hour})
	return f
}

func ptr[T any](v T) *T { return &v }

func TestServiceCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("sort defaults", func(t *testing.T) {
		f := setup(t)
		s, err := f.service.Create(ctx, "pl1", "u1", models.ActionSort, Input{})
		require.NoError(t, err)

		p, ok := s.Params.(models.SortParams)
		require.True(t, ok)
		assert.Equal(t, models.RecurDaily, p.Type)
		assert.Equal(t, 9, p.HourOfDay)
		assert.Equal(t, "mon", p.DayOfWeek)
		assert.Equal(t, 1, p.DayOfMonth)
		assert.Equal(t, models.DefaultSortSpec, p.Spec())
		assert.Equal(t, 1440, s.FrequencyMinutes)
		assert.True(t, s.Enabled)
		require.NotNil(t, s.NextRunAt)
		assert.Equal(t, at("2024-01-02T09:00:00Z"), *s.NextRunAt)

		stored, err := f.service.Get(ctx, s.ID, "u1")
		require.NoError(t, err)
		assert.Equal(t, p, stored.Params)
	})

	t.Run("cache schedule uses the global id", func(t *testing.T) {
		f := setup(t)
		s, err := f.service.Create(ctx, "ignored", "u1", models.ActionCacheClear, Input{
			Type:    ptr(models.RecurWeekly),
			TTLDays: ptr(14),
		})
		require.NoError(t, err)
		assert.Equal(t, models.GlobalCacheScheduleID, s.CollectionID)
		assert.Equal(t, 7*24*60, s.FrequencyMinutes)
		assert.Equal(t, 14, s.Params.(models.CacheClearParams).TTLDays)
	})

	t.Run("replaces the schedule for the same playlist and action", func(t *testing.T) {
		f := setup(t)
		first, err := f.service.Create(ctx, "pl1", "u1", models.ActionSort, Input{})
		require.NoError(t, err)
		second, err := f.service.Create(ctx, "pl1", "u1", models.ActionSort, Input{SortBy: ptr(models.FieldTitle)})
		require.NoError(t, err)

		list, err := f.service.List(ctx, "u1", "pl1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, second.ID, list[0].ID)

		_, err = f.service.Get(ctx, first.ID, "u1")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("cron keeps caller frequency", func(t *testing.T) {
		f := setup(t)
		s, err := f.service.Create(ctx, "pl1", "u1", models.ActionSort, Input{
			Type:             ptr(models.RecurCron),
			Cron:             ptr("30 4 * * 1"),
			FrequencyMinutes: ptr(60),
		})
		require.NoError(t, err)
		assert.Equal(t, 60, s.FrequencyMinutes)
		assert.Equal(t, at("2024-01-08T04:30:00Z"), *s.NextRunAt)
	})

	t.Run("first run override", func(t *testing.T) {
		f := setup(t)
		first := at("2024-01-05T00:00:00Z")
		s, err := f.service.Create(ctx, "pl1", "u1", models.ActionSort, Input{FirstRunAt: &first})
		require.NoError(t, err)
		assert.Equal(t, first, *s.NextRunAt)
	})

	t.Run("validation", func(t *testing.T) {
		f := setup(t)
		for name, in := range map[string]Input{
			"hour":      {HourOfDay: ptr(25)},
			"weekday":   {DayOfWeek: ptr("someday")},
			"offset":    {TimezoneOffsetMinutes: ptr(-800)},
			"frequency": {Type: ptr(models.RecurCron), Cron: ptr("* * * * *"), FrequencyMinutes: ptr(5)},
			"cron":      {Type: ptr(models.RecurCron), Cron: ptr("not cron")},
			"sort":      {SortBy: ptr(models.SortField("bpm"))},
		} {
			_, err := f.service.Create(ctx, "pl1", "u1", models.ActionSort, in)
			assert.ErrorIs(t, err, shared.ErrValidation, name)
		}

		_, err := f.service.Create(ctx, "pl1", "u1", "reshuffle", Input{})
		assert.ErrorIs(t, err, shared.ErrValidation)

		_, err = f.service.Create(ctx, "", "u1", models.ActionSort, Input{})
		assert.ErrorIs(t, err, shared.ErrValidation)

		list, err := f.service.List(ctx, "u1", "")
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestServiceUpdateDelete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	s, err := f.service.Create(ctx, "pl1", "u1", models.ActionSort, Input{})
	require.NoError(t, err)

	t.Run("timing change recomputes next run", func(t *testing.T) {
		updated, err := f.service.Update(ctx, s.ID, "u1", Input{
			Type:       ptr(models.RecurMonthly),
			DayOfMonth: ptr(31),
			HourOfDay:  ptr(6),
		})
		require.NoError(t, err)
		assert.Equal(t, 30*24*60, updated.FrequencyMinutes)
		require.NotNil(t, updated.NextRunAt)
		assert.Equal(t, at("2024-01-28T06:00:00Z"), *updated.NextRunAt)
	})

	t.Run("non timing change keeps next run", func(t *testing.T) {
		before, err := f.service.Get(ctx, s.ID, "u1")
		require.NoError(t, err)

		updated, err := f.service.Update(ctx, s.ID, "u1", Input{Direction: ptr(models.Asc), Enabled: ptr(false)})
		require.NoError(t, err)
		assert.False(t, updated.Enabled)
		assert.Equal(t, models.Asc, updated.Params.(models.SortParams).Direction)
		assert.Equal(t, *before.NextRunAt, *updated.NextRunAt)
	})

	t.Run("invalid update is rejected", func(t *testing.T) {
		_, err := f.service.Update(ctx, s.ID, "u1", Input{HourOfDay: ptr(-1)})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("other owner", func(t *testing.T) {
		_, err := f.service.Update(ctx, s.ID, "u2", Input{})
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.ErrorIs(t, f.service.Delete(ctx, s.ID, "u2"), shared.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, f.service.Delete(ctx, s.ID, "u1"))
		_, err := f.service.Get(ctx, s.ID, "u1")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

// seedDue stores a schedule whose next run is before now.
func (f *fixture) seedDue(t *testing.T, id, collection string, action models.ActionType, params models.ScheduleParams) {
	t.Helper()
	due := now.Add(-time.Minute)
	require.NoError(t, f.repo.Replace(context.Background(), &models.Schedule{
		ID:               id,
		CollectionID:     collection,
		OwnerID:          "u1",
		Action:           action,
		Params:           params,
		FrequencyMinutes: 1440,
		NextRunAt:        &due,
		Enabled:          true,
		CreatedAt:        now.Add(-time.Hour),
		UpdatedAt:        now.Add(-time.Hour),
	}))
}

func daily() models.Recurrence {
	return models.Recurrence{Type: models.RecurDaily, HourOfDay: 9, DayOfWeek: "mon", DayOfMonth: 1}
}

func TestTick(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches by action", func(t *testing.T) {
		f := setup(t)
		f.seedDue(t, "s-sort", "pl1", models.ActionSort, models.SortParams{Recurrence: daily(), SortBy: models.FieldTitle})
		f.seedDue(t, "s-cache", models.GlobalCacheScheduleID, models.ActionCacheClear, models.CacheClearParams{Recurrence: daily()})
		f.seedDue(t, "s-odd", "pl2", "reshuffle", models.UnsupportedParams{Kind: "reshuffle", Recurrence: daily()})

		n, err := f.sched.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		require.Len(t, f.jobs.submitted, 1)
		req := f.jobs.submitted[0]
		assert.Equal(t, "pl1", req.CollectionID)
		assert.Equal(t, models.SourceScheduled, req.Source)
		assert.Equal(t, "s-sort", req.ScheduleID)
		assert.Equal(t, models.SortSpec{Field: models.FieldTitle, Direction: models.Desc, Method: models.MethodPreserve}, req.Spec)

		assert.Equal(t, []time.Duration{48 * time.Hour}, f.cache.calls)

		for id, status := range map[string]models.ScheduleStatus{
			"s-sort":  models.ScheduleOK,
			"s-cache": models.ScheduleOK,
			"s-odd":   models.ScheduleFailed,
		} {
			s, err := f.repo.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, status, s.Status, id)
			require.NotNil(t, s.LastRunAt)
			assert.True(t, s.LastRunAt.Equal(now))
			require.NotNil(t, s.NextRunAt)
			assert.True(t, s.NextRunAt.Equal(at("2024-01-02T09:00:00Z")), id)
		}

		odd, err := f.repo.Get(ctx, "s-odd")
		require.NoError(t, err)
		assert.Equal(t, "Unsupported action", odd.LastError)

		n, err = f.sched.Tick(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "nothing is due until the next run")
	})

	t.Run("skips playlists with an active job", func(t *testing.T) {
		f := setup(t)
		f.seedDue(t, "s-sort", "pl1", models.ActionSort, models.SortParams{Recurrence: daily()})
		f.jobs.active["pl1/u1"] = models.NewJob("pl1", "u1", models.DefaultSortSpec, now)

		_, err := f.sched.Tick(ctx)
		require.NoError(t, err)
		assert.Empty(t, f.jobs.submitted)

		s, err := f.repo.Get(ctx, "s-sort")
		require.NoError(t, err)
		assert.Equal(t, models.ScheduleOK, s.Status)
	})

	t.Run("records dispatch errors", func(t *testing.T) {
		f := setup(t)
		f.seedDue(t, "s-sort", "pl1", models.ActionSort, models.SortParams{Recurrence: daily()})
		f.seedDue(t, "s-cache", models.GlobalCacheScheduleID, models.ActionCacheClear, models.CacheClearParams{Recurrence: daily(), TTLDays: 2})
		f.jobs.submitErr = fmt.Errorf("%w: limit reached", shared.ErrAdmission)
		f.cache.err = fmt.Errorf("disk full")

		_, err := f.sched.Tick(ctx)
		require.NoError(t, err)

		s, err := f.repo.Get(ctx, "s-sort")
		require.NoError(t, err)
		assert.Equal(t, models.ScheduleFailed, s.Status)
		assert.Contains(t, s.LastError, "limit reached")

		c, err := f.repo.Get(ctx, "s-cache")
		require.NoError(t, err)
		assert.Equal(t, models.ScheduleFailed, c.Status)
		assert.Equal(t, "disk full", c.LastError)
		assert.Equal(t, []time.Duration{48 * time.Hour}, f.cache.calls)
	})

	t.Run("recomputes cleared run times", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.repo.Replace(ctx, &models.Schedule{
			ID: "s-new", CollectionID: "pl1", OwnerID: "u1", Action: models.ActionSort,
			Params: models.SortParams{Recurrence: daily()}, FrequencyMinutes: 1440,
			Enabled: true, CreatedAt: now, UpdatedAt: now,
		}))

		n, err := f.sched.Tick(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		s, err := f.repo.Get(ctx, "s-new")
		require.NoError(t, err)
		require.NotNil(t, s.NextRunAt)
		assert.True(t, s.NextRunAt.Equal(at("2024-01-02T09:00:00Z")))
	})
}

func TestRunStopsWithContext(t *testing.T) {
	f := setup(t)
	f.sched.cfg.Interval = 10 * time.Millisecond
	f.seedDue(t, "s-cache", models.GlobalCacheScheduleID, models.ActionCacheClear, models.CacheClearParams{Recurrence: daily()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sched.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		s, err := f.repo.Get(context.Background(), "s-cache")
		return err == nil && s.LastRunAt != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
