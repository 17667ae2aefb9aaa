package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/repositories"
	"github.com/desertthunder/polish/internal/shared"
)

const (
	DefaultHourOfDay  = 9
	DefaultDayOfWeek  = "mon"
	DefaultDayOfMonth = 1
)

// Input carries schedule fields from a caller. Nil fields take defaults on create and are left
// alone on update.
type Input struct {
	Type                  *models.RecurrenceType
	HourOfDay             *int
	DayOfWeek             *string
	DayOfMonth            *int
	TimezoneOffsetMinutes *int
	Cron                  *string
	FrequencyMinutes      *int

	SortBy    *models.SortField
	Direction *models.Direction
	Method    *models.Method

	TTLDays *int

	Enabled    *bool
	FirstRunAt *time.Time
}

// touchesTiming reports whether the input changes when the schedule runs.
func (in Input) touchesTiming() bool {
	return in.Type != nil || in.HourOfDay != nil || in.DayOfWeek != nil || in.DayOfMonth != nil ||
		in.TimezoneOffsetMinutes != nil || in.Cron != nil || in.FrequencyMinutes != nil
}

func (in Input) applyRecurrence(r *models.Recurrence) {
	if in.Type != nil {
		r.Type = models.RecurrenceType(strings.ToLower(string(*in.Type)))
	}
	if in.HourOfDay != nil {
		r.HourOfDay = *in.HourOfDay
	}
	if in.DayOfWeek != nil {
		r.DayOfWeek = strings.ToLower(strings.TrimSpace(*in.DayOfWeek))
	}
	if in.DayOfMonth != nil {
		r.DayOfMonth = *in.DayOfMonth
	}
	if in.TimezoneOffsetMinutes != nil {
		r.TimezoneOffsetMinutes = *in.TimezoneOffsetMinutes
	}
	if in.Cron != nil {
		r.Expr = strings.TrimSpace(*in.Cron)
	}
}

// Service manages the owner's schedules.
type Service struct {
	repo   *repositories.ScheduleRepository
	logger *log.Logger
	now    func() time.Time
}

func NewService(repo *repositories.ScheduleRepository, logger *log.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, logger: logger, now: now}
}

// Create validates and stores a schedule, replacing any existing one for the same playlist,
// owner and action. Cache schedules are not tied to a playlist and use [models.GlobalCacheScheduleID].
func (s *Service) Create(ctx context.Context, collectionID, ownerID string, action models.ActionType, in Input) (*models.Schedule, error) {
	if action == models.ActionCacheClear {
		collectionID = models.GlobalCacheScheduleID
	}
	if collectionID == "" || ownerID == "" {
		return nil, fmt.Errorf("%w: playlist and user are required", shared.ErrValidation)
	}

	r := models.Recurrence{
		Type:       models.RecurDaily,
		HourOfDay:  DefaultHourOfDay,
		DayOfWeek:  DefaultDayOfWeek,
		DayOfMonth: DefaultDayOfMonth,
	}
	in.applyRecurrence(&r)

	frequency := NominalFrequency(models.RecurDaily, 0)
	if in.FrequencyMinutes != nil {
		frequency = *in.FrequencyMinutes
	}

	var params models.ScheduleParams
	switch action {
	case models.ActionSort:
		p := models.SortParams{Recurrence: r}
		applySort(&p, in)
		params = p
	case models.ActionCacheClear:
		p := models.CacheClearParams{Recurrence: r}
		if in.TTLDays != nil {
			p.TTLDays = *in.TTLDays
		}
		params = p
	default:
		return nil, fmt.Errorf("%w: unsupported action %q", shared.ErrValidation, action)
	}

	now := s.now().UTC()
	sched := &models.Schedule{
		ID:           shared.GenerateID(),
		CollectionID: collectionID,
		OwnerID:      ownerID,
		Action:       action,
		Params:       params,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.Enabled != nil {
		sched.Enabled = *in.Enabled
	}

	var err error
	if sched.FrequencyMinutes, err = checkParams(params, frequency); err != nil {
		return nil, err
	}

	if in.FirstRunAt != nil {
		first := in.FirstRunAt.UTC()
		sched.NextRunAt = &first
	} else {
		next, err := ComputeNextRun(now, r, sched.FrequencyMinutes)
		if err != nil {
			return nil, err
		}
		sched.NextRunAt = &next
	}

	if err := s.repo.Replace(ctx, sched); err != nil {
		return nil, err
	}
	s.logger.Info("schedule created", "id", sched.ID, "playlist", collectionID, "action", action, "next_run", sched.NextRunAt)
	return sched, nil
}

func applySort(p *models.SortParams, in Input) {
	if in.SortBy != nil {
		p.SortBy = *in.SortBy
	}
	if in.Direction != nil {
		p.Direction = *in.Direction
	}
	if in.Method != nil {
		p.Method = *in.Method
	}
	spec := p.Spec()
	p.SortBy, p.Direction, p.Method = spec.Field, spec.Direction, spec.Method
}

// checkParams validates params and returns the frequency to store. Calendar types use their
// nominal cadence; cron and unknown types keep the caller's, which must be in range.
func checkParams(params models.ScheduleParams, frequency int) (int, error) {
	r := params.Timing()
	if err := ValidateRecurrence(r); err != nil {
		return 0, err
	}
	if p, ok := params.(models.SortParams); ok {
		if err := p.Spec().Validate(); err != nil {
			return 0, err
		}
	}
	if p, ok := params.(models.CacheClearParams); ok && p.TTLDays < 0 {
		return 0, fmt.Errorf("%w: ttl_days must not be negative", shared.ErrValidation)
	}

	if f, ok := frequencies[r.Type]; ok {
		return f, nil
	}
	if err := ValidateFrequency(frequency); err != nil {
		return 0, err
	}
	return frequency, nil
}

// Get returns one of the owner's schedules. Another owner's schedule is reported as not found.
func (s *Service) Get(ctx context.Context, id, ownerID string) (*models.Schedule, error) {
	sched, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: schedule %s", shared.ErrNotFound, id)
	}
	return s.fill(ctx, sched), nil
}

// List returns the owner's schedules, optionally for one playlist.
func (s *Service) List(ctx context.Context, ownerID, collectionID string) ([]*models.Schedule, error) {
	scheds, err := s.repo.List(ctx, ownerID, collectionID)
	if err != nil {
		return nil, err
	}
	for i := range scheds {
		scheds[i] = s.fill(ctx, scheds[i])
	}
	return scheds, nil
}

// Update applies in to a schedule. Changing any timing field clears next_run_at so it is
// recomputed from the new recurrence.
func (s *Service) Update(ctx context.Context, id, ownerID string, in Input) (*models.Schedule, error) {
	sched, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	switch p := sched.Params.(type) {
	case models.SortParams:
		in.applyRecurrence(&p.Recurrence)
		applySort(&p, in)
		sched.Params = p
	case models.CacheClearParams:
		in.applyRecurrence(&p.Recurrence)
		if in.TTLDays != nil {
			p.TTLDays = *in.TTLDays
		}
		sched.Params = p
	default:
		return nil, fmt.Errorf("%w: schedule %s has unsupported action %q", shared.ErrValidation, id, sched.Action)
	}

	frequency := sched.FrequencyMinutes
	if in.FrequencyMinutes != nil {
		frequency = *in.FrequencyMinutes
	}
	if sched.FrequencyMinutes, err = checkParams(sched.Params, frequency); err != nil {
		return nil, err
	}

	if in.Enabled != nil {
		sched.Enabled = *in.Enabled
	}
	switch {
	case in.FirstRunAt != nil:
		first := in.FirstRunAt.UTC()
		sched.NextRunAt = &first
	case in.touchesTiming():
		sched.NextRunAt = nil
	}
	sched.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, sched); err != nil {
		return nil, err
	}
	s.logger.Info("schedule updated", "id", id, "enabled", sched.Enabled)
	return s.fill(ctx, sched), nil
}

// Delete removes one of the owner's schedules.
func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	if err := s.repo.Delete(ctx, id, ownerID); err != nil {
		return err
	}
	s.logger.Info("schedule deleted", "id", id)
	return nil
}

// fill computes and stores next_run_at for an enabled schedule that has none.
func (s *Service) fill(ctx context.Context, sched *models.Schedule) *models.Schedule {
	if sched.NextRunAt != nil || !sched.Enabled {
		return sched
	}
	next := nextRun(s.logger, s.now(), sched)
	if err := s.repo.SetNextRun(ctx, sched.ID, next); err != nil {
		s.logger.Warn("failed to store next run", "id", sched.ID, "error", err)
		return sched
	}
	sched.NextRunAt = &next
	return sched
}

// nextRun computes the next run of sched, falling back to its frequency when the recurrence cannot
// be evaluated.
func nextRun(logger *log.Logger, now time.Time, sched *models.Schedule) time.Time {
	next, err := ComputeNextRun(now, sched.Params.Timing(), sched.FrequencyMinutes)
	if err != nil {
		logger.Warn("failed to compute next run, using frequency", "id", sched.ID, "error", err)
		freq := sched.FrequencyMinutes
		if freq <= 0 {
			freq = NominalFrequency(models.RecurDaily, 0)
		}
		return now.UTC().Add(time.Duration(freq) * time.Minute)
	}
	return next
}
