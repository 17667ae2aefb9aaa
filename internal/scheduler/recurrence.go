package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/shared"
)

const (
	MinFrequencyMinutes = 15
	MaxFrequencyMinutes = 14 * 24 * 60
	MinOffsetMinutes    = -12 * 60
	MaxOffsetMinutes    = 14 * 60

	// maxDayOfMonth keeps monthly runs on a day every month has.
	maxDayOfMonth = 28
)

var weekdays = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// frequencies are the nominal cadences of the calendar recurrences.
var frequencies = map[models.RecurrenceType]int{
	models.RecurDaily:   24 * 60,
	models.RecurWeekly:  7 * 24 * 60,
	models.RecurMonthly: 30 * 24 * 60,
}

// NominalFrequency returns the cadence in minutes implied by a calendar recurrence, or fallback.
func NominalFrequency(t models.RecurrenceType, fallback int) int {
	if f, ok := frequencies[t]; ok {
		return f
	}
	return fallback
}

// ComputeNextRun returns the first run strictly after now.
//
// Calendar types are evaluated in the fixed zone UTC+TimezoneOffsetMinutes at HourOfDay:00. An empty
// type is daily. Unknown types fall back to now + frequencyMinutes.
func ComputeNextRun(now time.Time, r models.Recurrence, frequencyMinutes int) (time.Time, error) {
	offset := time.Duration(r.TimezoneOffsetMinutes) * time.Minute
	local := now.UTC().Add(offset)
	anchor := time.Date(local.Year(), local.Month(), local.Day(), r.HourOfDay, 0, 0, 0, time.UTC)

	switch r.Type {
	case models.RecurDaily, "":
		if !anchor.After(local) {
			anchor = anchor.AddDate(0, 0, 1)
		}
	case models.RecurWeekly:
		wanted, ok := weekdays[strings.ToLower(r.DayOfWeek)]
		if !ok {
			wanted = time.Monday
		}
		ahead := (int(wanted) - int(anchor.Weekday()) + 7) % 7
		if ahead == 0 && !anchor.After(local) {
			ahead = 7
		}
		anchor = anchor.AddDate(0, 0, ahead)
	case models.RecurMonthly:
		day := max(1, min(r.DayOfMonth, maxDayOfMonth))
		anchor = time.Date(local.Year(), local.Month(), day, r.HourOfDay, 0, 0, 0, time.UTC)
		if !anchor.After(local) {
			anchor = time.Date(local.Year(), local.Month()+1, day, r.HourOfDay, 0, 0, 0, time.UTC)
		}
	case models.RecurCron:
		if !gronx.New().IsValid(r.Expr) {
			return time.Time{}, fmt.Errorf("%w: invalid cron expression %q", shared.ErrValidation, r.Expr)
		}
		zone := time.FixedZone("", r.TimezoneOffsetMinutes*60)
		next, err := gronx.NextTickAfter(r.Expr, now.In(zone), false)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: cron %q: %v", shared.ErrValidation, r.Expr, err)
		}
		return next.UTC(), nil
	default:
		if frequencyMinutes <= 0 {
			frequencyMinutes = frequencies[models.RecurDaily]
		}
		return now.UTC().Add(time.Duration(frequencyMinutes) * time.Minute), nil
	}

	return anchor.Add(-offset), nil
}

// ValidateRecurrence reports out of range calendar fields as [shared.ErrValidation].
func ValidateRecurrence(r models.Recurrence) error {
	switch r.Type {
	case models.RecurDaily, models.RecurWeekly, models.RecurMonthly:
	case models.RecurCron:
		if r.Expr == "" || !gronx.New().IsValid(r.Expr) {
			return fmt.Errorf("%w: invalid cron expression %q", shared.ErrValidation, r.Expr)
		}
	default:
		return fmt.Errorf("%w: schedule type must be daily, weekly, monthly or cron, got %q", shared.ErrValidation, r.Type)
	}

	if r.HourOfDay < 0 || r.HourOfDay > 23 {
		return fmt.Errorf("%w: hour_of_day must be 0..23, got %d", shared.ErrValidation, r.HourOfDay)
	}
	if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
		return fmt.Errorf("%w: day_of_month must be 1..31, got %d", shared.ErrValidation, r.DayOfMonth)
	}
	if _, ok := weekdays[r.DayOfWeek]; !ok {
		return fmt.Errorf("%w: day_of_week must be one of mon..sun, got %q", shared.ErrValidation, r.DayOfWeek)
	}
	if r.TimezoneOffsetMinutes < MinOffsetMinutes || r.TimezoneOffsetMinutes > MaxOffsetMinutes {
		return fmt.Errorf("%w: timezone offset must be %d..%d minutes, got %d",
			shared.ErrValidation, MinOffsetMinutes, MaxOffsetMinutes, r.TimezoneOffsetMinutes)
	}
	return nil
}

// ValidateFrequency checks a caller supplied fallback cadence.
func ValidateFrequency(minutes int) error {
	if minutes < MinFrequencyMinutes || minutes > MaxFrequencyMinutes {
		return fmt.Errorf("%w: frequency must be %d..%d minutes, got %d",
			shared.ErrValidation, MinFrequencyMinutes, MaxFrequencyMinutes, minutes)
	}
	return nil
}
