package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/polish/internal/shared"
)

// ActionType tags a [Schedule] and selects its params variant.
type ActionType string

const (
	ActionSort       ActionType = "sort"
	ActionCacheClear ActionType = "cache_clear"
)

// GlobalCacheScheduleID is the collection id used by the cache maintenance schedule, which is not tied to a playlist.
const GlobalCacheScheduleID = "__cache_global__"

// RecurrenceType selects how the next run is computed.
type RecurrenceType string

const (
	RecurDaily   RecurrenceType = "daily"
	RecurWeekly  RecurrenceType = "weekly"
	RecurMonthly RecurrenceType = "monthly"
	RecurCron    RecurrenceType = "cron"
)

// Recurrence holds the calendar fields shared by every params variant.
//
// TimezoneOffsetMinutes is a fixed offset from UTC; daylight saving changes are not followed.
type Recurrence struct {
	Type                  RecurrenceType `json:"schedule_type,omitempty"`
	HourOfDay             int            `json:"hour_of_day"`
	DayOfWeek             string         `json:"day_of_week,omitempty"`
	DayOfMonth            int            `json:"day_of_month,omitempty"`
	TimezoneOffsetMinutes int            `json:"timezone_offset_minutes"`
	Expr                  string         `json:"cron,omitempty"`
}

// ScheduleParams is the action specific configuration of a schedule.
//
// Variants: [SortParams], [CacheClearParams] and [UnsupportedParams] for rows written with an action
// this build does not know.
type ScheduleParams interface {
	Action() ActionType
	Timing() Recurrence
	scheduleParams()
}

// SortParams configures a scheduled sort.
type SortParams struct {
	Recurrence
	SortBy    SortField `json:"sort_by"`
	Direction Direction `json:"direction"`
	Method    Method    `json:"method"`
}

func (SortParams) Action() ActionType   { return ActionSort }
func (p SortParams) Timing() Recurrence { return p.Recurrence }
func (SortParams) scheduleParams()      {}

// Spec returns the sort spec with defaults applied.
func (p SortParams) Spec() SortSpec {
	return SortSpec{Field: p.SortBy, Direction: p.Direction, Method: p.Method}.WithDefaults()
}

// CacheClearParams configures the track cache sweep.
type CacheClearParams struct {
	Recurrence
	TTLDays int `json:"ttl_days,omitempty"`
}

func (CacheClearParams) Action() ActionType   { return ActionCacheClear }
func (p CacheClearParams) Timing() Recurrence { return p.Recurrence }
func (CacheClearParams) scheduleParams()      {}

// UnsupportedParams keeps the recurrence of a schedule whose action is unknown.
type UnsupportedParams struct {
	Recurrence
	Kind ActionType `json:"-"`
}

func (p UnsupportedParams) Action() ActionType { return p.Kind }
func (p UnsupportedParams) Timing() Recurrence { return p.Recurrence }
func (UnsupportedParams) scheduleParams()      {}

// EncodeParams serializes p for storage.
func EncodeParams(p ScheduleParams) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: params are required", shared.ErrValidation)
	}
	return json.Marshal(p)
}

// DecodeParams parses stored params for action. Unknown actions decode into [UnsupportedParams].
func DecodeParams(action ActionType, data []byte) (ScheduleParams, error) {
	switch action {
	case ActionSort:
		var p SortParams
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s params: %w", action, err)
		}
		return p, nil
	case ActionCacheClear:
		var p CacheClearParams
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s params: %w", action, err)
		}
		return p, nil
	default:
		p := UnsupportedParams{Kind: action}
		if err := json.Unmarshal(data, &p.Recurrence); err != nil {
			return nil, fmt.Errorf("failed to decode %s params: %w", action, err)
		}
		return p, nil
	}
}

// ScheduleStatus is the outcome of the last run.
type ScheduleStatus string

const (
	ScheduleNeverRun ScheduleStatus = ""
	ScheduleOK       ScheduleStatus = "ok"
	ScheduleFailed   ScheduleStatus = "failed"
)

// Schedule is a recurring trigger bound to one (playlist, user, action).
type Schedule struct {
	ID               string         `json:"id"`
	CollectionID     string         `json:"playlist_id"`
	OwnerID          string         `json:"user_id"`
	Action           ActionType     `json:"action_type"`
	Params           ScheduleParams `json:"params"`
	FrequencyMinutes int            `json:"frequency_minutes"`
	NextRunAt        *time.Time     `json:"next_run_at"`
	LastRunAt        *time.Time     `json:"last_run_at"`
	Enabled          bool           `json:"enabled"`
	Status           ScheduleStatus `json:"status"`
	LastError        string         `json:"last_error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Validate checks identity fields and that params match the action.
func (s *Schedule) Validate() error {
	if s.CollectionID == "" || s.OwnerID == "" {
		return fmt.Errorf("%w: playlist and user are required", shared.ErrValidation)
	}
	if s.Params == nil {
		return fmt.Errorf("%w: params are required", shared.ErrValidation)
	}
	if s.Params.Action() != s.Action {
		return fmt.Errorf("%w: params for %s do not match action %s", shared.ErrValidation, s.Params.Action(), s.Action)
	}
	return nil
}
