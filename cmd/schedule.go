package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/polish/internal/formatter"
	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/scheduler"
	"github.com/desertthunder/polish/internal/shared"
	"github.com/urfave/cli/v3"
)

func setFlag[T any](cmd *cli.Command, name string, get func(string) T) *T {
	if !cmd.IsSet(name) {
		return nil
	}
	v := get(name)
	return &v
}

// scheduleInput collects the flags the user actually passed. Unset flags stay nil so update leaves
// the stored value alone.
func scheduleInput(cmd *cli.Command) (scheduler.Input, error) {
	in := scheduler.Input{
		HourOfDay:             setFlag(cmd, "hour", cmd.Int),
		DayOfMonth:            setFlag(cmd, "day-of-month", cmd.Int),
		TimezoneOffsetMinutes: setFlag(cmd, "tz-offset", cmd.Int),
		Cron:                  setFlag(cmd, "cron", cmd.String),
		FrequencyMinutes:      setFlag(cmd, "frequency", cmd.Int),
		TTLDays:               setFlag(cmd, "ttl-days", cmd.Int),
		Enabled:               setFlag(cmd, "enabled", cmd.Bool),
	}

	if cmd.IsSet("type") {
		t := models.RecurrenceType(strings.ToLower(cmd.String("type")))
		in.Type = &t
	}
	if cmd.IsSet("day-of-week") {
		d := strings.ToLower(cmd.String("day-of-week"))
		in.DayOfWeek = &d
	}
	if cmd.IsSet("by") {
		f := models.SortField(cmd.String("by"))
		in.SortBy = &f
	}
	if cmd.IsSet("direction") {
		d := models.Direction(strings.ToLower(cmd.String("direction")))
		in.Direction = &d
	}
	if cmd.IsSet("method") {
		m := models.Method(strings.ToLower(cmd.String("method")))
		in.Method = &m
	}
	if cmd.IsSet("first-run") {
		first, err := time.Parse(time.RFC3339, cmd.String("first-run"))
		if err != nil {
			return in, fmt.Errorf("%w: --first-run must be RFC 3339: %v", shared.ErrInvalidArgument, err)
		}
		in.FirstRunAt = &first
	}
	return in, nil
}

// ScheduleCreate creates or replaces the schedule for a playlist and action.
func (r *Runner) ScheduleCreate(ctx context.Context, cmd *cli.Command) error {
	action := models.ActionType(strings.ToLower(cmd.String("action")))
	playlistID := cmd.StringArg("playlist")
	if action != models.ActionCacheClear && playlistID == "" {
		if _, err := requireArg(cmd, "playlist"); err != nil {
			return err
		}
	}

	in, err := scheduleInput(cmd)
	if err != nil {
		return err
	}
	owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	s, err := r.build(ctx, stackOpts{})
	if err != nil {
		return err
	}

	sched, err := s.schedule.Create(ctx, playlistID, owner, action, in)
	if err != nil {
		return err
	}
	return r.write(cmd, sched, func() []byte { return formatter.ScheduleText(sched) })
}

// ScheduleUpdate changes the fields given on the command line.
func (r *Runner) ScheduleUpdate(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	in, err := scheduleInput(cmd)
	if err != nil {
		return err
	}
	owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	s, err := r.build(ctx, stackOpts{})
	if err != nil {
		return err
	}

	sched, err := s.schedule.Update(ctx, id, owner, in)
	if err != nil {
		return err
	}
	return r.write(cmd, sched, func() []byte { return formatter.ScheduleText(sched) })
}

// ScheduleDelete removes a schedule.
func (r *Runner) ScheduleDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	s, err := r.build(ctx, stackOpts{})
	if err != nil {
		return err
	}

	if err := s.schedule.Delete(ctx, id, owner); err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"deleted": id}, cmd.Bool("pretty"))
	}
	return r.writePlain("✓ Schedule %s deleted\n", id)
}

// ScheduleList lists the owner's schedules.
func (r *Runner) ScheduleList(ctx context.Context, cmd *cli.Command) error {
	owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	s, err := r.build(ctx, stackOpts{})
	if err != nil {
		return err
	}

	scheds, err := s.schedule.List(ctx, owner, cmd.StringArg("playlist"))
	if err != nil {
		return err
	}
	return r.write(cmd, scheds, func() []byte { return formatter.SchedulesTable(scheds) })
}
