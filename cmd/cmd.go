// submodule cmd contains command definitions
package main

import (
	"strings"
	"time"

	"github.com/desertthunder/polish/internal/models"
	"github.com/urfave/cli/v3"
)

func sortFields() string {
	names := make([]string, len(models.SortFields))
	for i, f := range models.SortFields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// sortFlags are shared by sort analyze, sort start and sort schedules.
func sortFlags(withDefaults bool) []cli.Flag {
	by := &cli.StringFlag{Name: "by", Aliases: []string{"b"}, Usage: "Sort field: " + sortFields()}
	direction := &cli.StringFlag{Name: "direction", Aliases: []string{"d"}, Usage: "asc or desc"}
	method := &cli.StringFlag{Name: "method", Aliases: []string{"m"}, Usage: "preserve keeps added dates, fast rewrites the playlist"}
	if withDefaults {
		by.Value = string(models.DefaultSortSpec.Field)
		direction.Value = string(models.DefaultSortSpec.Direction)
		method.Value = string(models.DefaultSortSpec.Method)
	}
	return []cli.Flag{by, direction, method}
}

func playlistArg() []cli.Argument {
	return []cli.Argument{&cli.StringArg{Name: "playlist", UsageText: "Spotify playlist ID"}}
}

func jobArg() []cli.Argument {
	return []cli.Argument{&cli.StringArg{Name: "job", UsageText: "Job ID (sort_...)"}}
}

// setupCommand handles first-run setup of the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing, initialize database and run migrations",
		Action: r.Setup,
	}
}

// sortCommand handles sort jobs
func sortCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sort",
		Usage: "Sort playlists and manage sort jobs",
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Usage:     "Report how many tracks a sort would move, without changing anything",
				Arguments: playlistArg(),
				Flags:     sortFlags(true),
				Action:    r.SortAnalyze,
			},
			{
				Name:      "start",
				Usage:     "Sort a playlist and wait for the job to finish",
				Arguments: playlistArg(),
				Flags: append(sortFlags(true),
					&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Follow progress in the interactive UI"},
				),
				Action: r.SortStart,
			},
			{
				Name:      "status",
				Usage:     "Show one sort job",
				Arguments: jobArg(),
				Action:    r.SortStatus,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a pending or running sort job",
				Arguments: jobArg(),
				Action:    r.SortCancel,
			},
			{
				Name:      "active",
				Usage:     "Show the running sort job of a playlist, if any",
				Arguments: playlistArg(),
				Action:    r.SortActive,
			},
			{
				Name:  "recent",
				Usage: "List recent sort jobs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of jobs to list", Value: 20},
				},
				Action: r.SortRecent,
			},
			{
				Name:      "watch",
				Usage:     "Follow sort jobs in the interactive UI",
				Arguments: jobArg(),
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "interval", Usage: "Polling interval", Value: time.Second},
				},
				Action: r.SortWatch,
			},
		},
	}
}

// undoCommand reverses the latest change to a playlist
func undoCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "undo",
		Usage:     "Undo the most recent sort or duplicate removal on a playlist",
		Arguments: playlistArg(),
		Action:    r.Undo,
	}
}

// historyCommand lists and exports the undo log
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List recorded changes to a playlist",
		Arguments: playlistArg(),
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "List changes across all of your playlists"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of entries", Value: 20},
			&cli.Int64Flag{Name: "export", Usage: "Export the tracks removed by this history entry"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Export path (.csv, .md or .json)"},
		},
		Action: r.History,
	}
}

// dedupeCommand finds and removes repeated tracks
func dedupeCommand(r *Runner) *cli.Command {
	similar := func() cli.Flag {
		return &cli.BoolFlag{Name: "similar", Aliases: []string{"s"}, Usage: "Also match tracks with the same title and artist"}
	}
	return &cli.Command{
		Name:  "dedupe",
		Usage: "Find and remove duplicate tracks",
		Commands: []*cli.Command{
			{
				Name:      "find",
				Usage:     "List duplicated tracks",
				Arguments: playlistArg(),
				Flags:     []cli.Flag{similar()},
				Action:    r.DedupeFind,
			},
			{
				Name:      "remove",
				Usage:     "Remove duplicates, keeping the first occurrence of each track",
				Arguments: playlistArg(),
				Flags: []cli.Flag{
					similar(),
					&cli.IntSliceFlag{Name: "position", Aliases: []string{"p"}, Usage: "Remove only these positions (1-based, as listed by find)"},
				},
				Action: r.DedupeRemove,
			},
		},
	}
}

func scheduleFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "daily, weekly, monthly or cron"},
		&cli.IntFlag{Name: "hour", Usage: "Hour of day (0-23) in the schedule's timezone"},
		&cli.StringFlag{Name: "day-of-week", Usage: "mon..sun, for weekly schedules"},
		&cli.IntFlag{Name: "day-of-month", Usage: "1-31 (runs on the 28th at most), for monthly schedules"},
		&cli.IntFlag{Name: "tz-offset", Usage: "Timezone offset from UTC in minutes"},
		&cli.StringFlag{Name: "cron", Usage: "Cron expression, for cron schedules"},
		&cli.IntFlag{Name: "frequency", Usage: "Fallback interval in minutes for cron schedules"},
		&cli.IntFlag{Name: "ttl-days", Usage: "Cache entry lifetime, for cache_clear schedules"},
		&cli.StringFlag{Name: "first-run", Usage: "First run time (RFC 3339), overriding the computed one"},
		&cli.BoolFlag{Name: "enabled", Usage: "Enable or disable the schedule", Value: true},
	}
	return append(flags, sortFlags(false)...)
}

// scheduleCommand manages recurring maintenance
func scheduleCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Manage recurring sorts and cache cleanup",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create or replace the schedule for a playlist and action",
				Arguments: playlistArg(),
				Flags: append(scheduleFlags(),
					&cli.StringFlag{Name: "action", Usage: "sort or cache_clear", Value: string(models.ActionSort)},
				),
				Action: r.ScheduleCreate,
			},
			{
				Name:      "update",
				Usage:     "Change a schedule",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id", UsageText: "Schedule ID"}},
				Flags:     scheduleFlags(),
				Action:    r.ScheduleUpdate,
			},
			{
				Name:      "delete",
				Usage:     "Delete a schedule",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id", UsageText: "Schedule ID"}},
				Action:    r.ScheduleDelete,
			},
			{
				Name:      "list",
				Usage:     "List your schedules, optionally for one playlist",
				Arguments: playlistArg(),
				Action:    r.ScheduleList,
			},
		},
	}
}

// jobsCommand handles job housekeeping
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Sort job housekeeping",
		Commands: []*cli.Command{
			{
				Name:  "cleanup",
				Usage: "Delete finished jobs older than the retention period",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "older-than", Usage: "Age in days (defaults to jobs.retention_days)"},
				},
				Action: r.JobsCleanup,
			},
		},
	}
}

// cacheCommand handles the track metadata cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the local track metadata cache",
		Commands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Drop cached tracks older than the TTL",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "ttl-days", Usage: "Entry lifetime in days (defaults to cache.ttl_days)"},
				},
				Action: r.CacheClear,
			},
			{
				Name:   "stats",
				Usage:  "Show cached track and job counts",
				Action: r.CacheStats,
			},
		},
	}
}

// serveCommand runs workers and the scheduler in the foreground
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the worker pool and scheduler until interrupted",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "cleanup-interval", Usage: "How often finished jobs are pruned", Value: time.Hour},
		},
		Action: r.Serve,
	}
}
