package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/polish/internal/oplog"
	"github.com/desertthunder/polish/internal/repositories"
	"github.com/desertthunder/polish/internal/scheduler"
	"github.com/desertthunder/polish/internal/services"
	"github.com/desertthunder/polish/internal/shared"
	"github.com/desertthunder/polish/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database and the Spotify client are opened on first use so commands that need neither
// (e.g. setup) work without credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	db         *sql.DB
	remote     services.Collection
	logger     *log.Logger
	output     io.Writer
	now        func() time.Time
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	DB         *sql.DB
	Remote     services.Collection
	Logger     *log.Logger
	Output     io.Writer
	Now        func() time.Time
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		db:         opts.DB,
		remote:     opts.Remote,
		logger:     opts.Logger,
		output:     opts.Output,
		now:        opts.Now,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, sortCommand, undoCommand, historyCommand, dedupeCommand, scheduleCommand,
		jobsCommand, cacheCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger swaps the logger, e.g. for a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// loadConfig reads the config file named by --config, falling back to defaults when it does not exist.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if r.config != nil {
		return ctx, nil
	}
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	r.config = shared.DefaultConfig()
	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	shared.SetLogLevel(r.logger, shared.ParseLogLevel(r.config.Log.Level))
	return ctx, nil
}

// Close releases the database if the runner opened it.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db = db
	return db, nil
}

func (r *Runner) collection(ctx context.Context) (services.Collection, error) {
	if r.remote != nil {
		return r.remote, nil
	}
	svc, err := services.NewSpotifyService(ctx, services.SpotifyOptionsFromConfig(r.config))
	if err != nil {
		return nil, fmt.Errorf("%w (set credentials.spotify in %s)", err, r.configPath)
	}
	r.remote = svc
	return svc, nil
}

type profiler interface {
	UserProfile(ctx context.Context) (*services.SpotifyUser, error)
}

// owner resolves the user every owner-scoped command acts for: --user, then credentials.spotify.user_id,
// then the profile of the authenticated Spotify account.
func (r *Runner) owner(ctx context.Context, cmd *cli.Command) (string, error) {
	if id := strings.TrimSpace(cmd.String("user")); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(r.config.Credentials.Spotify.UserID); id != "" && id != "me" {
		return id, nil
	}

	remote, err := r.collection(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: pass --user or set credentials.spotify.user_id", shared.ErrMissingArgument)
	}
	p, ok := remote.(profiler)
	if !ok {
		return "", fmt.Errorf("%w: pass --user or set credentials.spotify.user_id", shared.ErrMissingArgument)
	}
	user, err := p.UserProfile(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve current user: %w", err)
	}
	r.config.Credentials.Spotify.UserID = user.ID
	return user.ID, nil
}

// stack is the wired domain layer a command works against.
type stack struct {
	jobs      *repositories.JobRepository
	ops       *repositories.OperationRepository
	schedules *repositories.ScheduleRepository
	cache     *repositories.TrackCache
	log       *oplog.Log
	runner    *tasks.JobRunner
	dedupe    *tasks.Deduplicator
	schedule  *scheduler.Service
}

type stackOpts struct {
	remote  bool
	updates chan<- tasks.ProgressUpdate
	workers int
}

// build wires repositories, the undo log, the job runner and the schedule service. The Spotify client
// is only created when opts.remote is set; commands that only read local state run without credentials.
func (r *Runner) build(ctx context.Context, opts stackOpts) (*stack, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}

	var remote services.Collection
	if opts.remote {
		if remote, err = r.collection(ctx); err != nil {
			return nil, err
		}
	}

	s := &stack{
		jobs:      repositories.NewJobRepository(db),
		ops:       repositories.NewOperationRepository(db),
		schedules: repositories.NewScheduleRepository(db),
		cache:     repositories.NewTrackCache(db),
	}

	s.log = oplog.New(s.ops, remote,
		oplog.WithRetention(r.config.Operations.Retention()),
		oplog.WithClock(r.now),
		oplog.WithLog(shared.WithLogger(r.logger, "component", "oplog")),
	)

	workers := r.config.Jobs.Workers
	if opts.workers > 0 {
		workers = opts.workers
	}
	s.runner = tasks.NewJobRunner(s.jobs, s.log, remote, tasks.Options{
		Workers:          workers,
		MaxActivePerUser: r.config.Jobs.MaxActivePerUser,
		Updates:          opts.updates,
		Cache:            s.cache,
		Logger:           shared.WithLogger(r.logger, "component", "jobs"),
		Now:              r.now,
	})
	s.dedupe = tasks.NewDeduplicator(remote, s.log, shared.WithLogger(r.logger, "component", "dedupe"))
	s.schedule = scheduler.NewService(s.schedules, shared.WithLogger(r.logger, "component", "schedules"), r.now)
	return s, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

// write prints data as JSON when --json is set, otherwise the plain text from render.
func (r *Runner) write(cmd *cli.Command, data any, render func() []byte) error {
	if cmd.Bool("json") {
		return r.writeJSON(data, cmd.Bool("pretty"))
	}
	if _, err := r.output.Write(render()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// requireArg returns the named positional argument or a [shared.ErrMissingArgument].
func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.StringArg(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return v, nil
}
