// Package scheduler runs persisted cron jobs and the heartbeat. A firing
// job emits a schedule_triggered event, executes its command through the
// system_command skill, and notifies the owner with the truncated result.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/fhaenel/frieda/internal/events"
	"github.com/fhaenel/frieda/internal/skills"
	"github.com/fhaenel/frieda/internal/storage"
)

// CommandSkill is the skill every scheduled command runs through.
const CommandSkill = "system_command"

// notifyResultCap bounds the job result forwarded as a notification.
const notifyResultCap = 500

// Notifier delivers server-initiated messages. Implemented by the
// notification service; nil disables job notifications.
type Notifier interface {
	Notify(ctx context.Context, message string, channels []string) error
}

// Engine owns the cron runner and the persisted job table.
type Engine struct {
	store    *storage.Store
	bus      *events.Bus
	registry *skills.Registry
	notifier Notifier
	logger   *slog.Logger

	cron   *cron.Cron
	parser cron.Parser

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier forwards job results as notifications.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates a scheduler over the persisted jobs.
func New(store *storage.Store, bus *events.Bus, registry *skills.Registry, opts ...Option) *Engine {
	logger := slog.Default().With(slog.String("component", "scheduler"))
	e := &Engine{
		store:    store,
		bus:      bus,
		registry: registry,
		logger:   logger,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries:  map[string]cron.EntryID{},
	}
	for _, opt := range opts {
		opt(e)
	}
	// One firing per job at a time; a tick that arrives while the previous
	// run is still going is skipped.
	e.cron = cron.New(
		cron.WithParser(e.parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return e
}

// Start reloads the persisted jobs and begins ticking. Stored jobs with
// specs that no longer parse are logged and skipped, never dropped from the
// table.
func (e *Engine) Start(ctx context.Context) error {
	jobs, err := e.store.Jobs(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	for _, job := range jobs {
		if err := e.schedule(job); err != nil {
			e.logger.Warn("skipping persisted job with invalid spec", "job", job.Name, "spec", job.Spec, "error", err)
		}
	}
	e.cron.Start()
	e.logger.Info("scheduler started", "jobs", len(jobs))
	return nil
}

// Stop halts ticking and waits for running jobs to finish.
func (e *Engine) Stop() {
	<-e.cron.Stop().Done()
	e.logger.Info("scheduler stopped")
}

// Add validates, persists, and schedules a new job. Duplicate names and
// malformed specs are errors the caller renders for the model.
func (e *Engine) Add(ctx context.Context, name, spec, command string) error {
	if name == "" || command == "" {
		return fmt.Errorf("name and command are required")
	}
	if _, err := e.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q (expected 5 fields: minute hour day month weekday): %w", spec, err)
	}
	job := storage.Job{Name: name, Spec: spec, Command: command}
	if err := e.store.SaveJob(ctx, job); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return fmt.Errorf("job '%s' already exists", name)
		}
		return err
	}
	if err := e.schedule(job); err != nil {
		return err
	}
	e.logger.Info("job added", "job", name, "spec", spec)
	return nil
}

// Remove unschedules and deletes a job.
func (e *Engine) Remove(ctx context.Context, name string) error {
	found, err := e.store.DeleteJob(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("job '%s' not found", name)
	}
	e.mu.Lock()
	if id, ok := e.entries[name]; ok {
		e.cron.Remove(id)
		delete(e.entries, name)
	}
	e.mu.Unlock()
	e.logger.Info("job removed", "job", name)
	return nil
}

// Jobs lists the persisted jobs.
func (e *Engine) Jobs(ctx context.Context) ([]storage.Job, error) {
	return e.store.Jobs(ctx)
}

func (e *Engine) schedule(job storage.Job) error {
	id, err := e.cron.AddFunc(job.Spec, func() { e.fire(job) })
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.entries[job.Name] = id
	e.mu.Unlock()
	return nil
}

// fire runs one job occurrence: event first, then the command, then the
// notification. The context is the engine's own lifetime, not a request.
func (e *Engine) fire(job storage.Job) {
	ctx := context.Background()
	e.logger.Info("job firing", "job", job.Name)

	e.bus.Emit(ctx, events.Event{
		Type:   events.TypeScheduleTriggered,
		Source: "scheduler:" + job.Name,
		Data: map[string]any{
			"job_name": job.Name,
			"command":  job.Command,
		},
	})

	result := e.registry.Execute(ctx, CommandSkill, map[string]any{"command": job.Command})

	if e.notifier != nil {
		msg := fmt.Sprintf("scheduled job '%s' ran:\n%s", job.Name, truncate(result, notifyResultCap))
		if err := e.notifier.Notify(ctx, msg, nil); err != nil {
			e.logger.Debug("job notification failed", "job", job.Name, "error", err)
		}
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
