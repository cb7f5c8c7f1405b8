// Package scheduler runs scans in the background: one-shot jobs started
// immediately, plus recurring cron and interval jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/linkscan/internal/logfields"
)

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// New creates a scheduler. Jobs do not run until Start.
func New(opts ...gocron.SchedulerOption) (*Scheduler, error) {
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Start begins executing jobs.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for running jobs to return.
func (s *Scheduler) Stop(_ context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// Enqueue runs fn once, as soon as possible, on a scheduler goroutine. The
// job is removed after it ran.
func (s *Scheduler) Enqueue(name string, fn func()) error {
	_, err := s.scheduler.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartImmediately()),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithEventListeners(gocron.AfterJobRuns(func(jobID uuid.UUID, jobName string) {
			go func() {
				if err := s.scheduler.RemoveJob(jobID); err != nil {
					slog.Debug("Removing finished job failed", slog.String("job", jobName), logfields.Error(err))
				}
			}()
		})),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", name, err)
	}
	return nil
}

// ScheduleCron runs fn on a five-field cron expression. Runs never overlap;
// a tick that arrives while fn is still running is skipped.
func (s *Scheduler) ScheduleCron(name, expr string, fn func()) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to schedule %s with %q: %w", name, expr, err)
	}
	slog.Info("Scheduled recurring job", slog.String("job", name), logfields.Schedule(expr))
	return job.ID().String(), nil
}

// ScheduleEvery runs fn at a fixed interval.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, fn func()) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("interval must be positive, got %s", interval)
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to schedule %s every %s: %w", name, interval, err)
	}
	return job.ID().String(), nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}
