package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs named background jobs on cron schedules. A job that panics
// is recovered and logged; a job still running when its next tick arrives
// skips that tick.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]cron.EntryID
	logger *slog.Logger
}

// New creates a new scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:   make(map[string]cron.EntryID),
		logger: logger,
	}
}

// Every returns the schedule expression for a fixed interval.
func Every(d time.Duration) string {
	return "@every " + d.String()
}

// Start begins the cron scheduler. Blocks until context is cancelled, then
// waits for running jobs to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.JobCount())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// AddJob registers fn under name, replacing any job with the same name.
// The schedule is a standard 5-field cron expression or a descriptor such
// as "@every 10s".
func (s *Scheduler) AddJob(name, schedule string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(schedule, func() {
		s.logger.Debug("job fired", "job", name)
		fn()
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}

	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}
	s.jobs[name] = id
	s.logger.Info("job registered", "job", name, "schedule", schedule)
	return nil
}

// RemoveJob removes the job registered under name.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
}

// Next returns when the named job fires next. It is zero until the
// scheduler has started.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// JobCount returns the number of registered jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
