package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires the two jobs on their cron specs in one timezone. The jobs
// are registered independently; a failing or panicking run of one never
// blocks the other.
type Scheduler struct {
	cron    *cron.Cron
	jobs    *Jobs
	logger  *slog.Logger
	timeout time.Duration
}

type ScheduleConfig struct {
	Location       *time.Location
	ExpireSchedule string
	PurgeSchedule  string
	// Timeout bounds a single run. Zero means 30 minutes.
	Timeout time.Duration
}

func NewScheduler(jobs *Jobs, cfg ScheduleConfig, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:    jobs,
		logger:  logger,
		timeout: cfg.Timeout,
	}
	if _, err := s.cron.AddFunc(cfg.ExpireSchedule, s.run(JobExpire, jobs.ExpireStaleSignups)); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", JobExpire, err)
	}
	if _, err := s.cron.AddFunc(cfg.PurgeSchedule, s.run(JobPurge, jobs.PurgeExpiredAccounts)); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", JobPurge, err)
	}
	return s, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("sweep scheduler stopped with jobs still running")
	}
}

// Entries lists the next fire time per job, in registration order.
func (s *Scheduler) Entries() []time.Time {
	var next []time.Time
	for _, e := range s.cron.Entries() {
		next = append(next, e.Next)
	}
	return next
}

func (s *Scheduler) run(name string, fn func(context.Context) (*Report, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		// Errors are already logged and counted by the job itself.
		if _, err := fn(ctx); err != nil {
			s.logger.Debug("scheduled sweep returned error", "job", name)
		}
	}
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
