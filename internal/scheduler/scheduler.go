package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// SuiteRunner is the interface the scheduler uses to run feature suites.
// Satisfied by the CLI runner (avoids import cycle).
type SuiteRunner interface {
	RunSuite(ctx context.Context, job Job) error
}

// Job is a recurring suite execution defined by a cron expression.
type Job struct {
	Name           string
	CronExpression string
	FeaturePaths   []string
	Tags           string
}

type jobState struct {
	job      Job
	schedule cron.Schedule
	nextRun  time.Time
}

// Scheduler runs configured suites on their cron schedules.
type Scheduler struct {
	jobs   []*jobState
	runner SuiteRunner
	parser cron.Parser
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing (dedup)
}

// NewScheduler parses every job's cron expression up front and returns an
// error on the first one that does not parse.
func NewScheduler(jobs []Job, runner SuiteRunner, logger *slog.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	now := time.Now().UTC()
	states := make([]*jobState, 0, len(jobs))
	for _, job := range jobs {
		schedule, err := parser.Parse(job.CronExpression)
		if err != nil {
			return nil, fmt.Errorf("parse cron expression %q for job %q: %w", job.CronExpression, job.Name, err)
		}
		states = append(states, &jobState{
			job:      job,
			schedule: schedule,
			nextRun:  schedule.Next(now),
		})
	}

	return &Scheduler{
		jobs:     states,
		runner:   runner,
		parser:   parser,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}, nil
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, time.Now().UTC())
		}
	}
}

// tick runs every job whose next run time has arrived and advances its
// schedule past now.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	for _, st := range s.jobs {
		if st.nextRun.After(now) {
			continue
		}
		st.nextRun = st.schedule.Next(now)

		if !s.tryAcquire(st.job.Name) {
			continue // previous run still in flight
		}
		if err := s.runner.RunSuite(ctx, st.job); err != nil {
			s.logger.Error("scheduled suite failed",
				slog.String("job", st.job.Name),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Info("scheduled suite finished", slog.String("job", st.job.Name))
		}
		s.release(st.job.Name)
	}
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

func (s *Scheduler) release(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
