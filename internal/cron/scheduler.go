package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field expressions and @descriptors.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler runs registered jobs on their schedules. A job whose previous
// run is still going skips its tick.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   []Job
	locks  map[string]*sync.Mutex
	logger *slog.Logger
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		locks:  make(map[string]*sync.Mutex),
		logger: logger,
	}
}

// RegisterJob adds j. It fails on a duplicate name or a schedule that
// does not parse.
func (s *Scheduler) RegisterJob(j Job) error {
	if _, err := parser.Parse(j.Schedule()); err != nil {
		return fmt.Errorf("cron: invalid schedule for job %q: %w", j.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.locks[j.Name()]; exists {
		return fmt.Errorf("cron: duplicate job name %q", j.Name())
	}
	s.locks[j.Name()] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start begins executing the registered jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("cron: scheduler already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithParser(parser))
	for _, job := range s.jobs {
		if _, err := c.AddFunc(job.Schedule(), s.runner(ctx, job)); err != nil {
			cancel()
			return fmt.Errorf("cron: scheduling job %q: %w", job.Name(), err)
		}
	}

	s.cron, s.cancel = c, cancel
	c.Start()
	s.logger.Debug("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

func (s *Scheduler) runner(ctx context.Context, job Job) func() {
	lock := s.locks[job.Name()]
	return func() {
		if !lock.TryLock() {
			s.logger.Warn("cron: job still running, skipping tick", "job", job.Name())
			return
		}
		defer lock.Unlock()

		if err := job.Run(ctx); err != nil {
			s.logger.Error("cron: job failed", "job", job.Name(), "error", err)
		}
	}
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
	return nil
}
