package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kelani/settled/internal/repository"
)

// Handler consumes a claimed due job. Returning nil completes the job;
// returning an error sends it through the retry policy.
type Handler interface {
	Handle(ctx context.Context, job *repository.ScheduledJob) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *repository.ScheduledJob) error

func (f HandlerFunc) Handle(ctx context.Context, job *repository.ScheduledJob) error {
	return f(ctx, job)
}

// Scheduler is the due-job poller. Each tick it atomically claims due jobs
// (pending -> processing in one conditional update) and dispatches each to
// its registered handler in parallel. One job's failure never blocks the
// others in the batch.
type Scheduler struct {
	jobs     repository.ScheduledJobRepository
	logger   *slog.Logger
	handlers map[string]Handler

	cronExpression  string
	batchSize       int
	retryBaseDelay  time.Duration
	staleClaimAfter time.Duration

	cron *cron.Cron
	mu   sync.RWMutex
}

type Option func(*Scheduler)

func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithRetryBaseDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.retryBaseDelay = d
		}
	}
}

// WithStaleClaimAfter sets how long a processing claim may sit untouched
// before the poller assumes its worker died and frees it. Zero disables
// recovery.
func WithStaleClaimAfter(d time.Duration) Option {
	return func(s *Scheduler) {
		s.staleClaimAfter = d
	}
}

func New(jobs repository.ScheduledJobRepository, logger *slog.Logger, cronExpression string, opts ...Option) *Scheduler {
	if cronExpression == "" {
		cronExpression = "* * * * *"
	}

	s := &Scheduler{
		jobs:           jobs,
		logger:         logger,
		handlers:       make(map[string]Handler),
		cronExpression:  cronExpression,
		batchSize:       100,
		retryBaseDelay:  time.Minute,
		staleClaimAfter: 10 * time.Minute,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Scheduler) Register(jobType string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[jobType] = handler
}

func (s *Scheduler) Start() error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.cronExpression, func() {
		if err := s.RunDue(context.Background()); err != nil {
			s.logger.Error("poller tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("registering poll schedule %q: %w", s.cronExpression, err)
	}

	s.cron.Start()
	s.logger.Info("due-job poller started", "cron", s.cronExpression)
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		// waits for in-flight tick functions to return
		<-s.cron.Stop().Done()
	}
}

// RunDue executes a single poll tick. Exposed so a tick can be driven
// directly, independent of the cron schedule.
func (s *Scheduler) RunDue(ctx context.Context) error {
	now := time.Now()

	if s.staleClaimAfter > 0 {
		released, err := s.jobs.ReleaseStale(now.Add(-s.staleClaimAfter))
		if err != nil {
			s.logger.Error("releasing stale job claims", "error", err)
		} else if released > 0 {
			s.logger.Info("released stale job claims", "count", released)
		}
	}

	due, err := s.jobs.ClaimDue(now, s.batchSize)
	if err != nil {
		return fmt.Errorf("claiming due jobs: %w", err)
	}

	if len(due) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for i := range due {
		job := due[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dispatch(ctx, &job)
		}()
	}
	wg.Wait()

	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, job *repository.ScheduledJob) {
	s.mu.RLock()
	handler, ok := s.handlers[job.JobType]
	s.mu.RUnlock()

	if !ok {
		s.logger.Error("no handler registered for job type", "job_id", job.ID, "job_type", job.JobType)
		if err := s.jobs.MarkFailed(job.ID, "no handler registered for "+job.JobType); err != nil {
			s.logger.Error("marking unhandled job failed", "job_id", job.ID, "error", err)
		}
		return
	}

	err := s.runHandler(ctx, handler, job)
	if err == nil {
		if err := s.jobs.MarkCompleted(job.ID); err != nil {
			s.logger.Error("marking job completed", "job_id", job.ID, "error", err)
		}
		return
	}

	s.logger.Error("job handler failed", "job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts, "error", err)

	// bounded retry: back off exponentially until attempts are exhausted,
	// then the job fails permanently
	if job.Attempts < job.MaxAttempts {
		delay := s.retryBaseDelay << (job.Attempts - 1)
		if rescheduleErr := s.jobs.Reschedule(job.ID, time.Now().Add(delay), err.Error()); rescheduleErr != nil {
			s.logger.Error("rescheduling job", "job_id", job.ID, "error", rescheduleErr)
		}
		return
	}

	if failErr := s.jobs.MarkFailed(job.ID, err.Error()); failErr != nil {
		s.logger.Error("marking job failed", "job_id", job.ID, "error", failErr)
	}
}

func (s *Scheduler) runHandler(ctx context.Context, handler Handler, job *repository.ScheduledJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler.Handle(ctx, job)
}
