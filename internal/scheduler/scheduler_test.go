package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kelani/settled/internal/mocks"
	"github.com/kelani/settled/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func claimedJob(id, jobType string, attempts, maxAttempts int) repository.ScheduledJob {
	return repository.ScheduledJob{
		ID:          id,
		JobType:     jobType,
		EntityID:    "entity-" + id,
		Status:      repository.JobStatusProcessing,
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
	}
}

func TestRunDueDispatchesBatchInParallel(t *testing.T) {
	jobs := new(mocks.MockScheduledJobRepo)

	batch := []repository.ScheduledJob{
		claimedJob("job-1", "demo.tick", 1, 3),
		claimedJob("job-2", "demo.tick", 1, 3),
		claimedJob("job-3", "demo.tick", 1, 3),
	}
	jobs.On("ReleaseStale", mock.Anything).Return(int64(0), nil)
	jobs.On("ClaimDue", mock.Anything, 100).Return(batch, nil)
	jobs.On("MarkCompleted", mock.Anything).Return(nil)

	var handled int64
	s := New(jobs, testLogger(), "")
	s.Register("demo.tick", HandlerFunc(func(ctx context.Context, job *repository.ScheduledJob) error {
		atomic.AddInt64(&handled, 1)
		return nil
	}))

	require.NoError(t, s.RunDue(context.Background()))
	require.Equal(t, int64(3), atomic.LoadInt64(&handled))
	jobs.AssertNumberOfCalls(t, "MarkCompleted", 3)
}

func TestRunDueIsolatesFailingJobs(t *testing.T) {
	jobs := new(mocks.MockScheduledJobRepo)

	batch := []repository.ScheduledJob{
		claimedJob("job-ok", "demo.tick", 1, 1),
		claimedJob("job-bad", "demo.tick", 1, 1),
	}
	jobs.On("ReleaseStale", mock.Anything).Return(int64(0), nil)
	jobs.On("ClaimDue", mock.Anything, 100).Return(batch, nil)
	jobs.On("MarkCompleted", "job-ok").Return(nil)
	jobs.On("MarkFailed", "job-bad", mock.Anything).Return(nil)

	s := New(jobs, testLogger(), "")
	s.Register("demo.tick", HandlerFunc(func(ctx context.Context, job *repository.ScheduledJob) error {
		if job.ID == "job-bad" {
			return errors.New("downstream unavailable")
		}
		return nil
	}))

	require.NoError(t, s.RunDue(context.Background()))
	jobs.AssertExpectations(t)
}

func TestRunDueFailsJobsWithoutHandler(t *testing.T) {
	jobs := new(mocks.MockScheduledJobRepo)

	jobs.On("ReleaseStale", mock.Anything).Return(int64(0), nil)
	jobs.On("ClaimDue", mock.Anything, 100).Return([]repository.ScheduledJob{
		claimedJob("job-1", "unknown.type", 1, 3),
	}, nil)
	jobs.On("MarkFailed", "job-1", mock.MatchedBy(func(reason string) bool {
		return reason != ""
	})).Return(nil)

	s := New(jobs, testLogger(), "")

	require.NoError(t, s.RunDue(context.Background()))
	jobs.AssertExpectations(t)
	jobs.AssertNotCalled(t, "Reschedule", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunDueRecoversFromHandlerPanic(t *testing.T) {
	jobs := new(mocks.MockScheduledJobRepo)

	jobs.On("ReleaseStale", mock.Anything).Return(int64(0), nil)
	jobs.On("ClaimDue", mock.Anything, 100).Return([]repository.ScheduledJob{
		claimedJob("job-1", "demo.tick", 3, 3),
	}, nil)
	jobs.On("MarkFailed", "job-1", mock.Anything).Return(nil)

	s := New(jobs, testLogger(), "")
	s.Register("demo.tick", HandlerFunc(func(ctx context.Context, job *repository.ScheduledJob) error {
		panic("nil pointer somewhere deep")
	}))

	require.NoError(t, s.RunDue(context.Background()))
	jobs.AssertExpectations(t)
}

func TestRunDueReschedulesWithExponentialBackoff(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		want     time.Duration
	}{
		{"first failure", 1, time.Minute},
		{"second failure", 2, 2 * time.Minute},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			jobs := new(mocks.MockScheduledJobRepo)

			jobs.On("ReleaseStale", mock.Anything).Return(int64(0), nil)
			jobs.On("ClaimDue", mock.Anything, 100).Return([]repository.ScheduledJob{
				claimedJob("job-1", "demo.tick", tc.attempts, 3),
			}, nil)

			before := time.Now()
			jobs.On("Reschedule", "job-1", mock.MatchedBy(func(at time.Time) bool {
				delay := at.Sub(before)
				return delay >= tc.want && delay < tc.want+10*time.Second
			}), mock.Anything).Return(nil)

			s := New(jobs, testLogger(), "")
			s.Register("demo.tick", HandlerFunc(func(ctx context.Context, job *repository.ScheduledJob) error {
				return errors.New("transient failure")
			}))

			require.NoError(t, s.RunDue(context.Background()))
			jobs.AssertExpectations(t)
			jobs.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything)
		})
	}
}

func TestRunDueFailsJobAfterAttemptsExhausted(t *testing.T) {
	jobs := new(mocks.MockScheduledJobRepo)

	jobs.On("ReleaseStale", mock.Anything).Return(int64(0), nil)
	jobs.On("ClaimDue", mock.Anything, 100).Return([]repository.ScheduledJob{
		claimedJob("job-1", "demo.tick", 3, 3),
	}, nil)
	jobs.On("MarkFailed", "job-1", "transient failure").Return(nil)

	s := New(jobs, testLogger(), "")
	s.Register("demo.tick", HandlerFunc(func(ctx context.Context, job *repository.ScheduledJob) error {
		return errors.New("transient failure")
	}))

	require.NoError(t, s.RunDue(context.Background()))
	jobs.AssertExpectations(t)
	jobs.AssertNotCalled(t, "Reschedule", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunDueHonoursBatchSizeOption(t *testing.T) {
	jobs := new(mocks.MockScheduledJobRepo)
	jobs.On("ReleaseStale", mock.Anything).Return(int64(0), nil)
	jobs.On("ClaimDue", mock.Anything, 5).Return(nil, nil)

	s := New(jobs, testLogger(), "", WithBatchSize(5))

	require.NoError(t, s.RunDue(context.Background()))
	jobs.AssertExpectations(t)
}

// memoryJobStore mirrors the conditional-update semantics of the SQL store:
// ClaimDue only takes pending jobs, Cancel only cancels pending jobs. The
// cancel-versus-dispatch race resolves to exactly one winner.
type memoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*repository.ScheduledJob
}

func newMemoryJobStore(jobs ...*repository.ScheduledJob) *memoryJobStore {
	store := &memoryJobStore{jobs: make(map[string]*repository.ScheduledJob)}
	for _, job := range jobs {
		store.jobs[job.ID] = job
	}
	return store
}

func (s *memoryJobStore) Insert(job *repository.ScheduledJob) (*repository.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return job, nil
}

func (s *memoryJobStore) GetOne(id string) (*repository.ScheduledJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false, nil
	}
	copied := *job
	return &copied, true, nil
}

func (s *memoryJobStore) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok && job.Status == repository.JobStatusPending {
		job.Status = repository.JobStatusCancelled
	}
	return nil
}

func (s *memoryJobStore) CancelByEntity(jobType, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.JobType == jobType && job.EntityID == entityID && job.Status == repository.JobStatusPending {
			job.Status = repository.JobStatusCancelled
		}
	}
	return nil
}

func (s *memoryJobStore) ClaimDue(now time.Time, limit int) ([]repository.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []repository.ScheduledJob
	for _, job := range s.jobs {
		if len(claimed) == limit {
			break
		}
		if job.Status == repository.JobStatusPending && !job.ExecuteAt.After(now) {
			job.Status = repository.JobStatusProcessing
			job.Attempts++
			job.UpdatedAt = sql.NullTime{Time: now, Valid: true}
			claimed = append(claimed, *job)
		}
	}
	return claimed, nil
}

func (s *memoryJobStore) ReleaseStale(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var released int64
	for _, job := range s.jobs {
		if job.Status != repository.JobStatusProcessing {
			continue
		}
		if job.UpdatedAt.Valid && job.UpdatedAt.Time.Before(olderThan) {
			if job.Attempts < job.MaxAttempts {
				job.Status = repository.JobStatusPending
				released++
			} else {
				job.Status = repository.JobStatusFailed
			}
		}
	}
	return released, nil
}

func (s *memoryJobStore) MarkCompleted(id string) error {
	return s.close(id, repository.JobStatusCompleted)
}

func (s *memoryJobStore) MarkFailed(id, reason string) error {
	return s.close(id, repository.JobStatusFailed)
}

func (s *memoryJobStore) Reschedule(id string, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != repository.JobStatusProcessing {
		return repository.ErrJobNotFound
	}
	job.Status = repository.JobStatusPending
	job.ExecuteAt = at
	return nil
}

func (s *memoryJobStore) close(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != repository.JobStatusProcessing {
		return repository.ErrJobNotFound
	}
	job.Status = status
	return nil
}

func TestCancelRacingDispatchHasOneWinner(t *testing.T) {
	for i := 0; i < 50; i++ {
		store := newMemoryJobStore(&repository.ScheduledJob{
			ID:          "job-1",
			JobType:     "demo.tick",
			Status:      repository.JobStatusPending,
			ExecuteAt:   time.Now().Add(-time.Second),
			MaxAttempts: 3,
		})

		var fired int64
		s := New(store, testLogger(), "")
		s.Register("demo.tick", HandlerFunc(func(ctx context.Context, job *repository.ScheduledJob) error {
			atomic.AddInt64(&fired, 1)
			return nil
		}))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Cancel("job-1")
		}()
		go func() {
			defer wg.Done()
			_ = s.RunDue(context.Background())
		}()
		wg.Wait()

		job, found, err := store.GetOne("job-1")
		require.NoError(t, err)
		require.True(t, found)

		switch job.Status {
		case repository.JobStatusCancelled:
			require.Zero(t, atomic.LoadInt64(&fired), "cancelled job must not fire")
		case repository.JobStatusCompleted:
			require.Equal(t, int64(1), atomic.LoadInt64(&fired))
		default:
			t.Fatalf("job ended in unexpected status %q", job.Status)
		}
	}
}

func TestRescheduledJobIsClaimableAgain(t *testing.T) {
	store := newMemoryJobStore(&repository.ScheduledJob{
		ID:          "job-1",
		JobType:     "demo.tick",
		Status:      repository.JobStatusPending,
		ExecuteAt:   time.Now().Add(-time.Second),
		MaxAttempts: 2,
	})

	attempts := 0
	s := New(store, testLogger(), "", WithRetryBaseDelay(time.Nanosecond))
	s.Register("demo.tick", HandlerFunc(func(ctx context.Context, job *repository.ScheduledJob) error {
		attempts++
		if attempts == 1 {
			return errors.New("first attempt fails")
		}
		return nil
	}))

	require.NoError(t, s.RunDue(context.Background()))
	job, _, err := store.GetOne("job-1")
	require.NoError(t, err)
	require.Equal(t, repository.JobStatusPending, job.Status)

	time.Sleep(time.Millisecond)

	require.NoError(t, s.RunDue(context.Background()))
	job, _, err = store.GetOne("job-1")
	require.NoError(t, err)
	require.Equal(t, repository.JobStatusCompleted, job.Status)
	require.Equal(t, 2, attempts)
}

func TestRunDueReclaimsStaleClaims(t *testing.T) {
	// a replica claimed the job and died 20 minutes ago
	store := newMemoryJobStore(&repository.ScheduledJob{
		ID:          "job-1",
		JobType:     "demo.tick",
		Status:      repository.JobStatusProcessing,
		ExecuteAt:   time.Now().Add(-time.Hour),
		Attempts:    1,
		MaxAttempts: 3,
		UpdatedAt:   sql.NullTime{Time: time.Now().Add(-20 * time.Minute), Valid: true},
	})

	var fired int64
	s := New(store, testLogger(), "")
	s.Register("demo.tick", HandlerFunc(func(ctx context.Context, job *repository.ScheduledJob) error {
		atomic.AddInt64(&fired, 1)
		return nil
	}))

	require.NoError(t, s.RunDue(context.Background()))

	job, _, err := store.GetOne("job-1")
	require.NoError(t, err)
	require.Equal(t, repository.JobStatusCompleted, job.Status)
	require.Equal(t, int64(1), atomic.LoadInt64(&fired))
}

func TestRunDueFailsStaleClaimWithNoAttemptsLeft(t *testing.T) {
	store := newMemoryJobStore(&repository.ScheduledJob{
		ID:          "job-1",
		JobType:     "demo.tick",
		Status:      repository.JobStatusProcessing,
		ExecuteAt:   time.Now().Add(-time.Hour),
		Attempts:    3,
		MaxAttempts: 3,
		UpdatedAt:   sql.NullTime{Time: time.Now().Add(-20 * time.Minute), Valid: true},
	})

	var fired int64
	s := New(store, testLogger(), "")
	s.Register("demo.tick", HandlerFunc(func(ctx context.Context, job *repository.ScheduledJob) error {
		atomic.AddInt64(&fired, 1)
		return nil
	}))

	require.NoError(t, s.RunDue(context.Background()))

	job, _, err := store.GetOne("job-1")
	require.NoError(t, err)
	require.Equal(t, repository.JobStatusFailed, job.Status)
	require.Zero(t, atomic.LoadInt64(&fired))
}

func TestRunDueLeavesFreshClaimsAlone(t *testing.T) {
	jobs := new(mocks.MockScheduledJobRepo)
	jobs.On("ReleaseStale", mock.MatchedBy(func(olderThan time.Time) bool {
		cutoff := time.Since(olderThan)
		return cutoff > 9*time.Minute && cutoff < 11*time.Minute
	})).Return(int64(0), nil)
	jobs.On("ClaimDue", mock.Anything, 100).Return(nil, nil)

	s := New(jobs, testLogger(), "")

	require.NoError(t, s.RunDue(context.Background()))
	jobs.AssertExpectations(t)
}
