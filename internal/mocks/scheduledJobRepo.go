package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kelani/settled/internal/repository"
)

type MockScheduledJobRepo struct {
	mock.Mock
}

func (m *MockScheduledJobRepo) Insert(job *repository.ScheduledJob) (*repository.ScheduledJob, error) {
	args := m.Called(job)
	created, _ := args.Get(0).(*repository.ScheduledJob)
	return created, args.Error(1)
}

func (m *MockScheduledJobRepo) GetOne(id string) (*repository.ScheduledJob, bool, error) {
	args := m.Called(id)
	job, _ := args.Get(0).(*repository.ScheduledJob)
	return job, args.Bool(1), args.Error(2)
}

func (m *MockScheduledJobRepo) Cancel(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockScheduledJobRepo) CancelByEntity(jobType, entityID string) error {
	args := m.Called(jobType, entityID)
	return args.Error(0)
}

func (m *MockScheduledJobRepo) ClaimDue(now time.Time, limit int) ([]repository.ScheduledJob, error) {
	args := m.Called(now, limit)
	jobs, _ := args.Get(0).([]repository.ScheduledJob)
	return jobs, args.Error(1)
}

func (m *MockScheduledJobRepo) ReleaseStale(olderThan time.Time) (int64, error) {
	args := m.Called(olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockScheduledJobRepo) MarkCompleted(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockScheduledJobRepo) MarkFailed(id, reason string) error {
	args := m.Called(id, reason)
	return args.Error(0)
}

func (m *MockScheduledJobRepo) Reschedule(id string, at time.Time, reason string) error {
	args := m.Called(id, at, reason)
	return args.Error(0)
}
