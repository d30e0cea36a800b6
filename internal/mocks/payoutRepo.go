package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/kelani/settled/internal/repository"
)

type MockPayoutRepo struct {
	mock.Mock
}

func (m *MockPayoutRepo) Insert(payout *repository.Payout) (*repository.Payout, error) {
	args := m.Called(payout)
	created, _ := args.Get(0).(*repository.Payout)
	return created, args.Error(1)
}

func (m *MockPayoutRepo) GetOne(id string) (*repository.Payout, bool, error) {
	args := m.Called(id)
	payout, _ := args.Get(0).(*repository.Payout)
	return payout, args.Bool(1), args.Error(2)
}

func (m *MockPayoutRepo) BeginRelease(id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPayoutRepo) AbortRelease(id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPayoutRepo) MarkReleased(id, transactionID string) (bool, error) {
	args := m.Called(id, transactionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPayoutRepo) MarkFailed(id, reason string) (bool, error) {
	args := m.Called(id, reason)
	return args.Bool(0), args.Error(1)
}
