package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/kelani/settled/internal/stream"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) TransactionCompleted(event *stream.TransactionCompletedEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

func (m *MockNotifier) BookingExpired(event *stream.BookingExpiredEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

func (m *MockNotifier) PayoutReleased(event *stream.PayoutReleasedEvent) error {
	args := m.Called(event)
	return args.Error(0)
}
