package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/kelani/settled/internal/repository"
)

type MockBookingRepo struct {
	mock.Mock
}

func (m *MockBookingRepo) Insert(booking *repository.Booking) (*repository.Booking, error) {
	args := m.Called(booking)
	created, _ := args.Get(0).(*repository.Booking)
	return created, args.Error(1)
}

func (m *MockBookingRepo) GetOne(id string) (*repository.Booking, bool, error) {
	args := m.Called(id)
	booking, _ := args.Get(0).(*repository.Booking)
	return booking, args.Bool(1), args.Error(2)
}

func (m *MockBookingRepo) MarkPaid(id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepo) ExpireIfAwaitingPayment(id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}
