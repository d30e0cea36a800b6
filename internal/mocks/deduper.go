package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockDeduper struct {
	mock.Mock
}

func (m *MockDeduper) Once(key string, ttl time.Duration) (bool, error) {
	args := m.Called(key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockDeduper) Delete(key string) error {
	args := m.Called(key)
	return args.Error(0)
}
