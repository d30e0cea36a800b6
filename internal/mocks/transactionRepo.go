package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/kelani/settled/internal/repository"
)

type MockTransactionRepo struct {
	mock.Mock
}

func (m *MockTransactionRepo) Insert(transaction *repository.WalletTransaction) (*repository.WalletTransaction, error) {
	args := m.Called(transaction)
	created, _ := args.Get(0).(*repository.WalletTransaction)
	return created, args.Error(1)
}

func (m *MockTransactionRepo) GetOne(id string) (*repository.WalletTransaction, bool, error) {
	args := m.Called(id)
	transaction, _ := args.Get(0).(*repository.WalletTransaction)
	return transaction, args.Bool(1), args.Error(2)
}

func (m *MockTransactionRepo) ListByWallet(walletID string, limit int) ([]repository.WalletTransaction, error) {
	args := m.Called(walletID, limit)
	transactions, _ := args.Get(0).([]repository.WalletTransaction)
	return transactions, args.Error(1)
}

func (m *MockTransactionRepo) MarkCompleted(id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepo) MarkFailed(id, note string) (bool, error) {
	args := m.Called(id, note)
	return args.Bool(0), args.Error(1)
}
