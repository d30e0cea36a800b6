package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/kelani/settled/internal/repository"
)

type MockExternalTransactionRepo struct {
	mock.Mock
}

func (m *MockExternalTransactionRepo) Insert(transaction *repository.WalletExternalTransaction) (*repository.WalletExternalTransaction, error) {
	args := m.Called(transaction)
	created, _ := args.Get(0).(*repository.WalletExternalTransaction)
	return created, args.Error(1)
}

func (m *MockExternalTransactionRepo) GetOne(id string) (*repository.WalletExternalTransaction, bool, error) {
	args := m.Called(id)
	transaction, _ := args.Get(0).(*repository.WalletExternalTransaction)
	return transaction, args.Bool(1), args.Error(2)
}

func (m *MockExternalTransactionRepo) MarkReadyForPayment(id, paymentURL string) (bool, error) {
	args := m.Called(id, paymentURL)
	return args.Bool(0), args.Error(1)
}

func (m *MockExternalTransactionRepo) MarkCompleted(id, providerTxID string) (bool, error) {
	args := m.Called(id, providerTxID)
	return args.Bool(0), args.Error(1)
}

func (m *MockExternalTransactionRepo) ReopenForPayment(id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockExternalTransactionRepo) MarkRejected(id, providerTxID string) (bool, error) {
	args := m.Called(id, providerTxID)
	return args.Bool(0), args.Error(1)
}

func (m *MockExternalTransactionRepo) MarkExpired(id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockExternalTransactionRepo) MarkCancelled(id string) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}
