package mocks

import (
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/kelani/settled/internal/repository"
)

type MockWalletRepo struct {
	mock.Mock
}

func (m *MockWalletRepo) Insert(wallet *repository.Wallet, tx *sqlx.Tx) (string, error) {
	args := m.Called(wallet, tx)
	return args.String(0), args.Error(1)
}

func (m *MockWalletRepo) GetOne(id string) (*repository.Wallet, bool, error) {
	args := m.Called(id)
	wallet, _ := args.Get(0).(*repository.Wallet)
	return wallet, args.Bool(1), args.Error(2)
}

func (m *MockWalletRepo) FindByRole(role, currency string) (*repository.Wallet, bool, error) {
	args := m.Called(role, currency)
	wallet, _ := args.Get(0).(*repository.Wallet)
	return wallet, args.Bool(1), args.Error(2)
}

func (m *MockWalletRepo) Increment(id string, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(id, amount)
	balance, _ := args.Get(0).(decimal.Decimal)
	return balance, args.Error(1)
}

func (m *MockWalletRepo) Decrement(id string, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(id, amount)
	balance, _ := args.Get(0).(decimal.Decimal)
	return balance, args.Error(1)
}

func (m *MockWalletRepo) LockFunds(id string, amount decimal.Decimal) error {
	args := m.Called(id, amount)
	return args.Error(0)
}

func (m *MockWalletRepo) UnlockFunds(id string, amount decimal.Decimal) error {
	args := m.Called(id, amount)
	return args.Error(0)
}

func (m *MockWalletRepo) SpendLockedFunds(id string, amount decimal.Decimal) error {
	args := m.Called(id, amount)
	return args.Error(0)
}

func (m *MockWalletRepo) IncrementTxCount(id string) error {
	return nil
}

func (m *MockWalletRepo) Freeze(id string) error {
	return nil
}
