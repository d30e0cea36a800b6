package mocks

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/kelani/settled/internal/gateway"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePaymentLink(ctx context.Context, amount decimal.Decimal, currency, returnURL, reference string) (*gateway.PaymentLink, error) {
	args := m.Called(ctx, amount, currency, returnURL, reference)
	link, _ := args.Get(0).(*gateway.PaymentLink)
	return link, args.Error(1)
}

func (m *MockGateway) ParseConfirmation(raw []byte) (*gateway.Confirmation, error) {
	args := m.Called(raw)
	confirmation, _ := args.Get(0).(*gateway.Confirmation)
	return confirmation, args.Error(1)
}
