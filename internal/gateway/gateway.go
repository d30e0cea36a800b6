package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInvalidProviderPayload = errors.New("invalid provider payload")

// PaymentLink is what the provider hands back when a hosted checkout
// session is created for a deposit.
type PaymentLink struct {
	PaymentURL   string
	ProviderTxID string
	Fields       map[string]string
}

// Confirmation is the typed form of an inbound provider callback.
type Confirmation struct {
	Success      bool
	Amount       decimal.Decimal
	Currency     string
	ProviderTxID string
	// Reference is our own WalletExternalTransaction id, echoed back by
	// the provider.
	Reference string
}

// SettlementGateway abstracts the outside payment provider. The core only
// needs two operations: create a hosted payment link, and translate a raw
// webhook body into a typed confirmation.
type SettlementGateway interface {
	CreatePaymentLink(ctx context.Context, amount decimal.Decimal, currency, returnURL, reference string) (*PaymentLink, error)
	ParseConfirmation(raw []byte) (*Confirmation, error)
}
