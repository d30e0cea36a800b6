package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/kelani/settled/internal/errHandler"
	"github.com/kelani/settled/internal/repository"
	"github.com/kelani/settled/internal/request"
	"github.com/kelani/settled/internal/response"
	"github.com/kelani/settled/internal/settlement"
	"github.com/kelani/settled/internal/validator"
)

type SettlementHandler struct {
	Settlement *settlement.Service
	ErrHandler *errHandler.ErrorHandler
}

func NewSettlementHandler(handler *SettlementHandler) *SettlementHandler {
	return &SettlementHandler{
		Settlement: handler.Settlement,
		ErrHandler: handler.ErrHandler,
	}
}

type ExternalTransactionResponseData struct {
	ID         string `json:"id"`
	WalletID   string `json:"wallet_id"`
	Direction  string `json:"direction"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	PaymentURL string `json:"payment_url,omitempty"`
}

func (h *SettlementHandler) HandleInitiateDeposit(w http.ResponseWriter, r *http.Request) {
	h.handleInitiate(w, r, h.Settlement.InitiateDeposit)
}

func (h *SettlementHandler) HandleInitiateWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.handleInitiate(w, r, h.Settlement.InitiateWithdrawal)
}

func (h *SettlementHandler) handleInitiate(w http.ResponseWriter, r *http.Request, initiate func(context.Context, string, decimal.Decimal) (*repository.WalletExternalTransaction, error)) {
	type InitiateInput struct {
		WalletID  string              `json:"wallet_id"`
		Amount    string              `json:"amount"`
		Validator validator.Validator `json:"-"`
	}

	var input InitiateInput

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(input.WalletID != "", "Wallet is required")
	input.Validator.Check(input.Amount != "", "Amount is required")

	if input.Validator.HasErrors() {
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	amount, err := decimal.NewFromString(input.Amount)
	if err != nil || !amount.IsPositive() {
		input.Validator.AddError("Amount must be a positive number")
		h.ErrHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	transaction, err := initiate(r.Context(), input.WalletID, amount)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrWalletNotFound),
			errors.Is(err, repository.ErrWalletLocked),
			errors.Is(err, repository.ErrInsufficientFunds):
			h.ErrHandler.UnprocessableEntity(w, r, err)
		default:
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	data := &ExternalTransactionResponseData{
		ID:         transaction.ID,
		WalletID:   transaction.WalletID,
		Direction:  transaction.Direction,
		Amount:     transaction.Amount.String(),
		Currency:   transaction.Currency,
		Status:     transaction.Status,
		PaymentURL: transaction.PaymentURL.String,
	}

	message := "Settlement initiated successfully"
	err = response.JSONCreatedResponse(w, data, message)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
