package handler

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/kelani/settled/internal/errHandler"
	"github.com/kelani/settled/internal/ledger"
	"github.com/kelani/settled/internal/repository"
	"github.com/kelani/settled/internal/request"
	"github.com/kelani/settled/internal/response"
	"github.com/kelani/settled/internal/validator"
)

type TransferHandler struct {
	Ledger     *ledger.Engine
	ErrHandler *errHandler.ErrorHandler
}

func NewTransferHandler(handler *TransferHandler) *TransferHandler {
	return &TransferHandler{
		Ledger:     handler.Ledger,
		ErrHandler: handler.ErrHandler,
	}
}

type TransactionResponseData struct {
	ID                  string `json:"id"`
	SourceWalletID      string `json:"source_wallet_id"`
	DestinationWalletID string `json:"destination_wallet_id"`
	Amount              string `json:"amount"`
	Currency            string `json:"currency"`
	Type                string `json:"type"`
	Status              string `json:"status"`
}

func (h *TransferHandler) HandleTransferFunds(w http.ResponseWriter, r *http.Request) {
	type TransferFundsInput struct {
		SourceWalletID      string              `json:"source_wallet_id"`
		DestinationWalletID string              `json:"destination_wallet_id"`
		Amount              string              `json:"amount"`
		Currency            string              `json:"currency"`
		Note                string              `json:"note"`
		Validator           validator.Validator `json:"-"`
	}

	var input TransferFundsInput

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(input.SourceWalletID != "", "Source wallet is required")
	input.Validator.Check(input.DestinationWalletID != "", "Destination wallet is required")
	input.Validator.Check(input.Currency != "", "Currency is required")
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

	transaction, err := h.Ledger.Transfer(r.Context(), input.SourceWalletID, input.DestinationWalletID, amount, input.Currency, input.Note)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrWalletNotFound),
			errors.Is(err, ledger.ErrInvalidDestinationWallet),
			errors.Is(err, ledger.ErrCurrencyMismatch),
			errors.Is(err, repository.ErrInsufficientFunds),
			errors.Is(err, repository.ErrWalletLocked):
			h.ErrHandler.UnprocessableEntity(w, r, err)
		default:
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	data := &TransactionResponseData{
		ID:                  transaction.ID,
		SourceWalletID:      transaction.SourceWalletID,
		DestinationWalletID: transaction.DestinationWalletID,
		Amount:              transaction.Amount.String(),
		Currency:            transaction.Currency,
		Type:                transaction.Type,
		Status:              transaction.Status,
	}

	message := "Transfer completed successfully"
	err = response.JSONCreatedResponse(w, data, message)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
