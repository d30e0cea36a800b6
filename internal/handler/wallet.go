package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/kelani/settled/internal/errHandler"
	"github.com/kelani/settled/internal/repository"
	"github.com/kelani/settled/internal/response"
)

var ErrWalletNotFound = errors.New("wallet not found")

type WalletResponseData struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Balance   string    `json:"balance"`
	Locked    string    `json:"locked_balance"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type WalletHandler struct {
	WalletRepo      repository.WalletRepository
	TransactionRepo repository.TransactionRepository
	ErrHandler      *errHandler.ErrorHandler
}

func NewWalletHandler(handler *WalletHandler) *WalletHandler {
	return &WalletHandler{
		WalletRepo:      handler.WalletRepo,
		TransactionRepo: handler.TransactionRepo,
		ErrHandler:      handler.ErrHandler,
	}
}

func (h *WalletHandler) HandleWalletBalance(w http.ResponseWriter, r *http.Request) {
	walletID := r.PathValue("id")

	wallet, found, err := h.WalletRepo.GetOne(walletID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if !found {
		err = response.JSONErrorResponse(w, nil, ErrWalletNotFound.Error(), http.StatusUnprocessableEntity, nil)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	message := "Balance fetched successfully"

	data := map[string]any{
		"balance":        wallet.Balance.String(),
		"locked_balance": wallet.LockedBalance.String(),
		"currency":       wallet.Currency,
	}
	err = response.JSONOkResponse(w, data, message, nil)

	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}

func (h *WalletHandler) HandleWalletTransactions(w http.ResponseWriter, r *http.Request) {
	walletID := r.PathValue("id")

	_, found, err := h.WalletRepo.GetOne(walletID)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	if !found {
		err = response.JSONErrorResponse(w, nil, ErrWalletNotFound.Error(), http.StatusUnprocessableEntity, nil)
		if err != nil {
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	transactions, err := h.TransactionRepo.ListByWallet(walletID, 50)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	items := make([]TransactionResponseData, 0, len(transactions))
	for _, transaction := range transactions {
		items = append(items, TransactionResponseData{
			ID:                  transaction.ID,
			SourceWalletID:      transaction.SourceWalletID,
			DestinationWalletID: transaction.DestinationWalletID,
			Amount:              transaction.Amount.String(),
			Currency:            transaction.Currency,
			Type:                transaction.Type,
			Status:              transaction.Status,
		})
	}

	message := "Transactions fetched successfully"
	err = response.JSONOkResponse(w, map[string]any{"transactions": items}, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
