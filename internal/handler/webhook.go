package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/kelani/settled/internal/errHandler"
	"github.com/kelani/settled/internal/gateway"
	"github.com/kelani/settled/internal/response"
	"github.com/kelani/settled/internal/settlement"
)

type WebhookHandler struct {
	Gateway    gateway.SettlementGateway
	Settlement *settlement.Service
	ErrHandler *errHandler.ErrorHandler
}

func NewWebhookHandler(handler *WebhookHandler) *WebhookHandler {
	return &WebhookHandler{
		Gateway:    handler.Gateway,
		Settlement: handler.Settlement,
		ErrHandler: handler.ErrHandler,
	}
}

// HandleSettlementCallback receives the provider's webhook, translates it
// through the gateway port and applies it to the matching transaction.
// Replays get a 200 so the provider stops retrying; a malformed body gets a
// 400 and changes nothing.
func (h *WebhookHandler) HandleSettlementCallback(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1_048_576))
	if err != nil {
		h.ErrHandler.BadRequest(w, r, err)
		return
	}

	confirmation, err := h.Gateway.ParseConfirmation(raw)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidProviderPayload) {
			h.ErrHandler.BadRequest(w, r, err)
			return
		}
		h.ErrHandler.ServerError(w, r, err)
		return
	}

	err = h.Settlement.ConfirmSettlement(r.Context(), confirmation)
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrDuplicateConfirmation):
			// already applied; acknowledge so the provider stops retrying
			if ackErr := response.JSONOkResponse(w, nil, "Already processed", nil); ackErr != nil {
				h.ErrHandler.ServerError(w, r, ackErr)
			}
		case errors.Is(err, settlement.ErrUnknownReference),
			errors.Is(err, settlement.ErrCurrencyMismatch):
			h.ErrHandler.UnprocessableEntity(w, r, err)
		default:
			h.ErrHandler.ServerError(w, r, err)
		}
		return
	}

	err = response.JSONOkResponse(w, nil, "Settlement processed", nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
