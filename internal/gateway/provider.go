package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const defaultRequestTimeout = 10 * time.Second

// HTTPProvider talks JSON to a hosted-checkout payment provider.
type HTTPProvider struct {
	name      string
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewHTTPProvider(name, baseURL, secretKey string) *HTTPProvider {
	return &HTTPProvider{
		name:      name,
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: defaultRequestTimeout},
	}
}

func (p *HTTPProvider) Name() string {
	return p.name
}

type createLinkRequest struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
	ReturnURL string `json:"return_url"`
}

type createLinkResponse struct {
	Status bool `json:"status"`
	Data   struct {
		PaymentURL    string `json:"payment_url"`
		TransactionID string `json:"transaction_id"`
	} `json:"data"`
	Message string `json:"message"`
}

func (p *HTTPProvider) CreatePaymentLink(ctx context.Context, amount decimal.Decimal, currency, returnURL, reference string) (*PaymentLink, error) {
	body, err := json.Marshal(createLinkRequest{
		Amount:    amount.StringFixed(2),
		Currency:  currency,
		Reference: reference,
		ReturnURL: returnURL,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/payment-links", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.secretKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var linkResp createLinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&linkResp); err != nil {
		return nil, err
	}

	if !linkResp.Status || linkResp.Data.PaymentURL == "" {
		return nil, fmt.Errorf("provider rejected payment link: %s", linkResp.Message)
	}

	return &PaymentLink{
		PaymentURL:   linkResp.Data.PaymentURL,
		ProviderTxID: linkResp.Data.TransactionID,
	}, nil
}

type callbackPayload struct {
	Event string `json:"event"`
	Data  struct {
		Status        string `json:"status"`
		Amount        string `json:"amount"`
		Currency      string `json:"currency"`
		TransactionID string `json:"transaction_id"`
		Reference     string `json:"reference"`
	} `json:"data"`
}

// ParseConfirmation translates a raw webhook body into a typed confirmation.
// A malformed body surfaces ErrInvalidProviderPayload and leaves everything
// untouched, so replays from the provider are safe.
func (p *HTTPProvider) ParseConfirmation(raw []byte) (*Confirmation, error) {
	var payload callbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProviderPayload, err)
	}

	if payload.Data.Reference == "" || payload.Data.TransactionID == "" {
		return nil, fmt.Errorf("%w: missing reference or transaction id", ErrInvalidProviderPayload)
	}

	amount, err := decimal.NewFromString(payload.Data.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: bad amount %q", ErrInvalidProviderPayload, payload.Data.Amount)
	}

	return &Confirmation{
		Success:      payload.Data.Status == "successful",
		Amount:       amount,
		Currency:     payload.Data.Currency,
		ProviderTxID: payload.Data.TransactionID,
		Reference:    payload.Data.Reference,
	}, nil
}
