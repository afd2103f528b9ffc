package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/storefront-integrity/internal/payment-service/domain"
)

var ErrMissingCredentials = errors.New("gateway: missing base url or api key")

// Hosted talks to a hosted payment page provider over JSON.
type Hosted struct {
	baseURL   string
	apiKey    string
	returnURL string
	client    *http.Client
}

type HostedConfig struct {
	BaseURL   string
	APIKey    string
	ReturnURL string
	Timeout   time.Duration
}

func NewHosted(cfg HostedConfig) (*Hosted, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Hosted{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		returnURL: cfg.ReturnURL,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type sessionRequest struct {
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Method    string          `json:"method"`
	ReturnURL string          `json:"return_url,omitempty"`
	Customer  customer        `json:"customer"`
}

type customer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type sessionResponse struct {
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
}

type verifyResponse struct {
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

func (h *Hosted) InitiatePayment(ctx context.Context, req domain.SessionRequest) (*domain.Session, error) {
	body, err := json.Marshal(sessionRequest{
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Method:    string(req.Method),
		ReturnURL: h.returnURL,
		Customer:  customer{Email: req.CustomerEmail, Name: req.CustomerName, Phone: req.CustomerPhone},
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: encode session: %w", err)
	}

	var out sessionResponse
	if err := h.do(ctx, http.MethodPost, "/sessions", body, &out); err != nil {
		return nil, err
	}
	if out.TransactionID == "" || out.PaymentURL == "" {
		return nil, fmt.Errorf("gateway: session response without transaction id or url")
	}
	return &domain.Session{TransactionID: out.TransactionID, PaymentURL: out.PaymentURL}, nil
}

func (h *Hosted) VerifyPayment(ctx context.Context, transactionID string) (*domain.Verification, error) {
	var out verifyResponse
	if err := h.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(transactionID), nil, &out); err != nil {
		return nil, err
	}
	return &domain.Verification{
		TransactionID: transactionID,
		Paid:          strings.EqualFold(out.Status, "paid"),
		Amount:        out.Amount,
		Currency:      out.Currency,
	}, nil
}

func (h *Hosted) do(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: decode %s response: %w", path, err)
	}
	return nil
}
