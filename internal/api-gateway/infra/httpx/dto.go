package httpx

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreatePaymentRequest struct {
	OrderID       string `json:"order_id"`
	PaymentMethod string `json:"payment_method"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	Currency      string `json:"currency"`
}

type PaymentResponse struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transaction_id"`
	PaymentURL    string          `json:"payment_url,omitempty"`
	OrderID       string          `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Method        string          `json:"payment_method"`
}

type ConfirmationResponse struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transaction_id"`
	OrderID       string          `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type OrderResponse struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id,omitempty"`
	CustomerEmail string              `json:"customer_email"`
	Status        string              `json:"status"`
	PaymentStatus string              `json:"payment_status"`
	Total         decimal.Decimal     `json:"total"`
	Items         []OrderItemResponse `json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type OrderItemResponse struct {
	VariantID string          `json:"variant_id,omitempty"`
	ProductID string          `json:"product_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type ResolveEventRequest struct {
	Status string `json:"status"`
}

type SecurityEventResponse struct {
	ID          string         `json:"id"`
	Type        string         `json:"event_type"`
	Severity    string         `json:"severity"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	ActorID     string         `json:"actor_id,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
