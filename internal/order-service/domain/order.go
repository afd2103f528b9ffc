package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrAlreadyPaid    = errors.New("order already paid")
	ErrStatusConflict = errors.New("order status changed concurrently")
	ErrInvalidStatus  = errors.New("invalid order status")
)

type Order struct {
	ID            string
	UserID        string
	CustomerEmail string
	CustomerName  string
	CustomerPhone string
	Total         decimal.Decimal
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Items         []OrderItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem references a variant, a product, or both. Quantity and UnitPrice
// are frozen at order creation.
type OrderItem struct {
	ID        string
	OrderID   string
	VariantID string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)
