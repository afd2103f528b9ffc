package domain

import "errors"

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnknownStock      = errors.New("stock record not found")
)

// StockItem is one line of an order as seen by the ledger. When VariantID is
// empty the product counter is the only counter and is guarded like a variant.
type StockItem struct {
	OrderID   string
	VariantID string
	ProductID string
	Quantity  int
}

func (s StockItem) HasVariant() bool { return s.VariantID != "" }

// InsufficientStockError names the counter that could not cover a reservation.
type InsufficientStockError struct {
	VariantID string
	ProductID string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	if e.VariantID != "" {
		return "insufficient stock for variant " + e.VariantID
	}
	return "insufficient stock for product " + e.ProductID
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }
