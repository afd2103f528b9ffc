package domain

import "github.com/shopspring/decimal"

// SessionRequest is what a gateway needs to open a hosted payment page.
type SessionRequest struct {
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	Method        Method
	CustomerEmail string
	CustomerName  string
	CustomerPhone string
}

type Session struct {
	TransactionID string
	PaymentURL    string
}

// Verification is the gateway's view of a session after the customer left
// the payment page.
type Verification struct {
	TransactionID string
	Paid          bool
	Amount        decimal.Decimal
	Currency      string
}
