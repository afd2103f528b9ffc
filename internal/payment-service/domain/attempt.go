package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrAttemptNotFound = errors.New("payment attempt not found")

type Method string

const (
	MethodCashOnDelivery Method = "cod"
	MethodCard           Method = "card"
	MethodMobileBanking  Method = "mobile_banking"
	MethodBankTransfer   Method = "bank_transfer"
)

// RoutesToGateway is false only for cash on delivery.
func (m Method) RoutesToGateway() bool {
	return m != MethodCashOnDelivery
}

type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptCreated   AttemptStatus = "created"
	AttemptBlocked   AttemptStatus = "blocked"
	AttemptFailed    AttemptStatus = "failed"
	AttemptConfirmed AttemptStatus = "confirmed"
)

// FailedStatuses count as failures in the risk failure history.
var FailedStatuses = []AttemptStatus{AttemptFailed, AttemptBlocked}

// SucceededStatuses are attempts that reached the gateway.
var SucceededStatuses = []AttemptStatus{AttemptCreated, AttemptConfirmed}

// Attempt is one call to the payment gate that passed ownership checks.
type Attempt struct {
	ID            string
	OrderID       string
	CustomerID    string
	CustomerEmail string
	Amount        decimal.Decimal
	Currency      string
	Method        Method
	IPAddress     string
	UserAgent     string
	Status        AttemptStatus
	TransactionID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
