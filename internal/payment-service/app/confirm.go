package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-integrity/internal/audit"
	orderdomain "github.com/jcmexdev/storefront-integrity/internal/order-service/domain"
	"github.com/jcmexdev/storefront-integrity/internal/payment-service/domain"
)

type Confirmation struct {
	TransactionID string
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
}

// ConfirmPayment asks the gateway whether a session was paid and, if so,
// marks the order paid. The order flips at most once; a second confirmation
// of the same order reports ErrAlreadyPaid.
func (g *Gate) ConfirmPayment(ctx context.Context, transactionID string) (*Confirmation, error) {
	ctx, span := tracer.Start(ctx, "payment.confirm")
	defer span.End()

	attempt, err := g.Attempts.AttemptByTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	v, err := g.Gateway.VerifyPayment(ctx, transactionID)
	if err != nil {
		g.record(ctx, confirmFailed(attempt, "gateway verification failed: "+err.Error(), audit.SeverityMedium))
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if !v.Paid {
		g.settle(ctx, attempt, domain.AttemptFailed, transactionID)
		g.record(ctx, confirmFailed(attempt, "gateway reports the session unpaid", audit.SeverityMedium))
		return nil, ErrNotConfirmed
	}
	if !v.Amount.IsZero() && !v.Amount.Equal(attempt.Amount) {
		g.settle(ctx, attempt, domain.AttemptFailed, transactionID)
		g.record(ctx, confirmFailed(attempt,
			fmt.Sprintf("gateway amount %s does not match order amount %s", v.Amount, attempt.Amount),
			audit.SeverityHigh))
		return nil, ErrNotConfirmed
	}

	if err := g.Orders.MarkPaid(ctx, attempt.OrderID); err != nil {
		if errors.Is(err, orderdomain.ErrAlreadyPaid) {
			g.record(ctx, audit.Event{
				Type:        audit.EventDuplicateAttempt,
				Severity:    audit.SeverityMedium,
				Description: fmt.Sprintf("confirmation for order %s which is already paid", attempt.OrderID),
				Details:     map[string]any{"order_id": attempt.OrderID, "transaction_id": transactionID},
				ActorID:     attempt.CustomerEmail,
				IPAddress:   attempt.IPAddress,
			})
		}
		return nil, err
	}
	g.settle(ctx, attempt, domain.AttemptConfirmed, transactionID)

	g.record(ctx, audit.Event{
		Type:        audit.EventPaymentConfirmed,
		Severity:    audit.SeverityLow,
		Description: fmt.Sprintf("payment %s confirmed for order %s", transactionID, attempt.OrderID),
		Details: map[string]any{
			"order_id":       attempt.OrderID,
			"transaction_id": transactionID,
			"amount":         attempt.Amount.String(),
			"method":         attempt.Method,
		},
		ActorID:   attempt.CustomerEmail,
		IPAddress: attempt.IPAddress,
	})

	return &Confirmation{
		TransactionID: transactionID,
		OrderID:       attempt.OrderID,
		Amount:        attempt.Amount,
		Currency:      attempt.Currency,
	}, nil
}

func confirmFailed(a *domain.Attempt, reason string, severity audit.Severity) audit.Event {
	return audit.Event{
		Type:        audit.EventPaymentFailed,
		Severity:    severity,
		Description: reason,
		Details: map[string]any{
			"order_id":       a.OrderID,
			"attempt_id":     a.ID,
			"transaction_id": a.TransactionID,
		},
		ActorID:   a.CustomerEmail,
		IPAddress: a.IPAddress,
	}
}
