// Package ports lists what the HTTP edge needs from the services behind it.
package ports

import (
	"context"
	"net/http"

	"github.com/jcmexdev/storefront-integrity/internal/audit"
	orderdomain "github.com/jcmexdev/storefront-integrity/internal/order-service/domain"
	paymentapp "github.com/jcmexdev/storefront-integrity/internal/payment-service/app"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/identity"
)

type PaymentGate interface {
	CreatePayment(ctx context.Context, req paymentapp.CreatePaymentRequest) (*paymentapp.PaymentResult, error)
	ConfirmPayment(ctx context.Context, transactionID string) (*paymentapp.Confirmation, error)
}

type OrderService interface {
	GetOrder(ctx context.Context, id string) (*orderdomain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status orderdomain.OrderStatus) (*orderdomain.Order, error)
}

type SecurityEvents interface {
	List(ctx context.Context, f audit.Filter) ([]audit.SecurityEvent, error)
	Resolve(ctx context.Context, id string, status audit.Resolution) error
}

// IdentityResolver returns nil, nil for anonymous requests.
type IdentityResolver interface {
	Resolve(r *http.Request) (*identity.Identity, error)
}
