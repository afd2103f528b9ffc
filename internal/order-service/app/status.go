package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jcmexdev/storefront-integrity/internal/coordinator"
	"github.com/jcmexdev/storefront-integrity/internal/coordinator/sagalog"
	invdomain "github.com/jcmexdev/storefront-integrity/internal/inventory-service/domain"
	"github.com/jcmexdev/storefront-integrity/internal/order-service/domain"
)

// OrderRepository is what the status updater needs from the store.
type OrderRepository interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error
}

// StatusUpdater applies an order status change together with the stock
// movement it implies.
type StatusUpdater struct {
	orders  OrderRepository
	ledger  coordinator.Ledger
	sagaLog sagalog.Repository // nil-safe
}

func NewStatusUpdater(orders OrderRepository, ledger coordinator.Ledger, sagaLog sagalog.Repository) *StatusUpdater {
	return &StatusUpdater{orders: orders, ledger: ledger, sagaLog: sagaLog}
}

func (u *StatusUpdater) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrOrderNotFound
	}
	return u.orders.GetOrder(ctx, id)
}

// UpdateStatus moves an order to newStatus. A RELEASING -> HOLDING move
// reserves every item first and is rejected whole, with nothing reserved, if
// any item lacks stock. A HOLDING -> RELEASING move returns every item.
func (u *StatusUpdater) UpdateStatus(ctx context.Context, orderID string, newStatus domain.OrderStatus) (*domain.Order, error) {
	newStatus = domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(newStatus))))
	if newStatus == "" {
		return nil, fmt.Errorf("order: empty status: %w", domain.ErrInvalidStatus)
	}

	order, err := u.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	oldStatus := order.Status
	delta := domain.ComputeStockDelta(oldStatus, newStatus)

	steps := u.stockSteps(order, delta)
	steps = append(steps, coordinator.NewPersistStatusStep(u.orders, order.ID, oldStatus, newStatus))

	sagaID := fmt.Sprintf("%s:%s->%s", order.ID, oldStatus, newStatus)
	if err := coordinator.NewOrchestrator(sagaID, steps, u.sagaLog).Start(ctx); err != nil {
		slog.WarnContext(ctx, "order status update rejected",
			"order_id", order.ID, "from", oldStatus, "to", newStatus, "delta", delta, "error", err)
		return nil, classify(err)
	}

	slog.InfoContext(ctx, "order status updated",
		"order_id", order.ID, "from", oldStatus, "to", newStatus, "delta", delta)

	return u.orders.GetOrder(ctx, order.ID)
}

func (u *StatusUpdater) stockSteps(order *domain.Order, delta domain.StockDelta) []coordinator.Step {
	if delta == domain.DeltaNone {
		return nil
	}
	steps := make([]coordinator.Step, 0, len(order.Items))
	for _, it := range order.Items {
		if it.Quantity <= 0 || (it.VariantID == "" && it.ProductID == "") {
			continue
		}
		item := invdomain.StockItem{
			OrderID:   order.ID,
			VariantID: it.VariantID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		}
		if delta == domain.DeltaDecrease {
			steps = append(steps, coordinator.NewReserveStockStep(u.ledger, item))
		} else {
			steps = append(steps, coordinator.NewReleaseStockStep(u.ledger, item))
		}
	}
	return steps
}

// classify keeps the sentinel the HTTP edge maps to a status code.
func classify(err error) error {
	switch {
	case errors.Is(err, invdomain.ErrInsufficientStock),
		errors.Is(err, domain.ErrStatusConflict),
		errors.Is(err, domain.ErrOrderNotFound):
		return err
	case errors.Is(err, invdomain.ErrUnknownStock):
		return fmt.Errorf("order references missing stock record: %w", err)
	default:
		return fmt.Errorf("order: update status: %w", err)
	}
}
