package coordinator

import (
	"context"
	"fmt"

	invdomain "github.com/jcmexdev/storefront-integrity/internal/inventory-service/domain"
	orderdomain "github.com/jcmexdev/storefront-integrity/internal/order-service/domain"
)

// Ledger is the stock side of a status transition.
type Ledger interface {
	Reserve(ctx context.Context, item invdomain.StockItem) error
	Release(ctx context.Context, item invdomain.StockItem) error
}

// StatusWriter persists an order status only if it still equals from.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, orderID string, from, to orderdomain.OrderStatus) error
}

// --- ReserveStockStep ---

type ReserveStockStep struct {
	ledger Ledger
	item   invdomain.StockItem
}

func NewReserveStockStep(ledger Ledger, item invdomain.StockItem) *ReserveStockStep {
	return &ReserveStockStep{ledger: ledger, item: item}
}

func (s *ReserveStockStep) Name() string { return "Reserve_Stock_" + itemKey(s.item) }

func (s *ReserveStockStep) Execute(ctx context.Context) error {
	if err := s.ledger.Reserve(ctx, s.item); err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	return nil
}

func (s *ReserveStockStep) Compensate(ctx context.Context) error {
	return s.ledger.Release(ctx, s.item)
}

// --- ReleaseStockStep ---

type ReleaseStockStep struct {
	ledger Ledger
	item   invdomain.StockItem
}

func NewReleaseStockStep(ledger Ledger, item invdomain.StockItem) *ReleaseStockStep {
	return &ReleaseStockStep{ledger: ledger, item: item}
}

func (s *ReleaseStockStep) Name() string { return "Release_Stock_" + itemKey(s.item) }

func (s *ReleaseStockStep) Execute(ctx context.Context) error {
	if err := s.ledger.Release(ctx, s.item); err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return nil
}

// Compensate takes the released units back. It can fail if another order
// reserved them in the meantime; the orchestrator logs that as critical.
func (s *ReleaseStockStep) Compensate(ctx context.Context) error {
	return s.ledger.Reserve(ctx, s.item)
}

// --- PersistStatusStep ---

type PersistStatusStep struct {
	writer  StatusWriter
	orderID string
	from    orderdomain.OrderStatus
	to      orderdomain.OrderStatus
}

func NewPersistStatusStep(writer StatusWriter, orderID string, from, to orderdomain.OrderStatus) *PersistStatusStep {
	return &PersistStatusStep{writer: writer, orderID: orderID, from: from, to: to}
}

func (s *PersistStatusStep) Name() string { return "Persist_Order_Status" }

func (s *PersistStatusStep) Execute(ctx context.Context) error {
	if err := s.writer.UpdateStatus(ctx, s.orderID, s.from, s.to); err != nil {
		return fmt.Errorf("persist status %s -> %s: %w", s.from, s.to, err)
	}
	return nil
}

func (s *PersistStatusStep) Compensate(ctx context.Context) error {
	// Last step: nothing runs after it that could fail.
	return nil
}

func itemKey(item invdomain.StockItem) string {
	if item.HasVariant() {
		return "variant_" + item.VariantID
	}
	return "product_" + item.ProductID
}
