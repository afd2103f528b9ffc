// Package inventoryservice reserves and releases stock for order items.
//
// Variant counters are the source of truth. Product counters mirror the sum
// of their variants and may drift: they are adjusted best-effort and can be
// rebuilt with Reconcile.
package inventoryservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/storefront-integrity/internal/inventory-service/domain"
)

// StockStore is the persistence port of the ledger. Every method must be a
// single atomic statement against its row.
type StockStore interface {
	// DecrementVariant subtracts qty only if the result stays >= 0. It
	// reports false when the guarded update touched no row.
	DecrementVariant(ctx context.Context, variantID string, qty int) (bool, error)
	IncrementVariant(ctx context.Context, variantID string, qty int) (bool, error)
	DecrementProduct(ctx context.Context, productID string, qty int) (bool, error)
	IncrementProduct(ctx context.Context, productID string, qty int) (bool, error)
	// AdjustProduct adds delta to the product aggregate, flooring at zero.
	AdjustProduct(ctx context.Context, productID string, delta int) error
	VariantExists(ctx context.Context, variantID string) (bool, error)
	ProductExists(ctx context.Context, productID string) (bool, error)
	ReconcileProducts(ctx context.Context) (int, error)
}

type Ledger struct {
	store StockStore
}

func NewLedger(store StockStore) *Ledger {
	return &Ledger{store: store}
}

// Reserve takes item.Quantity units out of stock. It fails with
// domain.ErrInsufficientStock and leaves the counter untouched when the
// counter cannot cover the quantity.
func (l *Ledger) Reserve(ctx context.Context, item domain.StockItem) error {
	if item.Quantity <= 0 {
		return nil
	}

	if !item.HasVariant() {
		ok, err := l.store.DecrementProduct(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("inventory: reserve product %s: %w", item.ProductID, err)
		}
		if !ok {
			return l.missOrShortage(ctx, item)
		}
		slog.InfoContext(ctx, "product stock reserved",
			"order_id", item.OrderID, "product_id", item.ProductID, "quantity", item.Quantity)
		return nil
	}

	ok, err := l.store.DecrementVariant(ctx, item.VariantID, item.Quantity)
	if err != nil {
		return fmt.Errorf("inventory: reserve variant %s: %w", item.VariantID, err)
	}
	if !ok {
		return l.missOrShortage(ctx, item)
	}

	slog.InfoContext(ctx, "variant stock reserved",
		"order_id", item.OrderID, "variant_id", item.VariantID, "quantity", item.Quantity)

	l.adjustAggregate(ctx, item.ProductID, -item.Quantity)
	return nil
}

// Release returns item.Quantity units to stock. There is no upper bound.
func (l *Ledger) Release(ctx context.Context, item domain.StockItem) error {
	if item.Quantity <= 0 {
		return nil
	}

	if !item.HasVariant() {
		ok, err := l.store.IncrementProduct(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("inventory: release product %s: %w", item.ProductID, err)
		}
		if !ok {
			return fmt.Errorf("inventory: release product %s: %w", item.ProductID, domain.ErrUnknownStock)
		}
		return nil
	}

	ok, err := l.store.IncrementVariant(ctx, item.VariantID, item.Quantity)
	if err != nil {
		return fmt.Errorf("inventory: release variant %s: %w", item.VariantID, err)
	}
	if !ok {
		return fmt.Errorf("inventory: release variant %s: %w", item.VariantID, domain.ErrUnknownStock)
	}

	slog.InfoContext(ctx, "variant stock released",
		"order_id", item.OrderID, "variant_id", item.VariantID, "quantity", item.Quantity)

	l.adjustAggregate(ctx, item.ProductID, item.Quantity)
	return nil
}

// Reconcile rebuilds every product aggregate from its variants and returns
// the number of products whose counter was rewritten.
func (l *Ledger) Reconcile(ctx context.Context) (int, error) {
	n, err := l.store.ReconcileProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("inventory: reconcile: %w", err)
	}
	slog.InfoContext(ctx, "product aggregates reconciled", "products", n)
	return n, nil
}

func (l *Ledger) adjustAggregate(ctx context.Context, productID string, delta int) {
	if productID == "" {
		return
	}
	if err := l.store.AdjustProduct(ctx, productID, delta); err != nil {
		slog.WarnContext(ctx, "product aggregate not adjusted",
			"product_id", productID, "delta", delta, "error", err)
	}
}

func (l *Ledger) missOrShortage(ctx context.Context, item domain.StockItem) error {
	var (
		exists bool
		err    error
	)
	if item.HasVariant() {
		exists, err = l.store.VariantExists(ctx, item.VariantID)
	} else {
		exists, err = l.store.ProductExists(ctx, item.ProductID)
	}
	if err != nil {
		return fmt.Errorf("inventory: lookup stock record: %w", err)
	}
	if !exists {
		return fmt.Errorf("inventory: variant %q product %q: %w", item.VariantID, item.ProductID, domain.ErrUnknownStock)
	}

	slog.WarnContext(ctx, "insufficient stock",
		"order_id", item.OrderID, "variant_id", item.VariantID,
		"product_id", item.ProductID, "requested", item.Quantity)

	return &domain.InsufficientStockError{
		VariantID: item.VariantID,
		ProductID: item.ProductID,
		Requested: item.Quantity,
	}
}
