package inventoryservice_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inventoryservice "github.com/jcmexdev/storefront-integrity/internal/inventory-service"
	"github.com/jcmexdev/storefront-integrity/internal/inventory-service/domain"
	"github.com/jcmexdev/storefront-integrity/internal/storage/sqlite"
)

func newLedger(t *testing.T) (*inventoryservice.Ledger, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.CreateProduct(ctx, "p1", "shirt", 5))
	require.NoError(t, store.CreateVariant(ctx, "v1", "p1", "S", 5))
	require.NoError(t, store.CreateProduct(ctx, "p2", "poster", 4))
	return inventoryservice.NewLedger(store), store
}

func quantities(t *testing.T, store *sqlite.Store) (variant, product int) {
	t.Helper()
	ctx := context.Background()
	variant, err := store.VariantQuantity(ctx, "v1")
	require.NoError(t, err)
	product, err = store.ProductQuantity(ctx, "p1")
	require.NoError(t, err)
	return variant, product
}

func TestReleaseThenReserveRoundTrip(t *testing.T) {
	ctx := context.Background()
	ledger, store := newLedger(t)
	item := domain.StockItem{OrderID: "o1", VariantID: "v1", ProductID: "p1", Quantity: 2}

	require.NoError(t, ledger.Release(ctx, item))
	v, p := quantities(t, store)
	assert.Equal(t, 7, v)
	assert.Equal(t, 7, p)

	require.NoError(t, ledger.Reserve(ctx, item))
	v, p = quantities(t, store)
	assert.Equal(t, 5, v)
	assert.Equal(t, 5, p)

	require.NoError(t, ledger.Reserve(ctx, item))
	require.NoError(t, ledger.Release(ctx, item))
	v, _ = quantities(t, store)
	assert.Equal(t, 5, v)
}

func TestReserveInsufficientLeavesStockUnchanged(t *testing.T) {
	ctx := context.Background()
	ledger, store := newLedger(t)

	err := ledger.Reserve(ctx, domain.StockItem{VariantID: "v1", ProductID: "p1", Quantity: 6})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	var shortage *domain.InsufficientStockError
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, "v1", shortage.VariantID)
	assert.Equal(t, 6, shortage.Requested)

	v, p := quantities(t, store)
	assert.Equal(t, 5, v)
	assert.Equal(t, 5, p)
}

func TestReserveUnknownVariant(t *testing.T) {
	ledger, _ := newLedger(t)

	err := ledger.Reserve(context.Background(), domain.StockItem{VariantID: "ghost", ProductID: "p1", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrUnknownStock)
	assert.NotErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestProductOnlyItemIsGuarded(t *testing.T) {
	ctx := context.Background()
	ledger, store := newLedger(t)
	item := domain.StockItem{ProductID: "p2", Quantity: 3}

	require.NoError(t, ledger.Reserve(ctx, item))
	assert.ErrorIs(t, ledger.Reserve(ctx, item), domain.ErrInsufficientStock)

	qty, err := store.ProductQuantity(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 1, qty)
}

func TestAggregateDriftIsReconciled(t *testing.T) {
	ctx := context.Background()
	ledger, store := newLedger(t)

	// Drive the aggregate to its floor while the variant still has stock.
	require.NoError(t, store.AdjustProduct(ctx, "p1", -5))
	require.NoError(t, ledger.Reserve(ctx, domain.StockItem{VariantID: "v1", ProductID: "p1", Quantity: 2}))

	v, p := quantities(t, store)
	assert.Equal(t, 3, v)
	assert.Equal(t, 0, p, "aggregate is floored, not negative")

	n, err := ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, p = quantities(t, store)
	assert.Equal(t, 3, p)
}
