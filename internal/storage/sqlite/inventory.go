package sqlite

import (
	"context"
	"fmt"
)

func (s *Store) CreateProduct(ctx context.Context, id, name string, quantity int) error {
	const q = `INSERT INTO products (id, name, inventory_quantity) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, id, name, quantity); err != nil {
		return fmt.Errorf("sqlite: insert product %s: %w", id, err)
	}
	return nil
}

func (s *Store) CreateVariant(ctx context.Context, id, productID, sku string, quantity int) error {
	const q = `INSERT INTO variants (id, product_id, sku, inventory_quantity) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, id, productID, sku, quantity); err != nil {
		return fmt.Errorf("sqlite: insert variant %s: %w", id, err)
	}
	return nil
}

// DecrementVariant is the reservation primitive: the guard and the write are
// one statement, so two concurrent reservations cannot both pass the guard.
func (s *Store) DecrementVariant(ctx context.Context, variantID string, qty int) (bool, error) {
	const q = `
		UPDATE variants
		SET    inventory_quantity = inventory_quantity - ?
		WHERE  id = ? AND inventory_quantity >= ?`
	return s.execOne(ctx, q, qty, variantID, qty)
}

func (s *Store) IncrementVariant(ctx context.Context, variantID string, qty int) (bool, error) {
	const q = `UPDATE variants SET inventory_quantity = inventory_quantity + ? WHERE id = ?`
	return s.execOne(ctx, q, qty, variantID)
}

func (s *Store) DecrementProduct(ctx context.Context, productID string, qty int) (bool, error) {
	const q = `
		UPDATE products
		SET    inventory_quantity = inventory_quantity - ?
		WHERE  id = ? AND inventory_quantity >= ?`
	return s.execOne(ctx, q, qty, productID, qty)
}

func (s *Store) IncrementProduct(ctx context.Context, productID string, qty int) (bool, error) {
	const q = `UPDATE products SET inventory_quantity = inventory_quantity + ? WHERE id = ?`
	return s.execOne(ctx, q, qty, productID)
}

// AdjustProduct moves the product aggregate by delta, flooring at zero.
func (s *Store) AdjustProduct(ctx context.Context, productID string, delta int) error {
	const q = `UPDATE products SET inventory_quantity = MAX(inventory_quantity + ?, 0) WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, delta, productID); err != nil {
		return fmt.Errorf("sqlite: adjust product %s: %w", productID, err)
	}
	return nil
}

// ReconcileProducts rewrites each product aggregate that disagrees with the
// sum of its variants. Products without variants are left alone.
func (s *Store) ReconcileProducts(ctx context.Context) (int, error) {
	const q = `
		UPDATE products
		SET    inventory_quantity = (
		           SELECT SUM(v.inventory_quantity) FROM variants v WHERE v.product_id = products.id)
		WHERE  EXISTS (SELECT 1 FROM variants v WHERE v.product_id = products.id)
		  AND  inventory_quantity <> (
		           SELECT SUM(v.inventory_quantity) FROM variants v WHERE v.product_id = products.id)`

	res, err := s.db.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("sqlite: reconcile products: %w", err)
	}
	n, err := affected(res)
	return int(n), err
}

func (s *Store) VariantExists(ctx context.Context, variantID string) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM variants WHERE id = ?`, variantID)
}

func (s *Store) ProductExists(ctx context.Context, productID string) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM products WHERE id = ?`, productID)
}

func (s *Store) VariantQuantity(ctx context.Context, variantID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT inventory_quantity FROM variants WHERE id = ?`, variantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: variant %s quantity: %w", variantID, err)
	}
	return n, nil
}

func (s *Store) ProductQuantity(ctx context.Context, productID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT inventory_quantity FROM products WHERE id = ?`, productID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: product %s quantity: %w", productID, err)
	}
	return n, nil
}

func (s *Store) execOne(ctx context.Context, q string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := affected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) exists(ctx context.Context, q string, args ...any) (bool, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: exists: %w", err)
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}
