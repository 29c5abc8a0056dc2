package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-engine/model"
)

// GetVariant returns current counters for a product size.
func (s *PostgresStore) GetVariant(ctx context.Context, productID, size string) (model.Variant, error) {
	var v model.Variant
	err := s.DB.QueryRowContext(ctx,
		`SELECT product_id, size, name, price, qty, sold FROM product_variants WHERE product_id=$1 AND size=$2`,
		productID, size,
	).Scan(&v.ProductID, &v.Size, &v.Name, &v.Price, &v.Qty, &v.Sold)
	if err != nil {
		return model.Variant{}, notFound(err)
	}
	return v, nil
}

// SetStock sets the absolute available stock for a variant (admin operation).
// Sold is left untouched.
func (s *PostgresStore) SetStock(ctx context.Context, v model.Variant) error {
	if v.Qty < 0 {
		return errors.New("stock cannot be negative")
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO product_variants (product_id, size, name, price, qty)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, size)
		DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, qty = EXCLUDED.qty
	`, v.ProductID, v.Size, v.Name, v.Price, v.Qty)
	return err
}

// Reserve takes r.Quantity units from the variant and records the
// reservation in the same transaction. The decrement only applies when
// enough stock is left, so the row lock taken by UPDATE serializes
// concurrent checkouts for the same variant.
func (s *PostgresStore) Reserve(ctx context.Context, r model.Reservation) error {
	if r.Quantity <= 0 {
		return errors.New("quantity must be > 0")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE product_variants SET qty = qty - $1, sold = sold + $1
			WHERE product_id = $2 AND size = $3 AND qty >= $1
		`, r.Quantity, r.ProductID, r.Size)
		if err != nil {
			return err
		}
		if ra, _ := res.RowsAffected(); ra == 0 {
			var available int
			err := tx.QueryRowContext(ctx,
				`SELECT qty FROM product_variants WHERE product_id = $1 AND size = $2`,
				r.ProductID, r.Size,
			).Scan(&available)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return &ShortStockError{Available: available}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_reservations (id, order_id, product_id, size, quantity, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		`, r.ID, r.OrderID, r.ProductID, r.Size, r.Quantity, string(model.ReservationReserved), r.CreatedAt)
		return err
	})
}

// ReleaseReservation gives the reserved units back. Releasing twice is a
// no-op that reports false.
func (s *PostgresStore) ReleaseReservation(ctx context.Context, reservationID string) (bool, error) {
	released := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var productID, size, status string
		var qty int
		err := tx.QueryRowContext(ctx, `
			SELECT product_id, size, quantity, status FROM stock_reservations WHERE id = $1 FOR UPDATE
		`, reservationID).Scan(&productID, &size, &qty, &status)
		if err != nil {
			return notFound(err)
		}
		if model.ReservationStatus(status) == model.ReservationReleased {
			return nil
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE product_variants SET qty = qty + $1, sold = sold - $1
			WHERE product_id = $2 AND size = $3
		`, qty, productID, size)
		if err != nil {
			return err
		}
		if ra, _ := res.RowsAffected(); ra == 0 {
			return fmt.Errorf("variant %s/%s: %w", productID, size, model.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE stock_reservations SET status = $1, updated_at = now() WHERE id = $2`,
			string(model.ReservationReleased), reservationID,
		); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}

// CommitReservation marks a reservation as belonging to a paid order.
func (s *PostgresStore) CommitReservation(ctx context.Context, reservationID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE stock_reservations SET status = $1, updated_at = now() WHERE id = $2 AND status = $3
	`, string(model.ReservationCommitted), reservationID, string(model.ReservationReserved))
	if err != nil {
		return false, err
	}
	ra, _ := res.RowsAffected()
	return ra > 0, nil
}

func (s *PostgresStore) ListReservations(ctx context.Context, orderID string) ([]model.Reservation, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, order_id, product_id, size, quantity, status, created_at, updated_at
		FROM stock_reservations WHERE order_id = $1 ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		var r model.Reservation
		var status string
		if err := rows.Scan(&r.ID, &r.OrderID, &r.ProductID, &r.Size, &r.Quantity, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = model.ReservationStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
