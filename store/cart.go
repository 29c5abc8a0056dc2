package store

import (
	"context"
	"errors"

	"checkout-engine/model"
)

// AddCartLine inserts a denormalized line or adds to the quantity of the
// same product/size/color already in the cart. The stored name and price
// stay as they were when the line was first added.
func (s *PostgresStore) AddCartLine(ctx context.Context, userID string, l model.Line) error {
	if l.Quantity <= 0 {
		return errors.New("quantity must be > 0")
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, size, color, name, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, product_id, size, color)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, userID, l.ProductID, l.Size, l.Color, l.Name, l.UnitPrice, l.Quantity)
	return err
}

func (s *PostgresStore) RemoveCartLine(ctx context.Context, userID, productID, size, color string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id=$1 AND product_id=$2 AND size=$3 AND color=$4`,
		userID, productID, size, color)
	if err != nil {
		return err
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetCart(ctx context.Context, userID string) ([]model.Line, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT product_id, name, size, color, quantity, unit_price
		FROM cart_items WHERE user_id=$1 ORDER BY added_at, product_id, size, color
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Line{}
	for rows.Next() {
		var l model.Line
		if err := rows.Scan(&l.ProductID, &l.Name, &l.Size, &l.Color, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ClearCart(ctx context.Context, userID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}
