package store

import (
	"context"

	"checkout-engine/model"
)

func (s *PostgresStore) GetCoupon(ctx context.Context, code string) (model.Coupon, error) {
	var c model.Coupon
	var kind string
	err := s.DB.QueryRowContext(ctx,
		`SELECT code, start_date, end_date, kind, value FROM coupons WHERE code = $1`, code,
	).Scan(&c.Code, &c.StartDate, &c.EndDate, &kind, &c.Value)
	if err != nil {
		return model.Coupon{}, notFound(err)
	}
	c.Kind = model.DiscountKind(kind)
	return c, nil
}

func (s *PostgresStore) PutCoupon(ctx context.Context, c model.Coupon) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO coupons (code, start_date, end_date, kind, value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code)
		DO UPDATE SET start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
			kind = EXCLUDED.kind, value = EXCLUDED.value
	`, c.Code, c.StartDate, c.EndDate, string(c.Kind), c.Value)
	return err
}
