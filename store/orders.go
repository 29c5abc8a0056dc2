package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"checkout-engine/model"
)

const orderColumns = `id, user_id, lines, shipping_address, payment_method,
	total_before_discount, total_saved, shipping_price, tax_price, total,
	coupon_applied, status, is_paid, paid_at, delivered_at, cancelled_at, refunded_at,
	gateway_order_id, gateway_payment_id, payment_details, refund_details,
	version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) InsertOrder(ctx context.Context, o *model.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return err
	}
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}
	if o.Version == 0 {
		o.Version = 1
	}
	p := o.Pricing
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, lines, shipping_address, payment_method,
			total_before_discount, total_saved, shipping_price, tax_price, total,
			coupon_applied, status, is_paid, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, o.ID, o.UserID, string(lines), string(addr), o.PaymentMethod,
		p.TotalBeforeDiscount, p.TotalSaved, p.ShippingPrice, p.TaxPrice, p.Total,
		o.CouponApplied, string(o.Status), o.IsPaid, o.Version, o.CreatedAt, o.UpdatedAt)
	return err
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (s *PostgresStore) FindOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Order, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE gateway_order_id = $1`, gatewayOrderID)
	return scanOrder(row)
}

// UpdateOrder writes only the mutable columns; lines and pricing are never
// rewritten after insert.
func (s *PostgresStore) UpdateOrder(ctx context.Context, o *model.Order) error {
	pd, err := marshalOptional(o.PaymentDetails)
	if err != nil {
		return err
	}
	rd, err := marshalOptional(o.RefundDetails)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE orders SET status=$1, is_paid=$2, paid_at=$3, delivered_at=$4, cancelled_at=$5, refunded_at=$6,
			gateway_order_id=$7, gateway_payment_id=$8, payment_details=$9, refund_details=$10,
			updated_at=$11, version = version + 1
		WHERE id=$12 AND version=$13
	`, string(o.Status), o.IsPaid, nullTime(o.PaidAt), nullTime(o.DeliveredAt), nullTime(o.CancelledAt), nullTime(o.RefundedAt),
		o.GatewayOrderID, o.GatewayPaymentID, pd, rd,
		o.UpdatedAt, o.ID, o.Version)
	if err != nil {
		return err
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return ErrVersionConflict
	}
	o.Version++
	return nil
}

// ListPendingBefore returns ids of orders still awaiting online payment that
// were created before cutoff, oldest first. Cash on delivery orders stay
// pending until delivered and are never listed.
func (s *PostgresStore) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id FROM orders WHERE status = $1 AND payment_method <> $2 AND created_at < $3 ORDER BY created_at LIMIT $4
	`, string(model.StatusPending), model.PaymentCOD, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o                             model.Order
		lines, addr                   []byte
		paymentDetails, refundDetails []byte
		status                        string
		paidAt, deliveredAt           sql.NullTime
		cancelledAt, refundedAt       sql.NullTime
	)
	p := &o.Pricing
	err := row.Scan(&o.ID, &o.UserID, &lines, &addr, &o.PaymentMethod,
		&p.TotalBeforeDiscount, &p.TotalSaved, &p.ShippingPrice, &p.TaxPrice, &p.Total,
		&o.CouponApplied, &status, &o.IsPaid, &paidAt, &deliveredAt, &cancelledAt, &refundedAt,
		&o.GatewayOrderID, &o.GatewayPaymentID, &paymentDetails, &refundDetails,
		&o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if o.Status, err = model.ParseOrderStatus(status); err != nil {
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return nil, fmt.Errorf("order %s lines: %w", o.ID, err)
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("order %s address: %w", o.ID, err)
	}
	if len(paymentDetails) > 0 {
		o.PaymentDetails = &model.PaymentDetails{}
		if err := json.Unmarshal(paymentDetails, o.PaymentDetails); err != nil {
			return nil, fmt.Errorf("order %s payment details: %w", o.ID, err)
		}
	}
	if len(refundDetails) > 0 {
		o.RefundDetails = &model.RefundDetails{}
		if err := json.Unmarshal(refundDetails, o.RefundDetails); err != nil {
			return nil, fmt.Errorf("order %s refund details: %w", o.ID, err)
		}
	}
	o.PaidAt = timePtr(paidAt)
	o.DeliveredAt = timePtr(deliveredAt)
	o.CancelledAt = timePtr(cancelledAt)
	o.RefundedAt = timePtr(refundedAt)
	return &o, nil
}

func marshalOptional[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
