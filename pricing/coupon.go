package pricing

import (
	"context"
	"errors"
	"strings"
	"time"

	"checkout-engine/model"

	"github.com/shopspring/decimal"
)

type CouponSource interface {
	GetCoupon(ctx context.Context, code string) (model.Coupon, error)
}

// Evaluator looks coupons up and evaluates them. Coupons are never consumed,
// so calling it while rendering a cart is as safe as calling it at checkout.
type Evaluator struct {
	Coupons CouponSource
}

func (e *Evaluator) Evaluate(ctx context.Context, code string, now time.Time, subtotal decimal.Decimal) (model.Discount, error) {
	code = strings.TrimSpace(code)
	c, err := e.Coupons.GetCoupon(ctx, code)
	if errors.Is(err, model.ErrNotFound) {
		return model.Discount{}, &model.CouponError{Code: code, Reason: model.CouponNotFound}
	}
	if err != nil {
		return model.Discount{}, err
	}
	return EvaluateCoupon(c, now, subtotal)
}

// EvaluateCoupon depends only on its arguments. Both window bounds are
// inclusive.
func EvaluateCoupon(c model.Coupon, now time.Time, subtotal decimal.Decimal) (model.Discount, error) {
	if now.Before(c.StartDate) {
		return model.Discount{}, &model.CouponError{Code: c.Code, Reason: model.CouponNotYetActive}
	}
	if now.After(c.EndDate) {
		return model.Discount{}, &model.CouponError{Code: c.Code, Reason: model.CouponExpired}
	}
	if c.Value.IsNegative() || subtotal.IsNegative() {
		return model.Discount{}, ErrNegativeAmount
	}
	return model.Discount{
		Code:   c.Code,
		Kind:   c.Kind,
		Value:  c.Value,
		Amount: DiscountAmount(c.Kind, c.Value, subtotal),
	}, nil
}
