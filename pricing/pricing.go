// Package pricing computes order totals and evaluates coupons. Everything
// here is deterministic; money is decimal.Decimal rounded to two places.
package pricing

import (
	"errors"

	"checkout-engine/model"

	"github.com/shopspring/decimal"
)

var ErrNegativeAmount = errors.New("negative amount")

var hundred = decimal.NewFromInt(100)

// ShippingRule charges FlatRate unless the discounted subtotal reaches
// FreeAbove. A zero FreeAbove disables free shipping.
type ShippingRule struct {
	FlatRate  decimal.Decimal
	FreeAbove decimal.Decimal
}

// TaxRule applies Rate (a fraction, 0.18 for 18%) to the discounted subtotal.
type TaxRule struct {
	Rate decimal.Decimal
}

func round(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Price derives the full breakdown for lines with an optional discount.
func Price(lines []model.Line, discount model.Discount, shipping ShippingRule, tax TaxRule) (model.PriceBreakdown, error) {
	if discount.Value.IsNegative() || shipping.FlatRate.IsNegative() || shipping.FreeAbove.IsNegative() || tax.Rate.IsNegative() {
		return model.PriceBreakdown{}, ErrNegativeAmount
	}

	before, err := Subtotal(lines)
	if err != nil {
		return model.PriceBreakdown{}, err
	}

	saved := DiscountAmount(discount.Kind, discount.Value, before)
	discounted := before.Sub(saved)

	ship := round(shipping.FlatRate)
	if shipping.FreeAbove.IsPositive() && discounted.GreaterThanOrEqual(shipping.FreeAbove) {
		ship = decimal.Zero
	}
	taxPrice := round(discounted.Mul(tax.Rate))

	return model.PriceBreakdown{
		TotalBeforeDiscount: before,
		TotalSaved:          saved,
		ShippingPrice:       ship,
		TaxPrice:            taxPrice,
		Total:               before.Sub(saved).Add(ship).Add(taxPrice),
	}, nil
}

// Subtotal sums quantity times unit price over lines, rounded.
func Subtotal(lines []model.Line) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, l := range lines {
		if l.Quantity < 0 || l.UnitPrice.IsNegative() {
			return decimal.Zero, ErrNegativeAmount
		}
		sum = sum.Add(l.Subtotal())
	}
	return round(sum), nil
}

// DiscountAmount is the rounded amount a discount takes off subtotal,
// never more than subtotal itself.
func DiscountAmount(kind model.DiscountKind, value, subtotal decimal.Decimal) decimal.Decimal {
	var amt decimal.Decimal
	switch kind {
	case model.DiscountPercent:
		amt = subtotal.Mul(value).Div(hundred)
	case model.DiscountFixed:
		amt = value
	default:
		return decimal.Zero
	}
	amt = round(amt)
	if amt.GreaterThan(subtotal) {
		return subtotal
	}
	if amt.IsNegative() {
		return decimal.Zero
	}
	return amt
}
