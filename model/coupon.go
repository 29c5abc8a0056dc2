package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountKind string

const (
	// DiscountPercent values are percentage points: 10 means 10%.
	DiscountPercent DiscountKind = "percent"
	DiscountFixed   DiscountKind = "fixed"
)

type Coupon struct {
	Code      string          `json:"code"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	Kind      DiscountKind    `json:"kind"`
	Value     decimal.Decimal `json:"value"`
}

// Discount is the outcome of evaluating a coupon against a subtotal.
// The zero value means no discount.
type Discount struct {
	Code   string          `json:"code,omitempty"`
	Kind   DiscountKind    `json:"kind,omitempty"`
	Value  decimal.Decimal `json:"value"`
	Amount decimal.Decimal `json:"amount"`
}

// PriceBreakdown always satisfies
// Total = TotalBeforeDiscount - TotalSaved + ShippingPrice + TaxPrice.
type PriceBreakdown struct {
	TotalBeforeDiscount decimal.Decimal `json:"total_before_discount"`
	TotalSaved          decimal.Decimal `json:"total_saved"`
	ShippingPrice       decimal.Decimal `json:"shipping_price"`
	TaxPrice            decimal.Decimal `json:"tax_price"`
	Total               decimal.Decimal `json:"total"`
}
