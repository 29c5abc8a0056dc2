package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Line is one cart line as it was when the shopper added it. Name, size,
// color and price are denormalized so that orders never change when the
// catalog does.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Size      string          `json:"size"`
	Color     string          `json:"color,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Subtotal is Quantity * UnitPrice.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// PaymentCOD orders are collected on delivery and never see the gateway.
const PaymentCOD = "cod"

type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// PaymentDetails is what the gateway reported when the payment was captured.
type PaymentDetails struct {
	Method    string          `json:"method,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency,omitempty"`
	Email     string          `json:"email,omitempty"`
	Contact   string          `json:"contact,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

type RefundDetails struct {
	RefundID string          `json:"refund_id"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason,omitempty"`
	Status   string          `json:"status,omitempty"`
}

// Order lines are immutable after creation; only status, payment and
// delivery fields change.
type Order struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	Lines           []Line         `json:"lines"`
	ShippingAddress Address        `json:"shipping_address"`
	PaymentMethod   string         `json:"payment_method"`
	Pricing         PriceBreakdown `json:"pricing"`
	CouponApplied   string         `json:"coupon_applied,omitempty"`
	Status          OrderStatus    `json:"status"`
	IsPaid          bool           `json:"is_paid"`
	PaidAt          *time.Time     `json:"paid_at,omitempty"`
	DeliveredAt     *time.Time     `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time     `json:"cancelled_at,omitempty"`
	RefundedAt      *time.Time     `json:"refunded_at,omitempty"`

	GatewayOrderID   string          `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	PaymentDetails   *PaymentDetails `json:"payment_details,omitempty"`
	RefundDetails    *RefundDetails  `json:"refund_details,omitempty"`

	Version   int       `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with o.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Lines = append([]Line(nil), o.Lines...)
	cp.PaidAt = cloneTime(o.PaidAt)
	cp.DeliveredAt = cloneTime(o.DeliveredAt)
	cp.CancelledAt = cloneTime(o.CancelledAt)
	cp.RefundedAt = cloneTime(o.RefundedAt)
	if o.PaymentDetails != nil {
		pd := *o.PaymentDetails
		cp.PaymentDetails = &pd
	}
	if o.RefundDetails != nil {
		rd := *o.RefundDetails
		cp.RefundDetails = &rd
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
