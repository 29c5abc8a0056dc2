package service

import (
	"context"

	"checkout-engine/model"

	"github.com/shopspring/decimal"
)

// ServiceInterface is what the HTTP layer needs from the engine.
type ServiceInterface interface {
	AddToCart(ctx context.Context, userID string, req CartLineRequest) (CartView, error)
	RemoveFromCart(ctx context.Context, userID string, req CartLineRequest) (CartView, error)
	GetCart(ctx context.Context, userID string) (CartView, error)
	EvaluateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (model.Discount, error)
	Checkout(ctx context.Context, req CheckoutRequest) (*model.Order, error)
	SetStock(ctx context.Context, v model.Variant) error

	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*model.Order, error)
	MarkDelivered(ctx context.Context, orderID string) (*model.Order, error)
}

type CartLineRequest struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Color     string `json:"color,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
}

type CartView struct {
	UserID   string          `json:"user_id"`
	Lines    []model.Line    `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type CheckoutRequest struct {
	UserID          string        `json:"user_id"`
	ShippingAddress model.Address `json:"shipping_address"`
	PaymentMethod   string        `json:"payment_method"`
	CouponCode      string        `json:"coupon_code,omitempty"`
}

const (
	PaymentRazorpay = "razorpay"
	PaymentCOD      = model.PaymentCOD
)

// Config holds the pricing rules checkout runs with.
type Config struct {
	Shipping ShippingConfig
	TaxRate  decimal.Decimal
	Currency string
}

type ShippingConfig struct {
	FlatRate  decimal.Decimal
	FreeAbove decimal.Decimal
}
