// Package payment talks to the Razorpay-style gateway: it creates gateway
// orders at checkout and turns signed webhook/callback deliveries into
// order lifecycle calls.
package payment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GatewayOrder is the gateway's handle for collecting one payment.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type Gateway interface {
	CreateOrder(ctx context.Context, receipt string, amount decimal.Decimal, currency string) (GatewayOrder, error)
}

// ToMinorUnits converts 12.34 into 1234.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts 1234 into 12.34.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// MockGateway hands out fake gateway orders for local runs.
type MockGateway struct{}

func (MockGateway) CreateOrder(_ context.Context, receipt string, amount decimal.Decimal, currency string) (GatewayOrder, error) {
	return GatewayOrder{
		ID:       "order_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
		Amount:   ToMinorUnits(amount),
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}
