package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Variant is a (product, size) pair with its own stock counters.
type Variant struct {
	ProductID string          `json:"product_id"`
	Size      string          `json:"size"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
	Sold      int             `json:"sold"`
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation records stock taken from one variant on behalf of one order,
// so that cancellation and refund reverse exactly what was taken.
type Reservation struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id"`
	ProductID string            `json:"product_id"`
	Size      string            `json:"size"`
	Quantity  int               `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
