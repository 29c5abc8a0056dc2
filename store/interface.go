package store

import (
	"context"
	"errors"
	"time"

	"checkout-engine/model"
)

// ErrVersionConflict is returned by UpdateOrder when the row changed since it
// was read.
var ErrVersionConflict = errors.New("order version conflict")

// ShortStockError reports the stock that was available when a reservation
// could not be taken.
type ShortStockError struct {
	Available int
}

func (e *ShortStockError) Error() string { return model.ErrInsufficientStock.Error() }

func (e *ShortStockError) Is(target error) bool { return target == model.ErrInsufficientStock }

// Catalog is the read side used to build cart lines, plus the admin stock
// setter.
type Catalog interface {
	GetVariant(ctx context.Context, productID, size string) (model.Variant, error)
	SetStock(ctx context.Context, v model.Variant) error
}

// Ledger holds variant counters and reservation records. Every method is
// atomic on its own.
type Ledger interface {
	Reserve(ctx context.Context, r model.Reservation) error
	// ReleaseReservation reports false when the reservation was already released.
	ReleaseReservation(ctx context.Context, reservationID string) (bool, error)
	// CommitReservation reports false when the reservation was not in the reserved state.
	CommitReservation(ctx context.Context, reservationID string) (bool, error)
	ListReservations(ctx context.Context, orderID string) ([]model.Reservation, error)
}

type Orders interface {
	InsertOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	FindOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.Order, error)
	// UpdateOrder writes o if the stored version still equals o.Version and
	// bumps o.Version on success.
	UpdateOrder(ctx context.Context, o *model.Order) error
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type Carts interface {
	AddCartLine(ctx context.Context, userID string, l model.Line) error
	RemoveCartLine(ctx context.Context, userID, productID, size, color string) error
	GetCart(ctx context.Context, userID string) ([]model.Line, error)
	ClearCart(ctx context.Context, userID string) error
}

type Coupons interface {
	GetCoupon(ctx context.Context, code string) (model.Coupon, error)
	PutCoupon(ctx context.Context, c model.Coupon) error
}

type Store interface {
	Catalog
	Ledger
	Orders
	Carts
	Coupons

	Close() error
}
