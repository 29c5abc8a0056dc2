package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"checkout-engine/model"
	"checkout-engine/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxVersionRetries bounds how often a transition is re-evaluated after
// another writer updated the same order row.
const maxVersionRetries = 5

// Stock is the part of the inventory ledger the lifecycle manager drives.
type Stock interface {
	ReserveLines(ctx context.Context, orderID string, lines []model.Line) ([]model.Reservation, error)
	ReleaseOrder(ctx context.Context, orderID string) error
	CommitOrder(ctx context.Context, orderID string) error
}

// Orders owns the order state machine. Every transition for one order id is
// serialized in-process by a keyed mutex and across processes by the
// version column.
type Orders struct {
	store store.Orders
	stock Stock
	log   *zap.Logger
	now   func() time.Time

	// per-order mutex
	locks sync.Map
}

func NewOrders(st store.Orders, stock Stock, log *zap.Logger) *Orders {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orders{
		store: st,
		stock: stock,
		log:   log.Named("orders"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Orders) lockFor(orderID string) func() {
	v, _ := s.locks.LoadOrStore(orderID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateOrderInput is everything an order is built from. Lines and Pricing
// must already be snapshotted and priced.
type CreateOrderInput struct {
	UserID          string
	Lines           []model.Line
	ShippingAddress model.Address
	PaymentMethod   string
	Pricing         model.PriceBreakdown
	CouponApplied   string
}

// Create reserves stock for every line and persists a pending order. Either
// all lines are reserved and the order exists, or nothing is left behind.
func (s *Orders) Create(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if len(in.Lines) == 0 {
		return nil, model.ErrEmptyCart
	}
	now := s.now()
	o := &model.Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Lines:           append([]model.Line(nil), in.Lines...),
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		Pricing:         in.Pricing,
		CouponApplied:   in.CouponApplied,
		Status:          model.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	log := s.log.With(zap.String("order_id", o.ID), zap.String("user_id", o.UserID))

	if _, err := s.stock.ReserveLines(ctx, o.ID, o.Lines); err != nil {
		if errors.Is(err, model.ErrInsufficientStock) {
			log.Info("checkout rejected, insufficient stock", zap.Error(err))
		}
		return nil, err
	}
	if err := s.store.InsertOrder(ctx, o); err != nil {
		log.Error("insert order failed, releasing reservations", zap.Error(err))
		if rerr := s.stock.ReleaseOrder(ctx, o.ID); rerr != nil {
			log.Error("release after failed insert", zap.Error(rerr))
			return nil, errors.Join(fmt.Errorf("insert order: %w", err), rerr)
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}
	log.Info("order created", zap.String("total", o.Pricing.Total.StringFixed(2)))
	return o.Clone(), nil
}

func (s *Orders) Get(ctx context.Context, orderID string) (*model.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *Orders) FindByGatewayOrder(ctx context.Context, gatewayOrderID string) (*model.Order, error) {
	return s.store.FindOrderByGatewayOrderID(ctx, gatewayOrderID)
}

// AttachGatewayOrder records the gateway handle on a pending order.
func (s *Orders) AttachGatewayOrder(ctx context.Context, orderID, gatewayOrderID string) (*model.Order, error) {
	return s.transition(ctx, orderID, "attach gateway order", func(o *model.Order) (bool, error) {
		if o.Status != model.StatusPending {
			return false, invalid(o, "attach gateway order")
		}
		if o.GatewayOrderID == gatewayOrderID {
			return false, nil
		}
		if o.GatewayOrderID != "" {
			return false, &model.GatewayMismatchError{OrderID: o.ID, Field: "gateway_order_id", Stored: o.GatewayOrderID, Received: gatewayOrderID}
		}
		o.GatewayOrderID = gatewayOrderID
		return true, nil
	})
}

// ConfirmPayment moves a pending order to paid. A repeat delivery carrying
// the payment id already stored is accepted without changing anything.
func (s *Orders) ConfirmPayment(ctx context.Context, orderID, gatewayOrderID, gatewayPaymentID string, details model.PaymentDetails) (*model.Order, error) {
	o, err := s.transition(ctx, orderID, "confirm payment", func(o *model.Order) (bool, error) {
		switch o.Status {
		case model.StatusPaid, model.StatusDelivered:
			if o.GatewayPaymentID == gatewayPaymentID {
				return false, nil
			}
			return false, &model.GatewayMismatchError{OrderID: o.ID, Field: "payment_id", Stored: o.GatewayPaymentID, Received: gatewayPaymentID}
		case model.StatusPending:
		default:
			return false, invalid(o, "confirm payment")
		}
		if o.GatewayOrderID != "" && o.GatewayOrderID != gatewayOrderID {
			return false, &model.GatewayMismatchError{OrderID: o.ID, Field: "gateway_order_id", Stored: o.GatewayOrderID, Received: gatewayOrderID}
		}
		now := s.now()
		d := details
		o.Status = model.StatusPaid
		o.IsPaid = true
		o.PaidAt = &now
		o.GatewayOrderID = gatewayOrderID
		o.GatewayPaymentID = gatewayPaymentID
		o.PaymentDetails = &d
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.stock.CommitOrder(ctx, o.ID); err != nil {
		// the order is paid either way; a retried delivery commits again
		s.log.Error("commit reservations failed", zap.String("order_id", o.ID), zap.Error(err))
		return o, fmt.Errorf("commit reservations: %w", err)
	}
	return o, nil
}

// MarkDelivered moves a paid order to delivered. A cash on delivery order
// goes there straight from pending: handing it over is also when it is paid,
// so its reservations are committed here.
func (s *Orders) MarkDelivered(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := s.transition(ctx, orderID, "mark delivered", func(o *model.Order) (bool, error) {
		now := s.now()
		switch {
		case o.Status == model.StatusPaid:
		case o.Status == model.StatusPending && o.PaymentMethod == model.PaymentCOD:
			o.IsPaid = true
			o.PaidAt = &now
			o.PaymentDetails = &model.PaymentDetails{Method: model.PaymentCOD, Amount: o.Pricing.Total}
		default:
			return false, invalid(o, "mark delivered")
		}
		o.Status = model.StatusDelivered
		o.DeliveredAt = &now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod == model.PaymentCOD {
		if err := s.stock.CommitOrder(ctx, o.ID); err != nil {
			s.log.Error("commit reservations failed", zap.String("order_id", o.ID), zap.Error(err))
			return o, fmt.Errorf("commit reservations: %w", err)
		}
	}
	return o, nil
}

// Refund moves a paid or delivered order to refunded and returns its stock.
// Repeating a refund with the same refund id is a no-op apart from retrying
// the stock release.
func (s *Orders) Refund(ctx context.Context, orderID string, details model.RefundDetails) (*model.Order, error) {
	o, err := s.transition(ctx, orderID, "refund", func(o *model.Order) (bool, error) {
		if o.Status == model.StatusRefunded && o.RefundDetails != nil && o.RefundDetails.RefundID == details.RefundID {
			return false, nil
		}
		if !o.Status.Paid() {
			return false, invalid(o, "refund")
		}
		now := s.now()
		d := details
		o.Status = model.StatusRefunded
		o.RefundedAt = &now
		o.RefundDetails = &d
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return o, s.release(ctx, o)
}

// Cancel moves a pending order to cancelled and returns its stock.
// Cancelling a cancelled order is a no-op apart from retrying the release.
func (s *Orders) Cancel(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := s.transition(ctx, orderID, "cancel", func(o *model.Order) (bool, error) {
		switch o.Status {
		case model.StatusCancelled:
			return false, nil
		case model.StatusPending:
		default:
			return false, invalid(o, "cancel")
		}
		now := s.now()
		o.Status = model.StatusCancelled
		o.CancelledAt = &now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return o, s.release(ctx, o)
}

func (s *Orders) release(ctx context.Context, o *model.Order) error {
	if err := s.stock.ReleaseOrder(ctx, o.ID); err != nil {
		s.log.Error("release reservations failed",
			zap.String("order_id", o.ID),
			zap.String("status", string(o.Status)),
			zap.Error(err))
		return fmt.Errorf("release reservations: %w", err)
	}
	return nil
}

func invalid(o *model.Order, attempted string) error {
	return &model.InvalidTransitionError{OrderID: o.ID, From: o.Status, Attempted: attempted}
}

// transition loads the order, lets apply decide and mutate it, and writes it
// back under the version check. apply returning false means nothing to
// write. On a version conflict the order is reloaded and apply runs again.
func (s *Orders) transition(ctx context.Context, orderID, attempted string, apply func(o *model.Order) (bool, error)) (*model.Order, error) {
	unlock := s.lockFor(orderID)
	defer unlock()

	log := s.log.With(zap.String("order_id", orderID), zap.String("op", attempted))
	for attempt := 1; attempt <= maxVersionRetries; attempt++ {
		o, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		from := o.Status
		changed, err := apply(o)
		if err != nil {
			var ite *model.InvalidTransitionError
			var gme *model.GatewayMismatchError
			switch {
			case errors.As(err, &ite):
				log.Warn("invalid order transition", zap.String("from", string(ite.From)))
			case errors.As(err, &gme):
				log.Error("gateway identifiers rejected", zap.String("field", gme.Field),
					zap.String("stored", gme.Stored), zap.String("received", gme.Received))
			}
			return nil, err
		}
		if !changed {
			log.Debug("transition already applied", zap.String("status", string(o.Status)))
			return o, nil
		}
		o.UpdatedAt = s.now()
		err = s.store.UpdateOrder(ctx, o)
		if errors.Is(err, store.ErrVersionConflict) {
			log.Debug("version conflict, retrying", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", attempted, orderID, err)
		}
		log.Info("order transitioned", zap.String("from", string(from)), zap.String("to", string(o.Status)))
		return o, nil
	}
	return nil, fmt.Errorf("%s %s: %w after %d attempts", attempted, orderID, store.ErrVersionConflict, maxVersionRetries)
}
