// Package inventory is the only writer of variant stock counters. Each
// operation is atomic in the store; the ledger adds reservation ids,
// multi-line compensation and logging on top.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-engine/model"
	"checkout-engine/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Ledger struct {
	store store.Ledger
	log   *zap.Logger
	now   func() time.Time
}

func NewLedger(st store.Ledger, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: st, log: log.Named("inventory"), now: func() time.Time { return time.Now().UTC() }}
}

// Reserve takes line.Quantity units of the line's variant for orderID.
// A shortage is returned as *model.InsufficientStockError and is never
// retried here.
func (l *Ledger) Reserve(ctx context.Context, orderID string, line model.Line) (model.Reservation, error) {
	r := model.Reservation{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		ProductID: line.ProductID,
		Size:      line.Size,
		Quantity:  line.Quantity,
		Status:    model.ReservationReserved,
		CreatedAt: l.now(),
	}
	r.UpdatedAt = r.CreatedAt
	if err := l.store.Reserve(ctx, r); err != nil {
		var short *store.ShortStockError
		if errors.As(err, &short) {
			return model.Reservation{}, &model.InsufficientStockError{Lines: []model.Shortage{{
				ProductID: line.ProductID,
				Name:      line.Name,
				Size:      line.Size,
				Requested: line.Quantity,
				Available: short.Available,
			}}}
		}
		return model.Reservation{}, fmt.Errorf("reserve %s/%s: %w", line.ProductID, line.Size, err)
	}
	l.log.Debug("stock reserved",
		zap.String("order_id", orderID),
		zap.String("reservation_id", r.ID),
		zap.String("product_id", r.ProductID),
		zap.String("size", r.Size),
		zap.Int("qty", r.Quantity))
	return r, nil
}

// ReserveLines reserves every line or none. All lines are attempted so that
// a shortage error names each offending line; whatever was taken is
// released before returning an error.
func (l *Ledger) ReserveLines(ctx context.Context, orderID string, lines []model.Line) ([]model.Reservation, error) {
	taken := make([]model.Reservation, 0, len(lines))
	var shortages []model.Shortage
	var failure error
	for _, line := range lines {
		r, err := l.Reserve(ctx, orderID, line)
		if err != nil {
			var ise *model.InsufficientStockError
			if errors.As(err, &ise) {
				shortages = append(shortages, ise.Lines...)
				continue
			}
			failure = err
			break
		}
		taken = append(taken, r)
	}
	if failure == nil && len(shortages) == 0 {
		return taken, nil
	}

	l.compensate(ctx, orderID, taken)
	if failure != nil {
		return nil, failure
	}
	return nil, &model.InsufficientStockError{Lines: shortages}
}

func (l *Ledger) compensate(ctx context.Context, orderID string, taken []model.Reservation) {
	for _, r := range taken {
		if err := l.Release(ctx, r.ID); err != nil {
			// the reservation stays recorded against orderID, so ReleaseOrder can retry it
			l.log.Error("compensating release failed",
				zap.String("order_id", orderID),
				zap.String("reservation_id", r.ID),
				zap.Error(err))
		}
	}
}

// Release gives a reservation's units back. Releasing an already released
// reservation is a no-op.
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	released, err := l.store.ReleaseReservation(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("release %s: %w", reservationID, err)
	}
	if released {
		l.log.Debug("stock released", zap.String("reservation_id", reservationID))
	}
	return nil
}

// ReleaseOrder releases every reservation recorded for orderID. It keeps
// going past failures and reports them together.
func (l *Ledger) ReleaseOrder(ctx context.Context, orderID string) error {
	rs, err := l.store.ListReservations(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list reservations for %s: %w", orderID, err)
	}
	var errs []error
	for _, r := range rs {
		if r.Status == model.ReservationReleased {
			continue
		}
		if err := l.Release(ctx, r.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CommitOrder marks an order's reservations as paid for.
func (l *Ledger) CommitOrder(ctx context.Context, orderID string) error {
	rs, err := l.store.ListReservations(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list reservations for %s: %w", orderID, err)
	}
	var errs []error
	for _, r := range rs {
		if r.Status != model.ReservationReserved {
			continue
		}
		if err := l.Commit(ctx, r.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Commit marks one reservation as paid for. Its units stay taken; only a
// refund gives them back.
func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	committed, err := l.store.CommitReservation(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("commit %s: %w", reservationID, err)
	}
	if committed {
		l.log.Debug("reservation committed", zap.String("reservation_id", reservationID))
	}
	return nil
}

func (l *Ledger) Reservations(ctx context.Context, orderID string) ([]model.Reservation, error) {
	return l.store.ListReservations(ctx, orderID)
}
