package service

import (
	"context"
	"errors"
	"time"

	"checkout-engine/model"

	"go.uber.org/zap"
)

const sweepBatch = 100

// Sweeper cancels orders that stayed pending longer than TTL, through the
// same Cancel path a shopper would use.
type Sweeper struct {
	orders   *Orders
	ttl      time.Duration
	interval time.Duration
	log      *zap.Logger
}

func NewSweeper(orders *Orders, ttl, interval time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{orders: orders, ttl: ttl, interval: interval, log: log.Named("sweeper")}
}

// Run sweeps every interval until ctx is done.
func (w *Sweeper) Run(ctx context.Context) error {
	if w.ttl <= 0 || w.interval <= 0 {
		w.log.Info("pending order sweeper disabled")
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(w.interval)
	defer t.Stop()
	w.log.Info("pending order sweeper started", zap.Duration("ttl", w.ttl), zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := w.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				w.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce cancels one batch of stale pending orders and reports how many
// it cancelled. Orders paid in the meantime are skipped.
func (w *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := w.orders.now().Add(-w.ttl)
	ids, err := w.orders.store.ListPendingBefore(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, id := range ids {
		if _, err := w.orders.Cancel(ctx, id); err != nil {
			if errors.Is(err, model.ErrInvalidTransition) {
				w.log.Debug("order left pending before sweep", zap.String("order_id", id))
				continue
			}
			errs = append(errs, err)
			continue
		}
		n++
	}
	if n > 0 {
		w.log.Info("expired pending orders cancelled", zap.Int("count", n))
	}
	return n, errors.Join(errs...)
}
