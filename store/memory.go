package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"checkout-engine/model"
)

type variantKey struct {
	productID string
	size      string
}

// MemoryStore is an in-process Store used for local runs without a
// database and in tests. One mutex guards everything, which makes every
// operation trivially atomic.
type MemoryStore struct {
	mu           sync.Mutex
	variants     map[variantKey]*model.Variant
	reservations map[string]*model.Reservation
	byOrder      map[string][]string
	orders       map[string]*model.Order
	carts        map[string][]model.Line
	coupons      map[string]model.Coupon
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		variants:     make(map[variantKey]*model.Variant),
		reservations: make(map[string]*model.Reservation),
		byOrder:      make(map[string][]string),
		orders:       make(map[string]*model.Order),
		carts:        make(map[string][]model.Line),
		coupons:      make(map[string]model.Coupon),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetVariant(_ context.Context, productID, size string) (model.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variants[variantKey{productID, size}]
	if !ok {
		return model.Variant{}, model.ErrNotFound
	}
	return *v, nil
}

func (m *MemoryStore) SetStock(_ context.Context, v model.Variant) error {
	if v.Qty < 0 {
		return errors.New("stock cannot be negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := variantKey{v.ProductID, v.Size}
	if cur, ok := m.variants[k]; ok {
		cur.Name, cur.Price, cur.Qty = v.Name, v.Price, v.Qty
		return nil
	}
	v.Sold = 0
	m.variants[k] = &v
	return nil
}

func (m *MemoryStore) Reserve(_ context.Context, r model.Reservation) error {
	if r.Quantity <= 0 {
		return errors.New("quantity must be > 0")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variants[variantKey{r.ProductID, r.Size}]
	if !ok {
		return &ShortStockError{Available: 0}
	}
	if v.Qty < r.Quantity {
		return &ShortStockError{Available: v.Qty}
	}
	v.Qty -= r.Quantity
	v.Sold += r.Quantity
	r.Status = model.ReservationReserved
	r.UpdatedAt = r.CreatedAt
	m.reservations[r.ID] = &r
	m.byOrder[r.OrderID] = append(m.byOrder[r.OrderID], r.ID)
	return nil
}

func (m *MemoryStore) ReleaseReservation(_ context.Context, reservationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[reservationID]
	if !ok {
		return false, model.ErrNotFound
	}
	if r.Status == model.ReservationReleased {
		return false, nil
	}
	v, ok := m.variants[variantKey{r.ProductID, r.Size}]
	if !ok {
		return false, model.ErrNotFound
	}
	v.Qty += r.Quantity
	v.Sold -= r.Quantity
	r.Status = model.ReservationReleased
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) CommitReservation(_ context.Context, reservationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[reservationID]
	if !ok || r.Status != model.ReservationReserved {
		return false, nil
	}
	r.Status = model.ReservationCommitted
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) ListReservations(_ context.Context, orderID string) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byOrder[orderID]
	out := make([]model.Reservation, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.reservations[id])
	}
	return out, nil
}

func (m *MemoryStore) InsertOrder(_ context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return errors.New("order already exists")
	}
	if o.Version == 0 {
		o.Version = 1
	}
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return o.Clone(), nil
}

func (m *MemoryStore) FindOrderByGatewayOrderID(_ context.Context, gatewayOrderID string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if gatewayOrderID != "" && o.GatewayOrderID == gatewayOrderID {
			return o.Clone(), nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *MemoryStore) UpdateOrder(_ context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok {
		return model.ErrNotFound
	}
	if cur.Version != o.Version {
		return ErrVersionConflict
	}
	next := o.Clone()
	// lines and pricing are fixed at insert
	next.Lines = cur.Lines
	next.Pricing = cur.Pricing
	next.Version++
	m.orders[o.ID] = next
	o.Version = next.Version
	return nil
}

func (m *MemoryStore) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*model.Order
	for _, o := range m.orders {
		if o.Status == model.StatusPending && o.PaymentMethod != model.PaymentCOD && o.CreatedAt.Before(cutoff) {
			pending = append(pending, o)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	ids := make([]string, 0, len(pending))
	for _, o := range pending {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

func (m *MemoryStore) AddCartLine(_ context.Context, userID string, l model.Line) error {
	if l.Quantity <= 0 {
		return errors.New("quantity must be > 0")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.carts[userID]
	for i := range lines {
		if lines[i].ProductID == l.ProductID && lines[i].Size == l.Size && lines[i].Color == l.Color {
			lines[i].Quantity += l.Quantity
			return nil
		}
	}
	m.carts[userID] = append(lines, l)
	return nil
}

func (m *MemoryStore) RemoveCartLine(_ context.Context, userID, productID, size, color string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.carts[userID]
	for i := range lines {
		if lines[i].ProductID == productID && lines[i].Size == size && lines[i].Color == color {
			m.carts[userID] = append(lines[:i:i], lines[i+1:]...)
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *MemoryStore) GetCart(_ context.Context, userID string) ([]model.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Line{}, m.carts[userID]...), nil
}

func (m *MemoryStore) ClearCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}

func (m *MemoryStore) GetCoupon(_ context.Context, code string) (model.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return model.Coupon{}, model.ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) PutCoupon(_ context.Context, c model.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coupons[c.Code] = c
	return nil
}
