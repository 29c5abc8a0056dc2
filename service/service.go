package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"checkout-engine/cart"
	"checkout-engine/inventory"
	"checkout-engine/model"
	"checkout-engine/payment"
	"checkout-engine/pricing"
	"checkout-engine/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidInput marks request problems the caller can fix.
var ErrInvalidInput = errors.New("invalid input")

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

type Service struct {
	store   store.Store
	orders  *Orders
	coupons *pricing.Evaluator
	gateway payment.Gateway
	cfg     Config
	log     *zap.Logger
	now     func() time.Time

	// per-user mutex so one shopper cannot check the same cart out twice
	userLocks sync.Map
}

func NewService(st store.Store, gw payment.Gateway, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	ledger := inventory.NewLedger(st, log)
	return &Service{
		store:   st,
		orders:  NewOrders(st, ledger, log),
		coupons: &pricing.Evaluator{Coupons: st},
		gateway: gw,
		cfg:     cfg,
		log:     log.Named("checkout"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Orders exposes the lifecycle manager, which the payment adapter and the
// sweeper drive directly.
func (s *Service) Orders() *Orders { return s.orders }

func (s *Service) lockForUser(userID string) func() {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) AddToCart(ctx context.Context, userID string, req CartLineRequest) (CartView, error) {
	if userID == "" {
		return CartView{}, invalidInput("user_id required")
	}
	if req.ProductID == "" || req.Size == "" {
		return CartView{}, invalidInput("product_id and size required")
	}
	if req.Quantity <= 0 {
		return CartView{}, invalidInput("quantity must be > 0")
	}
	v, err := s.store.GetVariant(ctx, req.ProductID, req.Size)
	if err != nil {
		return CartView{}, err
	}
	line := model.Line{
		ProductID: v.ProductID,
		Name:      v.Name,
		Size:      v.Size,
		Color:     req.Color,
		Quantity:  req.Quantity,
		UnitPrice: v.Price,
	}
	if err := s.store.AddCartLine(ctx, userID, line); err != nil {
		return CartView{}, err
	}
	return s.GetCart(ctx, userID)
}

func (s *Service) RemoveFromCart(ctx context.Context, userID string, req CartLineRequest) (CartView, error) {
	if userID == "" {
		return CartView{}, invalidInput("user_id required")
	}
	if req.ProductID == "" || req.Size == "" {
		return CartView{}, invalidInput("product_id and size required")
	}
	if err := s.store.RemoveCartLine(ctx, userID, req.ProductID, req.Size, req.Color); err != nil {
		return CartView{}, err
	}
	return s.GetCart(ctx, userID)
}

func (s *Service) GetCart(ctx context.Context, userID string) (CartView, error) {
	if userID == "" {
		return CartView{}, invalidInput("user_id required")
	}
	lines, err := s.store.GetCart(ctx, userID)
	if err != nil {
		return CartView{}, err
	}
	sub, err := pricing.Subtotal(lines)
	if err != nil {
		return CartView{}, err
	}
	if lines == nil {
		lines = []model.Line{}
	}
	return CartView{UserID: userID, Lines: lines, Subtotal: sub}, nil
}

func (s *Service) EvaluateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (model.Discount, error) {
	if strings.TrimSpace(code) == "" {
		return model.Discount{}, invalidInput("coupon code required")
	}
	return s.coupons.Evaluate(ctx, code, s.now(), subtotal)
}

func (s *Service) SetStock(ctx context.Context, v model.Variant) error {
	if v.ProductID == "" || v.Size == "" {
		return invalidInput("product_id and size required")
	}
	if v.Qty < 0 {
		return invalidInput("qty must be >= 0")
	}
	if v.Price.IsNegative() {
		return invalidInput("price must be >= 0")
	}
	if err := s.store.SetStock(ctx, v); err != nil {
		return err
	}
	s.log.Info("stock set", zap.String("product_id", v.ProductID), zap.String("size", v.Size), zap.Int("qty", v.Qty))
	return nil
}

// Checkout turns the user's cart into a pending order with stock reserved
// and, unless paying on delivery, a gateway order to pay against. A failure
// after the order exists cancels it, which returns the stock.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*model.Order, error) {
	if req.UserID == "" {
		return nil, invalidInput("user_id required")
	}
	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = PaymentRazorpay
	}
	if method != PaymentRazorpay && method != PaymentCOD {
		return nil, invalidInput("unsupported payment method %q", req.PaymentMethod)
	}

	unlock := s.lockForUser(req.UserID)
	defer unlock()

	raw, err := s.store.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	lines, err := cart.Snapshot(raw)
	if err != nil {
		if errors.Is(err, model.ErrEmptyCart) {
			return nil, err
		}
		return nil, invalidInput("%v", err)
	}

	var discount model.Discount
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		sub, err := pricing.Subtotal(lines)
		if err != nil {
			return nil, err
		}
		discount, err = s.coupons.Evaluate(ctx, code, s.now(), sub)
		if err != nil {
			return nil, err
		}
	}
	breakdown, err := pricing.Price(lines, discount,
		pricing.ShippingRule{FlatRate: s.cfg.Shipping.FlatRate, FreeAbove: s.cfg.Shipping.FreeAbove},
		pricing.TaxRule{Rate: s.cfg.TaxRate})
	if err != nil {
		return nil, err
	}

	o, err := s.orders.Create(ctx, CreateOrderInput{
		UserID:          req.UserID,
		Lines:           lines,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   method,
		Pricing:         breakdown,
		CouponApplied:   discount.Code,
	})
	if err != nil {
		return nil, err
	}

	if method != PaymentCOD {
		o, err = s.openGatewayOrder(ctx, o)
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.ClearCart(ctx, req.UserID); err != nil {
		// the order stands; a stale cart only costs the shopper a click
		s.log.Warn("clear cart after checkout", zap.String("user_id", req.UserID), zap.Error(err))
	}
	return o, nil
}

func (s *Service) openGatewayOrder(ctx context.Context, o *model.Order) (*model.Order, error) {
	gw, err := s.gateway.CreateOrder(ctx, o.ID, o.Pricing.Total, s.cfg.Currency)
	if err == nil {
		var attached *model.Order
		if attached, err = s.orders.AttachGatewayOrder(ctx, o.ID, gw.ID); err == nil {
			return attached, nil
		}
	}
	s.log.Error("gateway order failed, cancelling", zap.String("order_id", o.ID), zap.Error(err))
	if _, cerr := s.orders.Cancel(ctx, o.ID); cerr != nil {
		s.log.Error("cancel after gateway failure", zap.String("order_id", o.ID), zap.Error(cerr))
		return nil, errors.Join(fmt.Errorf("create gateway order: %w", err), cerr)
	}
	return nil, fmt.Errorf("create gateway order: %w", err)
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return s.orders.Get(ctx, orderID)
}

func (s *Service) CancelOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return s.orders.Cancel(ctx, orderID)
}

func (s *Service) MarkDelivered(ctx context.Context, orderID string) (*model.Order, error) {
	return s.orders.MarkDelivered(ctx, orderID)
}
