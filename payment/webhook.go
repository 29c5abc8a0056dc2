package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"checkout-engine/model"

	"go.uber.org/zap"
)

var (
	ErrBadSignature = errors.New("invalid gateway signature")
	ErrBadPayload   = errors.New("malformed gateway payload")
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
	EventRefundCreated   = "refund.created"
	EventRefundProcessed = "refund.processed"
)

// Lifecycle is the part of the order manager the adapter may drive.
type Lifecycle interface {
	FindByGatewayOrder(ctx context.Context, gatewayOrderID string) (*model.Order, error)
	ConfirmPayment(ctx context.Context, orderID, gatewayOrderID, gatewayPaymentID string, details model.PaymentDetails) (*model.Order, error)
	Refund(ctx context.Context, orderID string, details model.RefundDetails) (*model.Order, error)
}

type paymentEntity struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	OrderID  string `json:"order_id"`
	Method   string `json:"method"`
	Email    string `json:"email"`
	Contact  string `json:"contact"`
}

type refundEntity struct {
	ID        string            `json:"id"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	PaymentID string            `json:"payment_id"`
	Status    string            `json:"status"`
	Notes     map[string]string `json:"notes"`
}

type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity refundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

// Event is a gateway delivery reduced to what the engine acts on.
type Event struct {
	Type             string
	GatewayOrderID   string
	GatewayPaymentID string
	Payment          *paymentEntity
	Refund           *refundEntity
	Payload          json.RawMessage
}

// ParseEvent decodes a Razorpay webhook body.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if env.Event == "" {
		return Event{}, fmt.Errorf("%w: missing event type", ErrBadPayload)
	}
	ev := Event{Type: env.Event, Payload: json.RawMessage(body)}
	if p := env.Payload.Payment; p != nil {
		ent := p.Entity
		ev.Payment = &ent
		ev.GatewayOrderID = ent.OrderID
		ev.GatewayPaymentID = ent.ID
	}
	if r := env.Payload.Refund; r != nil {
		ent := r.Entity
		ev.Refund = &ent
		if ev.GatewayPaymentID == "" {
			ev.GatewayPaymentID = ent.PaymentID
		}
	}
	return ev, nil
}

// Adapter verifies gateway deliveries and forwards them to the lifecycle
// manager. It holds no state of its own.
type Adapter struct {
	orders        Lifecycle
	webhookSecret string
	keySecret     string
	log           *zap.Logger
}

func NewAdapter(orders Lifecycle, webhookSecret, keySecret string, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{orders: orders, webhookSecret: webhookSecret, keySecret: keySecret, log: log.Named("payment")}
}

// HandleWebhook checks the X-Razorpay-Signature value against the raw body
// and applies the event. Unknown and informational events are accepted and
// ignored.
func (a *Adapter) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !validSignature(body, signature, a.webhookSecret) {
		a.log.Warn("webhook signature rejected")
		return ErrBadSignature
	}
	ev, err := ParseEvent(body)
	if err != nil {
		return err
	}
	log := a.log.With(zap.String("event", ev.Type),
		zap.String("gateway_order_id", ev.GatewayOrderID),
		zap.String("gateway_payment_id", ev.GatewayPaymentID))

	switch ev.Type {
	case EventPaymentCaptured, EventOrderPaid:
		return a.applyCapture(ctx, ev, log)
	case EventRefundCreated, EventRefundProcessed:
		return a.applyRefund(ctx, ev, log)
	case EventPaymentFailed:
		log.Info("payment failed at gateway, order stays pending")
		return nil
	default:
		log.Debug("ignoring gateway event")
		return nil
	}
}

func (a *Adapter) applyCapture(ctx context.Context, ev Event, log *zap.Logger) error {
	if ev.Payment == nil || ev.GatewayOrderID == "" || ev.GatewayPaymentID == "" {
		return fmt.Errorf("%w: capture without payment entity", ErrBadPayload)
	}
	o, err := a.orders.FindByGatewayOrder(ctx, ev.GatewayOrderID)
	if err != nil {
		log.Warn("capture for unknown gateway order", zap.Error(err))
		return err
	}
	if got, want := ev.Payment.Amount, ToMinorUnits(o.Pricing.Total); got != want {
		err := &model.GatewayMismatchError{
			OrderID:  o.ID,
			Field:    "amount",
			Stored:   fmt.Sprint(want),
			Received: fmt.Sprint(got),
		}
		log.Error("captured amount does not match order total", zap.String("order_id", o.ID), zap.Error(err))
		return err
	}
	_, err = a.orders.ConfirmPayment(ctx, o.ID, ev.GatewayOrderID, ev.GatewayPaymentID, model.PaymentDetails{
		Method:   ev.Payment.Method,
		Amount:   FromMinorUnits(ev.Payment.Amount),
		Currency: ev.Payment.Currency,
		Email:    ev.Payment.Email,
		Contact:  ev.Payment.Contact,
	})
	if errors.Is(err, model.ErrInvalidTransition) {
		log.Error("payment captured for an order that is not awaiting payment; manual refund needed",
			zap.String("order_id", o.ID), zap.Error(err))
	}
	return err
}

func (a *Adapter) applyRefund(ctx context.Context, ev Event, log *zap.Logger) error {
	if ev.Refund == nil || ev.Refund.ID == "" {
		return fmt.Errorf("%w: refund without refund entity", ErrBadPayload)
	}
	if ev.GatewayOrderID == "" {
		return fmt.Errorf("%w: refund without payment order id", ErrBadPayload)
	}
	o, err := a.orders.FindByGatewayOrder(ctx, ev.GatewayOrderID)
	if err != nil {
		log.Warn("refund for unknown gateway order", zap.Error(err))
		return err
	}
	if o.GatewayPaymentID != "" && ev.Refund.PaymentID != o.GatewayPaymentID {
		err := &model.GatewayMismatchError{
			OrderID:  o.ID,
			Field:    "payment_id",
			Stored:   o.GatewayPaymentID,
			Received: ev.Refund.PaymentID,
		}
		log.Error("refund references a different payment", zap.String("order_id", o.ID), zap.Error(err))
		return err
	}
	switch got, want := ev.Refund.Amount, ToMinorUnits(o.Pricing.Total); {
	case got > want:
		err := &model.GatewayMismatchError{
			OrderID:  o.ID,
			Field:    "amount",
			Stored:   fmt.Sprint(want),
			Received: fmt.Sprint(got),
		}
		log.Error("refund exceeds order total", zap.String("order_id", o.ID), zap.Error(err))
		return err
	case got < want:
		// stock is only returned for whole-order refunds
		log.Warn("partial refund acknowledged without state change",
			zap.String("order_id", o.ID),
			zap.String("refund_id", ev.Refund.ID),
			zap.Int64("amount", got),
			zap.Int64("order_total", want))
		return nil
	}
	_, err = a.orders.Refund(ctx, o.ID, model.RefundDetails{
		RefundID: ev.Refund.ID,
		Amount:   FromMinorUnits(ev.Refund.Amount),
		Reason:   ev.Refund.Notes["reason"],
		Status:   ev.Refund.Status,
	})
	return err
}

// Callback is what the hosted checkout posts back after a successful payment.
type Callback struct {
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
}

// HandleCallback verifies hex(HMAC-SHA256(order_id|payment_id, key secret))
// and confirms the payment. The webhook for the same payment arriving later
// is then a no-op.
func (a *Adapter) HandleCallback(ctx context.Context, cb Callback) (*model.Order, error) {
	if cb.GatewayOrderID == "" || cb.GatewayPaymentID == "" {
		return nil, fmt.Errorf("%w: callback ids required", ErrBadPayload)
	}
	if !validSignature([]byte(cb.GatewayOrderID+"|"+cb.GatewayPaymentID), cb.Signature, a.keySecret) {
		a.log.Warn("callback signature rejected", zap.String("gateway_order_id", cb.GatewayOrderID))
		return nil, ErrBadSignature
	}
	o, err := a.orders.FindByGatewayOrder(ctx, cb.GatewayOrderID)
	if err != nil {
		return nil, err
	}
	return a.orders.ConfirmPayment(ctx, o.ID, cb.GatewayOrderID, cb.GatewayPaymentID, model.PaymentDetails{
		Amount:    o.Pricing.Total,
		Signature: cb.Signature,
	})
}
