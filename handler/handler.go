package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"checkout-engine/model"
	"checkout-engine/payment"
	"checkout-engine/service"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// Payments is the gateway side of the HTTP surface.
type Payments interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) error
	HandleCallback(ctx context.Context, cb payment.Callback) (*model.Order, error)
}

// Handler is the HTTP layer that talks to service.Service
type Handler struct {
	svc      service.ServiceInterface
	payments Payments
	auth     *Auth
	log      *zap.Logger
}

// NewHandler returns a Handler. A nil auth leaves user ids to the client.
func NewHandler(s service.ServiceInterface, p Payments, auth *Auth, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: s, payments: p, auth: auth, log: log.Named("http")}
}

// RegisterRoutes registers all routes on the provided router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Gateway deliveries carry their own signatures
	r.HandleFunc("/webhooks/razorpay", h.RazorpayWebhook).Methods("POST")
	r.HandleFunc("/checkout/callback", h.CheckoutCallback).Methods("POST")

	api := r.PathPrefix("/").Subrouter()
	if h.auth != nil {
		api.Use(h.auth.Middleware)
	}

	// Cart
	api.HandleFunc("/cart/add", h.AddToCart).Methods("POST")
	api.HandleFunc("/cart/remove", h.RemoveFromCart).Methods("POST")
	api.HandleFunc("/cart/list", h.ListCart).Methods("GET")
	api.HandleFunc("/coupons/{code}", h.EvaluateCoupon).Methods("GET")

	// Checkout and orders
	api.HandleFunc("/checkout/order", h.Checkout).Methods("POST")
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", h.CancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/deliver", h.requireAdmin(h.MarkDelivered)).Methods("POST")

	// Admin
	api.HandleFunc("/admin/variants", h.requireAdmin(h.SetStock)).Methods("PUT")
}

// --- request / response shapes ---
type cartReq struct {
	UserID string `json:"user_id"`
	service.CartLineRequest
}

type setStockReq struct {
	ProductID string          `json:"product_id"`
	Size      string          `json:"size"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
}

// --- helpers ---
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeServiceErr maps engine errors to statuses. Stock, coupon and cart
// problems get messages the shopper can act on; anything else is logged in
// full and answered generically.
func (h *Handler) writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ise *model.InsufficientStockError
		ce  *model.CouponError
		ite *model.InvalidTransitionError
		gme *model.GatewayMismatchError
	)
	switch {
	case errors.As(err, &ise):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": ise.Error(), "lines": ise.Lines})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ce.Error(), "reason": string(ce.Reason)})
	case errors.Is(err, model.ErrEmptyCart):
		writeErr(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, service.ErrInvalidInput):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not found")
	case errors.As(err, &ite):
		h.log.Warn("invalid transition requested", zap.String("path", r.URL.Path), zap.Error(err))
		writeErr(w, http.StatusConflict, ite.Error())
	case errors.As(err, &gme):
		h.log.Error("gateway mismatch", zap.String("path", r.URL.Path), zap.Error(err))
		writeErr(w, http.StatusBadRequest, "payment does not match order")
	case errors.Is(err, payment.ErrBadSignature):
		writeErr(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, payment.ErrBadPayload):
		writeErr(w, http.StatusBadRequest, "invalid payload")
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "checkout failed, try again")
	}
}

// --- Handler ---

// AddToCart handles POST /cart/add
// body: { "user_id": "...", "product_id": "...", "size": "M", "quantity": 2 }
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req cartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	view, err := h.svc.AddToCart(r.Context(), userID(r, req.UserID), req.CartLineRequest)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RemoveFromCart handles POST /cart/remove
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	var req cartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	view, err := h.svc.RemoveFromCart(r.Context(), userID(r, req.UserID), req.CartLineRequest)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListCart handles GET /cart/list?user_id=...
func (h *Handler) ListCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetCart(r.Context(), userID(r, r.URL.Query().Get("user_id")))
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// EvaluateCoupon handles GET /coupons/{code}?subtotal=...
func (h *Handler) EvaluateCoupon(w http.ResponseWriter, r *http.Request) {
	subtotal := decimal.Zero
	if v := r.URL.Query().Get("subtotal"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "subtotal must be a number")
			return
		}
		subtotal = d
	}
	d, err := h.svc.EvaluateCoupon(r.Context(), mux.Vars(r)["code"], subtotal)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Checkout handles POST /checkout/order
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.UserID = userID(r, req.UserID)
	ord, err := h.svc.Checkout(r.Context(), req)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ord)
}

// GetOrder handles GET /orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	if !canSee(r, o.UserID) {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// CancelOrder handles POST /orders/{id}/cancel. Only the owner or an admin
// may cancel; anyone else sees the order as missing.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	o, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	if !canSee(r, o.UserID) {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	o, err = h.svc.CancelOrder(r.Context(), id)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// MarkDelivered handles POST /orders/{id}/deliver
func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.MarkDelivered(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// SetStock handles PUT /admin/variants
func (h *Handler) SetStock(w http.ResponseWriter, r *http.Request) {
	var req setStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.svc.SetStock(r.Context(), model.Variant{
		ProductID: req.ProductID,
		Size:      req.Size,
		Name:      req.Name,
		Price:     req.Price,
		Qty:       req.Qty,
	})
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RazorpayWebhook handles POST /webhooks/razorpay. The raw body is what the
// signature covers, so it is read before any decoding.
func (h *Handler) RazorpayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "unreadable body")
		return
	}
	err = h.payments.HandleWebhook(r.Context(), body, r.Header.Get("X-Razorpay-Signature"))
	if errors.Is(err, model.ErrInvalidTransition) {
		// already logged; redelivery cannot fix it
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CheckoutCallback handles POST /checkout/callback
// body: { "razorpay_order_id": "...", "razorpay_payment_id": "...", "razorpay_signature": "..." }
func (h *Handler) CheckoutCallback(w http.ResponseWriter, r *http.Request) {
	var cb payment.Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.payments.HandleCallback(r.Context(), cb)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
