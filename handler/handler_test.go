package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"checkout-engine/model"
	"checkout-engine/payment"
	"checkout-engine/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ---- fakes ----

type fakeService struct {
	AddToCartFn      func(ctx context.Context, userID string, req service.CartLineRequest) (service.CartView, error)
	RemoveFromCartFn func(ctx context.Context, userID string, req service.CartLineRequest) (service.CartView, error)
	GetCartFn        func(ctx context.Context, userID string) (service.CartView, error)
	EvaluateCouponFn func(ctx context.Context, code string, subtotal decimal.Decimal) (model.Discount, error)
	CheckoutFn       func(ctx context.Context, req service.CheckoutRequest) (*model.Order, error)
	SetStockFn       func(ctx context.Context, v model.Variant) error
	GetOrderFn       func(ctx context.Context, id string) (*model.Order, error)
	CancelOrderFn    func(ctx context.Context, id string) (*model.Order, error)
	MarkDeliveredFn  func(ctx context.Context, id string) (*model.Order, error)
}

func (f *fakeService) AddToCart(ctx context.Context, userID string, req service.CartLineRequest) (service.CartView, error) {
	return f.AddToCartFn(ctx, userID, req)
}
func (f *fakeService) RemoveFromCart(ctx context.Context, userID string, req service.CartLineRequest) (service.CartView, error) {
	return f.RemoveFromCartFn(ctx, userID, req)
}
func (f *fakeService) GetCart(ctx context.Context, userID string) (service.CartView, error) {
	return f.GetCartFn(ctx, userID)
}
func (f *fakeService) EvaluateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (model.Discount, error) {
	return f.EvaluateCouponFn(ctx, code, subtotal)
}
func (f *fakeService) Checkout(ctx context.Context, req service.CheckoutRequest) (*model.Order, error) {
	return f.CheckoutFn(ctx, req)
}
func (f *fakeService) SetStock(ctx context.Context, v model.Variant) error { return f.SetStockFn(ctx, v) }
func (f *fakeService) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return f.GetOrderFn(ctx, id)
}
func (f *fakeService) CancelOrder(ctx context.Context, id string) (*model.Order, error) {
	return f.CancelOrderFn(ctx, id)
}
func (f *fakeService) MarkDelivered(ctx context.Context, id string) (*model.Order, error) {
	return f.MarkDeliveredFn(ctx, id)
}

type fakePayments struct {
	WebhookFn  func(ctx context.Context, body []byte, sig string) error
	CallbackFn func(ctx context.Context, cb payment.Callback) (*model.Order, error)
}

func (f *fakePayments) HandleWebhook(ctx context.Context, body []byte, sig string) error {
	return f.WebhookFn(ctx, body, sig)
}
func (f *fakePayments) HandleCallback(ctx context.Context, cb payment.Callback) (*model.Order, error) {
	return f.CallbackFn(ctx, cb)
}

// ---- helpers ----

func newRouter(svc service.ServiceInterface, p Payments, auth *Auth) *mux.Router {
	r := mux.NewRouter()
	NewHandler(svc, p, auth, zap.NewNop()).RegisterRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return m
}

// ---- tests ----

func TestCheckout_ErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"stock", &model.InsufficientStockError{Lines: []model.Shortage{{ProductID: "p1", Name: "Tee", Size: "M", Requested: 6, Available: 5}}}, http.StatusConflict, "Tee (size M): requested 6, available 5"},
		{"coupon", &model.CouponError{Code: "OLD", Reason: model.CouponExpired}, http.StatusBadRequest, `coupon "OLD" has expired`},
		{"empty", model.ErrEmptyCart, http.StatusBadRequest, "cart is empty"},
		{"input", service.ErrInvalidInput, http.StatusBadRequest, "invalid input"},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "checkout failed, try again"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{CheckoutFn: func(context.Context, service.CheckoutRequest) (*model.Order, error) { return nil, tc.err }}
			rec := do(t, newRouter(svc, nil, nil), "POST", "/checkout/order", `{"user_id":"u1"}`, nil)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d (%s)", tc.code, rec.Code, rec.Body.String())
			}
			msg, _ := decodeBody(t, rec)["error"].(string)
			if !strings.Contains(msg, tc.message) {
				t.Fatalf("expected message containing %q, got %q", tc.message, msg)
			}
			if strings.Contains(msg, "pq:") {
				t.Fatalf("internal detail leaked: %q", msg)
			}
		})
	}
}

func TestCheckout_Success(t *testing.T) {
	var got service.CheckoutRequest
	svc := &fakeService{CheckoutFn: func(_ context.Context, req service.CheckoutRequest) (*model.Order, error) {
		got = req
		return &model.Order{ID: "o1", UserID: req.UserID, Status: model.StatusPending, GatewayOrderID: "order_1"}, nil
	}}
	body := `{"user_id":"u1","payment_method":"razorpay","coupon_code":"SAVE10","shipping_address":{"name":"A","city":"Pune"}}`
	rec := do(t, newRouter(svc, nil, nil), "POST", "/checkout/order", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got.UserID != "u1" || got.CouponCode != "SAVE10" || got.ShippingAddress.City != "Pune" {
		t.Fatalf("unexpected request forwarded: %+v", got)
	}
	if m := decodeBody(t, rec); m["gateway_order_id"] != "order_1" || m["status"] != "pending" {
		t.Fatalf("unexpected response %v", m)
	}
}

func TestCheckout_InvalidJSON(t *testing.T) {
	rec := do(t, newRouter(&fakeService{}, nil, nil), "POST", "/checkout/order", `{`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCart_Routes(t *testing.T) {
	var added service.CartLineRequest
	svc := &fakeService{
		AddToCartFn: func(_ context.Context, userID string, req service.CartLineRequest) (service.CartView, error) {
			added = req
			return service.CartView{UserID: userID, Subtotal: decimal.NewFromInt(20)}, nil
		},
		RemoveFromCartFn: func(context.Context, string, service.CartLineRequest) (service.CartView, error) {
			return service.CartView{}, model.ErrNotFound
		},
		GetCartFn: func(_ context.Context, userID string) (service.CartView, error) {
			if userID == "" {
				return service.CartView{}, service.ErrInvalidInput
			}
			return service.CartView{UserID: userID, Lines: []model.Line{}}, nil
		},
	}
	r := newRouter(svc, nil, nil)

	rec := do(t, r, "POST", "/cart/add", `{"user_id":"u1","product_id":"p1","size":"M","color":"red","quantity":2}`, nil)
	if rec.Code != http.StatusOK || added.ProductID != "p1" || added.Color != "red" || added.Quantity != 2 {
		t.Fatalf("add: %d %+v", rec.Code, added)
	}
	if rec := do(t, r, "POST", "/cart/remove", `{"user_id":"u1","product_id":"p1","size":"M"}`, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("remove: expected 404, got %d", rec.Code)
	}
	if rec := do(t, r, "GET", "/cart/list?user_id=u1", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	if rec := do(t, r, "GET", "/cart/list", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("list without user: expected 400, got %d", rec.Code)
	}
}

func TestEvaluateCoupon_Route(t *testing.T) {
	svc := &fakeService{EvaluateCouponFn: func(_ context.Context, code string, subtotal decimal.Decimal) (model.Discount, error) {
		if code != "SAVE10" || !subtotal.Equal(decimal.NewFromInt(50)) {
			return model.Discount{}, &model.CouponError{Code: code, Reason: model.CouponNotFound}
		}
		return model.Discount{Code: code, Kind: model.DiscountPercent, Value: decimal.NewFromInt(10), Amount: decimal.NewFromInt(5)}, nil
	}}
	r := newRouter(svc, nil, nil)

	if rec := do(t, r, "GET", "/coupons/SAVE10?subtotal=50", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := do(t, r, "GET", "/coupons/NOPE?subtotal=50", "", nil)
	if rec.Code != http.StatusBadRequest || decodeBody(t, rec)["reason"] != "not_found" {
		t.Fatalf("expected coupon reason, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, r, "GET", "/coupons/SAVE10?subtotal=abc", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad subtotal, got %d", rec.Code)
	}
}

func TestOrderRoutes(t *testing.T) {
	svc := &fakeService{
		GetOrderFn: func(_ context.Context, id string) (*model.Order, error) {
			if id != "o1" {
				return nil, model.ErrNotFound
			}
			return &model.Order{ID: id, UserID: "u1", Status: model.StatusPaid}, nil
		},
		CancelOrderFn: func(_ context.Context, id string) (*model.Order, error) {
			return nil, &model.InvalidTransitionError{OrderID: id, From: model.StatusPaid, Attempted: "cancel"}
		},
		MarkDeliveredFn: func(_ context.Context, id string) (*model.Order, error) {
			return &model.Order{ID: id, Status: model.StatusDelivered}, nil
		},
	}
	r := newRouter(svc, nil, nil)

	if rec := do(t, r, "GET", "/orders/o1", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	if rec := do(t, r, "GET", "/orders/missing", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get missing: expected 404, got %d", rec.Code)
	}
	rec := do(t, r, "POST", "/orders/o1/cancel", "", nil)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "cannot cancel from paid") {
		t.Fatalf("cancel: expected 409, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, r, "POST", "/orders/o1/deliver", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("deliver: expected 200, got %d", rec.Code)
	}
}

func TestSetStock_Route(t *testing.T) {
	var got model.Variant
	svc := &fakeService{SetStockFn: func(_ context.Context, v model.Variant) error {
		got = v
		return nil
	}}
	rec := do(t, newRouter(svc, nil, nil), "PUT", "/admin/variants", `{"product_id":"p1","size":"M","name":"Tee","price":"10.50","qty":7}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.ProductID != "p1" || got.Qty != 7 || !got.Price.Equal(decimal.RequireFromString("10.5")) {
		t.Fatalf("unexpected variant %+v", got)
	}
}

func TestRazorpayWebhook_Route(t *testing.T) {
	var gotSig string
	var gotBody []byte
	p := &fakePayments{WebhookFn: func(_ context.Context, body []byte, sig string) error {
		gotBody, gotSig = body, sig
		switch sig {
		case "bad":
			return payment.ErrBadSignature
		case "late":
			return &model.InvalidTransitionError{OrderID: "o1", From: model.StatusCancelled, Attempted: "confirm payment"}
		case "forged":
			return &model.GatewayMismatchError{OrderID: "o1", Field: "amount"}
		}
		return nil
	}}
	r := newRouter(&fakeService{}, p, nil)

	body := `{"event":"payment.captured"}`
	rec := do(t, r, "POST", "/webhooks/razorpay", body, map[string]string{"X-Razorpay-Signature": "abc"})
	if rec.Code != http.StatusOK || gotSig != "abc" || string(gotBody) != body {
		t.Fatalf("expected raw body forwarded, got %d %q %q", rec.Code, gotSig, gotBody)
	}
	if rec := do(t, r, "POST", "/webhooks/razorpay", body, map[string]string{"X-Razorpay-Signature": "bad"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := do(t, r, "POST", "/webhooks/razorpay", body, map[string]string{"X-Razorpay-Signature": "late"}); rec.Code != http.StatusOK {
		t.Fatalf("expected late capture acknowledged, got %d", rec.Code)
	}
	if rec := do(t, r, "POST", "/webhooks/razorpay", body, map[string]string{"X-Razorpay-Signature": "forged"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for mismatch, got %d", rec.Code)
	}
}

func TestCheckoutCallback_Route(t *testing.T) {
	p := &fakePayments{CallbackFn: func(_ context.Context, cb payment.Callback) (*model.Order, error) {
		if cb.GatewayOrderID != "order_1" || cb.GatewayPaymentID != "pay_1" || cb.Signature != "sig" {
			return nil, payment.ErrBadSignature
		}
		return &model.Order{ID: "o1", Status: model.StatusPaid}, nil
	}}
	r := newRouter(&fakeService{}, p, nil)
	rec := do(t, r, "POST", "/checkout/callback", `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig"}`, nil)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["status"] != "paid" {
		t.Fatalf("unexpected callback response %d %s", rec.Code, rec.Body.String())
	}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestAuthMiddleware(t *testing.T) {
	var gotUser string
	svc := &fakeService{
		GetCartFn: func(_ context.Context, userID string) (service.CartView, error) {
			gotUser = userID
			return service.CartView{UserID: userID}, nil
		},
		GetOrderFn: func(_ context.Context, id string) (*model.Order, error) {
			return &model.Order{ID: id, UserID: "someone-else"}, nil
		},
	}
	p := &fakePayments{WebhookFn: func(context.Context, []byte, string) error { return nil }}
	r := newRouter(svc, p, NewAuth("topsecret"))

	if rec := do(t, r, "GET", "/cart/list?user_id=u1", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	bad := signToken(t, "other", jwt.MapClaims{"user_id": "u1"})
	if rec := do(t, r, "GET", "/cart/list", "", map[string]string{"Authorization": "Bearer " + bad}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong secret, got %d", rec.Code)
	}
	expired := signToken(t, "topsecret", jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(-time.Hour).Unix()})
	if rec := do(t, r, "GET", "/cart/list", "", map[string]string{"Authorization": "Bearer " + expired}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}

	good := signToken(t, "topsecret", jwt.MapClaims{"user_id": "u-token", "exp": time.Now().Add(time.Hour).Unix()})
	hdr := map[string]string{"Authorization": "Bearer " + good}
	if rec := do(t, r, "GET", "/cart/list?user_id=spoofed", "", hdr); rec.Code != http.StatusOK || gotUser != "u-token" {
		t.Fatalf("expected token user to win, got %d %q", rec.Code, gotUser)
	}
	if rec := do(t, r, "GET", "/orders/o1", "", hdr); rec.Code != http.StatusNotFound {
		t.Fatalf("expected other users' orders hidden, got %d", rec.Code)
	}
	if rec := do(t, r, "POST", "/webhooks/razorpay", `{}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("webhooks must bypass bearer auth, got %d", rec.Code)
	}
}

func TestAuth_OrderOwnershipAndAdminRoutes(t *testing.T) {
	var cancelled, delivered []string
	stockSet := 0
	svc := &fakeService{
		GetOrderFn: func(_ context.Context, id string) (*model.Order, error) {
			return &model.Order{ID: id, UserID: "owner", Status: model.StatusPending}, nil
		},
		CancelOrderFn: func(_ context.Context, id string) (*model.Order, error) {
			cancelled = append(cancelled, id)
			return &model.Order{ID: id, UserID: "owner", Status: model.StatusCancelled}, nil
		},
		MarkDeliveredFn: func(_ context.Context, id string) (*model.Order, error) {
			delivered = append(delivered, id)
			return &model.Order{ID: id, Status: model.StatusDelivered}, nil
		},
		SetStockFn: func(context.Context, model.Variant) error {
			stockSet++
			return nil
		},
	}
	r := newRouter(svc, nil, NewAuth("topsecret"))
	bearer := func(claims jwt.MapClaims) map[string]string {
		return map[string]string{"Authorization": "Bearer " + signToken(t, "topsecret", claims)}
	}
	other := bearer(jwt.MapClaims{"user_id": "intruder"})
	owner := bearer(jwt.MapClaims{"user_id": "owner"})
	admin := bearer(jwt.MapClaims{"user_id": "ops", "role": "admin"})
	stock := `{"product_id":"p1","size":"M","name":"Tee","price":"10","qty":1}`

	if rec := do(t, r, "POST", "/orders/o1/cancel", "", other); rec.Code != http.StatusNotFound {
		t.Fatalf("cancel by another user: expected 404, got %d", rec.Code)
	}
	if len(cancelled) != 0 {
		t.Fatalf("another user's cancel reached the service: %v", cancelled)
	}
	if rec := do(t, r, "POST", "/orders/o1/deliver", "", other); rec.Code != http.StatusForbidden {
		t.Fatalf("deliver without admin role: expected 403, got %d", rec.Code)
	}
	if rec := do(t, r, "POST", "/orders/o1/deliver", "", owner); rec.Code != http.StatusForbidden {
		t.Fatalf("owner cannot mark delivered: expected 403, got %d", rec.Code)
	}
	if rec := do(t, r, "PUT", "/admin/variants", stock, owner); rec.Code != http.StatusForbidden {
		t.Fatalf("set stock without admin role: expected 403, got %d", rec.Code)
	}
	if len(delivered) != 0 || stockSet != 0 {
		t.Fatalf("admin routes reached the service: delivered=%v stock=%d", delivered, stockSet)
	}

	if rec := do(t, r, "POST", "/orders/o1/cancel", "", owner); rec.Code != http.StatusOK {
		t.Fatalf("owner cancel: expected 200, got %d", rec.Code)
	}
	if rec := do(t, r, "POST", "/orders/o2/cancel", "", admin); rec.Code != http.StatusOK {
		t.Fatalf("admin cancel: expected 200, got %d", rec.Code)
	}
	if rec := do(t, r, "POST", "/orders/o1/deliver", "", admin); rec.Code != http.StatusOK {
		t.Fatalf("admin deliver: expected 200, got %d", rec.Code)
	}
	if rec := do(t, r, "PUT", "/admin/variants", stock, admin); rec.Code != http.StatusOK {
		t.Fatalf("admin set stock: expected 200, got %d", rec.Code)
	}
	if len(cancelled) != 2 || len(delivered) != 1 || stockSet != 1 {
		t.Fatalf("unexpected calls: cancelled=%v delivered=%v stock=%d", cancelled, delivered, stockSet)
	}
}

func TestAuth_VerifyReadsRole(t *testing.T) {
	a := NewAuth("topsecret")
	id, err := a.Verify(signToken(t, "topsecret", jwt.MapClaims{"user_id": "ops", "role": "admin"}))
	if err != nil || !id.IsAdmin() || id.UserID != "ops" {
		t.Fatalf("unexpected identity %+v, %v", id, err)
	}
	id, err = a.Verify(signToken(t, "topsecret", jwt.MapClaims{"user_id": "u1"}))
	if err != nil || id.IsAdmin() {
		t.Fatalf("token without role must not be admin: %+v, %v", id, err)
	}
	if _, err := a.Verify(signToken(t, "topsecret", jwt.MapClaims{"role": "admin"})); err == nil {
		t.Fatalf("expected error for token without user_id")
	}
}
